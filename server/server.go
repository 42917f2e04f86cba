// Package server exposes feed creation, templates, previews and fonts over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ByLCY/adsmith/config"
	"github.com/ByLCY/adsmith/feed"
	"github.com/ByLCY/adsmith/logger"
)

// Options wires the router's dependencies.
type Options struct {
	Service *feed.Service
	Fonts   FontLister
	Logger  *zap.Logger
	// MaxBodyBytes caps request bodies; zero means no limit.
	MaxBodyBytes int64
	// FilesDir, when set, is served under /files for filesystem storage.
	FilesDir string
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts Options) *gin.Engine {
	l := opts.Logger
	if l == nil {
		l = zap.NewNop()
	}
	r := gin.New()
	r.Use(logger.GinMiddleware(l), logger.Recovery(l), BodyLimit(opts.MaxBodyBytes))

	h := &handler{svc: opts.Service, fonts: opts.Fonts}
	r.GET("/health", h.health)
	if opts.FilesDir != "" {
		r.Static("/files", opts.FilesDir)
	}

	api := r.Group("/api")
	api.GET("/fonts", h.listFonts)

	tenant := api.Group("", RequireOrganization())
	tenant.POST("/feeds", h.createFeed)
	tenant.GET("/feeds", h.listFeeds)
	tenant.GET("/feeds/:id", h.getFeed)
	tenant.POST("/templates", h.createTemplate)
	tenant.GET("/templates/:id", h.getTemplate)
	tenant.POST("/templates/:id/preview", h.previewTemplate)
	return r
}

// Server runs the router until its context is cancelled.
type Server struct {
	http   *http.Server
	logger *zap.Logger
}

func New(cfg config.HTTPConfig, router http.Handler, l *zap.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: l,
	}
}

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	return s.http.Shutdown(shutdownCtx)
}
