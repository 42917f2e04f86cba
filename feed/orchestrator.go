// Package feed renders a batch of listings against one template, uploads the
// creatives and records a per-listing result.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ByLCY/adsmith/layout"
	"github.com/ByLCY/adsmith/renderer"
	"github.com/ByLCY/adsmith/storage"
)

// Listing is one input record of a batch.
type Listing struct {
	ID     string
	Record renderer.Record
}

// Request describes a batch. A nil Template means nothing is rendered.
type Request struct {
	Platform string
	Template *layout.Template
	Listings []Listing
}

// Result is the outcome for one listing. URL is nil unless an image was uploaded.
type Result struct {
	ListingID string    `json:"listing"`
	Success   bool      `json:"success"`
	URL       *string   `json:"url"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const (
	DefaultContainer     = "feeds"
	DefaultUploadRetries = 3
	pngContentType       = "image/png"
)

// DefaultSkipPlatforms need listings in the feed but no creative.
var DefaultSkipPlatforms = []string{"website"}

// Orchestrator runs RenderFeed. It is safe for concurrent use.
type Orchestrator struct {
	renderer    renderer.Renderer
	storage     storage.BlobStorage
	container   string
	skip        map[string]bool
	concurrency int
	retries     int
	retryWait   time.Duration
	logger      *zap.Logger
	now         func() time.Time
	newName     func() string
}

type Option func(*Orchestrator)

// WithContainer sets the storage container creatives are uploaded to.
func WithContainer(name string) Option {
	return func(o *Orchestrator) { o.container = name }
}

// WithSkipPlatforms replaces the platforms that never get a creative.
func WithSkipPlatforms(platforms ...string) Option {
	return func(o *Orchestrator) {
		o.skip = make(map[string]bool, len(platforms))
		for _, p := range platforms {
			o.skip[strings.ToLower(strings.TrimSpace(p))] = true
		}
	}
}

// WithConcurrency bounds how many listings render at once. 1 is sequential.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) { o.concurrency = n }
}

// WithUploadRetries sets the number of upload attempts and the first backoff
// wait. A non-positive wait keeps the default.
func WithUploadRetries(attempts int, initialWait time.Duration) Option {
	return func(o *Orchestrator) {
		o.retries = attempts
		o.retryWait = initialWait
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides the time source used for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(r renderer.Renderer, s storage.BlobStorage, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		renderer:    r,
		storage:     s,
		container:   DefaultContainer,
		concurrency: 1,
		retries:     DefaultUploadRetries,
		retryWait:   500 * time.Millisecond,
		logger:      zap.NewNop(),
		now:         time.Now,
		newName:     func() string { return ulid.Make().String() + ".png" },
	}
	WithSkipPlatforms(DefaultSkipPlatforms...)(o)
	for _, opt := range opts {
		opt(o)
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	if o.retries < 1 {
		o.retries = 1
	}
	if o.retryWait <= 0 {
		o.retryWait = 500 * time.Millisecond
	}
	return o
}

// Renderer exposes the renderer used for the batch, e.g. for previews.
func (o *Orchestrator) Renderer() renderer.Renderer { return o.renderer }

// Skips reports whether platform never gets a creative.
func (o *Orchestrator) Skips(platform string) bool {
	return o.skip[strings.ToLower(strings.TrimSpace(platform))]
}

// RenderFeed returns one result per listing, in input order. A failing
// listing never aborts the batch. Listings not started before ctx is done
// fail with the context error.
func (o *Orchestrator) RenderFeed(ctx context.Context, req Request) []Result {
	results := make([]Result, len(req.Listings))
	if req.Template == nil || o.Skips(req.Platform) {
		for i, l := range req.Listings {
			results[i] = o.success(l.ID, nil)
		}
		return results
	}

	log := o.logger.With(zap.String("platform", req.Platform), zap.Int("listings", len(req.Listings)))
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, l := range req.Listings {
		if err := ctx.Err(); err != nil {
			results[i] = o.failure(l.ID, err)
			continue
		}
		g.Go(func() error {
			results[i] = o.renderOne(ctx, req.Template, l)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	log.Info("feed rendered", zap.Int("failed", failed), zap.Duration("elapsed", time.Since(start)))
	return results
}

func (o *Orchestrator) renderOne(ctx context.Context, tpl *layout.Template, l Listing) (res Result) {
	log := o.logger.With(zap.String("listing", l.ID))
	defer func() {
		if p := recover(); p != nil {
			log.Error("render panicked", zap.Any("panic", p))
			res = o.failure(l.ID, fmt.Errorf("render panicked: %v", p))
		}
	}()
	if err := ctx.Err(); err != nil {
		return o.failure(l.ID, err)
	}

	data, err := o.renderer.Render(ctx, tpl, l.Record)
	if err != nil {
		log.Warn("render failed", zap.Error(err))
		return o.failure(l.ID, fmt.Errorf("render: %w", err))
	}
	url, err := o.upload(ctx, data, log)
	if err != nil {
		log.Warn("upload failed", zap.Error(err))
		return o.failure(l.ID, fmt.Errorf("upload: %w", err))
	}
	return o.success(l.ID, &url)
}

// upload tries up to o.retries times with exponential backoff, using a fresh
// object name per attempt.
func (o *Orchestrator) upload(ctx context.Context, data []byte, log *zap.Logger) (string, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.retryWait
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(o.retries-1)), ctx)

	var url string
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		name := o.newName()
		u, err := o.storage.Upload(ctx, o.container, name, data, pngContentType)
		if err != nil {
			if errors.Is(err, storage.ErrInvalidContainer) || errors.Is(err, storage.ErrInvalidName) {
				return backoff.Permanent(err)
			}
			log.Debug("upload attempt failed", zap.Int("attempt", attempt), zap.String("name", name), zap.Error(err))
			return err
		}
		url = u
		return nil
	}, policy)
	if err != nil {
		return "", err
	}
	return url, nil
}

func (o *Orchestrator) success(id string, url *string) Result {
	now := o.now()
	return Result{ListingID: id, Success: true, URL: url, CreatedAt: now, UpdatedAt: now}
}

func (o *Orchestrator) failure(id string, err error) Result {
	now := o.now()
	return Result{ListingID: id, Success: false, Error: err.Error(), CreatedAt: now, UpdatedAt: now}
}
