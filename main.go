package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/ByLCY/adsmith/assets"
	"github.com/ByLCY/adsmith/binding"
	"github.com/ByLCY/adsmith/config"
	"github.com/ByLCY/adsmith/feed"
	"github.com/ByLCY/adsmith/fonts"
	"github.com/ByLCY/adsmith/layout"
	"github.com/ByLCY/adsmith/logger"
	"github.com/ByLCY/adsmith/persistence"
	canvasrenderer "github.com/ByLCY/adsmith/renderer/canvas"
	"github.com/ByLCY/adsmith/server"
	"github.com/ByLCY/adsmith/storage"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认查找 ./config.toml）")
	render := flag.Bool("render", false, "离线渲染单个模板，不启动 HTTP 服务")
	templatePath := flag.String("template", "examples/template.json", "模板 JSON 路径（-render）")
	dataJSON := flag.String("data", "", "绑定的记录 JSON，以 @ 开头表示文件路径（-render）")
	output := flag.String("out", "output/creative.png", "PNG 输出路径（-render）")
	debug := flag.String("debug", "", "渲染报告 JSON 输出路径（-render）")
	installFonts := flag.Bool("install-fonts", false, "将内置 Go 字体安装到字体目录后退出")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	switch {
	case *installFonts:
		dir, err := fonts.InstallBuiltin(cfg.Render.FontDir)
		if err != nil {
			log.Fatal("安装内置字体失败", zap.Error(err))
		}
		fmt.Printf("已安装内置字体：%s\n", dir)
	case *render:
		r, err := newRenderer(cfg, log)
		if err != nil {
			log.Fatal("初始化渲染器失败", zap.Error(err))
		}
		if err := run(context.Background(), *templatePath, *dataJSON, *output, *debug, r); err != nil {
			log.Fatal("渲染失败", zap.Error(err))
		}
		fmt.Printf("已生成图片：%s\n", *output)
	default:
		if err := serve(cfg, log); err != nil {
			log.Fatal("服务异常退出", zap.Error(err))
		}
	}
}

// newRenderer 按配置组装字体库、素材加载器与格式化器。
func newRenderer(cfg *config.Config, log *zap.Logger) (*canvasrenderer.Renderer, error) {
	locale, err := language.Parse(cfg.Render.Locale)
	if err != nil {
		return nil, fmt.Errorf("无效的 locale %q: %w", cfg.Render.Locale, err)
	}

	var cache assets.Cache = assets.NewMemoryCache(cfg.Render.AssetCacheSize, cfg.Render.AssetCacheBytes)
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = assets.NewRedisCache(client, cfg.Redis.Prefix, cfg.Redis.TTL, log)
	}

	fetcher := assets.NewFetcher(
		assets.WithStaticRoot(cfg.Render.StaticDir),
		assets.WithTimeout(cfg.Render.FetchTimeout),
		assets.WithCache(cache),
		assets.WithLogger(log.Named("assets")),
	)
	return canvasrenderer.NewRenderer(canvasrenderer.Options{
		Fonts:     fonts.Shared(cfg.Render.FontDir, fonts.WithLogger(log.Named("fonts"))),
		Assets:    fetcher,
		Formatter: binding.NewFormatter(binding.WithLocale(locale)),
		Logger:    log.Named("renderer"),
	}), nil
}

// serve 启动 HTTP 服务，收到 SIGINT/SIGTERM 后优雅退出。
func serve(cfg *config.Config, log *zap.Logger) error {
	db, err := persistence.Open(cfg.Database, cfg.Log.SQLLevel, log)
	if err != nil {
		return err
	}
	defer persistence.Close(db)

	blobs, err := storage.New(cfg.Storage, log.Named("storage"))
	if err != nil {
		return fmt.Errorf("初始化存储失败: %w", err)
	}
	r, err := newRenderer(cfg, log)
	if err != nil {
		return err
	}

	orchestrator := feed.NewOrchestrator(r, blobs,
		feed.WithContainer(cfg.Render.Container),
		feed.WithSkipPlatforms(cfg.Render.SkipPlatforms...),
		feed.WithConcurrency(cfg.Render.Concurrency),
		feed.WithUploadRetries(cfg.Render.UploadRetries, 0),
		feed.WithLogger(log.Named("feed")),
	)
	svc := feed.NewService(
		persistence.NewTemplateRepository(db),
		persistence.NewListingRepository(db),
		persistence.NewFeedRepository(db),
		orchestrator,
		log.Named("service"),
	)

	opts := server.Options{
		Service:      svc,
		Fonts:        fonts.Shared(cfg.Render.FontDir),
		Logger:       log,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}
	if fs, ok := blobs.(*storage.FileStorage); ok {
		opts.FilesDir = fs.Root()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.New(cfg.HTTP, server.NewRouter(opts), log).Run(ctx)
}

// run 串联模板解析、数据绑定与渲染。
func run(ctx context.Context, templatePath, dataArg, outputPath, debugPath string, r *canvasrenderer.Renderer) error {
	if r == nil {
		return fmt.Errorf("renderer 不能为空")
	}
	raw, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("无法读取模板 %s: %w", templatePath, err)
	}
	tpl, err := layout.ParseTemplate(raw)
	if err != nil {
		return fmt.Errorf("解析模板失败: %w", err)
	}

	record, err := loadRecord(dataArg)
	if err != nil {
		return err
	}

	png, report, err := r.RenderWithReport(ctx, tpl, record)
	if err != nil {
		return fmt.Errorf("渲染失败: %w", err)
	}
	if debugPath != "" {
		if err := writeDebug(report, debugPath); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	if err := os.WriteFile(outputPath, png, 0o644); err != nil {
		return fmt.Errorf("写入 PNG 文件失败: %w", err)
	}
	return nil
}

// loadRecord 解析 -data：JSON 字符串，或以 @ 开头的文件路径。
func loadRecord(arg string) (map[string]any, error) {
	if arg == "" {
		return map[string]any{}, nil
	}
	data := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("读取数据文件失败: %w", err)
		}
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("解析 data JSON 失败: %w", err)
	}
	return record, nil
}

func writeDebug(report *canvasrenderer.Report, debugPath string) error {
	if err := os.MkdirAll(filepath.Dir(debugPath), 0o755); err != nil {
		return fmt.Errorf("创建调试目录失败: %w", err)
	}
	if err := canvasrenderer.WriteReportJSON(report, debugPath); err != nil {
		return fmt.Errorf("输出渲染报告失败: %w", err)
	}
	return nil
}
