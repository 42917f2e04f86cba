// Package config loads service configuration from config.toml, a .env file
// and ADSMITH_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ADSMITH_HTTP_PORT.
const EnvPrefix = "ADSMITH"

// Config is the complete service configuration.
type Config struct {
	App      AppConfig
	Log      LogConfig
	HTTP     HTTPConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Render   RenderConfig
}

type AppConfig struct {
	Name string
	Env  string
}

type LogConfig struct {
	Level  string
	Format string
	Output string
	// SQLLevel is the gorm log level: silent, error, warn or info.
	SQLLevel string
}

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodyBytes int64
}

// Addr returns host:port for the HTTP listener.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

type DatabaseConfig struct {
	Driver string // sqlite, postgres
	DSN    string
	// SlowThreshold marks queries that are logged at warn.
	SlowThreshold time.Duration
}

type StorageConfig struct {
	Driver        string // s3, filesystem, memory
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	UsePathStyle  bool
	PublicBaseURL string
	LocalPath     string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// Addr returns host:port of the redis server.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type RenderConfig struct {
	FontDir        string
	StaticDir      string
	FetchTimeout    time.Duration
	AssetCacheSize  int
	AssetCacheBytes int64
	Concurrency     int
	UploadRetries   int
	Container       string
	SkipPlatforms   []string
	Locale          string
}

// Load reads configuration. path names an explicit config file; when empty,
// config.toml is searched in the working directory and is optional.
// Environment variables override the file, defaults fill the rest.
func Load(path string) (*Config, error) {
	// .env 文件可选
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Log: LogConfig{
			Level:    v.GetString("log.level"),
			Format:   v.GetString("log.format"),
			Output:   v.GetString("log.output"),
			SQLLevel: v.GetString("log.sql_level"),
		},
		HTTP: HTTPConfig{
			Host:         v.GetString("http.host"),
			Port:         v.GetInt("http.port"),
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
			MaxBodyBytes: v.GetInt64("http.max_body_bytes"),
		},
		Database: DatabaseConfig{
			Driver:        v.GetString("database.driver"),
			DSN:           v.GetString("database.dsn"),
			SlowThreshold: v.GetDuration("database.slow_threshold"),
		},
		Storage: StorageConfig{
			Driver:        v.GetString("storage.driver"),
			Endpoint:      v.GetString("storage.endpoint"),
			Region:        v.GetString("storage.region"),
			AccessKey:     v.GetString("storage.access_key"),
			SecretKey:     v.GetString("storage.secret_key"),
			UsePathStyle:  v.GetBool("storage.use_path_style"),
			PublicBaseURL: v.GetString("storage.public_base_url"),
			LocalPath:     v.GetString("storage.local_path"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			TTL:      v.GetDuration("redis.ttl"),
			Prefix:   v.GetString("redis.prefix"),
		},
		Render: RenderConfig{
			FontDir:         v.GetString("render.font_dir"),
			StaticDir:       v.GetString("render.static_dir"),
			FetchTimeout:    v.GetDuration("render.fetch_timeout"),
			AssetCacheSize:  v.GetInt("render.asset_cache_size"),
			AssetCacheBytes: v.GetInt64("render.asset_cache_bytes"),
			Concurrency:     v.GetInt("render.concurrency"),
			UploadRetries:   v.GetInt("render.upload_retries"),
			Container:       v.GetString("render.container"),
			SkipPlatforms:   splitList(v.GetStringSlice("render.skip_platforms")),
			Locale:          v.GetString("render.locale"),
		},
	}

	applyDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList accepts both a TOML array and a comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "adsmith"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
		if cfg.App.Env == "production" {
			cfg.Log.Format = "json"
		}
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Log.SQLLevel == "" {
		cfg.Log.SQLLevel = "warn"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 30 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 5 * time.Minute
	}
	if cfg.HTTP.MaxBodyBytes == 0 {
		cfg.HTTP.MaxBodyBytes = 16 << 20
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "adsmith.db"
	}
	if cfg.Database.SlowThreshold == 0 {
		cfg.Database.SlowThreshold = 200 * time.Millisecond
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "filesystem"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "uploads"
	}
	if cfg.Storage.PublicBaseURL == "" && cfg.Storage.Driver == "filesystem" {
		cfg.Storage.PublicBaseURL = fmt.Sprintf("http://localhost:%d/files", cfg.HTTP.Port)
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "adsmith:asset:"
	}
	if cfg.Render.FontDir == "" {
		cfg.Render.FontDir = "public/fonts"
	}
	if cfg.Render.StaticDir == "" {
		cfg.Render.StaticDir = "public"
	}
	if cfg.Render.FetchTimeout == 0 {
		cfg.Render.FetchTimeout = 10 * time.Second
	}
	if cfg.Render.AssetCacheSize == 0 {
		cfg.Render.AssetCacheSize = 256
	}
	if cfg.Render.AssetCacheBytes == 0 {
		cfg.Render.AssetCacheBytes = 256 << 20
	}
	if cfg.Render.Concurrency == 0 {
		cfg.Render.Concurrency = 1
	}
	if cfg.Render.UploadRetries == 0 {
		cfg.Render.UploadRetries = 3
	}
	if cfg.Render.Container == "" {
		cfg.Render.Container = "feeds"
	}
	if cfg.Render.SkipPlatforms == nil {
		cfg.Render.SkipPlatforms = []string{"website"}
	}
	if cfg.Render.Locale == "" {
		cfg.Render.Locale = "en-ZA"
	}
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	switch c.Storage.Driver {
	case "s3":
		if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
			return errors.New("storage.access_key and storage.secret_key are required for s3")
		}
	case "filesystem":
		if c.Storage.PublicBaseURL == "" {
			return errors.New("storage.public_base_url is required for filesystem storage")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.driver must be s3, filesystem or memory, got %q", c.Storage.Driver)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	if c.Render.Concurrency < 1 {
		return fmt.Errorf("render.concurrency must be positive, got %d", c.Render.Concurrency)
	}
	if c.Render.UploadRetries < 1 {
		return fmt.Errorf("render.upload_retries must be positive, got %d", c.Render.UploadRetries)
	}
	return nil
}
