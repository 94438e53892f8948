package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server   ServerConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	NATS     NATSConfig
	Provider ProviderConfig
	Storage  StorageConfig
	Limits   LimitsConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	CORSAllowedOrigins []string
	MigrationsPath     string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// NATSConfig is optional. An empty URL disables event fan-out.
type NATSConfig struct {
	URL string
}

func (c NATSConfig) Enabled() bool {
	return c.URL != ""
}

// ProviderConfig configures the upstream image-generation API.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// StorageConfig configures the S3-compatible bucket generated assets are copied into.
type StorageConfig struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
	UsePathStyle  bool
	Prefix        string
}

type LimitsConfig struct {
	DailyQuota         int
	GeneratePerMinute  int
	EditPerMinute      int
	VariationPerMinute int
	Window             time.Duration
	AuthPerMinute      int
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               k.String("server.host"),
			Port:               k.Int("server.port"),
			CORSAllowedOrigins: splitList(k.String("cors.allowed.origins")),
			MigrationsPath:     k.String("migrations.path"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		JWT: JWTConfig{
			AccessSecret:  k.String("jwt.access.secret"),
			RefreshSecret: k.String("jwt.refresh.secret"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Provider: ProviderConfig{
			APIKey:  k.String("openai.api.key"),
			BaseURL: k.String("openai.base.url"),
		},
		Storage: StorageConfig{
			Endpoint:      k.String("s3.endpoint"),
			Region:        k.String("s3.region"),
			AccessKey:     k.String("s3.access.key"),
			SecretKey:     k.String("s3.secret.key"),
			Bucket:        k.String("s3.bucket"),
			PublicBaseURL: k.String("s3.public.base.url"),
			UsePathStyle:  k.Bool("s3.use.path.style"),
			Prefix:        k.String("s3.prefix"),
		},
		Limits: LimitsConfig{
			DailyQuota:         k.Int("limits.daily.quota"),
			GeneratePerMinute:  k.Int("limits.generate.per.minute"),
			EditPerMinute:      k.Int("limits.edit.per.minute"),
			VariationPerMinute: k.Int("limits.variation.per.minute"),
			AuthPerMinute:      k.Int("limits.auth.per.minute"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MigrationsPath == "" {
		cfg.Server.MigrationsPath = "migrations"
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "visionfy"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "visionfy"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://api.openai.com"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "visionfy"
	}
	if cfg.Limits.DailyQuota == 0 {
		cfg.Limits.DailyQuota = 25
	}
	if cfg.Limits.GeneratePerMinute == 0 {
		cfg.Limits.GeneratePerMinute = 10
	}
	if cfg.Limits.EditPerMinute == 0 {
		cfg.Limits.EditPerMinute = 5
	}
	if cfg.Limits.VariationPerMinute == 0 {
		cfg.Limits.VariationPerMinute = 5
	}
	if cfg.Limits.AuthPerMinute == 0 {
		cfg.Limits.AuthPerMinute = 20
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	if cfg.JWT.AccessExpiry, err = parseDuration(k, "jwt.access.expiry", "15m"); err != nil {
		return nil, err
	}
	if cfg.JWT.RefreshExpiry, err = parseDuration(k, "jwt.refresh.expiry", "168h"); err != nil {
		return nil, err
	}
	if cfg.Provider.Timeout, err = parseDuration(k, "openai.timeout", "60s"); err != nil {
		return nil, err
	}
	if cfg.Limits.Window, err = parseDuration(k, "limits.window", "1m"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseDuration(k *koanf.Koanf, key, def string) (time.Duration, error) {
	raw := k.String(key)
	if raw == "" {
		raw = def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", strings.ReplaceAll(key, ".", " "), err)
	}
	return d, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ClientConfig configures the visionfy command-line client.
type ClientConfig struct {
	APIURL  string
	DataDir string
	Timeout time.Duration
	Log     LogConfig
}

// LoadClient reads VISIONFY_* variables. DataDir defaults to the user config
// directory.
func LoadClient() (*ClientConfig, error) {
	k := koanf.New(".")

	err := k.Load(env.Provider("VISIONFY_", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, "VISIONFY_"), "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &ClientConfig{
		APIURL:  k.String("api.url"),
		DataDir: k.String("data.dir"),
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "http://localhost:8080"
	}
	if cfg.DataDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("locating config dir: %w", err)
		}
		cfg.DataDir = filepath.Join(dir, "visionfy")
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "warn"
	}
	if cfg.Timeout, err = parseDuration(k, "timeout", "2m"); err != nil {
		return nil, err
	}
	return cfg, nil
}
