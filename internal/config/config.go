package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the print server.
type Config struct {
	Server   ServerConfig
	Pipeline PipelineConfig
	Assets   AssetsConfig
	Gemini   GeminiConfig
	Redis    RedisConfig
	Progress ProgressConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Kafka    KafkaConfig
}

type ServerConfig struct {
	Port              int
	Env               string
	LogLevel          string
	HeartbeatInterval time.Duration
	MaxBodyBytes      int64
}

type PipelineConfig struct {
	BatchSize      int
	ImageChunkSize int
	PDFTimeout     time.Duration
	JobTimeout     time.Duration
	ChromePath     string
}

type AssetsConfig struct {
	Dir        string
	StylesPath string
}

type GeminiConfig struct {
	APIKey        string
	Model         string
	BaseURL       string
	ImageTimeout  time.Duration
	ImageCacheTTL time.Duration
}

type RedisConfig struct {
	URL                string
	RateLimitPerMinute int
}

type ProgressConfig struct {
	Backend string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type AuthConfig struct {
	Enabled bool
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

const (
	ProgressBackendMemory = "memory"
	ProgressBackendRedis  = "redis"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration and returns a validated Config.
//
// Values come from, in order of precedence: process environment, a local
// .env file, the YAML file named by CONFIG_FILE, then defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	src := source{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		file, err := readFile(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:              src.int("PORT", 3000),
			Env:               src.string("APP_ENV", "development"),
			LogLevel:          strings.ToLower(src.string("LOG_LEVEL", "info")),
			HeartbeatInterval: src.duration("HEARTBEAT_INTERVAL", 30*time.Second),
			MaxBodyBytes:      int64(src.int("MAX_BODY_BYTES", 50<<20)),
		},
		Pipeline: PipelineConfig{
			BatchSize:      src.int("BATCH_SIZE", 12),
			ImageChunkSize: src.int("IMAGE_CHUNK_SIZE", 3),
			PDFTimeout:     src.duration("PDF_TIMEOUT", 60*time.Second),
			JobTimeout:     src.duration("JOB_TIMEOUT", 5*time.Minute),
			ChromePath:     src.string("CHROME_PATH", ""),
		},
		Assets: AssetsConfig{
			Dir:        src.string("ASSETS_DIR", "assets"),
			StylesPath: src.string("STYLES_PATH", "styles.css"),
		},
		Gemini: GeminiConfig{
			APIKey:        src.string("GEMINI_API_KEY", ""),
			Model:         src.string("GEMINI_MODEL", "gemini-2.5-flash-image"),
			BaseURL:       strings.TrimRight(src.string("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"), "/"),
			ImageTimeout:  src.duration("IMAGE_TIMEOUT", 60*time.Second),
			ImageCacheTTL: src.duration("IMAGE_CACHE_TTL", 24*time.Hour),
		},
		Redis: RedisConfig{
			URL:                src.string("REDIS_URL", ""),
			RateLimitPerMinute: src.int("RATE_LIMIT_PER_MINUTE", 10),
		},
		Progress: ProgressConfig{
			Backend: strings.ToLower(src.string("PROGRESS_BACKEND", ProgressBackendMemory)),
		},
		Database: DatabaseConfig{
			URL:             src.string("DATABASE_URL", ""),
			MaxOpenConns:    src.int("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    src.int("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: src.duration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   src.string("MIGRATIONS_DIR", "migrations"),
		},
		Auth: AuthConfig{
			Enabled: src.bool("AUTH_ENABLED", false),
		},
		Kafka: KafkaConfig{
			Brokers: src.list("KAFKA_BROKERS"),
			Topic:   src.string("KAFKA_TOPIC", "pdf-job-outcomes"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ImageAugmentationEnabled reports whether a Gemini credential is configured.
func (c *Config) ImageAugmentationEnabled() bool {
	return c.Gemini.APIKey != ""
}

// IsDevelopment reports whether logs should be human readable.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Server.LogLevel)
	}
	if c.Server.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}

	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.ImageChunkSize <= 0 {
		return fmt.Errorf("IMAGE_CHUNK_SIZE must be positive, got %d", c.Pipeline.ImageChunkSize)
	}
	if c.Pipeline.PDFTimeout <= 0 || c.Pipeline.JobTimeout <= 0 {
		return fmt.Errorf("PDF_TIMEOUT and JOB_TIMEOUT must be positive")
	}

	if !strings.HasPrefix(c.Gemini.BaseURL, "http://") && !strings.HasPrefix(c.Gemini.BaseURL, "https://") {
		return fmt.Errorf("GEMINI_BASE_URL must start with http:// or https://, got %q", c.Gemini.BaseURL)
	}
	if c.Gemini.ImageTimeout <= 0 {
		return fmt.Errorf("IMAGE_TIMEOUT must be positive")
	}

	switch c.Progress.Backend {
	case ProgressBackendMemory:
	case ProgressBackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required when PROGRESS_BACKEND is redis")
		}
	default:
		return fmt.Errorf("PROGRESS_BACKEND must be one of memory, redis; got %q", c.Progress.Backend)
	}

	if c.Auth.Enabled && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when AUTH_ENABLED is true")
	}

	return nil
}

// source resolves a key from the environment first, then the config file.
type source struct {
	file map[string]string
}

func readFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(doc))
	for k, v := range doc {
		switch val := v.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			out[strings.ToUpper(k)] = strings.Join(parts, ",")
		default:
			out[strings.ToUpper(k)] = fmt.Sprint(val)
		}
	}
	return out, nil
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) string(key, defaultVal string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return defaultVal
}

func (s source) int(key string, defaultVal int) int {
	v := s.lookup(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func (s source) bool(key string, defaultVal bool) bool {
	v := s.lookup(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// duration accepts Go duration strings ("90s") or bare milliseconds ("60000").
func (s source) duration(key string, defaultVal time.Duration) time.Duration {
	v := s.lookup(key)
	if v == "" {
		return defaultVal
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func (s source) list(key string) []string {
	v := s.lookup(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
