package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Encryption EncryptionConfig
	RateLimit  RateLimitConfig
	Worker     WorkerConfig
	Discovery  DiscoveryConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type EncryptionConfig struct {
	Key string
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

type WorkerConfig struct {
	Concurrency int
	MetricsPort int
}

// DiscoveryConfig tunes the scan pipeline. BatchSize is the number of projects
// per queued batch; PoolSize caps concurrent project scans inside one batch.
type DiscoveryConfig struct {
	BatchSize             int
	PoolSize              int
	RequestTimeoutSeconds int
	ProgressTTLHours      int
	APIRequestsPerSecond  float64
	APIBurst              int
	ServiceCacheMinutes   int
	BatchTimeoutMinutes   int
	ScheduleSpec          string
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (d *DiscoveryConfig) RequestTimeout() time.Duration {
	return time.Duration(d.RequestTimeoutSeconds) * time.Second
}

func (d *DiscoveryConfig) ProgressTTL() time.Duration {
	return time.Duration(d.ProgressTTLHours) * time.Hour
}

func (d *DiscoveryConfig) ServiceCacheTTL() time.Duration {
	return time.Duration(d.ServiceCacheMinutes) * time.Minute
}

func (d *DiscoveryConfig) BatchTimeout() time.Duration {
	return time.Duration(d.BatchTimeoutMinutes) * time.Minute
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Discovery.BatchSize <= 0 {
		return errors.New("DISCOVERY_BATCH_SIZE must be positive")
	}
	if c.Discovery.PoolSize <= 0 {
		return errors.New("DISCOVERY_POOL_SIZE must be positive")
	}
	if c.Discovery.RequestTimeoutSeconds <= 0 {
		return errors.New("DISCOVERY_REQUEST_TIMEOUT_SECONDS must be positive")
	}
	if c.Discovery.ProgressTTLHours <= 0 {
		return errors.New("DISCOVERY_PROGRESS_TTL_HOURS must be positive")
	}
	return nil
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "inventory")
	v.SetDefault("DATABASE_PASSWORD", "inventory_secret")
	v.SetDefault("DATABASE_NAME", "inventory")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("WORKER_CONCURRENCY", 10)
	v.SetDefault("WORKER_METRICS_PORT", 9091)
	v.SetDefault("DISCOVERY_BATCH_SIZE", 20)
	v.SetDefault("DISCOVERY_POOL_SIZE", 5)
	v.SetDefault("DISCOVERY_REQUEST_TIMEOUT_SECONDS", 60)
	v.SetDefault("DISCOVERY_PROGRESS_TTL_HOURS", 24)
	v.SetDefault("DISCOVERY_API_RPS", 10)
	v.SetDefault("DISCOVERY_API_BURST", 20)
	v.SetDefault("DISCOVERY_SERVICE_CACHE_MINUTES", 30)
	v.SetDefault("DISCOVERY_BATCH_TIMEOUT_MINUTES", 120)
	v.SetDefault("DISCOVERY_SCHEDULE_SPEC", "@every 1m")

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetInt("SERVER_PORT"),
			Env:            v.GetString("SERVER_ENV"),
			AllowedOrigins: splitList(v.GetString("SERVER_CORS_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("ENCRYPTION_KEY"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("WORKER_CONCURRENCY"),
			MetricsPort: v.GetInt("WORKER_METRICS_PORT"),
		},
		Discovery: DiscoveryConfig{
			BatchSize:             v.GetInt("DISCOVERY_BATCH_SIZE"),
			PoolSize:              v.GetInt("DISCOVERY_POOL_SIZE"),
			RequestTimeoutSeconds: v.GetInt("DISCOVERY_REQUEST_TIMEOUT_SECONDS"),
			ProgressTTLHours:      v.GetInt("DISCOVERY_PROGRESS_TTL_HOURS"),
			APIRequestsPerSecond:  v.GetFloat64("DISCOVERY_API_RPS"),
			APIBurst:              v.GetInt("DISCOVERY_API_BURST"),
			ServiceCacheMinutes:   v.GetInt("DISCOVERY_SERVICE_CACHE_MINUTES"),
			BatchTimeoutMinutes:   v.GetInt("DISCOVERY_BATCH_TIMEOUT_MINUTES"),
			ScheduleSpec:          v.GetString("DISCOVERY_SCHEDULE_SPEC"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// splitList parses a comma-separated setting, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
