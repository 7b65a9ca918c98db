// Package config loads service configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Dushime20/urutibiz-backend-sub011/pkg/cache"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/extraction"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/resilience"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/search"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/worker"
)

// APIConfig defines the API server configuration.
type APIConfig struct {
	ListenAddress string        `mapstructure:"listen_address"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	MaxImageBytes int64         `mapstructure:"max_image_bytes"`
}

// DatabaseConfig defines the postgres connection settings.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ScanCap         int           `mapstructure:"scan_cap"`
}

// ExtractionConfig groups the tier settings.
type ExtractionConfig struct {
	Service         extraction.ServiceConfig     `mapstructure:"service"`
	LocalModelPath  string                       `mapstructure:"local_model_path"`
	SearchRateLimit resilience.RateLimiterConfig `mapstructure:"search_rate_limit"`
	WorkerRateLimit resilience.RateLimiterConfig `mapstructure:"worker_rate_limit"`
}

// Config holds the complete application configuration.
type Config struct {
	Environment string            `mapstructure:"environment"`
	API         APIConfig         `mapstructure:"api"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       cache.RedisConfig `mapstructure:"cache"`
	Extraction  ExtractionConfig  `mapstructure:"extraction"`
	Search      search.Config     `mapstructure:"search"`
	Worker      worker.Config     `mapstructure:"worker"`
}

// Load reads configuration from the given file (optional) and the
// environment. Environment variables use the URUTIBIZ_ prefix with
// underscores, e.g. URUTIBIZ_DATABASE_DSN.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("URUTIBIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("api.listen_address", ":8080")
	v.SetDefault("api.read_timeout", 30*time.Second)
	v.SetDefault("api.write_timeout", 30*time.Second)
	v.SetDefault("api.idle_timeout", 90*time.Second)
	v.SetDefault("api.max_image_bytes", 10<<20)

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.scan_cap", 1000)

	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.dial_timeout", 5*time.Second)
	v.SetDefault("cache.read_timeout", 3*time.Second)
	v.SetDefault("cache.write_timeout", 3*time.Second)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.min_idle_conns", 2)

	v.SetDefault("extraction.service.base_url", "http://localhost:8001")
	v.SetDefault("extraction.service.request_timeout", 8*time.Second)
	v.SetDefault("extraction.service.max_attempts", 3)
	v.SetDefault("extraction.service.retry_base_delay", time.Second)
	v.SetDefault("extraction.service.retry_max_delay", 10*time.Second)
	v.SetDefault("extraction.service.breaker.failure_threshold", 5)
	v.SetDefault("extraction.service.breaker.cooldown", 30*time.Second)
	v.SetDefault("extraction.service.health_interval", 15*time.Second)
	v.SetDefault("extraction.search_rate_limit.requests_per_second", 20)
	v.SetDefault("extraction.search_rate_limit.burst", 10)
	v.SetDefault("extraction.worker_rate_limit.requests_per_second", 2)
	v.SetDefault("extraction.worker_rate_limit.burst", 2)

	v.SetDefault("search.candidate_cap", 1000)
	v.SetDefault("search.result_ttl", 5*time.Minute)
	v.SetDefault("search.soft_deadline", 20*time.Second)

	v.SetDefault("worker.interval", 5*time.Minute)
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.preferred", "primary")
}
