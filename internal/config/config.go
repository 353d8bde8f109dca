package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Index    IndexConfig    `mapstructure:"index"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Security SecurityConfig `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" validate:"required,numeric"`
	Mode string `mapstructure:"mode" validate:"oneof=development production"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url" validate:"required"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type CacheConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Compress   bool          `mapstructure:"compress"`
}

type MetadataConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Language    string        `mapstructure:"language"`
	WatchRegion string        `mapstructure:"watch_region"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RatePerSec  int           `mapstructure:"rate_per_sec"`
}

type IndexConfig struct {
	Dir string `mapstructure:"dir"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=16"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ScheduleConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	Hour            int  `mapstructure:"hour" validate:"min=0,max=23"`
	Minute          int  `mapstructure:"minute" validate:"min=0,max=59"`
	MovieBatchPages int  `mapstructure:"movie_batch_pages"`
	TVBatchPages    int  `mapstructure:"tv_batch_pages"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Legacy variable names kept for deployment compatibility.
	_ = viper.BindEnv("database.url", "DATABASE_URL")
	_ = viper.BindEnv("cache.url", "CACHE_URL")
	_ = viper.BindEnv("metadata.api_key", "METADATA_API_KEY")
	_ = viper.BindEnv("index.dir", "INDEX_DIR")
	_ = viper.BindEnv("schedule.enabled", "ENABLE_SCHEDULER")

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Cache defaults
	viper.SetDefault("cache.url", "redis://localhost:6379/0")
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.timeout", "5s")
	viper.SetDefault("cache.compress", true)

	// Metadata provider defaults
	viper.SetDefault("metadata.base_url", "https://api.themoviedb.org/3")
	viper.SetDefault("metadata.language", "en-US")
	viper.SetDefault("metadata.watch_region", "US")
	viper.SetDefault("metadata.timeout", "30s")
	viper.SetDefault("metadata.rate_per_sec", 40)

	// Index defaults
	viper.SetDefault("index.dir", "./data/index")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Schedule defaults: one ingestion pass per content type every night
	viper.SetDefault("schedule.enabled", false)
	viper.SetDefault("schedule.hour", 4)
	viper.SetDefault("schedule.minute", 0)
	viper.SetDefault("schedule.movie_batch_pages", 25)
	viper.SetDefault("schedule.tv_batch_pages", 25)

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
