package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds the complete configuration for the application
type AppConfig struct {
	Environment string       `mapstructure:"environment"`
	LogLevel    string       `mapstructure:"log_level"`
	ServiceName string       `mapstructure:"service_name"`
	API         APIConfig    `mapstructure:"api"`
	Store       StoreConfig  `mapstructure:"store"`
	Cursor      CursorConfig `mapstructure:"cursor"`
	Syncer      SyncerConfig `mapstructure:"syncer"`
	Server      ServerConfig `mapstructure:"server"`
}

type APIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MatchesDelay  time.Duration `mapstructure:"matches_delay"`
	ProfileDelay  time.Duration `mapstructure:"profile_delay"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RateLimitWait time.Duration `mapstructure:"rate_limit_wait"`
	TimeoutWait   time.Duration `mapstructure:"timeout_wait"`
}

type StoreConfig struct {
	DataPath string `mapstructure:"data_path"`
}

type CursorConfig struct {
	Backend   string `mapstructure:"backend"` // "file" or "redis"
	Path      string `mapstructure:"path"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisKey  string `mapstructure:"redis_key"`
}

type SyncerConfig struct {
	TargetMatchCount  int           `mapstructure:"target_match_count"`
	PageSize          int           `mapstructure:"page_size"`
	MatchType         int           `mapstructure:"match_type"`
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	CycleInterval     time.Duration `mapstructure:"cycle_interval"`
	ProfileErrorLimit int           `mapstructure:"profile_error_limit"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load loads configuration from file and environment variables
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	// Default values mirror the fixed constants of the original scraper
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("service_name", "laddersync")
	v.SetDefault("api.base_url", "https://mcsrranked.com/api")
	v.SetDefault("api.user_agent", "MCSRRankedDataUpdater/2.0")
	v.SetDefault("api.timeout", 25*time.Second)
	v.SetDefault("api.matches_delay", 1500*time.Millisecond)
	v.SetDefault("api.profile_delay", 1300*time.Millisecond)
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.rate_limit_wait", 60*time.Second)
	v.SetDefault("api.timeout_wait", 5*time.Second)
	v.SetDefault("store.data_path", "mcsr_user_data.csv")
	v.SetDefault("cursor.backend", "file")
	v.SetDefault("cursor.path", "last_match_id.txt")
	v.SetDefault("cursor.redis_key", "laddersync:last_match_id")
	v.SetDefault("syncer.target_match_count", 500)
	v.SetDefault("syncer.page_size", 100)
	v.SetDefault("syncer.match_type", 0)
	v.SetDefault("syncer.refresh_interval", 10*time.Minute)
	v.SetDefault("syncer.cycle_interval", time.Duration(0))
	v.SetDefault("syncer.profile_error_limit", 5)
	v.SetDefault("server.addr", ":8080")

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	// Bind environment variables explicitly for nested structs to ensure Unmarshal picks them up
	v.BindEnv("service_name", "SERVICE_NAME")
	v.BindEnv("environment", "ENVIRONMENT")
	v.BindEnv("log_level", "LOG_LEVEL")
	v.BindEnv("api.base_url", "API_BASE_URL")
	v.BindEnv("api.user_agent", "API_USER_AGENT")
	v.BindEnv("api.timeout", "API_TIMEOUT")
	v.BindEnv("api.matches_delay", "API_MATCHES_DELAY")
	v.BindEnv("api.profile_delay", "API_PROFILE_DELAY")
	v.BindEnv("api.max_retries", "API_MAX_RETRIES")
	v.BindEnv("api.rate_limit_wait", "API_RATE_LIMIT_WAIT")
	v.BindEnv("api.timeout_wait", "API_TIMEOUT_WAIT")
	v.BindEnv("store.data_path", "STORE_DATA_PATH")
	v.BindEnv("cursor.backend", "CURSOR_BACKEND")
	v.BindEnv("cursor.path", "CURSOR_PATH")
	v.BindEnv("cursor.redis_addr", "CURSOR_REDIS_ADDR")
	v.BindEnv("cursor.redis_key", "CURSOR_REDIS_KEY")
	v.BindEnv("syncer.target_match_count", "SYNCER_TARGET_MATCH_COUNT")
	v.BindEnv("syncer.page_size", "SYNCER_PAGE_SIZE")
	v.BindEnv("syncer.match_type", "SYNCER_MATCH_TYPE")
	v.BindEnv("syncer.refresh_interval", "SYNCER_REFRESH_INTERVAL")
	v.BindEnv("syncer.cycle_interval", "SYNCER_CYCLE_INTERVAL")
	v.BindEnv("syncer.profile_error_limit", "SYNCER_PROFILE_ERROR_LIMIT")
	v.BindEnv("server.addr", "SERVER_ADDR")

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *AppConfig) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service_name is required")
	}
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.Store.DataPath == "" {
		return errors.New("store.data_path is required")
	}
	if c.Syncer.PageSize < 1 || c.Syncer.PageSize > 100 {
		return fmt.Errorf("syncer.page_size must be between 1 and 100, got %d", c.Syncer.PageSize)
	}
	if c.Syncer.TargetMatchCount < 1 {
		return errors.New("syncer.target_match_count must be positive")
	}
	if c.API.MaxRetries < 1 {
		return errors.New("api.max_retries must be positive")
	}
	switch c.Cursor.Backend {
	case "file":
		if c.Cursor.Path == "" {
			return errors.New("cursor.path is required for the file backend")
		}
	case "redis":
		if c.Cursor.RedisAddr == "" {
			return errors.New("cursor.redis_addr is required for the redis backend")
		}
		if c.Cursor.RedisKey == "" {
			return errors.New("cursor.redis_key is required for the redis backend")
		}
	default:
		return fmt.Errorf("cursor.backend must be \"file\" or \"redis\", got %q", c.Cursor.Backend)
	}
	return nil
}
