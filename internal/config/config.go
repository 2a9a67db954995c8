// Package config loads settings from an optional config/config.yaml, a .env
// file and CHAT_* environment variables, later sources winning.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr    string `mapstructure:"http_addr"`
	StoreDriver string `mapstructure:"store_driver"` // postgres | memory

	DBURL      string `mapstructure:"db_url"`
	DBMaxConns int32  `mapstructure:"db_max_conns"`

	RedisURL       string        `mapstructure:"redis_url"`
	UnreadCacheTTL time.Duration `mapstructure:"unread_cache_ttl"`
	QueueEnabled   bool          `mapstructure:"queue_enabled"`

	StorageDir        string        `mapstructure:"storage_dir"`
	StorageBaseURL    string        `mapstructure:"storage_base_url"`
	StorageSigningKey string        `mapstructure:"storage_signing_key"`
	UploadTimeout     time.Duration `mapstructure:"upload_timeout"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // json | console

	WorkerConcurrency   int `mapstructure:"worker_concurrency"`
	NotifyRatePerSecond int `mapstructure:"notify_rate_per_second"`
}

var defaults = map[string]any{
	"http_addr":              "127.0.0.1:3000",
	"store_driver":           "postgres",
	"db_url":                 "",
	"db_max_conns":           10,
	"redis_url":              "",
	"unread_cache_ttl":       15 * time.Second,
	"queue_enabled":          false,
	"storage_dir":            "./data/objects",
	"storage_base_url":       "http://127.0.0.1:3000",
	"storage_signing_key":    "",
	"upload_timeout":         30 * time.Second,
	"log_level":              "info",
	"log_format":             "json",
	"worker_concurrency":     10,
	"notify_rate_per_second": 20,
}

// Load reads configuration. name is the config file base name searched in
// ./config; a missing file is not an error.
func Load(name string) (*Config, error) {
	// .env is optional.
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath("config")
	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, c.Validate()
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "memory":
	case "postgres":
		if c.DBURL == "" {
			return errors.New("config: db_url is required for the postgres store")
		}
	default:
		return errors.New("config: store_driver must be postgres or memory")
	}
	if c.QueueEnabled && c.RedisURL == "" {
		return errors.New("config: queue_enabled requires redis_url")
	}
	if c.StorageSigningKey == "" {
		return errors.New("config: storage_signing_key is required")
	}
	return nil
}
