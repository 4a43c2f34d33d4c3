// Package config loads the SPACO tool configuration from spaco.yml
// and the environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/spaco-sound/spaco/pattern/manager"
	"github.com/spaco-sound/spaco/pattern/monitor"
)

// Config represents the SPACO configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
}

// DatabaseConfig represents the pattern store backend.
type DatabaseConfig struct {
	// URL is a SQLite path/DSN or a postgres:// URL.
	URL string `mapstructure:"url"`
}

// CacheConfig bounds the in-memory pattern cache.
type CacheConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// MonitorConfig holds the memory watchdog thresholds.
type MonitorConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	HighThreshold     float64       `mapstructure:"high_threshold"`
	CriticalThreshold float64       `mapstructure:"critical_threshold"`
	ReliefFraction    float64       `mapstructure:"relief_fraction"`
}

// Load reads spaco.yml (or spaco.yaml) from the working directory,
// applying defaults and SPACO_* environment overrides.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("database.url", "spaco.db")
	v.SetDefault("cache.capacity", manager.DefaultCacheCapacity)
	v.SetDefault("monitor.interval", "60s")
	v.SetDefault("monitor.high_threshold", 0.85)
	v.SetDefault("monitor.critical_threshold", 0.95)
	v.SetDefault("monitor.relief_fraction", 0.5)

	v.SetConfigName("spaco")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SPACO")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; defaults and env apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// ManagerOptions converts the configuration into pattern manager
// options. The monitor is left disabled for one-shot CLI commands.
func (c *Config) ManagerOptions() manager.Options {
	return manager.Options{
		DatabaseURL:   c.Database.URL,
		CacheCapacity: c.Cache.Capacity,
		Monitor: monitor.Config{
			Interval:          c.Monitor.Interval,
			HighThreshold:     c.Monitor.HighThreshold,
			CriticalThreshold: c.Monitor.CriticalThreshold,
			ReliefFraction:    c.Monitor.ReliefFraction,
		},
		DisableMonitor: true,
	}
}
