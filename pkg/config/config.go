// Package config provides configuration for mishard.
package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/viper"
)

// Config holds all configuration for a router node.
type Config struct {
	// Node identification
	NodeID string `mapstructure:"node_id"`

	// Network addresses
	HTTPAddr string `mapstructure:"http_addr"`
	GRPCAddr string `mapstructure:"grpc_addr"`

	// Backend addresses used for admin pass-through calls (table/index
	// administration), rotated round-robin.
	BackendAddrs []string `mapstructure:"backend_addrs"`

	// Routing limits
	MaxTopK   int `mapstructure:"max_topk"`
	MaxNProbe int `mapstructure:"max_nprobe"`

	// Dispatch
	MaxWorkers int `mapstructure:"max_workers"`

	// Connection pool
	PoolSize           int `mapstructure:"pool_size"`
	PoolRecycleSeconds int `mapstructure:"pool_recycle_seconds"`
	PoolTimeoutSeconds int `mapstructure:"pool_timeout_seconds"`

	// Pool maintenance schedule, a robfig/cron expression
	PoolMaintainCron string `mapstructure:"pool_maintain_cron"`

	// Tracing
	TracingEnabled bool `mapstructure:"tracing_enabled"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
}

// DefaultConfig returns a configuration with sensible defaults, matching
// the original service's settings module (MAX_TOPK=2048, MAX_NPROBE=2048,
// pool_size=100, pool_recycle=5, pool_timeout=30).
func DefaultConfig() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		NodeID:             hostname,
		HTTPAddr:           ":19121",
		GRPCAddr:           ":19530",
		BackendAddrs:       nil,
		MaxTopK:            2048,
		MaxNProbe:          2048,
		MaxWorkers:         runtime.NumCPU(),
		PoolSize:           100,
		PoolRecycleSeconds: 5,
		PoolTimeoutSeconds: 30,
		PoolMaintainCron:   "@every 1m",
		TracingEnabled:     false,
		LogLevel:           "info",
	}
}

// LoadConfig loads configuration from a file, falling back to defaults for
// anything the file and environment don't set.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.MaxTopK <= 0 {
		return fmt.Errorf("max_topk must be positive, got %d", c.MaxTopK)
	}
	if c.MaxNProbe <= 0 {
		return fmt.Errorf("max_nprobe must be positive, got %d", c.MaxNProbe)
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be positive, got %d", c.PoolSize)
	}
	return nil
}
