package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Polygon Mumbai deployments the dashboard was built against.
const (
	DefaultFactory = "0x7167d60bb1fa2b7718fd15a72bcab2f0718a5523"
	DefaultCFA     = "0x49e565Ed1bdc17F3d220f72DF0857C26FA83F873"
)

// Config holds configuration for the run command.
type Config struct {
	RPCURL       string
	FromBlock    uint64
	ToBlock      uint64
	Factory      string
	CFA          string
	BatchSize    uint64
	PGDSN        string
	Checkpoint   string
	Errors       string
	MaxRetries   int
	RetryBackoff time.Duration
	Follow       bool
	PollInterval time.Duration
	MetricsAddr  string
	LogLevel     string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"factory":       DefaultFactory,
		"cfa":           DefaultCFA,
		"batch-size":    uint64(2000),
		"errors":        "./data/mapping_errors.jsonl",
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
		"poll-interval": 3 * time.Second,
		"log-level":     "info",
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:       v.GetString("rpc"),
		FromBlock:    v.GetUint64("from"),
		ToBlock:      v.GetUint64("to"),
		Factory:      v.GetString("factory"),
		CFA:          v.GetString("cfa"),
		BatchSize:    v.GetUint64("batch-size"),
		PGDSN:        v.GetString("pg-dsn"),
		Checkpoint:   v.GetString("checkpoint"),
		Errors:       v.GetString("errors"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		Follow:       v.GetBool("follow"),
		PollInterval: v.GetDuration("poll-interval"),
		MetricsAddr:  v.GetString("metrics-addr"),
		LogLevel:     v.GetString("log-level"),
	}
	return cfg, nil
}

// Validate checks the settings the run command cannot start without.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if c.ToBlock != 0 && c.ToBlock < c.FromBlock {
		return fmt.Errorf("to block must be >= from block")
	}
	return nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}
