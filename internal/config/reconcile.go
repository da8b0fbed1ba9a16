package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// ReconcileConfig holds configuration for the reconcile command.
type ReconcileConfig struct {
	RPCURL            string
	GraphURL          string
	GraphTimeout      time.Duration
	Factory           string
	CFA               string
	DeploymentBlock   uint64
	Account           string
	OnlyMine          bool
	PollInterval      time.Duration
	BatchSize         uint64
	RequestsPerSecond float64
	MaxRetries        int
	RedisAddr         string
	RedisKey          string
	RedisChannel      string
	ListenAddr        string
	LogLevel          string
}

// LoadReconcile merges config file, environment variables, and flags into ReconcileConfig.
func LoadReconcile(cfgFile string, flags *pflag.FlagSet) (ReconcileConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"graph-timeout": 10 * time.Second,
		"factory":       DefaultFactory,
		"cfa":           DefaultCFA,
		"poll-interval": 3 * time.Second,
		"batch-size":    uint64(2000),
		"rps":           10.0,
		"max-retries":   3,
		"redis-key":     "flowsplit:snapshot",
		"redis-channel": "flowsplit:snapshots",
		"listen-addr":   ":8080",
		"log-level":     "info",
	})
	if err != nil {
		return ReconcileConfig{}, err
	}

	cfg := ReconcileConfig{
		RPCURL:            v.GetString("rpc"),
		GraphURL:          v.GetString("graph-url"),
		GraphTimeout:      v.GetDuration("graph-timeout"),
		Factory:           v.GetString("factory"),
		CFA:               v.GetString("cfa"),
		DeploymentBlock:   v.GetUint64("deployment-block"),
		Account:           v.GetString("account"),
		OnlyMine:          v.GetBool("only-mine"),
		PollInterval:      v.GetDuration("poll-interval"),
		BatchSize:         v.GetUint64("batch-size"),
		RequestsPerSecond: v.GetFloat64("rps"),
		MaxRetries:        v.GetInt("max-retries"),
		RedisAddr:         v.GetString("redis-addr"),
		RedisKey:          v.GetString("redis-key"),
		RedisChannel:      v.GetString("redis-channel"),
		ListenAddr:        v.GetString("listen-addr"),
		LogLevel:          v.GetString("log-level"),
	}
	return cfg, nil
}

// Validate checks the settings the reconcile command cannot start without.
func (c ReconcileConfig) Validate() error {
	if c.GraphURL == "" && c.RPCURL == "" {
		return fmt.Errorf("at least one of graph url or rpc url is required")
	}
	if c.RPCURL != "" && c.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	return nil
}
