package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flowsplit/internal/chain"
	"flowsplit/internal/config"
	"flowsplit/internal/contracts"
	"flowsplit/internal/graph"
	"flowsplit/internal/indexer"
	"flowsplit/internal/metrics"
	"flowsplit/internal/reconcile"
	"flowsplit/internal/storage/redis"
)

func newReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Poll the indexer and the chain and serve the larger view",
		RunE:  runReconcile,
	}

	cmd.Flags().String("rpc", "", "RPC URL for the chain source and token metadata")
	cmd.Flags().String("graph-url", "", "GraphQL endpoint of the hosted indexer")
	cmd.Flags().Duration("graph-timeout", 10*time.Second, "GraphQL request timeout")
	cmd.Flags().String("factory", config.DefaultFactory, "flow splitter factory address")
	cmd.Flags().String("cfa", config.DefaultCFA, "Superfluid CFA agreement address")
	cmd.Flags().Uint64("deployment-block", 0, "factory deployment block")
	cmd.Flags().String("account", "", "connected account whose streams are tracked")
	cmd.Flags().Bool("only-mine", false, "only keep splitters created by --account")
	cmd.Flags().Duration("poll-interval", reconcile.DefaultPollInterval, "refresh interval")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per log query for the chain source")
	cmd.Flags().Float64("rps", 10, "RPC requests per second for the chain source")
	cmd.Flags().Int("max-retries", 3, "maximum RPC retry attempts")
	cmd.Flags().String("redis-addr", "", "publish snapshots to this Redis URL")
	cmd.Flags().String("redis-key", "flowsplit:snapshot", "Redis key holding the latest snapshot")
	cmd.Flags().String("redis-channel", "flowsplit:snapshots", "Redis channel announcing snapshots")
	cmd.Flags().String("listen-addr", ":8080", "serve /snapshot, /health and /metrics on this address")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReconcile(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var indexerSource reconcile.Source
	if cfg.GraphURL != "" {
		indexerSource = graph.NewClient(cfg.GraphURL, cfg.GraphTimeout, logger.Named("graph"))
	}

	var (
		chainSource reconcile.Source
		tokens      reconcile.TokenResolver
	)
	if cfg.RPCURL != "" {
		factory, err := indexer.ParseAddress(cfg.Factory)
		if err != nil {
			return fmt.Errorf("factory: %w", err)
		}
		cfa, err := indexer.ParseAddress(cfg.CFA)
		if err != nil {
			return fmt.Errorf("cfa: %w", err)
		}

		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()

		source, err := reconcile.NewChainSource(reconcile.ChainSourceConfig{
			DeploymentBlock:   cfg.DeploymentBlock,
			Factory:           factory,
			CFA:               cfa,
			BatchSize:         cfg.BatchSize,
			RequestsPerSecond: cfg.RequestsPerSecond,
			MaxRetries:        cfg.MaxRetries,
		}, chainClient, logger)
		if err != nil {
			return err
		}
		chainSource = source
		tokens = contracts.NewTokenResolver(chainClient, logger.Named("tokens"))
	}

	var sinks []reconcile.Sink
	if cfg.RedisAddr != "" {
		opts, err := goredis.ParseURL(cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		redisClient := goredis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		sinks = append(sinks, redis.NewSnapshotPublisher(redisClient, cfg.RedisKey, cfg.RedisChannel, 0, logger.Named("redis")))
	}

	reconcileMetrics := metrics.NewReconcileMetrics(prometheus.DefaultRegisterer)
	client := reconcile.NewClient(indexerSource, chainSource, tokens, reconcile.Options{OnlyMine: cfg.OnlyMine}, logger).
		WithMetrics(reconcileMetrics)
	poller := reconcile.NewPoller(client, cfg.Account, cfg.PollInterval, logger, sinks...).
		WithMetrics(reconcileMetrics)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	reconcile.RegisterRoutes(mux, poller)
	stopServer := serve(ctx, cfg.ListenAddr, mux, logger)
	defer stopServer()

	logger.Info("reconcile start",
		zap.Bool("indexer_source", cfg.GraphURL != ""),
		zap.Bool("chain_source", chainSource != nil),
		zap.String("account", cfg.Account),
		zap.Bool("only_mine", cfg.OnlyMine),
		zap.Duration("poll_interval", cfg.PollInterval),
	)

	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
