package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ledgerRelay/internal/config"
	"ledgerRelay/internal/consumer"
	"ledgerRelay/internal/storage"
	"ledgerRelay/internal/storage/postgres"
	"ledgerRelay/internal/store"
)

func newConsumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Move stream entries into the sink with at-least-once delivery",
		RunE:  runConsume,
	}
	commonFlags(cmd)
	cmd.Flags().String("accounts-stream", "accounts", "account stream, empty skips it")
	cmd.Flags().String("slots-stream", "slots", "slot stream, empty skips it")
	cmd.Flags().String("transactions-stream", "transactions", "transaction stream, empty skips it")
	cmd.Flags().StringSlice("wrapped-streams", nil, "streams carrying wrapped envelopes (comma-separated)")
	cmd.Flags().String("group", consumer.DefaultGroup, "consumer group")
	cmd.Flags().String("consumer", "", "consumer name, defaults to <group>-<uuid>")
	cmd.Flags().Int64("read-count", consumer.DefaultReadCount, "entries per read")
	cmd.Flags().Int("batch-limit", consumer.DefaultBatchLimit, "items buffered before a flush")
	cmd.Flags().Duration("flush-interval", consumer.DefaultFlushInterval, "maximum time between flushes")
	cmd.Flags().Duration("claim-min-idle", consumer.DefaultClaimMinIdle, "claim other consumers' entries pending this long at startup, 0 disables")
	cmd.Flags().String("sink", config.SinkJSONL, "sink (postgres, jsonl)")
	cmd.Flags().String("postgres-dsn", "", "Postgres DSN for the postgres sink")
	cmd.Flags().Bool("migrate", false, "apply schema migrations before consuming")
	cmd.Flags().String("out", "./data/events.jsonl", "output JSONL path for the jsonl sink")
	cmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL for the jsonl sink")
	return cmd
}

func runConsume(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConsume(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	rec, reg, err := newRecorder(cfg.MetricsAddr)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink storage.Sink
	switch cfg.Sink {
	case config.SinkPostgres:
		if cfg.Migrate {
			if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
				return err
			}
			logger.Info("migrations applied")
		}
		pg, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		sink = pg
	default:
		sink = storage.NewJsonlSink(cfg.Out, cfg.Errors)
	}

	redis, err := store.Connect(ctx, cfg.RedisURL, store.Options{ConnectRetries: 3}, logger)
	if err != nil {
		return err
	}
	defer redis.Close()

	c, err := consumer.New(redis, sink, consumer.Config{
		Streams:       cfg.Streams(),
		Group:         cfg.Group,
		Consumer:      cfg.Consumer,
		ReadCount:     cfg.ReadCount,
		BatchLimit:    cfg.BatchLimit,
		FlushInterval: cfg.FlushInterval,
		ClaimMinIdle:  cfg.ClaimMinIdle,
	}, logger.Named("consumer"), rec)
	if err != nil {
		return err
	}

	logger.Info("consume start",
		zap.String("sink", cfg.Sink),
		zap.String("group", cfg.Group),
		zap.String("consumer", c.Name()),
		zap.Int("streams", len(cfg.Streams())),
		zap.Int("batch_limit", cfg.BatchLimit),
		zap.Duration("flush_interval", cfg.FlushInterval),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Run(gctx) })
	g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr, reg, logger) })
	return g.Wait()
}
