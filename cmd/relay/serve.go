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
	"ledgerRelay/internal/fanout"
	"ledgerRelay/internal/store"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the durable streams to gRPC clients",
		RunE:  runServe,
	}
	commonFlags(cmd)
	cmd.Flags().String("listen", ":50051", "gRPC listen address")
	cmd.Flags().String("mode", string(fanout.ModeBroadcast), "fan-out mode (broadcast, shared)")
	cmd.Flags().String("accounts-stream", "accounts", "account stream")
	cmd.Flags().String("slots-stream", "slots", "slot stream")
	cmd.Flags().String("transactions-stream", "transactions", "transaction stream")
	cmd.Flags().String("wrapped-stream", "", "wrapped stream for StreamAll, empty reads the raw streams")
	cmd.Flags().String("pool-stream", "pool-events", "pool event stream")
	cmd.Flags().Int("client-buffer", fanout.DefaultClientBuffer, "per-client send buffer")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
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

	redis, err := store.Connect(ctx, cfg.RedisURL, store.Options{ConnectRetries: 3}, logger)
	if err != nil {
		return err
	}
	defer redis.Close()

	svc, err := fanout.NewService(redis, cfg.Fanout(), logger.Named("fanout"), rec)
	if err != nil {
		return err
	}
	server := fanout.NewServer(svc)

	logger.Info("serve start",
		zap.String("listen", cfg.Listen),
		zap.String("mode", string(cfg.Mode)),
		zap.String("wrapped_stream", cfg.Streams.Wrapped),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.ListenAndServe(gctx, cfg.Listen) })
	g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr, reg, logger) })
	return g.Wait()
}
