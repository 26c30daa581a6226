package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ledgerRelay/internal/config"
	"ledgerRelay/internal/control"
	"ledgerRelay/internal/idl"
	"ledgerRelay/internal/ingest"
	"ledgerRelay/internal/parser"
	"ledgerRelay/internal/publisher"
	"ledgerRelay/internal/store"
)

const publisherDrainTimeout = 10 * time.Second

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Filter ledger updates and publish them to the durable streams",
		RunE:  runIngest,
	}
	commonFlags(cmd)
	cmd.Flags().String("replay-file", "", "JSON-lines file of producer updates")
	cmd.Flags().String("checkpoint", "./data/replay_checkpoint.json", "replay checkpoint path, empty disables")
	cmd.Flags().String("accounts-stream", "accounts", "default account stream")
	cmd.Flags().String("slots-stream", "slots", "default slot stream")
	cmd.Flags().String("transactions-stream", "transactions", "default transaction stream")
	cmd.Flags().String("pool-stream", ingest.DefaultPoolStream, "pool event stream")
	cmd.Flags().Int("publisher-capacity", publisher.DefaultCapacity, "publisher queue capacity")
	cmd.Flags().String("rules-source", config.SourceStatic, "rule source (static, file, nats, realtime)")
	cmd.Flags().String("rules-file", "", "rule set file for the file source")
	cmd.Flags().Duration("rules-poll", control.DefaultPollInterval, "rule file poll interval")
	cmd.Flags().String("nats-url", "", "NATS server URL for the nats source")
	cmd.Flags().String("realtime-url", "", "project URL for the realtime source")
	cmd.Flags().String("realtime-api-key", "", "API key for the realtime source")
	cmd.Flags().Duration("retry-delay", ingest.DefaultRetryDelay, "delay before resubscribing after an upstream failure")
	return cmd
}

func runIngest(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadIngest(cfgFile, cmd.Flags())
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

	schemas, programs, err := loadPrograms(cfg.Programs)
	if err != nil {
		return err
	}

	source, closeSource, err := newRuleSource(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	controller := control.NewController(source, cfg.Streams, logger.Named("control"))
	cell, err := controller.Start(ctx)
	if err != nil {
		return err
	}

	redis, err := store.Connect(ctx, cfg.RedisURL, store.Options{MaxLen: cfg.StreamMaxLen, ConnectRetries: 3}, logger)
	if err != nil {
		return err
	}
	defer redis.Close()

	upstream, err := ingest.NewReplayUpstream(cfg.ReplayFile, cfg.Checkpoint, logger.Named("replay"))
	if err != nil {
		return err
	}
	registry, err := ingest.DefaultRegistry()
	if err != nil {
		return err
	}

	pub := publisher.New(redis, publisher.Options{Capacity: cfg.PublisherCapacity}, logger.Named("publisher"), rec)
	relay := ingest.NewRelay(cell, parser.New(schemas, parser.WithLogger(logger.Named("parser"))), pub, programs, logger.Named("relay"), rec)
	loop := ingest.NewLoop(upstream, cell, relay, registry, pub, ingest.LoopConfig{
		PoolStream: cfg.PoolStream,
		RetryDelay: cfg.RetryDelay,
	}, logger.Named("loop"), rec)

	logger.Info("ingest start",
		zap.String("rules_source", cfg.RulesSource),
		zap.String("replay_file", cfg.ReplayFile),
		zap.Int("programs", len(programs)),
		zap.Int("publisher_capacity", cfg.PublisherCapacity),
	)

	go pub.Run(context.WithoutCancel(ctx))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return controller.Run(gctx) })
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr, reg, logger) })
	runErr := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), publisherDrainTimeout)
	defer cancel()
	if err := pub.Close(drainCtx); err != nil {
		logger.Warn("publisher did not drain", zap.Int("pending", pub.Len()), zap.Error(err))
	}
	return runErr
}

// loadPrograms reads each configured IDL. A configured program id must match
// the IDL address; an empty one is taken from it.
func loadPrograms(cfgs []ingest.ProgramStreams) ([]*idl.Schema, []ingest.ProgramStreams, error) {
	schemas := make([]*idl.Schema, 0, len(cfgs))
	programs := make([]ingest.ProgramStreams, 0, len(cfgs))
	for _, p := range cfgs {
		schema, err := idl.LoadSchema(p.IDLPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load idl %s: %w", p.IDLPath, err)
		}
		if p.ProgramID == "" {
			p.ProgramID = schema.Address
		} else if p.ProgramID != schema.Address {
			return nil, nil, fmt.Errorf("idl %s is for program %s, not %s", p.IDLPath, schema.Address, p.ProgramID)
		}
		schemas = append(schemas, schema)
		programs = append(programs, p)
	}
	return schemas, programs, nil
}

func newRuleSource(cfg config.IngestConfig, logger *zap.Logger) (control.Source, func(), error) {
	noop := func() {}
	switch cfg.RulesSource {
	case config.SourceFile:
		return control.NewFileSource(cfg.RulesFile, cfg.RulesPoll, logger.Named("rules")), noop, nil
	case config.SourceNATS:
		src, conn, err := control.ConnectNATS(cfg.NATS, logger.Named("rules"))
		if err != nil {
			return nil, nil, err
		}
		return src, conn.Close, nil
	case config.SourceRealtime:
		src, err := control.NewRealtimeSource(cfg.Realtime, logger.Named("rules"))
		if err != nil {
			return nil, nil, err
		}
		return src, noop, nil
	default:
		return control.StaticSource{Rules: cfg.Rules}, noop, nil
	}
}
