package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ledgerRelay/internal/config"
	"ledgerRelay/internal/fanout"
	"ledgerRelay/internal/model"
)

func newTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print a fan-out stream as JSON lines",
		RunE:  runTail,
	}
	cmd.Flags().String("target", "127.0.0.1:50051", "fan-out server address")
	cmd.Flags().String("call", "all", "call to open (accounts, slots, transactions, all, pools)")
	cmd.Flags().String("pool-id", "", "pool id for the pools call")
	cmd.Flags().Int("limit", 0, "stop after this many items, 0 runs until interrupted")
	return cmd
}

func runTail(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadTail(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := fanout.Dial(cfg.Target)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.Target, err)
	}
	defer client.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	switch cfg.Call {
	case "accounts":
		return tail(ctx, client.StreamAccounts, enc, cfg.Limit)
	case "slots":
		return tail(ctx, client.StreamSlots, enc, cfg.Limit)
	case "transactions":
		return tail(ctx, client.StreamTransactions, enc, cfg.Limit)
	case "all":
		return tail(ctx, client.StreamAll, enc, cfg.Limit)
	case "pools":
		return tail(ctx, func(ctx context.Context) (*fanout.Stream[model.PoolEvent], error) {
			return client.StreamPoolEvents(ctx, cfg.PoolID)
		}, enc, cfg.Limit)
	default:
		return fmt.Errorf("unknown call %q", cfg.Call)
	}
}

func tail[T any](ctx context.Context, open func(context.Context) (*fanout.Stream[T], error), enc *json.Encoder, limit int) error {
	stream, err := open(ctx)
	if err != nil {
		return err
	}
	for n := 0; limit <= 0 || n < limit; n++ {
		item, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	return nil
}
