package ingest

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"ledgerRelay/internal/control"
	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/filter"
	"ledgerRelay/internal/metrics"
	"ledgerRelay/internal/model"
	"ledgerRelay/internal/publisher"
	"ledgerRelay/internal/retry"
)

const (
	DefaultPoolStream = "pool-events"
	DefaultRetryDelay = time.Second
)

var errRulesChanged = errors.New("rules changed")

type LoopConfig struct {
	PoolStream string
	RetryDelay time.Duration
}

// Loop owns the upstream subscription. It rebuilds the request whenever the
// rule cell changes and keeps the publisher running across resubscriptions.
type Loop struct {
	upstream Upstream
	cell     *control.Cell
	relay    *Relay
	registry *Registry
	pub      Publisher
	cfg      LoopConfig
	logger   *zap.Logger
	metrics  metrics.Recorder
}

func NewLoop(upstream Upstream, cell *control.Cell, relay *Relay, registry *Registry, pub Publisher, cfg LoopConfig, logger *zap.Logger, rec metrics.Recorder) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if cfg.PoolStream == "" {
		cfg.PoolStream = DefaultPoolStream
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Loop{
		upstream: upstream,
		cell:     cell,
		relay:    relay,
		registry: registry,
		pub:      pub,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics.OrNop(rec),
	}
}

// Run subscribes until ctx is cancelled. Upstream failures and end of stream
// are retried after RetryDelay; a rule change resubscribes immediately.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		set, version := l.cell.Load()
		rs := set.RuleSet()
		req := rs.SubscribeRequest()
		req.Merge(l.registry.SubscribeRequest(rs.Pools))

		l.logger.Info("subscribing upstream",
			zap.Uint64("rules_version", version),
			zap.Int("account_filters", len(req.Accounts)),
			zap.Int("transaction_filters", len(req.Transactions)),
			zap.Int("pools", len(rs.Pools)),
		)
		err := l.session(ctx, rs.Pools, version, req)
		switch {
		case errors.Is(err, errRulesChanged):
			l.logger.Info("rules changed, resubscribing")
			continue
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, io.EOF):
			l.logger.Info("upstream stream ended")
		default:
			l.logger.Warn("upstream stream failed", zap.Error(err))
		}
		if err := retry.Sleep(ctx, l.cfg.RetryDelay); err != nil {
			return nil
		}
	}
}

func (l *Loop) session(ctx context.Context, pools []model.PoolMeta, version uint64, req filter.SubscribeRequest) error {
	sub, err := l.upstream.Subscribe(ctx, req)
	if err != nil {
		return fault.New(fault.UpstreamStream, "subscribe", err)
	}
	defer sub.Close()

	recvCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	changed := l.cell.Changed(version)
	go func() {
		select {
		case <-changed:
			cancel()
		case <-recvCtx.Done():
		}
	}()

	for {
		upd, err := sub.Recv(recvCtx)
		if err != nil {
			select {
			case <-changed:
				return errRulesChanged
			default:
			}
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return err
			}
			return fault.New(fault.UpstreamStream, "receive", err)
		}
		l.dispatch(pools, upd)
		select {
		case <-changed:
			return errRulesChanged
		default:
		}
	}
}

// dispatch hands one update to the relay and to the processor of the pool it
// belongs to. Errors are logged; the loop never stops on a bad update.
func (l *Loop) dispatch(pools []model.PoolMeta, upd Update) {
	var err error
	switch {
	case upd.Account != nil:
		err = l.relay.UpdateAccount(upd.Account, upd.IsStartup)
	case upd.Slot != nil:
		err = l.relay.UpdateSlotStatus(upd.Slot)
	case upd.Transaction != nil:
		err = l.relay.NotifyTransaction(upd.Transaction)
	default:
		return
	}
	if err != nil {
		l.logger.Debug("relay publish failed", zap.Error(err))
	}

	if upd.IsStartup {
		return
	}
	pool, ok := l.registry.Match(pools, upd)
	if !ok {
		return
	}
	proc, ok := l.registry.Get(pool.Variant)
	if !ok {
		return
	}
	events, err := proc.HandleUpdate(pool, upd)
	if err != nil {
		metrics.Inc(l.metrics, metrics.ParseFailed, string(pool.Variant))
		l.logger.Warn("pool update failed", zap.String("pool_id", pool.PoolID), zap.Error(err))
	}
	for _, ev := range events {
		msg, err := publisher.PoolEventMessage(l.cfg.PoolStream, ev)
		if err != nil {
			l.logger.Warn("build pool event", zap.Error(err))
			continue
		}
		if err := l.pub.Publish(msg); err != nil {
			l.logger.Debug("pool event dropped", zap.String("pool_id", ev.PoolID), zap.Error(err))
		}
	}
}
