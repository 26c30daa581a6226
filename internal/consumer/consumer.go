// Package consumer moves events from the durable streams into the sink with
// at-least-once delivery.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ledgerRelay/internal/codec"
	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/metrics"
	"ledgerRelay/internal/model"
	"ledgerRelay/internal/publisher"
	"ledgerRelay/internal/retry"
	"ledgerRelay/internal/storage"
	"ledgerRelay/internal/store"
)

const (
	DefaultGroup        = "relay-sink"
	DefaultReadCount    = 100
	DefaultBlock        = time.Second
	DefaultRetryDelay   = 100 * time.Millisecond
	DefaultCycleDelay   = 5 * time.Second
	DefaultMaxFailures  = 5
	DefaultClaimMinIdle = time.Minute

	shutdownFlushTimeout = 10 * time.Second
)

// StreamSpec names a stream and how its payloads are encoded. Wrapped streams
// carry any kind inside the Wrapper envelope; raw streams carry only Kind.
type StreamSpec struct {
	Name    string
	Kind    model.Kind
	Wrapped bool
}

type Config struct {
	Streams  []StreamSpec
	Group    string
	Consumer string

	ReadCount     int64
	Block         time.Duration
	BatchLimit    int
	FlushInterval time.Duration
	// ClaimMinIdle is how long another consumer's entry must be pending
	// before it is claimed at startup. Zero disables claiming.
	ClaimMinIdle time.Duration

	RetryDelay  time.Duration
	CycleDelay  time.Duration
	MaxFailures int
}

func (c *Config) applyDefaults() {
	if c.Group == "" {
		c.Group = DefaultGroup
	}
	if c.Consumer == "" {
		c.Consumer = fmt.Sprintf("%s-%s", c.Group, uuid.NewString())
	}
	if c.ReadCount <= 0 {
		c.ReadCount = DefaultReadCount
	}
	if c.Block <= 0 {
		c.Block = DefaultBlock
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.CycleDelay <= 0 {
		c.CycleDelay = DefaultCycleDelay
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = DefaultMaxFailures
	}
}

// Consumer reads the configured streams under one consumer group identity and
// feeds the batcher.
type Consumer struct {
	cfg     Config
	groups  store.Groups
	sink    storage.Sink
	batcher *Batcher
	specs   map[string]StreamSpec
	names   []string
	logger  *zap.Logger
	metrics metrics.Recorder
}

func New(groups store.Groups, sink storage.Sink, cfg Config, logger *zap.Logger, rec metrics.Recorder) (*Consumer, error) {
	if groups == nil {
		return nil, errors.New("consumer: store is nil")
	}
	if sink == nil {
		return nil, errors.New("consumer: sink is nil")
	}
	if len(cfg.Streams) == 0 {
		return nil, fault.Errorf(fault.Config, "consumer", "no streams configured")
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("group", cfg.Group), zap.String("consumer", cfg.Consumer))

	specs := make(map[string]StreamSpec, len(cfg.Streams))
	names := make([]string, 0, len(cfg.Streams))
	for _, s := range cfg.Streams {
		if s.Name == "" {
			return nil, fault.Errorf(fault.Config, "consumer", "stream name is empty")
		}
		if !s.Wrapped && s.Kind == 0 {
			return nil, fault.Errorf(fault.Config, "consumer", "raw stream %s needs a kind", s.Name)
		}
		if _, dup := specs[s.Name]; dup {
			return nil, fault.Errorf(fault.Config, "consumer", "stream %s listed twice", s.Name)
		}
		specs[s.Name] = s
		names = append(names, s.Name)
	}

	rec = metrics.OrNop(rec)
	return &Consumer{
		cfg:    cfg,
		groups: groups,
		sink:   sink,
		batcher: NewBatcher(sink, groups, BatcherConfig{
			Group:    cfg.Group,
			Limit:    cfg.BatchLimit,
			Interval: cfg.FlushInterval,
		}, logger, rec),
		specs:   specs,
		names:   names,
		logger:  logger,
		metrics: rec,
	}, nil
}

// Name is the consumer identity inside the group.
func (c *Consumer) Name() string { return c.cfg.Consumer }

func (c *Consumer) Batcher() *Batcher { return c.batcher }

// Run creates the groups, recovers pending entries and then reads until ctx
// is done. Only group creation failures are returned; read errors are
// retried. Buffered items are flushed before returning.
func (c *Consumer) Run(ctx context.Context) error {
	for _, name := range c.names {
		if err := c.groups.CreateGroup(ctx, name, c.cfg.Group, "0"); err != nil {
			return fault.New(fault.StoreConnect, "create consumer group", err)
		}
		c.logger.Info("consumer group ready", zap.String("stream", name))
	}
	defer c.drain()

	if err := c.recover(ctx); err != nil {
		c.logger.Warn("pending recovery incomplete", zap.Error(err))
	}

	for ctx.Err() == nil {
		if err := c.cycle(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("consume cycle failed", zap.Error(err), zap.Duration("backoff", c.cfg.CycleDelay))
			_ = retry.Sleep(ctx, c.cfg.CycleDelay)
		}
	}
	return nil
}

func (c *Consumer) drain() {
	if c.batcher.Len() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()
	c.batcher.Flush(ctx)
}

// cycle polls until ctx ends or reads fail MaxFailures times in a row.
func (c *Consumer) cycle(ctx context.Context) error {
	failures := 0
	for ctx.Err() == nil {
		n, err := c.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			if failures >= c.cfg.MaxFailures {
				return fmt.Errorf("%d consecutive read failures: %w", failures, err)
			}
			c.logger.Warn("stream read failed", zap.Error(err), zap.Int("failures", failures))
			_ = retry.Sleep(ctx, c.cfg.RetryDelay)
			continue
		}
		failures = 0
		if n == 0 {
			c.batcher.Tick(ctx)
		}
	}
	return nil
}

// Poll performs one blocking read and handles what it returns.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	entries, err := c.groups.ReadGroup(ctx, store.ReadArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  c.names,
		Count:    c.cfg.ReadCount,
		Block:    c.cfg.Block,
	})
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		c.handle(ctx, e)
	}
	return len(entries), nil
}

// recover re-feeds entries that were delivered but never acknowledged: this
// consumer's own pending list, then entries other consumers left idle.
func (c *Consumer) recover(ctx context.Context) error {
	var recovered int
	var backlog int64
	for _, name := range c.names {
		pending, err := c.groups.Pending(ctx, name, c.cfg.Group)
		if err != nil {
			return fmt.Errorf("pending %s: %w", name, err)
		}
		if pending == 0 {
			continue
		}
		backlog += pending

		last := "0"
		for {
			entries, err := c.groups.ReadGroup(ctx, store.ReadArgs{
				Group:    c.cfg.Group,
				Consumer: c.cfg.Consumer,
				Streams:  []string{name},
				ID:       last,
				Count:    c.cfg.ReadCount,
			})
			if err != nil {
				return fmt.Errorf("read pending %s: %w", name, err)
			}
			if len(entries) == 0 {
				break
			}
			for _, e := range entries {
				c.handle(ctx, e)
			}
			recovered += len(entries)
			last = entries[len(entries)-1].ID
		}

		if c.cfg.ClaimMinIdle <= 0 {
			continue
		}
		claimed, err := c.groups.Claim(ctx, store.ClaimArgs{
			Stream:   name,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			MinIdle:  c.cfg.ClaimMinIdle,
			Count:    c.cfg.ReadCount,
		})
		for _, e := range claimed {
			c.handle(ctx, e)
		}
		recovered += len(claimed)
		if err != nil {
			return fmt.Errorf("claim %s: %w", name, err)
		}
	}
	if backlog > 0 {
		c.logger.Info("recovered pending entries", zap.Int64("backlog", backlog), zap.Int("count", recovered))
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, e store.Entry) {
	env, err := c.decode(e)
	if err != nil {
		c.reject(ctx, e, err)
		return
	}
	c.batcher.Enqueue(ctx, Item{Stream: e.Stream, ID: e.ID, Env: env})
}

func (c *Consumer) decode(e store.Entry) (model.Envelope, error) {
	spec, ok := c.specs[e.Stream]
	if !ok {
		return model.Envelope{}, fault.Errorf(fault.Decode, "decode entry", "unexpected stream %s", e.Stream)
	}
	data, ok := e.Values[publisher.FieldData]
	if !ok {
		return model.Envelope{}, fault.Errorf(fault.Decode, "decode entry", "entry has no %s field", publisher.FieldData)
	}
	if spec.Wrapped {
		return codec.DecodeWrapper([]byte(data))
	}
	return codec.Decode(spec.Kind, []byte(data))
}

// reject acknowledges an entry that can never be decoded so it is not
// redelivered on every restart.
func (c *Consumer) reject(ctx context.Context, e store.Entry, cause error) {
	kind := "unknown"
	if spec, ok := c.specs[e.Stream]; ok && !spec.Wrapped {
		kind = spec.Kind.String()
	}
	metrics.Inc(c.metrics, metrics.DecodeFailed, kind)
	c.logger.Warn("undecodable entry",
		zap.String("stream", e.Stream),
		zap.String("id", e.ID),
		zap.Error(cause),
	)
	if rec, ok := c.sink.(storage.DecodeErrorRecorder); ok {
		err := rec.PutDecodeError(ctx, model.DecodeError{
			Stream:  e.Stream,
			EntryID: e.ID,
			Kind:    kind,
			Error:   cause.Error(),
		})
		if err != nil {
			c.logger.Warn("record decode error", zap.Error(err))
		}
	}
	if err := c.groups.Ack(ctx, e.Stream, c.cfg.Group, e.ID); err != nil {
		c.logger.Warn("ack undecodable entry", zap.String("id", e.ID), zap.Error(err))
	}
}

// DefaultStreams is the raw stream layout the producer writes by default.
func DefaultStreams(accounts, slots, transactions string) []StreamSpec {
	return []StreamSpec{
		{Name: accounts, Kind: model.KindAccount},
		{Name: slots, Kind: model.KindSlot},
		{Name: transactions, Kind: model.KindTransaction},
	}
}
