// Package publisher decouples producer callbacks from stream store latency
// with a bounded queue drained by one worker.
package publisher

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/metrics"
	"ledgerRelay/internal/store"
)

// DefaultCapacity is the queue size used when Options.Capacity is zero.
const DefaultCapacity = 10000

var (
	// ErrChannelFull is returned when the queue is at capacity. The message is
	// dropped.
	ErrChannelFull = fault.New(fault.PublishChannelFull, "publish", errors.New("publish channel full"))
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("publisher closed")
)

// Message is one stream append. Label groups counters, usually the event kind.
type Message struct {
	Stream string
	Label  string
	Values map[string]any
}

type Options struct {
	Capacity int
}

type Publisher struct {
	store   store.Appender
	queue   chan Message
	logger  *zap.Logger
	metrics metrics.Recorder

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func New(appender store.Appender, opts Options, logger *zap.Logger, rec metrics.Recorder) *Publisher {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		store:   appender,
		queue:   make(chan Message, opts.Capacity),
		logger:  logger,
		metrics: metrics.OrNop(rec),
		done:    make(chan struct{}),
	}
}

// Publish enqueues msg without blocking.
func (p *Publisher) Publish(msg Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		metrics.Inc(p.metrics, metrics.Dropped, msg.Label)
		return ErrChannelFull
	}
}

// Len reports how many messages are waiting.
func (p *Publisher) Len() int { return len(p.queue) }

// Run appends queued messages until the queue is closed and drained. Append
// failures are logged and counted; the message is not retried. ctx bounds
// each append, so cancelling it fails the remaining appends fast.
func (p *Publisher) Run(ctx context.Context) {
	defer close(p.done)
	for msg := range p.queue {
		if _, err := p.store.Append(ctx, msg.Stream, msg.Values); err != nil {
			metrics.Inc(p.metrics, metrics.PublishFailed, msg.Stream)
			p.logger.Error("stream append failed",
				zap.String("stream", msg.Stream),
				zap.String("label", msg.Label),
				zap.Error(err),
			)
			continue
		}
		metrics.Inc(p.metrics, metrics.Published, msg.Label)
	}
}

// Close stops accepting messages and waits for Run to drain the queue or
// for ctx to end.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
