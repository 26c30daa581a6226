// Package fanout streams live events from the durable store to gRPC clients.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ledgerRelay/internal/codec"
	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/metrics"
	"ledgerRelay/internal/model"
	"ledgerRelay/internal/publisher"
	"ledgerRelay/internal/retry"
	"ledgerRelay/internal/store"
)

// Mode decides how clients of the same call share a consumer group.
type Mode string

const (
	// ModeBroadcast gives every client a dedicated group so each sees every
	// entry written after it connected.
	ModeBroadcast Mode = "broadcast"
	// ModeShared puts all clients of a call in one group; each entry goes to
	// one of them.
	ModeShared Mode = "shared"
)

const (
	DefaultReadCount    = 10
	DefaultBlock        = time.Second
	DefaultClientBuffer = 100

	cleanupTimeout = 5 * time.Second
	readRetryDelay = 100 * time.Millisecond
	stopTimeout    = 10 * time.Second
)

// Streams names the source streams. When Wrapped is set StreamAll reads it,
// otherwise StreamAll reads the three raw streams together.
type Streams struct {
	Accounts     string
	Slots        string
	Transactions string
	Wrapped      string
	Pools        string
}

type Config struct {
	Streams      Streams
	Mode         Mode
	ReadCount    int64
	Block        time.Duration
	ClientBuffer int
}

// Service implements RelayStreamServer on top of store consumer groups.
type Service struct {
	cfg     Config
	groups  store.Groups
	logger  *zap.Logger
	metrics metrics.Recorder
	active  atomic.Int64

	// closing ends every open call when cancelled.
	closing context.Context
	stop    context.CancelFunc
}

var _ RelayStreamServer = (*Service)(nil)

func NewService(groups store.Groups, cfg Config, logger *zap.Logger, rec metrics.Recorder) (*Service, error) {
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeBroadcast
	case ModeBroadcast, ModeShared:
	default:
		return nil, fault.Errorf(fault.Config, "fanout", "unknown fan-out mode %q", cfg.Mode)
	}
	if cfg.ReadCount <= 0 {
		cfg.ReadCount = DefaultReadCount
	}
	if cfg.Block <= 0 {
		cfg.Block = DefaultBlock
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = DefaultClientBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	closing, stop := context.WithCancel(context.Background())
	return &Service{cfg: cfg, groups: groups, logger: logger, metrics: metrics.OrNop(rec), closing: closing, stop: stop}, nil
}

// Shutdown ends every open call. Each call still leaves its group before
// returning. Calls arriving afterwards are refused.
func (s *Service) Shutdown() { s.stop() }

// Active is the number of clients currently joined to a group.
func (s *Service) Active() int64 { return s.active.Load() }

// decodeFunc turns an entry into the message sent to the client. A nil
// message with a nil error means the entry is not for this client.
type decodeFunc func(store.Entry) (any, error)

type call struct {
	kind    string
	streams []string
	decode  decodeFunc
}

func (s *Service) StreamAccounts(_ *Empty, stream grpc.ServerStream) error {
	return s.serve(stream, call{kind: "accounts", streams: []string{s.cfg.Streams.Accounts}, decode: rawDecoder(model.KindAccount)})
}

func (s *Service) StreamSlots(_ *Empty, stream grpc.ServerStream) error {
	return s.serve(stream, call{kind: "slots", streams: []string{s.cfg.Streams.Slots}, decode: rawDecoder(model.KindSlot)})
}

func (s *Service) StreamTransactions(_ *Empty, stream grpc.ServerStream) error {
	return s.serve(stream, call{kind: "transactions", streams: []string{s.cfg.Streams.Transactions}, decode: rawDecoder(model.KindTransaction)})
}

func (s *Service) StreamAll(_ *Empty, stream grpc.ServerStream) error {
	if s.cfg.Streams.Wrapped != "" {
		return s.serve(stream, call{kind: "all", streams: []string{s.cfg.Streams.Wrapped}, decode: wrappedDecoder})
	}
	byStream := map[string]model.Kind{
		s.cfg.Streams.Accounts:     model.KindAccount,
		s.cfg.Streams.Slots:        model.KindSlot,
		s.cfg.Streams.Transactions: model.KindTransaction,
	}
	return s.serve(stream, call{
		kind:    "all",
		streams: []string{s.cfg.Streams.Accounts, s.cfg.Streams.Slots, s.cfg.Streams.Transactions},
		decode: func(e store.Entry) (any, error) {
			env, err := codec.Decode(byStream[e.Stream], []byte(e.Values[publisher.FieldData]))
			if err != nil {
				return nil, err
			}
			return &env, nil
		},
	})
}

func (s *Service) StreamPoolEvents(req *PoolRequest, stream grpc.ServerStream) error {
	if req.PoolID == "" {
		return status.Error(codes.InvalidArgument, "pool_id is required")
	}
	return s.serve(stream, call{kind: "pools", streams: []string{s.cfg.Streams.Pools}, decode: poolDecoder(req.PoolID)})
}

func (s *Service) Subscribe(*Empty, grpc.ServerStream) error {
	return status.Error(codes.Unimplemented, "Subscribe is retired; use the per-kind Stream calls")
}

func rawDecoder(kind model.Kind) decodeFunc {
	return func(e store.Entry) (any, error) {
		env, err := codec.Decode(kind, []byte(e.Values[publisher.FieldData]))
		if err != nil {
			return nil, err
		}
		switch kind {
		case model.KindAccount:
			return env.Account, nil
		case model.KindSlot:
			return env.Slot, nil
		default:
			return env.Transaction, nil
		}
	}
}

func wrappedDecoder(e store.Entry) (any, error) {
	env, err := codec.DecodeWrapper([]byte(e.Values[publisher.FieldData]))
	if err != nil {
		return nil, err
	}
	return &env, nil
}

// poolDecoder routes on the pool id inside the payload rather than the entry's
// pool_id field, which is only an index.
func poolDecoder(poolID string) decodeFunc {
	return func(e store.Entry) (any, error) {
		var ev model.PoolEvent
		if err := json.Unmarshal([]byte(e.Values[publisher.FieldData]), &ev); err != nil {
			return nil, fault.New(fault.Decode, "decode pool event", err)
		}
		if ev.PoolID != poolID {
			return nil, nil
		}
		return &ev, nil
	}
}

func (s *Service) groupFor(kind, consumer string) string {
	group := fmt.Sprintf("stream-%s-group", kind)
	if s.cfg.Mode == ModeBroadcast {
		return group + "-" + consumer
	}
	return group
}

// serve joins a group for the call, pumps entries on a background goroutine
// and sends them to the client until it goes away.
func (s *Service) serve(stream grpc.ServerStream, c call) error {
	for _, name := range c.streams {
		if name == "" {
			return status.Errorf(codes.FailedPrecondition, "%s stream is not configured", c.kind)
		}
	}
	if s.closing.Err() != nil {
		return status.Error(codes.Unavailable, "server is shutting down")
	}
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()
	stopWatch := context.AfterFunc(s.closing, cancel)
	defer stopWatch()

	consumer := fmt.Sprintf("%s-%s", c.kind, uuid.NewString())
	group := s.groupFor(c.kind, consumer)
	logger := s.logger.With(zap.String("call", c.kind), zap.String("group", group), zap.String("consumer", consumer))

	for _, name := range c.streams {
		if err := s.groups.CreateGroup(ctx, name, group, "$"); err != nil {
			logger.Error("join group failed", zap.Error(err))
			return status.Errorf(codes.Unavailable, "join %s: %v", name, err)
		}
	}
	s.active.Add(1)
	defer s.active.Add(-1)
	logger.Info("client subscribed")

	out := make(chan any, s.cfg.ClientBuffer)
	go func() {
		defer close(out)
		defer s.leave(ctx, c, group, consumer, logger)
		s.pump(ctx, c, group, consumer, out, logger)
	}()

	var sendErr error
	for msg := range out {
		if sendErr != nil {
			continue
		}
		if err := stream.SendMsg(msg); err != nil {
			sendErr = fault.New(fault.ClientDisconnect, "send", err)
			logger.Info("client send failed", zap.Error(err))
			cancel()
			continue
		}
		metrics.Inc(s.metrics, metrics.Forwarded, c.kind)
	}
	if sendErr != nil {
		return status.Error(codes.Unavailable, sendErr.Error())
	}
	if err := stream.Context().Err(); err != nil {
		logger.Info("client disconnected")
		return status.FromContextError(err).Err()
	}
	if s.closing.Err() != nil {
		return status.Error(codes.Unavailable, "server is shutting down")
	}
	return nil
}

// pump reads new entries, forwards the ones meant for the client and
// acknowledges every entry it read. Cancellation is observed once per poll.
func (s *Service) pump(ctx context.Context, c call, group, consumer string, out chan<- any, logger *zap.Logger) {
	for ctx.Err() == nil {
		entries, err := s.groups.ReadGroup(ctx, store.ReadArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  c.streams,
			Count:    s.cfg.ReadCount,
			Block:    s.cfg.Block,
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			logger.Warn("stream read failed", zap.Error(err))
			_ = retry.Sleep(ctx, readRetryDelay)
			continue
		}
		for _, e := range entries {
			msg, err := c.decode(e)
			if err != nil {
				metrics.Inc(s.metrics, metrics.DecodeFailed, c.kind)
				logger.Warn("undecodable entry", zap.String("stream", e.Stream), zap.String("id", e.ID), zap.Error(err))
			} else if msg != nil {
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
			if err := s.groups.Ack(ctx, e.Stream, group, e.ID); err != nil && ctx.Err() == nil {
				logger.Warn("ack failed", zap.String("id", e.ID), zap.Error(err))
			}
		}
	}
}

// leave removes the client's footprint from the store. It runs after the
// client is gone, so it uses a context detached from the call.
func (s *Service) leave(parent context.Context, c call, group, consumer string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), cleanupTimeout)
	defer cancel()
	for _, name := range c.streams {
		var err error
		if s.cfg.Mode == ModeBroadcast {
			err = s.groups.DestroyGroup(ctx, name, group)
		} else {
			err = s.groups.DeleteConsumer(ctx, name, group, consumer)
		}
		if err != nil {
			logger.Warn("group cleanup failed", zap.String("stream", name), zap.Error(err))
		}
	}
	logger.Info("client unsubscribed")
}
