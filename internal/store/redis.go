package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/retry"
)

// Options tune the Redis adapter.
type Options struct {
	// MaxLen trims streams approximately to this length on append. Zero
	// disables trimming.
	MaxLen int64
	// ConnectRetries is how many times Connect re-pings before giving up.
	ConnectRetries int
}

// Redis implements Store on Redis streams.
type Redis struct {
	client *redis.Client
	opts   Options
	logger *zap.Logger
}

// Connect parses url, pings the server and returns a ready adapter. Failure
// is a fault.StoreConnect error.
func Connect(ctx context.Context, url string, opts Options, logger *zap.Logger) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fault.New(fault.Config, "parse redis url", err)
	}
	client := redis.NewClient(opt)
	r := NewRedis(client, opts, logger)

	err = retry.Do(ctx, opts.ConnectRetries, 500*time.Millisecond, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			r.logger.Warn("redis ping failed", zap.String("addr", opt.Addr), zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, fault.New(fault.StoreConnect, "connect redis "+opt.Addr, err)
	}
	return r, nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, opts Options, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, opts: opts, logger: logger}
}

// Client exposes the underlying client for health checks.
func (r *Redis) Client() *redis.Client { return r.client }

func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) Append(ctx context.Context, stream string, values map[string]any) (string, error) {
	args := &redis.XAddArgs{Stream: stream, Values: values}
	if r.opts.MaxLen > 0 {
		args.MaxLen = r.opts.MaxLen
		args.Approx = true
	}
	id, err := r.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

func (r *Redis) CreateGroup(ctx context.Context, stream, group, start string) error {
	if start == "" {
		start = "$"
	}
	err := r.client.XGroupCreateMkStream(ctx, stream, group, start).Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("create group %s on %s: %w", group, stream, err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func (r *Redis) ReadGroup(ctx context.Context, args ReadArgs) ([]Entry, error) {
	if len(args.Streams) == 0 {
		return nil, errors.New("read group: no streams")
	}
	id := args.ID
	if id == "" {
		id = ">"
	}
	streams := make([]string, 0, 2*len(args.Streams))
	streams = append(streams, args.Streams...)
	for range args.Streams {
		streams = append(streams, id)
	}
	block := args.Block
	if block <= 0 {
		// go-redis treats zero as "block forever".
		block = -1
	}
	res, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    args.Group,
		Consumer: args.Consumer,
		Streams:  streams,
		Count:    args.Count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup %s: %w", args.Group, err)
	}
	var out []Entry
	for _, s := range res {
		for _, msg := range s.Messages {
			out = append(out, toEntry(s.Stream, msg))
		}
	}
	return out, nil
}

func toEntry(stream string, msg redis.XMessage) Entry {
	values := make(map[string]string, len(msg.Values))
	for k, v := range msg.Values {
		switch val := v.(type) {
		case string:
			values[k] = val
		case nil:
		default:
			values[k] = fmt.Sprint(val)
		}
	}
	return Entry{Stream: stream, ID: msg.ID, Values: values}
}

func (r *Redis) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.client.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("xack %s: %w", stream, err)
	}
	return nil
}

func (r *Redis) DeleteConsumer(ctx context.Context, stream, group, consumer string) error {
	if err := r.client.XGroupDelConsumer(ctx, stream, group, consumer).Err(); err != nil {
		return fmt.Errorf("delete consumer %s from %s: %w", consumer, group, err)
	}
	return nil
}

func (r *Redis) DestroyGroup(ctx context.Context, stream, group string) error {
	if err := r.client.XGroupDestroy(ctx, stream, group).Err(); err != nil {
		return fmt.Errorf("destroy group %s on %s: %w", group, stream, err)
	}
	return nil
}

// Claim walks the group's pending list with XAUTOCLAIM until it wraps around.
func (r *Redis) Claim(ctx context.Context, args ClaimArgs) ([]Entry, error) {
	count := args.Count
	if count <= 0 {
		count = 100
	}
	var out []Entry
	start := "0-0"
	for {
		msgs, next, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   args.Stream,
			Group:    args.Group,
			Consumer: args.Consumer,
			MinIdle:  args.MinIdle,
			Start:    start,
			Count:    count,
		}).Result()
		if err != nil {
			return out, fmt.Errorf("xautoclaim %s: %w", args.Stream, err)
		}
		for _, msg := range msgs {
			out = append(out, toEntry(args.Stream, msg))
		}
		if next == "" || next == "0-0" {
			return out, nil
		}
		start = next
	}
}

func (r *Redis) Pending(ctx context.Context, stream, group string) (int64, error) {
	res, err := r.client.XPending(ctx, stream, group).Result()
	if err != nil {
		return 0, fmt.Errorf("xpending %s: %w", stream, err)
	}
	return res.Count, nil
}
