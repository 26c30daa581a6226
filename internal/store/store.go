// Package store wraps the durable append-only stream store the relay
// publishes into and consumes from.
package store

import (
	"context"
	"time"
)

// Entry is one stream record. ID is assigned by the store and is
// monotonically increasing within a stream.
type Entry struct {
	Stream string
	ID     string
	Values map[string]string
}

// ReadArgs selects entries for a consumer in a group. ID defaults to ">"
// (never delivered to the group); "0" re-reads the consumer's own pending
// entries. Block <= 0 returns immediately.
type ReadArgs struct {
	Group    string
	Consumer string
	Streams  []string
	ID       string
	Count    int64
	Block    time.Duration
}

// ClaimArgs transfers entries that have been pending longer than MinIdle to
// Consumer.
type ClaimArgs struct {
	Stream   string
	Group    string
	Consumer string
	MinIdle  time.Duration
	Count    int64
}

// Appender is the write side used by the publisher.
type Appender interface {
	Append(ctx context.Context, stream string, values map[string]any) (string, error)
}

// Groups is the consumer group side used by readers.
type Groups interface {
	// CreateGroup is idempotent: an existing group keeps its cursor.
	CreateGroup(ctx context.Context, stream, group, start string) error
	ReadGroup(ctx context.Context, args ReadArgs) ([]Entry, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
	DeleteConsumer(ctx context.Context, stream, group, consumer string) error
	DestroyGroup(ctx context.Context, stream, group string) error
	Claim(ctx context.Context, args ClaimArgs) ([]Entry, error)
	Pending(ctx context.Context, stream, group string) (int64, error)
}

// Store is the full adapter.
type Store interface {
	Appender
	Groups
	Close() error
}
