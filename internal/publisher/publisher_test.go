package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ledgerRelay/internal/codec"
	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/metrics"
	"ledgerRelay/internal/model"
	"ledgerRelay/internal/store"
)

type blockingAppender struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Message
	fail    bool
}

func (b *blockingAppender) Append(ctx context.Context, stream string, values map[string]any) (string, error) {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, Message{Stream: stream, Values: values})
	if b.fail {
		return "", errors.New("store down")
	}
	return "1-0", nil
}

func (b *blockingAppender) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.got)
}

func TestPublishNeverBlocksAndDropsWhenFull(t *testing.T) {
	app := &blockingAppender{release: make(chan struct{})}
	rec := metrics.NewAtomic()
	p := New(app, Options{Capacity: 2}, zaptest.NewLogger(t), rec)

	msg := Message{Stream: "s", Label: "slot", Values: map[string]any{"data": "x"}}
	require.NoError(t, p.Publish(msg))
	require.NoError(t, p.Publish(msg))

	start := time.Now()
	err := p.Publish(msg)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	require.ErrorIs(t, err, ErrChannelFull)
	assert.True(t, fault.Is(err, fault.PublishChannelFull))
	assert.Equal(t, uint64(1), rec.Get(metrics.Dropped, "slot"))
	assert.Equal(t, 2, p.Len())

	go p.Run(context.Background())
	close(app.release)
	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, 2, app.count())
	assert.Equal(t, uint64(2), rec.Get(metrics.Published, "slot"))

	assert.ErrorIs(t, p.Publish(msg), ErrClosed)
	require.NoError(t, p.Close(context.Background()), "close is idempotent")
}

func TestAppendFailuresAreCountedNotRetried(t *testing.T) {
	app := &blockingAppender{release: make(chan struct{}), fail: true}
	close(app.release)
	rec := metrics.NewAtomic()
	p := New(app, Options{Capacity: 4}, zaptest.NewLogger(t), rec)
	go p.Run(context.Background())

	require.NoError(t, p.Publish(Message{Stream: "accounts", Label: "account"}))
	require.NoError(t, p.Close(context.Background()))

	assert.Equal(t, 1, app.count())
	assert.Equal(t, uint64(1), rec.Get(metrics.PublishFailed, "accounts"))
	assert.Equal(t, uint64(0), rec.Get(metrics.Published, "account"))
}

func TestCloseHonoursContext(t *testing.T) {
	app := &blockingAppender{release: make(chan struct{})}
	p := New(app, Options{Capacity: 1}, nil, nil)
	go p.Run(context.Background())
	require.NoError(t, p.Publish(Message{Stream: "s"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Close(ctx), context.DeadlineExceeded)
	close(app.release)
}

func TestPublishToRedisStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rs := store.NewRedis(client, store.Options{}, nil)
	defer rs.Close()

	p := New(rs, Options{}, zaptest.NewLogger(t), nil)
	go p.Run(context.Background())

	slot := &model.SlotUpdate{Slot: 1000, Status: model.SlotConfirmed}
	msg, err := EnvelopeMessage("slots", model.SlotEnvelope(slot), false)
	require.NoError(t, err)
	require.NoError(t, p.Publish(msg))
	require.NoError(t, p.Close(context.Background()))

	ctx := context.Background()
	require.NoError(t, rs.CreateGroup(ctx, "slots", "g", "0"))
	entries, err := rs.ReadGroup(ctx, store.ReadArgs{Group: "g", Consumer: "c", Streams: []string{"slots"}, Count: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, codec.SlotKey(1000, false), entries[0].Values[FieldKey])
	assert.Equal(t, "slot", entries[0].Values[FieldKind])

	got, err := codec.DecodeSlot([]byte(entries[0].Values[FieldData]))
	require.NoError(t, err)
	assert.Equal(t, slot, got)
}

func TestMessageBuilders(t *testing.T) {
	acc := &model.AccountUpdate{Pubkey: make([]byte, 32), Slot: 3}
	msg, err := EnvelopeMessage("all", model.AccountEnvelope(acc), true)
	require.NoError(t, err)
	assert.Equal(t, codec.AccountKey(acc.Pubkey, true), msg.Values[FieldKey])
	env, err := codec.DecodeWrapper(msg.Values[FieldData].([]byte))
	require.NoError(t, err)
	assert.Equal(t, model.KindAccount, env.Kind)

	_, err = EnvelopeMessage("all", model.Envelope{Kind: model.KindSlot}, false)
	assert.Error(t, err)

	ev, err := ParsedEventMessage("events", model.ParsedEvent{
		Name: "Swap", Signature: "sig", Signers: []string{"a", "b"}, Slot: 9,
		Fields: map[string]any{"amount": uint64(5)},
	})
	require.NoError(t, err)
	assert.Equal(t, "a,b", ev.Values[FieldSigners])
	assert.Equal(t, "9", ev.Values[FieldSlot])
	assert.JSONEq(t, `{"amount":5}`, string(ev.Values[FieldData].([]byte)))

	pe, err := PoolEventMessage("pools", model.PoolEvent{PoolID: "p", Variant: model.PoolAMM, EventType: "pool_activity", Payload: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, "p", pe.Values[FieldPool])
}
