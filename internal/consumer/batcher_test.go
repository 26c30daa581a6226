package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerRelay/internal/metrics"
	"ledgerRelay/internal/model"
)

type fakeSink struct {
	mu     sync.Mutex
	order  []model.Kind
	slots  []uint64
	failOn map[uint64]bool
	errs   []model.DecodeError
}

func (s *fakeSink) InsertAccount(_ context.Context, acc *model.AccountUpdate) error {
	return s.record(model.KindAccount, acc.Slot)
}

func (s *fakeSink) InsertSlot(_ context.Context, slot *model.SlotUpdate) error {
	return s.record(model.KindSlot, slot.Slot)
}

func (s *fakeSink) InsertTransaction(_ context.Context, tx *model.TransactionEvent) error {
	return s.record(model.KindTransaction, tx.Slot)
}

func (s *fakeSink) PutDecodeError(_ context.Context, rec model.DecodeError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, rec)
	return nil
}

func (s *fakeSink) record(kind model.Kind, slot uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[slot] {
		return errors.New("sink unavailable")
	}
	s.order = append(s.order, kind)
	s.slots = append(s.slots, slot)
	return nil
}

func (s *fakeSink) written() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.slots...)
}

type fakeAcker struct {
	acked map[string][]string
}

func (a *fakeAcker) Ack(_ context.Context, stream, _ string, ids ...string) error {
	if a.acked == nil {
		a.acked = make(map[string][]string)
	}
	a.acked[stream] = append(a.acked[stream], ids...)
	return nil
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func accountItem(id string, slot uint64) Item {
	return Item{Stream: "accounts", ID: id, Env: model.AccountEnvelope(&model.AccountUpdate{Slot: slot})}
}

func slotItem(id string, slot uint64) Item {
	return Item{Stream: "slots", ID: id, Env: model.SlotEnvelope(&model.SlotUpdate{Slot: slot})}
}

func txItem(id string, slot uint64) Item {
	return Item{Stream: "transactions", ID: id, Env: model.TransactionEnvelope(&model.TransactionEvent{Slot: slot})}
}

func newTestBatcher(limit int, clock *fakeClock) (*Batcher, *fakeSink, *fakeAcker, *metrics.Atomic) {
	sink := &fakeSink{}
	acker := &fakeAcker{}
	rec := metrics.NewAtomic()
	b := NewBatcher(sink, acker, BatcherConfig{
		Group:    "g",
		Limit:    limit,
		Interval: 5 * time.Second,
		Now:      clock.Now,
	}, nil, rec)
	return b, sink, acker, rec
}

func TestBatcherFlushesAtSizeLimit(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b, sink, acker, _ := newTestBatcher(3, clock)
	ctx := context.Background()

	assert.Equal(t, Idle, b.State())
	_, flushed := b.Enqueue(ctx, txItem("1-0", 1))
	assert.False(t, flushed)
	assert.Equal(t, Buffering, b.State())
	_, flushed = b.Enqueue(ctx, slotItem("2-0", 2))
	assert.False(t, flushed)
	assert.Empty(t, sink.written(), "nothing is written before a threshold")
	assert.Empty(t, acker.acked, "nothing is acked at read time")

	res, flushed := b.Enqueue(ctx, accountItem("3-0", 3))
	require.True(t, flushed)
	assert.Equal(t, FlushResult{Written: 3, Acked: 3}, res)
	assert.Equal(t, Idle, b.State())
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, []model.Kind{model.KindAccount, model.KindSlot, model.KindTransaction}, sink.order)
}

func TestBatcherDefaultLimitFlushesOnThousandthItem(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b, sink, acker, _ := newTestBatcher(0, clock)
	ctx := context.Background()

	flushes := 0
	for i := 1; i < DefaultBatchLimit; i++ {
		if _, flushed := b.Enqueue(ctx, txItem(fmt.Sprintf("%d-0", i), uint64(i))); flushed {
			flushes++
		}
	}
	assert.Zero(t, flushes)
	assert.Equal(t, DefaultBatchLimit-1, b.Len())
	assert.Empty(t, sink.written())

	res, flushed := b.Enqueue(ctx, txItem("1000-0", 1000))
	require.True(t, flushed)
	assert.Equal(t, FlushResult{Written: DefaultBatchLimit, Acked: DefaultBatchLimit}, res)
	assert.Equal(t, 0, b.Len())
	assert.Len(t, sink.written(), DefaultBatchLimit)
	assert.Len(t, acker.acked["transactions"], DefaultBatchLimit)
}

func TestBatcherFlushesAfterInterval(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b, sink, _, _ := newTestBatcher(1000, clock)
	ctx := context.Background()

	b.Enqueue(ctx, accountItem("1-0", 1))
	_, flushed := b.Tick(ctx)
	assert.False(t, flushed)

	clock.Advance(5 * time.Second)
	res, flushed := b.Tick(ctx)
	require.True(t, flushed)
	assert.Equal(t, 1, res.Written)
	assert.Equal(t, []uint64{1}, sink.written())

	clock.Advance(time.Minute)
	_, flushed = b.Tick(ctx)
	assert.False(t, flushed, "an empty buffer is never flushed")
}

func TestBatcherKeepsFifoWithinKind(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b, sink, acker, _ := newTestBatcher(1000, clock)
	ctx := context.Background()

	for i, slot := range []uint64{5, 3, 9} {
		b.Enqueue(ctx, accountItem(string(rune('a'+i)), slot))
	}
	b.Flush(ctx)
	assert.Equal(t, []uint64{5, 3, 9}, sink.written())
	assert.Equal(t, []string{"a", "b", "c"}, acker.acked["accounts"])
}

func TestBatcherLeavesFailedItemsUnacked(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b, sink, acker, rec := newTestBatcher(1000, clock)
	sink.failOn = map[uint64]bool{2: true}
	ctx := context.Background()

	b.Enqueue(ctx, accountItem("1-0", 1))
	b.Enqueue(ctx, accountItem("2-0", 2))
	b.Enqueue(ctx, slotItem("3-0", 3))
	res := b.Flush(ctx)

	assert.Equal(t, FlushResult{Written: 2, Failed: 1, Acked: 2}, res)
	assert.Equal(t, []string{"1-0"}, acker.acked["accounts"])
	assert.Equal(t, []string{"3-0"}, acker.acked["slots"])
	assert.Equal(t, uint64(1), rec.Get(metrics.SinkFailed, "account"))
	assert.Equal(t, uint64(2), rec.Total(metrics.SinkWritten))
	assert.Equal(t, 0, b.Len(), "failed items are left to the store, not re-buffered")
}
