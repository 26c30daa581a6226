package ingest

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/filter"
	"ledgerRelay/internal/model"
)

func writeReplay(t *testing.T, lines ...any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "updates.jsonl")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	for _, l := range lines {
		if s, ok := l.(string); ok {
			_, err = f.WriteString(s + "\n")
			require.NoError(t, err)
			continue
		}
		b, err := json.Marshal(l)
		require.NoError(t, err)
		_, err = f.Write(append(b, '\n'))
		require.NoError(t, err)
	}
	return path
}

func watchRequest() filter.SubscribeRequest {
	return filter.RuleSet{Rules: []filter.Rule{{Name: "w", Programs: []string{b58(9)}}}}.SubscribeRequest()
}

func recvAll(t *testing.T, sub Subscription) []Update {
	t.Helper()
	var out []Update
	for {
		upd, err := sub.Recv(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, upd)
	}
}

func TestReplayAppliesSubscribeRequest(t *testing.T) {
	path := writeReplay(t,
		Update{Account: account(key(1), key(9))},
		Update{Account: account(key(2), key(3))},
		"{not json",
		Update{Slot: &model.SlotUpdate{Slot: 42, Status: model.SlotRooted}},
		Update{Transaction: &model.TransactionEvent{Signature: key(7), Message: model.Message{AccountKeys: [][]byte{key(1), key(9)}}}},
		Update{Transaction: &model.TransactionEvent{Signature: key(8), Message: model.Message{AccountKeys: [][]byte{key(1), key(4)}}}},
	)
	up, err := NewReplayUpstream(path, "", zaptest.NewLogger(t))
	require.NoError(t, err)

	sub, err := up.Subscribe(context.Background(), watchRequest())
	require.NoError(t, err)
	got := recvAll(t, sub)
	require.NoError(t, sub.Close())

	require.Len(t, got, 3)
	assert.Equal(t, key(1), got[0].Account.Pubkey)
	assert.Equal(t, uint64(42), got[1].Slot.Slot)
	assert.Equal(t, key(7), got[2].Transaction.Signature)
	assert.Equal(t, int64(6), up.Offset())
}

func TestReplayResumesAcrossSubscriptions(t *testing.T) {
	path := writeReplay(t,
		Update{Slot: &model.SlotUpdate{Slot: 1}},
		Update{Slot: &model.SlotUpdate{Slot: 2}},
		Update{Slot: &model.SlotUpdate{Slot: 3}},
	)
	up, err := NewReplayUpstream(path, "", zaptest.NewLogger(t))
	require.NoError(t, err)

	sub, err := up.Subscribe(context.Background(), watchRequest())
	require.NoError(t, err)
	upd, err := sub.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), upd.Slot.Slot)
	require.NoError(t, sub.Close())

	sub, err = up.Subscribe(context.Background(), watchRequest())
	require.NoError(t, err)
	got := recvAll(t, sub)
	require.NoError(t, sub.Close())
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].Slot.Slot)
}

func TestReplayResumesFromCheckpoint(t *testing.T) {
	path := writeReplay(t,
		Update{Slot: &model.SlotUpdate{Slot: 1}},
		Update{Slot: &model.SlotUpdate{Slot: 2}},
		Update{Slot: &model.SlotUpdate{Slot: 3}},
	)
	cpPath := filepath.Join(t.TempDir(), "state", "replay.json")

	up, err := NewReplayUpstream(path, cpPath, zaptest.NewLogger(t))
	require.NoError(t, err)
	sub, err := up.Subscribe(context.Background(), watchRequest())
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := sub.Recv(context.Background())
		require.NoError(t, err)
	}
	require.NoError(t, sub.Close())

	cp, ok, err := NewCheckpointStore(cpPath).Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), cp.Offset)
	assert.Equal(t, path, cp.Source)

	restarted, err := NewReplayUpstream(path, cpPath, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, int64(2), restarted.Offset())
	sub, err = restarted.Subscribe(context.Background(), watchRequest())
	require.NoError(t, err)
	got := recvAll(t, sub)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(3), got[0].Slot.Slot)
}

func TestReplayIgnoresCheckpointOfAnotherFile(t *testing.T) {
	path := writeReplay(t, Update{Slot: &model.SlotUpdate{Slot: 1}})
	cpPath := filepath.Join(t.TempDir(), "replay.json")
	require.NoError(t, NewCheckpointStore(cpPath).Save("/elsewhere.jsonl", 10))

	up, err := NewReplayUpstream(path, cpPath, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, int64(0), up.Offset())
}

func TestReplayRequiresPath(t *testing.T) {
	_, err := NewReplayUpstream("", "", nil)
	assert.True(t, fault.Is(err, fault.Config))
}

func TestCheckpointStoreDisabled(t *testing.T) {
	store := NewCheckpointStore("")
	require.NoError(t, store.Save("x", 5))
	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckpointStoreRejectsDirectory(t *testing.T) {
	_, _, err := NewCheckpointStore(t.TempDir()).Load()
	assert.Error(t, err)
}
