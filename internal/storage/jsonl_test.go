package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerRelay/internal/model"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestJsonlSinkAppendsEnvelopes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "events.jsonl")
	errPath := filepath.Join(dir, "errors.jsonl")
	sink := NewJsonlSink(path, errPath)
	ctx := context.Background()

	require.NoError(t, Insert(ctx, sink, model.SlotEnvelope(&model.SlotUpdate{Slot: 5, Status: model.SlotRooted})))
	require.NoError(t, sink.InsertAccount(ctx, &model.AccountUpdate{Slot: 6, Pubkey: []byte{1}}))
	require.NoError(t, sink.InsertTransaction(ctx, &model.TransactionEvent{Slot: 7, Signature: []byte{2}}))
	require.NoError(t, sink.PutDecodeError(ctx, model.DecodeError{Stream: "s", EntryID: "1-0", Error: "bad"}))

	lines := readLines(t, path)
	require.Len(t, lines, 3)
	assert.EqualValues(t, model.KindSlot, lines[0]["kind"])
	assert.EqualValues(t, model.KindAccount, lines[1]["kind"])
	assert.EqualValues(t, model.KindTransaction, lines[2]["kind"])

	errs := readLines(t, errPath)
	require.Len(t, errs, 1)
	assert.Equal(t, "1-0", errs[0]["entry_id"])
}

func TestJsonlSinkWithoutErrorsPath(t *testing.T) {
	sink := NewJsonlSink(filepath.Join(t.TempDir(), "out.jsonl"), "")
	assert.NoError(t, sink.PutDecodeError(context.Background(), model.DecodeError{}))
	assert.NoError(t, Insert(context.Background(), sink, model.Envelope{}))
}
