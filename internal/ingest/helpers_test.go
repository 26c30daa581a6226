package ingest

import (
	"sync"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"ledgerRelay/internal/control"
	"ledgerRelay/internal/filter"
	"ledgerRelay/internal/publisher"
)

var defaultStreams = filter.Streams{Accounts: "accounts", Slots: "slots", Transactions: "transactions"}

func key(seed byte) []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = seed
	}
	return k
}

func b58(seed byte) string { return base58.Encode(key(seed)) }

func newCell(t *testing.T, rs filter.RuleSet) *control.Cell {
	t.Helper()
	return control.NewCell(compileSet(t, rs))
}

func compileSet(t *testing.T, rs filter.RuleSet) *filter.Set {
	t.Helper()
	set, err := filter.Compile(rs, defaultStreams)
	require.NoError(t, err)
	return set
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []publisher.Message
	err  error
}

func (f *fakePublisher) Publish(msg publisher.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakePublisher) messages() []publisher.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publisher.Message(nil), f.msgs...)
}

func (f *fakePublisher) streams() []string {
	var out []string
	for _, m := range f.messages() {
		out = append(out, m.Stream)
	}
	return out
}
