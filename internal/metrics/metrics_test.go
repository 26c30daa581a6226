package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicConcurrentIncrements(t *testing.T) {
	a := NewAtomic()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				Inc(a, Published, "account")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(8000), a.Get(Published, "account"))
	assert.Equal(t, uint64(0), a.Get(Published, "slot"))
}

func TestAtomicTotal(t *testing.T) {
	a := NewAtomic()
	a.Add(Dropped, "account", 2)
	a.Add(Dropped, "slot", 3)
	a.Add(Published, "slot", 7)

	assert.Equal(t, uint64(5), a.Total(Dropped))
	assert.Equal(t, uint64(7), a.Total(Published))
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg, "")
	require.NoError(t, err)

	p.Add(SinkWritten, "transaction", 3)
	Inc(p, SinkWritten, "transaction")

	assert.Equal(t, 4.0, testutil.ToFloat64(p.vecs[SinkWritten].WithLabelValues("transaction")))

	_, err = NewPrometheus(reg, "")
	assert.Error(t, err, "duplicate registration must fail")
}

func TestOrNop(t *testing.T) {
	r := OrNop(nil)
	Inc(r, Acked, "x")
	assert.NotNil(t, r)
}
