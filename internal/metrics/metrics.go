package metrics

// Counter names a relay counter. Every counter carries one label, usually the
// event kind or the stream name.
type Counter string

const (
	Published     Counter = "published"
	Dropped       Counter = "dropped"
	PublishFailed Counter = "publish_failed"
	Filtered      Counter = "filtered"
	ParseFailed   Counter = "parse_failed"
	DecodeFailed  Counter = "decode_failed"
	SinkWritten   Counter = "sink_written"
	SinkFailed    Counter = "sink_failed"
	Acked         Counter = "acked"
	Forwarded     Counter = "forwarded"
)

// Counters lists every counter so exporters can pre-register them.
var Counters = []Counter{
	Published, Dropped, PublishFailed, Filtered, ParseFailed,
	DecodeFailed, SinkWritten, SinkFailed, Acked, Forwarded,
}

// Recorder receives counter increments from the pipeline.
type Recorder interface {
	Add(c Counter, label string, n uint64)
}

// Inc adds one to c.
func Inc(r Recorder, c Counter, label string) {
	r.Add(c, label, 1)
}

type nop struct{}

func (nop) Add(Counter, string, uint64) {}

// Nop discards every increment.
func Nop() Recorder { return nop{} }

// OrNop returns r, or a no-op recorder when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return nop{}
	}
	return r
}
