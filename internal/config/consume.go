package config

import (
	"time"

	"github.com/spf13/pflag"

	"ledgerRelay/internal/consumer"
	"ledgerRelay/internal/fault"
)

// Sink kinds accepted by --sink.
const (
	SinkPostgres = "postgres"
	SinkJSONL    = "jsonl"
)

// ConsumeConfig holds configuration for the consume command.
type ConsumeConfig struct {
	Common

	AccountsStream     string
	SlotsStream        string
	TransactionsStream string
	WrappedStreams     []string

	Group         string
	Consumer      string
	ReadCount     int64
	BatchLimit    int
	FlushInterval time.Duration
	ClaimMinIdle  time.Duration

	Sink        string
	PostgresDSN string
	Migrate     bool
	Out         string
	Errors      string
}

// LoadConsume merges config file, environment variables, and flags into ConsumeConfig.
func LoadConsume(cfgFile string, flags *pflag.FlagSet) (ConsumeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"accounts-stream":     "accounts",
		"slots-stream":        "slots",
		"transactions-stream": "transactions",
		"group":               consumer.DefaultGroup,
		"read-count":          int64(consumer.DefaultReadCount),
		"batch-limit":         consumer.DefaultBatchLimit,
		"flush-interval":      consumer.DefaultFlushInterval,
		"claim-min-idle":      consumer.DefaultClaimMinIdle,
		"sink":                SinkJSONL,
		"migrate":             false,
		"out":                 "./data/events.jsonl",
		"errors":              "./data/decode_errors.jsonl",
	})
	if err != nil {
		return ConsumeConfig{}, err
	}

	cfg := ConsumeConfig{
		Common:             loadCommon(v),
		AccountsStream:     v.GetString("accounts-stream"),
		SlotsStream:        v.GetString("slots-stream"),
		TransactionsStream: v.GetString("transactions-stream"),
		WrappedStreams:     getStringSlice(v, "wrapped-streams"),
		Group:              v.GetString("group"),
		Consumer:           v.GetString("consumer"),
		ReadCount:          v.GetInt64("read-count"),
		BatchLimit:         v.GetInt("batch-limit"),
		FlushInterval:      v.GetDuration("flush-interval"),
		ClaimMinIdle:       v.GetDuration("claim-min-idle"),
		Sink:               v.GetString("sink"),
		PostgresDSN:        v.GetString("postgres-dsn"),
		Migrate:            v.GetBool("migrate"),
		Out:                v.GetString("out"),
		Errors:             v.GetString("errors"),
	}
	return cfg, cfg.validate()
}

// Streams lists the configured raw and wrapped streams. Empty raw names are
// left out.
func (c ConsumeConfig) Streams() []consumer.StreamSpec {
	var specs []consumer.StreamSpec
	for _, spec := range consumer.DefaultStreams(c.AccountsStream, c.SlotsStream, c.TransactionsStream) {
		if spec.Name != "" {
			specs = append(specs, spec)
		}
	}
	for _, name := range c.WrappedStreams {
		specs = append(specs, consumer.StreamSpec{Name: name, Wrapped: true})
	}
	return specs
}

func (c ConsumeConfig) validate() error {
	switch c.Sink {
	case SinkPostgres:
		if c.PostgresDSN == "" {
			return fault.Errorf(fault.Config, "consume config", "postgres-dsn is required for the postgres sink")
		}
	case SinkJSONL:
		if c.Out == "" {
			return fault.Errorf(fault.Config, "consume config", "out is required for the jsonl sink")
		}
	default:
		return fault.Errorf(fault.Config, "consume config", "unknown sink %q", c.Sink)
	}
	if len(c.Streams()) == 0 {
		return fault.Errorf(fault.Config, "consume config", "no streams configured")
	}
	if c.BatchLimit <= 0 || c.FlushInterval <= 0 {
		return fault.Errorf(fault.Config, "consume config", "batch-limit and flush-interval must be positive")
	}
	return nil
}
