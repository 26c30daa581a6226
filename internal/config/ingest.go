package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"ledgerRelay/internal/control"
	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/filter"
	"ledgerRelay/internal/ingest"
	"ledgerRelay/internal/publisher"
)

// Rule sources accepted by --rules-source.
const (
	SourceStatic   = "static"
	SourceFile     = "file"
	SourceNATS     = "nats"
	SourceRealtime = "realtime"
)

// IngestConfig holds configuration for the ingest command.
type IngestConfig struct {
	Common

	Streams           filter.Streams
	PoolStream        string
	PublisherCapacity int

	RulesSource string
	RulesFile   string
	RulesPoll   time.Duration
	NATS        control.NATSConfig
	Realtime    control.RealtimeConfig
	// Rules is the initial rule set for the static source.
	Rules    filter.RuleSet
	Programs []ingest.ProgramStreams

	ReplayFile string
	Checkpoint string
	RetryDelay time.Duration
}

// LoadIngest merges config file, environment variables, and flags into IngestConfig.
func LoadIngest(cfgFile string, flags *pflag.FlagSet) (IngestConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"accounts-stream":      "accounts",
		"slots-stream":         "slots",
		"transactions-stream":  "transactions",
		"pool-stream":          ingest.DefaultPoolStream,
		"publisher-capacity":   publisher.DefaultCapacity,
		"rules-source":         SourceStatic,
		"rules-poll":           control.DefaultPollInterval,
		"nats-name":            "relay-ingest",
		"nats-rules-subject":   "rules.get",
		"nats-updates-subject": "rules.updates",
		"nats-timeout":         5 * time.Second,
		"realtime-table":       "relay_rules",
		"realtime-row":         "1",
		"checkpoint":           "./data/replay_checkpoint.json",
		"retry-delay":          ingest.DefaultRetryDelay,
	})
	if err != nil {
		return IngestConfig{}, err
	}

	cfg := IngestConfig{
		Common: loadCommon(v),
		Streams: filter.Streams{
			Accounts:     v.GetString("accounts-stream"),
			Slots:        v.GetString("slots-stream"),
			Transactions: v.GetString("transactions-stream"),
		},
		PoolStream:        v.GetString("pool-stream"),
		PublisherCapacity: v.GetInt("publisher-capacity"),
		RulesSource:       v.GetString("rules-source"),
		RulesFile:         v.GetString("rules-file"),
		RulesPoll:         v.GetDuration("rules-poll"),
		NATS: control.NATSConfig{
			URL:            v.GetString("nats-url"),
			Name:           v.GetString("nats-name"),
			RulesSubject:   v.GetString("nats-rules-subject"),
			UpdatesSubject: v.GetString("nats-updates-subject"),
			RequestTimeout: v.GetDuration("nats-timeout"),
		},
		Realtime: control.RealtimeConfig{
			BaseURL: v.GetString("realtime-url"),
			APIKey:  v.GetString("realtime-api-key"),
			Table:   v.GetString("realtime-table"),
			RowID:   v.GetString("realtime-row"),
		},
		ReplayFile: v.GetString("replay-file"),
		Checkpoint: v.GetString("checkpoint"),
		RetryDelay: v.GetDuration("retry-delay"),
	}
	if err := v.UnmarshalKey("rules", &cfg.Rules.Rules); err != nil {
		return IngestConfig{}, fault.New(fault.Config, "decode rules", err)
	}
	if err := v.UnmarshalKey("pools", &cfg.Rules.Pools); err != nil {
		return IngestConfig{}, fault.New(fault.Config, "decode pools", err)
	}
	if err := v.UnmarshalKey("programs", &cfg.Programs); err != nil {
		return IngestConfig{}, fault.New(fault.Config, "decode programs", err)
	}
	return cfg, cfg.validate()
}

func (c IngestConfig) validate() error {
	switch c.RulesSource {
	case SourceStatic:
	case SourceFile:
		if c.RulesFile == "" {
			return fault.Errorf(fault.Config, "ingest config", "rules-file is required for the file source")
		}
	case SourceNATS:
		if c.NATS.URL == "" {
			return fault.Errorf(fault.Config, "ingest config", "nats-url is required for the nats source")
		}
	case SourceRealtime:
		if c.Realtime.BaseURL == "" {
			return fault.Errorf(fault.Config, "ingest config", "realtime-url is required for the realtime source")
		}
	default:
		return fault.Errorf(fault.Config, "ingest config", "unknown rules source %q", c.RulesSource)
	}
	if c.ReplayFile == "" {
		return fault.Errorf(fault.Config, "ingest config", "replay-file is required")
	}
	for i, p := range c.Programs {
		if p.IDLPath == "" {
			return fault.Errorf(fault.Config, "ingest config", "program %d needs an idl_path", i)
		}
	}
	if c.PublisherCapacity <= 0 {
		return fault.New(fault.Config, "ingest config", fmt.Errorf("publisher-capacity must be positive, got %d", c.PublisherCapacity))
	}
	return nil
}
