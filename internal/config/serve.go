package config

import (
	"time"

	"github.com/spf13/pflag"

	"ledgerRelay/internal/fanout"
	"ledgerRelay/internal/fault"
)

// ServeConfig holds configuration for the serve command.
type ServeConfig struct {
	Common

	Listen       string
	Mode         fanout.Mode
	Streams      fanout.Streams
	ReadCount    int64
	Block        time.Duration
	ClientBuffer int
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"listen":              ":50051",
		"mode":                string(fanout.ModeBroadcast),
		"accounts-stream":     "accounts",
		"slots-stream":        "slots",
		"transactions-stream": "transactions",
		"pool-stream":         "pool-events",
		"read-count":          int64(fanout.DefaultReadCount),
		"block":               fanout.DefaultBlock,
		"client-buffer":       fanout.DefaultClientBuffer,
	})
	if err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Common: loadCommon(v),
		Listen: v.GetString("listen"),
		Mode:   fanout.Mode(v.GetString("mode")),
		Streams: fanout.Streams{
			Accounts:     v.GetString("accounts-stream"),
			Slots:        v.GetString("slots-stream"),
			Transactions: v.GetString("transactions-stream"),
			Wrapped:      v.GetString("wrapped-stream"),
			Pools:        v.GetString("pool-stream"),
		},
		ReadCount:    v.GetInt64("read-count"),
		Block:        v.GetDuration("block"),
		ClientBuffer: v.GetInt("client-buffer"),
	}
	if cfg.Listen == "" {
		return ServeConfig{}, fault.Errorf(fault.Config, "serve config", "listen address is required")
	}
	return cfg, nil
}

// Fanout converts the settings into a fanout.Config.
func (c ServeConfig) Fanout() fanout.Config {
	return fanout.Config{
		Streams:      c.Streams,
		Mode:         c.Mode,
		ReadCount:    c.ReadCount,
		Block:        c.Block,
		ClientBuffer: c.ClientBuffer,
	}
}

// TailConfig holds configuration for the tail command.
type TailConfig struct {
	Target string
	Call   string
	PoolID string
	Limit  int
}

// LoadTail merges config file, environment variables, and flags into TailConfig.
func LoadTail(cfgFile string, flags *pflag.FlagSet) (TailConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"target": "127.0.0.1:50051",
		"call":   "all",
		"limit":  0,
	})
	if err != nil {
		return TailConfig{}, err
	}
	cfg := TailConfig{
		Target: v.GetString("target"),
		Call:   v.GetString("call"),
		PoolID: v.GetString("pool-id"),
		Limit:  v.GetInt("limit"),
	}
	if cfg.Call == "pools" && cfg.PoolID == "" {
		return TailConfig{}, fault.Errorf(fault.Config, "tail config", "pool-id is required for the pools call")
	}
	return cfg, nil
}
