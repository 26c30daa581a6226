package model

import "encoding/json"

// PoolVariant selects the processor that handles a pool.
type PoolVariant string

const (
	PoolDBC  PoolVariant = "dbc"
	PoolAMM  PoolVariant = "amm"
	PoolDAMM PoolVariant = "damm"
)

// PoolMeta describes one watched pool.
type PoolMeta struct {
	PoolID     string      `json:"pool_id" yaml:"pool_id" mapstructure:"pool_id"`
	Variant    PoolVariant `json:"variant" yaml:"variant" mapstructure:"variant"`
	QuoteVault string      `json:"quote_vault,omitempty" yaml:"quote_vault" mapstructure:"quote_vault"`
	ConfigPDA  string      `json:"config_pda,omitempty" yaml:"config_pda" mapstructure:"config_pda"`
}

// PoolEvent is the tagged record carried on the pool events stream.
type PoolEvent struct {
	PoolID    string          `json:"pool_id"`
	Variant   PoolVariant     `json:"variant"`
	EventType string          `json:"event_type"`
	Slot      uint64          `json:"slot"`
	Signature string          `json:"signature,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}
