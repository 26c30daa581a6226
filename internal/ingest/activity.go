package ingest

import (
	"encoding/json"

	"github.com/mr-tron/base58"

	"ledgerRelay/internal/filter"
	"ledgerRelay/internal/model"
	"ledgerRelay/internal/parser"
)

// EventPoolActivity is emitted for every transaction that touches an amm or
// damm pool.
const EventPoolActivity = "pool_activity"

type activityPayload struct {
	Signature string   `json:"signature"`
	Signers   []string `json:"signers"`
	Fee       uint64   `json:"fee"`
	Failed    bool     `json:"failed"`
}

// ActivityProcessor reports pool transactions without decoding instruction
// data.
type ActivityProcessor struct {
	Variant model.PoolVariant
}

func (ActivityProcessor) BuildFilters(pool model.PoolMeta) filter.SubscribeRequest {
	return poolTxFilter(pool)
}

func (a ActivityProcessor) HandleUpdate(pool model.PoolMeta, upd Update) ([]model.PoolEvent, error) {
	tx := upd.Transaction
	if tx == nil {
		return nil, nil
	}
	sig := base58.Encode(tx.Signature)
	payload, err := json.Marshal(activityPayload{
		Signature: sig,
		Signers:   parser.Signers(&tx.Message),
		Fee:       tx.Meta.Fee,
		Failed:    tx.Failed(),
	})
	if err != nil {
		return nil, err
	}
	return []model.PoolEvent{{
		PoolID:    pool.PoolID,
		Variant:   a.Variant,
		EventType: EventPoolActivity,
		Slot:      tx.Slot,
		Signature: sig,
		Payload:   payload,
	}}, nil
}
