package publisher

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"ledgerRelay/internal/codec"
	"ledgerRelay/internal/model"
)

// Entry field names shared with the consumers.
const (
	FieldKey       = "key"
	FieldData      = "data"
	FieldKind      = "kind"
	FieldSlot      = "slot"
	FieldPubkey    = "pubkey"
	FieldSignature = "signature"
	FieldSigners   = "signers"
	FieldEvent     = "event"
	FieldPool      = "pool_id"
)

// EnvelopeMessage encodes env for stream. Wrapped payloads carry the
// Wrapper envelope and a kind-tagged key.
func EnvelopeMessage(stream string, env model.Envelope, wrapped bool) (Message, error) {
	key, payload, err := codec.Encode(env, wrapped)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", env.Kind, err)
	}
	return Message{
		Stream: stream,
		Label:  env.Kind.String(),
		Values: map[string]any{
			FieldKey:  key,
			FieldData: payload,
			FieldKind: env.Kind.String(),
		},
	}, nil
}

// ParsedAccountMessage carries a decoded account as JSON.
func ParsedAccountMessage(stream string, acc model.ParsedAccount) (Message, error) {
	data, err := json.Marshal(acc.Fields)
	if err != nil {
		return Message{}, fmt.Errorf("marshal parsed account %s: %w", acc.Pubkey, err)
	}
	return Message{
		Stream: stream,
		Label:  "parsed_account",
		Values: map[string]any{
			FieldPubkey: acc.Pubkey,
			FieldKind:   acc.Name,
			FieldSlot:   strconv.FormatUint(acc.Slot, 10),
			FieldData:   data,
		},
	}, nil
}

// ParsedEventMessage carries a decoded program event as JSON.
func ParsedEventMessage(stream string, ev model.ParsedEvent) (Message, error) {
	data, err := json.Marshal(ev.Fields)
	if err != nil {
		return Message{}, fmt.Errorf("marshal event %s: %w", ev.Name, err)
	}
	return Message{
		Stream: stream,
		Label:  "parsed_event",
		Values: map[string]any{
			FieldEvent:     ev.Name,
			FieldSignature: ev.Signature,
			FieldSigners:   strings.Join(ev.Signers, ","),
			FieldSlot:      strconv.FormatUint(ev.Slot, 10),
			FieldData:      data,
		},
	}, nil
}

// PoolEventMessage carries a PoolEvent as JSON keyed by pool id.
func PoolEventMessage(stream string, ev model.PoolEvent) (Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return Message{}, fmt.Errorf("marshal pool event %s: %w", ev.EventType, err)
	}
	return Message{
		Stream: stream,
		Label:  "pool_event",
		Values: map[string]any{
			FieldPool: ev.PoolID,
			FieldData: data,
		},
	}, nil
}
