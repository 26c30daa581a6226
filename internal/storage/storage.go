package storage

import (
	"context"

	"ledgerRelay/internal/model"
)

// Sink is the downstream store the reliable consumer writes into. Writes are
// keyed by natural identifier so redelivered items are absorbed.
type Sink interface {
	InsertAccount(ctx context.Context, acc *model.AccountUpdate) error
	InsertSlot(ctx context.Context, slot *model.SlotUpdate) error
	InsertTransaction(ctx context.Context, tx *model.TransactionEvent) error
}

// DecodeErrorRecorder is implemented by sinks that keep undecodable entries
// for inspection.
type DecodeErrorRecorder interface {
	PutDecodeError(ctx context.Context, rec model.DecodeError) error
}

// Insert routes env to the matching Sink method.
func Insert(ctx context.Context, sink Sink, env model.Envelope) error {
	switch env.Kind {
	case model.KindAccount:
		return sink.InsertAccount(ctx, env.Account)
	case model.KindSlot:
		return sink.InsertSlot(ctx, env.Slot)
	case model.KindTransaction:
		return sink.InsertTransaction(ctx, env.Transaction)
	default:
		return nil
	}
}
