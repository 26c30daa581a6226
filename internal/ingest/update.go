// Package ingest runs the producer side of the relay: it receives ledger
// updates, filters and classifies them and hands them to the publisher.
package ingest

import (
	"context"

	"ledgerRelay/internal/filter"
	"ledgerRelay/internal/model"
	"ledgerRelay/internal/publisher"
)

// Update is one producer notification. Exactly one of Account, Slot and
// Transaction is set.
type Update struct {
	Account     *model.AccountUpdate    `json:"account,omitempty"`
	IsStartup   bool                    `json:"is_startup,omitempty"`
	Slot        *model.SlotUpdate       `json:"slot,omitempty"`
	Transaction *model.TransactionEvent `json:"transaction,omitempty"`
}

// Upstream opens subscriptions against the ledger feed.
type Upstream interface {
	Subscribe(ctx context.Context, req filter.SubscribeRequest) (Subscription, error)
}

// Subscription yields updates matching the request it was opened with. Recv
// returns io.EOF when the feed has no more updates.
type Subscription interface {
	Recv(ctx context.Context) (Update, error)
	Close() error
}

// Publisher is the non-blocking sink for stream messages.
type Publisher interface {
	Publish(msg publisher.Message) error
}
