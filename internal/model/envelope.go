package model

// Kind identifies which event an Envelope carries.
type Kind uint8

const (
	KindAccount     Kind = 1
	KindSlot        Kind = 2
	KindTransaction Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindAccount:
		return "account"
	case KindSlot:
		return "slot"
	case KindTransaction:
		return "transaction"
	default:
		return "unknown"
	}
}

// Envelope holds exactly one event.
type Envelope struct {
	Kind        Kind              `json:"kind"`
	Account     *AccountUpdate    `json:"account,omitempty"`
	Slot        *SlotUpdate       `json:"slot,omitempty"`
	Transaction *TransactionEvent `json:"transaction,omitempty"`
}

func AccountEnvelope(a *AccountUpdate) Envelope {
	return Envelope{Kind: KindAccount, Account: a}
}

func SlotEnvelope(s *SlotUpdate) Envelope {
	return Envelope{Kind: KindSlot, Slot: s}
}

func TransactionEnvelope(t *TransactionEvent) Envelope {
	return Envelope{Kind: KindTransaction, Transaction: t}
}
