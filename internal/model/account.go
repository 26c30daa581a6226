package model

// AccountUpdate is a snapshot of one account at a slot as reported by the producer.
type AccountUpdate struct {
	Slot         uint64 `json:"slot"`
	Pubkey       []byte `json:"pubkey"`
	Lamports     uint64 `json:"lamports"`
	Owner        []byte `json:"owner"`
	Executable   bool   `json:"executable"`
	RentEpoch    uint64 `json:"rent_epoch"`
	Data         []byte `json:"data"`
	WriteVersion uint64 `json:"write_version"`
	// TxnSignature is nil when the update was not caused by a transaction.
	TxnSignature []byte `json:"txn_signature,omitempty"`
}
