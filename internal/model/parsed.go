package model

// ParsedAccount is an account whose data matched a known program layout.
type ParsedAccount struct {
	Program string         `json:"program"`
	Pubkey  string         `json:"pubkey"`
	Name    string         `json:"name"`
	Slot    uint64         `json:"slot"`
	Fields  map[string]any `json:"fields"`
}

// ParsedEvent is a program event decoded from a transaction.
type ParsedEvent struct {
	Program   string         `json:"program"`
	Name      string         `json:"name"`
	Signature string         `json:"signature"`
	Signers   []string       `json:"signers"`
	Slot      uint64         `json:"slot"`
	Fields    map[string]any `json:"fields"`
}
