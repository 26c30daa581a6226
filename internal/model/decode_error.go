package model

// DecodeError records a stream entry that could not be decoded.
type DecodeError struct {
	Stream  string `json:"stream"`
	EntryID string `json:"entry_id"`
	Kind    string `json:"kind"`
	Error   string `json:"error"`
}
