package model

// TransactionEvent is a confirmed transaction with its status metadata.
type TransactionEvent struct {
	Signature   []byte                `json:"signature"`
	IsVote      bool                  `json:"is_vote"`
	Slot        uint64                `json:"slot"`
	Index       uint64                `json:"index"`
	Meta        TransactionStatusMeta `json:"meta"`
	Message     Message               `json:"message"`
	Signatures  [][]byte              `json:"signatures,omitempty"`
	MessageHash []byte                `json:"message_hash,omitempty"`
}

// Failed reports whether the transaction executed with an error.
func (t *TransactionEvent) Failed() bool {
	return t.Meta.Err != ""
}

// TransactionStatusMeta carries execution results.
type TransactionStatusMeta struct {
	// Err is empty for successful transactions.
	Err                  string              `json:"err,omitempty"`
	Fee                  uint64              `json:"fee"`
	PreBalances          []uint64            `json:"pre_balances,omitempty"`
	PostBalances         []uint64            `json:"post_balances,omitempty"`
	InnerInstructions    []InnerInstructions `json:"inner_instructions,omitempty"`
	LogMessages          []string            `json:"log_messages,omitempty"`
	PreTokenBalances     []TokenBalance      `json:"pre_token_balances,omitempty"`
	PostTokenBalances    []TokenBalance      `json:"post_token_balances,omitempty"`
	Rewards              []Reward            `json:"rewards,omitempty"`
	ComputeUnitsConsumed *uint64             `json:"compute_units_consumed,omitempty"`
}

// InnerInstructions groups the instructions invoked by one outer instruction.
type InnerInstructions struct {
	Index        uint32             `json:"index"`
	Instructions []InnerInstruction `json:"instructions"`
}

type InnerInstruction struct {
	ProgramIDIndex uint32  `json:"program_id_index"`
	Accounts       []byte  `json:"accounts,omitempty"`
	Data           []byte  `json:"data,omitempty"`
	StackHeight    *uint32 `json:"stack_height,omitempty"`
}

type TokenBalance struct {
	AccountIndex   uint32 `json:"account_index"`
	Mint           string `json:"mint"`
	Owner          string `json:"owner,omitempty"`
	ProgramID      string `json:"program_id,omitempty"`
	Amount         string `json:"amount"`
	Decimals       uint32 `json:"decimals"`
	UIAmountString string `json:"ui_amount_string,omitempty"`
}

type Reward struct {
	Pubkey      string `json:"pubkey"`
	Lamports    int64  `json:"lamports"`
	PostBalance uint64 `json:"post_balance"`
	RewardType  int32  `json:"reward_type"`
	Commission  string `json:"commission,omitempty"`
}

// Message is the compiled transaction message.
type Message struct {
	Header              MessageHeader         `json:"header"`
	AccountKeys         [][]byte              `json:"account_keys"`
	RecentBlockhash     []byte                `json:"recent_blockhash,omitempty"`
	Instructions        []CompiledInstruction `json:"instructions,omitempty"`
	Versioned           bool                  `json:"versioned,omitempty"`
	AddressTableLookups []AddressTableLookup  `json:"address_table_lookups,omitempty"`
	LoadedWritable      [][]byte              `json:"loaded_writable,omitempty"`
	LoadedReadonly      [][]byte              `json:"loaded_readonly,omitempty"`
}

type MessageHeader struct {
	NumRequiredSignatures uint32 `json:"num_required_signatures"`
	NumReadonlySigned     uint32 `json:"num_readonly_signed"`
	NumReadonlyUnsigned   uint32 `json:"num_readonly_unsigned"`
}

type CompiledInstruction struct {
	ProgramIDIndex uint32 `json:"program_id_index"`
	Accounts       []byte `json:"accounts,omitempty"`
	Data           []byte `json:"data,omitempty"`
}

type AddressTableLookup struct {
	AccountKey      []byte `json:"account_key"`
	WritableIndexes []byte `json:"writable_indexes,omitempty"`
	ReadonlyIndexes []byte `json:"readonly_indexes,omitempty"`
}

// AllKeys returns static keys followed by keys loaded from lookup tables,
// which is the index space instructions refer to.
func (m *Message) AllKeys() [][]byte {
	if len(m.LoadedWritable) == 0 && len(m.LoadedReadonly) == 0 {
		return m.AccountKeys
	}
	keys := make([][]byte, 0, len(m.AccountKeys)+len(m.LoadedWritable)+len(m.LoadedReadonly))
	keys = append(keys, m.AccountKeys...)
	keys = append(keys, m.LoadedWritable...)
	keys = append(keys, m.LoadedReadonly...)
	return keys
}

// IsSigner reports whether the static key at index i signed the message.
func (m *Message) IsSigner(i int) bool {
	return i >= 0 && i < len(m.AccountKeys) && i < int(m.Header.NumRequiredSignatures)
}
