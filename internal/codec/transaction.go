package codec

import (
	"google.golang.org/protobuf/encoding/protowire"

	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/model"
)

// TransactionEvent fields:
//
//	1 signature bytes      5 meta TransactionStatusMeta
//	2 is_vote bool         6 message Message
//	3 slot uint64          7 signatures repeated bytes
//	4 index uint64         8 message_hash bytes
func EncodeTransaction(t *model.TransactionEvent) []byte {
	return appendTransaction(nil, t)
}

func appendTransaction(b []byte, t *model.TransactionEvent) []byte {
	b = appendBytes(b, 1, t.Signature)
	b = appendBool(b, 2, t.IsVote)
	b = appendVarint(b, 3, t.Slot)
	b = appendVarint(b, 4, t.Index)
	b = appendMessage(b, 5, appendMeta(nil, &t.Meta))
	b = appendMessage(b, 6, appendTxMessage(nil, &t.Message))
	b = appendRepeatedBytes(b, 7, t.Signatures)
	b = appendBytes(b, 8, t.MessageHash)
	return b
}

func DecodeTransaction(b []byte) (*model.TransactionEvent, error) {
	t := &model.TransactionEvent{}
	if err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var (
			v   uint64
			raw []byte
			n   int
			err error
		)
		switch num {
		case 1:
			t.Signature, n, err = readBytes(typ, b)
		case 2:
			v, n, err = readVarint(typ, b)
			t.IsVote = protowire.DecodeBool(v)
		case 3:
			t.Slot, n, err = readVarint(typ, b)
		case 4:
			t.Index, n, err = readVarint(typ, b)
		case 5:
			if raw, n, err = readRaw(typ, b); err == nil {
				err = decodeMeta(raw, &t.Meta)
			}
		case 6:
			if raw, n, err = readRaw(typ, b); err == nil {
				err = decodeTxMessage(raw, &t.Message)
			}
		case 7:
			if raw, n, err = readBytes(typ, b); err == nil {
				t.Signatures = append(t.Signatures, raw)
			}
		case 8:
			t.MessageHash, n, err = readBytes(typ, b)
		default:
			return skip(num, typ, b)
		}
		return n, err
	}); err != nil {
		return nil, fault.New(fault.Decode, "decode transaction event", err)
	}
	return t, nil
}

// TransactionStatusMeta fields:
//
//	1 err string              6 log_messages repeated string
//	2 fee uint64              7 pre_token_balances repeated TokenBalance
//	3 pre_balances packed     8 post_token_balances repeated TokenBalance
//	4 post_balances packed    9 rewards repeated Reward
//	5 inner_instructions      10 compute_units_consumed optional uint64
func appendMeta(b []byte, m *model.TransactionStatusMeta) []byte {
	b = appendString(b, 1, m.Err)
	b = appendVarint(b, 2, m.Fee)
	b = appendPackedVarints(b, 3, m.PreBalances)
	b = appendPackedVarints(b, 4, m.PostBalances)
	for i := range m.InnerInstructions {
		b = appendMessage(b, 5, appendInnerInstructions(nil, &m.InnerInstructions[i]))
	}
	for _, line := range m.LogMessages {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendString(b, line)
	}
	for i := range m.PreTokenBalances {
		b = appendMessage(b, 7, appendTokenBalance(nil, &m.PreTokenBalances[i]))
	}
	for i := range m.PostTokenBalances {
		b = appendMessage(b, 8, appendTokenBalance(nil, &m.PostTokenBalances[i]))
	}
	for i := range m.Rewards {
		b = appendMessage(b, 9, appendReward(nil, &m.Rewards[i]))
	}
	if m.ComputeUnitsConsumed != nil {
		b = appendOptionalVarint(b, 10, *m.ComputeUnitsConsumed)
	}
	return b
}

func decodeMeta(b []byte, m *model.TransactionStatusMeta) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var (
			v    uint64
			raw  []byte
			line string
			n    int
			err  error
		)
		switch num {
		case 1:
			m.Err, n, err = readString(typ, b)
		case 2:
			m.Fee, n, err = readVarint(typ, b)
		case 3:
			m.PreBalances, n, err = readPackedVarints(typ, b, m.PreBalances)
		case 4:
			m.PostBalances, n, err = readPackedVarints(typ, b, m.PostBalances)
		case 5:
			if raw, n, err = readRaw(typ, b); err == nil {
				var inner model.InnerInstructions
				if err = decodeInnerInstructions(raw, &inner); err == nil {
					m.InnerInstructions = append(m.InnerInstructions, inner)
				}
			}
		case 6:
			if line, n, err = readString(typ, b); err == nil {
				m.LogMessages = append(m.LogMessages, line)
			}
		case 7, 8:
			if raw, n, err = readRaw(typ, b); err == nil {
				var tb model.TokenBalance
				if err = decodeTokenBalance(raw, &tb); err == nil {
					if num == 7 {
						m.PreTokenBalances = append(m.PreTokenBalances, tb)
					} else {
						m.PostTokenBalances = append(m.PostTokenBalances, tb)
					}
				}
			}
		case 9:
			if raw, n, err = readRaw(typ, b); err == nil {
				var r model.Reward
				if err = decodeReward(raw, &r); err == nil {
					m.Rewards = append(m.Rewards, r)
				}
			}
		case 10:
			v, n, err = readVarint(typ, b)
			m.ComputeUnitsConsumed = &v
		default:
			return skip(num, typ, b)
		}
		return n, err
	})
}

// InnerInstructions fields: 1 index, 2 instructions repeated InnerInstruction.
// InnerInstruction fields: 1 program_id_index, 2 accounts, 3 data, 4 stack_height optional.
func appendInnerInstructions(b []byte, in *model.InnerInstructions) []byte {
	b = appendVarint(b, 1, uint64(in.Index))
	for _, ix := range in.Instructions {
		var msg []byte
		msg = appendVarint(msg, 1, uint64(ix.ProgramIDIndex))
		msg = appendBytes(msg, 2, ix.Accounts)
		msg = appendBytes(msg, 3, ix.Data)
		if ix.StackHeight != nil {
			msg = appendOptionalVarint(msg, 4, uint64(*ix.StackHeight))
		}
		b = appendMessage(b, 2, msg)
	}
	return b
}

func decodeInnerInstructions(b []byte, in *model.InnerInstructions) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := readVarint(typ, b)
			in.Index = uint32(v)
			return n, err
		case 2:
			raw, n, err := readRaw(typ, b)
			if err != nil {
				return 0, err
			}
			var ix model.InnerInstruction
			if err := decodeInnerInstruction(raw, &ix); err != nil {
				return 0, err
			}
			in.Instructions = append(in.Instructions, ix)
			return n, nil
		default:
			return skip(num, typ, b)
		}
	})
}

func decodeInnerInstruction(b []byte, ix *model.InnerInstruction) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var (
			v   uint64
			n   int
			err error
		)
		switch num {
		case 1:
			v, n, err = readVarint(typ, b)
			ix.ProgramIDIndex = uint32(v)
		case 2:
			ix.Accounts, n, err = readBytes(typ, b)
		case 3:
			ix.Data, n, err = readBytes(typ, b)
		case 4:
			v, n, err = readVarint(typ, b)
			h := uint32(v)
			ix.StackHeight = &h
		default:
			return skip(num, typ, b)
		}
		return n, err
	})
}

// TokenBalance fields: 1 account_index, 2 mint, 3 owner, 4 program_id,
// 5 amount, 6 decimals, 7 ui_amount_string.
func appendTokenBalance(b []byte, tb *model.TokenBalance) []byte {
	b = appendVarint(b, 1, uint64(tb.AccountIndex))
	b = appendString(b, 2, tb.Mint)
	b = appendString(b, 3, tb.Owner)
	b = appendString(b, 4, tb.ProgramID)
	b = appendString(b, 5, tb.Amount)
	b = appendVarint(b, 6, uint64(tb.Decimals))
	b = appendString(b, 7, tb.UIAmountString)
	return b
}

func decodeTokenBalance(b []byte, tb *model.TokenBalance) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var (
			v   uint64
			n   int
			err error
		)
		switch num {
		case 1:
			v, n, err = readVarint(typ, b)
			tb.AccountIndex = uint32(v)
		case 2:
			tb.Mint, n, err = readString(typ, b)
		case 3:
			tb.Owner, n, err = readString(typ, b)
		case 4:
			tb.ProgramID, n, err = readString(typ, b)
		case 5:
			tb.Amount, n, err = readString(typ, b)
		case 6:
			v, n, err = readVarint(typ, b)
			tb.Decimals = uint32(v)
		case 7:
			tb.UIAmountString, n, err = readString(typ, b)
		default:
			return skip(num, typ, b)
		}
		return n, err
	})
}

// Reward fields: 1 pubkey, 2 lamports int64, 3 post_balance, 4 reward_type int32, 5 commission.
func appendReward(b []byte, r *model.Reward) []byte {
	b = appendString(b, 1, r.Pubkey)
	b = appendVarint(b, 2, uint64(r.Lamports))
	b = appendVarint(b, 3, r.PostBalance)
	b = appendVarint(b, 4, uint64(int64(r.RewardType)))
	b = appendString(b, 5, r.Commission)
	return b
}

func decodeReward(b []byte, r *model.Reward) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var (
			v   uint64
			n   int
			err error
		)
		switch num {
		case 1:
			r.Pubkey, n, err = readString(typ, b)
		case 2:
			v, n, err = readVarint(typ, b)
			r.Lamports = int64(v)
		case 3:
			r.PostBalance, n, err = readVarint(typ, b)
		case 4:
			v, n, err = readVarint(typ, b)
			r.RewardType = int32(v)
		case 5:
			r.Commission, n, err = readString(typ, b)
		default:
			return skip(num, typ, b)
		}
		return n, err
	})
}

// Message fields:
//
//	1 header MessageHeader          5 versioned bool
//	2 account_keys repeated bytes   6 address_table_lookups repeated
//	3 recent_blockhash bytes        7 loaded_writable repeated bytes
//	4 instructions repeated         8 loaded_readonly repeated bytes
func appendTxMessage(b []byte, m *model.Message) []byte {
	var header []byte
	header = appendVarint(header, 1, uint64(m.Header.NumRequiredSignatures))
	header = appendVarint(header, 2, uint64(m.Header.NumReadonlySigned))
	header = appendVarint(header, 3, uint64(m.Header.NumReadonlyUnsigned))
	b = appendMessage(b, 1, header)
	b = appendRepeatedBytes(b, 2, m.AccountKeys)
	b = appendBytes(b, 3, m.RecentBlockhash)
	for _, ix := range m.Instructions {
		var msg []byte
		msg = appendVarint(msg, 1, uint64(ix.ProgramIDIndex))
		msg = appendBytes(msg, 2, ix.Accounts)
		msg = appendBytes(msg, 3, ix.Data)
		b = appendMessage(b, 4, msg)
	}
	b = appendBool(b, 5, m.Versioned)
	for _, l := range m.AddressTableLookups {
		var msg []byte
		msg = appendBytes(msg, 1, l.AccountKey)
		msg = appendBytes(msg, 2, l.WritableIndexes)
		msg = appendBytes(msg, 3, l.ReadonlyIndexes)
		b = appendMessage(b, 6, msg)
	}
	b = appendRepeatedBytes(b, 7, m.LoadedWritable)
	b = appendRepeatedBytes(b, 8, m.LoadedReadonly)
	return b
}

func decodeTxMessage(b []byte, m *model.Message) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var (
			v   uint64
			raw []byte
			n   int
			err error
		)
		switch num {
		case 1:
			if raw, n, err = readRaw(typ, b); err == nil {
				err = decodeHeader(raw, &m.Header)
			}
		case 2:
			if raw, n, err = readBytes(typ, b); err == nil {
				m.AccountKeys = append(m.AccountKeys, raw)
			}
		case 3:
			m.RecentBlockhash, n, err = readBytes(typ, b)
		case 4:
			if raw, n, err = readRaw(typ, b); err == nil {
				var ix model.CompiledInstruction
				if err = decodeCompiledInstruction(raw, &ix); err == nil {
					m.Instructions = append(m.Instructions, ix)
				}
			}
		case 5:
			v, n, err = readVarint(typ, b)
			m.Versioned = protowire.DecodeBool(v)
		case 6:
			if raw, n, err = readRaw(typ, b); err == nil {
				var l model.AddressTableLookup
				if err = decodeLookup(raw, &l); err == nil {
					m.AddressTableLookups = append(m.AddressTableLookups, l)
				}
			}
		case 7:
			if raw, n, err = readBytes(typ, b); err == nil {
				m.LoadedWritable = append(m.LoadedWritable, raw)
			}
		case 8:
			if raw, n, err = readBytes(typ, b); err == nil {
				m.LoadedReadonly = append(m.LoadedReadonly, raw)
			}
		default:
			return skip(num, typ, b)
		}
		return n, err
	})
}

func decodeHeader(b []byte, h *model.MessageHeader) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var dst *uint32
		switch num {
		case 1:
			dst = &h.NumRequiredSignatures
		case 2:
			dst = &h.NumReadonlySigned
		case 3:
			dst = &h.NumReadonlyUnsigned
		default:
			return skip(num, typ, b)
		}
		v, n, err := readVarint(typ, b)
		*dst = uint32(v)
		return n, err
	})
}

func decodeCompiledInstruction(b []byte, ix *model.CompiledInstruction) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var (
			v   uint64
			n   int
			err error
		)
		switch num {
		case 1:
			v, n, err = readVarint(typ, b)
			ix.ProgramIDIndex = uint32(v)
		case 2:
			ix.Accounts, n, err = readBytes(typ, b)
		case 3:
			ix.Data, n, err = readBytes(typ, b)
		default:
			return skip(num, typ, b)
		}
		return n, err
	})
}

func decodeLookup(b []byte, l *model.AddressTableLookup) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var (
			n   int
			err error
		)
		switch num {
		case 1:
			l.AccountKey, n, err = readBytes(typ, b)
		case 2:
			l.WritableIndexes, n, err = readBytes(typ, b)
		case 3:
			l.ReadonlyIndexes, n, err = readBytes(typ, b)
		default:
			return skip(num, typ, b)
		}
		return n, err
	})
}
