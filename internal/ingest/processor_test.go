package ingest

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerRelay/internal/model"
	"ledgerRelay/internal/parser"
)

const dbcProgram = "dbcij3LWUppWqq96dh6gJWwBifmcGfLSB5D4DuSMaqN"

var evtSwapDisc = []byte{27, 60, 21, 213, 138, 170, 187, 147}

func dbcPool() model.PoolMeta {
	return model.PoolMeta{PoolID: b58(20), Variant: model.PoolDBC, QuoteVault: b58(21)}
}

// swapCPI builds the self-CPI instruction data of an EvtSwap for pool.
func swapCPI(pool []byte, in, out uint64, sqrtPrice uint64) []byte {
	b := append([]byte{}, parser.CPIEventTag[:]...)
	b = append(b, evtSwapDisc...)
	b = append(b, pool...)
	b = append(b, key(22)...)
	b = append(b, 0, 0)
	b = binary.LittleEndian.AppendUint64(b, in)
	b = binary.LittleEndian.AppendUint64(b, 1)
	b = binary.LittleEndian.AppendUint64(b, in)
	b = binary.LittleEndian.AppendUint64(b, out)
	b = binary.LittleEndian.AppendUint64(b, sqrtPrice)
	b = binary.LittleEndian.AppendUint64(b, 0)
	b = binary.LittleEndian.AppendUint64(b, 3)
	b = binary.LittleEndian.AppendUint64(b, 1)
	b = binary.LittleEndian.AppendUint64(b, 0)
	b = binary.LittleEndian.AppendUint64(b, in)
	return binary.LittleEndian.AppendUint64(b, 1700000000)
}

func dbcSwapTx(t *testing.T, pool []byte) *model.TransactionEvent {
	t.Helper()
	program, err := base58.Decode(dbcProgram)
	require.NoError(t, err)
	return &model.TransactionEvent{
		Signature: key(30),
		Slot:      77,
		Message: model.Message{
			Header:      model.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: [][]byte{key(1), pool, program},
		},
		Meta: model.TransactionStatusMeta{
			Fee: 5000,
			InnerInstructions: []model.InnerInstructions{{
				Index:        0,
				Instructions: []model.InnerInstruction{{ProgramIDIndex: 2, Data: swapCPI(pool, 1000, 2500, 99)}},
			}},
		},
	}
}

func TestDBCSwapEvent(t *testing.T) {
	proc, err := NewDBCProcessor()
	require.NoError(t, err)

	events, err := proc.HandleUpdate(dbcPool(), Update{Transaction: dbcSwapTx(t, key(20))})
	require.NoError(t, err)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, EventDBCSwap, ev.EventType)
	assert.Equal(t, model.PoolDBC, ev.Variant)
	assert.Equal(t, uint64(77), ev.Slot)
	assert.Equal(t, b58(30), ev.Signature)
	assert.JSONEq(t, `{"signature":"`+b58(30)+`","input_amount":1000,"output_amount":2500,"next_sqrt_price":"99"}`, string(ev.Payload))
}

func TestDBCSwapForAnotherPoolIsIgnored(t *testing.T) {
	proc, err := NewDBCProcessor()
	require.NoError(t, err)

	events, err := proc.HandleUpdate(dbcPool(), Update{Transaction: dbcSwapTx(t, key(25))})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDBCBalanceUpdate(t *testing.T) {
	proc, err := NewDBCProcessor()
	require.NoError(t, err)
	pool := dbcPool()

	data := make([]byte, 165)
	binary.LittleEndian.PutUint64(data[64:72], 1_500_000_000)
	acc := &model.AccountUpdate{Slot: 9, Pubkey: key(21), Data: data}

	events, err := proc.HandleUpdate(pool, Update{Account: acc})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventDBCBalanceUpdate, events[0].EventType)

	var payload dbcBalancePayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, b58(21), payload.QuoteVaultAddress)
	assert.Equal(t, uint64(1_500_000_000), payload.NewBalance)

	acc.Data = data[:40]
	events, err = proc.HandleUpdate(pool, Update{Account: acc})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDBCFilters(t *testing.T) {
	proc, err := NewDBCProcessor()
	require.NoError(t, err)
	pool := dbcPool()

	req := proc.BuildFilters(pool)
	require.Contains(t, req.Accounts, pool.PoolID+"_vault")
	assert.Equal(t, []string{pool.QuoteVault}, req.Accounts[pool.PoolID+"_vault"].Account)
	require.Contains(t, req.Transactions, pool.PoolID+"_tx")
	assert.Equal(t, []string{pool.PoolID}, req.Transactions[pool.PoolID+"_tx"].AccountInclude)

	pool.QuoteVault = ""
	assert.Empty(t, proc.BuildFilters(pool).Accounts)
}

func TestActivityProcessor(t *testing.T) {
	pool := model.PoolMeta{PoolID: b58(40), Variant: model.PoolAMM}
	proc := ActivityProcessor{Variant: model.PoolAMM}
	tx := &model.TransactionEvent{
		Signature: key(31),
		Slot:      3,
		Meta:      model.TransactionStatusMeta{Fee: 5000, Err: "InstructionError"},
		Message: model.Message{
			Header:      model.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: [][]byte{key(1), key(40)},
		},
	}

	events, err := proc.HandleUpdate(pool, Update{Transaction: tx})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventPoolActivity, events[0].EventType)
	assert.JSONEq(t, `{"signature":"`+b58(31)+`","signers":["`+b58(1)+`"],"fee":5000,"failed":true}`, string(events[0].Payload))

	events, err = proc.HandleUpdate(pool, Update{Account: &model.AccountUpdate{Pubkey: key(40)}})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRegistryMatch(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)
	pools := []model.PoolMeta{
		dbcPool(),
		{PoolID: b58(40), Variant: model.PoolAMM},
		{PoolID: b58(41), Variant: model.PoolDAMM},
	}

	pool, ok := reg.Match(pools, Update{Account: &model.AccountUpdate{Pubkey: key(21)}})
	require.True(t, ok)
	assert.Equal(t, b58(20), pool.PoolID)

	pool, ok = reg.Match(pools, Update{Transaction: &model.TransactionEvent{Message: model.Message{AccountKeys: [][]byte{key(1), key(41)}}}})
	require.True(t, ok)
	assert.Equal(t, model.PoolDAMM, pool.Variant)

	_, ok = reg.Match(pools, Update{Account: &model.AccountUpdate{Pubkey: key(2)}})
	assert.False(t, ok)
	_, ok = reg.Match(pools, Update{Slot: &model.SlotUpdate{Slot: 1}})
	assert.False(t, ok)

	req := reg.SubscribeRequest(pools)
	assert.Len(t, req.Transactions, 3)
	assert.Len(t, req.Accounts, 1)
}
