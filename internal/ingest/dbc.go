package ingest

import (
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"ledgerRelay/internal/filter"
	"ledgerRelay/internal/idl"
	"ledgerRelay/internal/model"
	"ledgerRelay/internal/parser"
)

const (
	EventDBCSwap          = "dbc_swap"
	EventDBCBalanceUpdate = "dbc_balance_update"

	dbcSwapEvent = "EvtSwap"

	// SPL token accounts store the amount as a little-endian u64 after the
	// mint and owner keys.
	tokenAmountOffset = 64
	tokenAmountEnd    = tokenAmountOffset + 8
)

//go:embed idl/dbc.json
var dbcIDL []byte

type dbcSwapPayload struct {
	Signature     string `json:"signature"`
	InputAmount   uint64 `json:"input_amount"`
	OutputAmount  uint64 `json:"output_amount"`
	NextSqrtPrice string `json:"next_sqrt_price"`
}

type dbcBalancePayload struct {
	QuoteVaultAddress string `json:"quote_vault_address"`
	NewBalance        uint64 `json:"new_balance"`
}

// DBCProcessor follows dynamic bonding curve pools: swaps come from the
// program's self-CPI EvtSwap event, deposits from the quote vault balance.
type DBCProcessor struct {
	parser *parser.Parser
}

func NewDBCProcessor() (*DBCProcessor, error) {
	doc, err := idl.Parse(dbcIDL)
	if err != nil {
		return nil, fmt.Errorf("parse dbc idl: %w", err)
	}
	schema, err := idl.NewSchema(doc)
	if err != nil {
		return nil, fmt.Errorf("index dbc idl: %w", err)
	}
	return &DBCProcessor{parser: parser.New([]*idl.Schema{schema})}, nil
}

func (d *DBCProcessor) BuildFilters(pool model.PoolMeta) filter.SubscribeRequest {
	req := poolTxFilter(pool)
	if pool.QuoteVault != "" {
		req.Accounts[pool.PoolID+"_vault"] = filter.AccountFilter{Account: []string{pool.QuoteVault}}
	}
	return req
}

func (d *DBCProcessor) HandleUpdate(pool model.PoolMeta, upd Update) ([]model.PoolEvent, error) {
	switch {
	case upd.Account != nil:
		return d.balance(pool, upd.Account)
	case upd.Transaction != nil:
		return d.swaps(pool, upd.Transaction)
	}
	return nil, nil
}

func (d *DBCProcessor) balance(pool model.PoolMeta, acc *model.AccountUpdate) ([]model.PoolEvent, error) {
	vault := base58.Encode(acc.Pubkey)
	if pool.QuoteVault == "" || vault != pool.QuoteVault || len(acc.Data) < tokenAmountEnd {
		return nil, nil
	}
	payload, err := json.Marshal(dbcBalancePayload{
		QuoteVaultAddress: vault,
		NewBalance:        binary.LittleEndian.Uint64(acc.Data[tokenAmountOffset:tokenAmountEnd]),
	})
	if err != nil {
		return nil, err
	}
	return []model.PoolEvent{{
		PoolID:    pool.PoolID,
		Variant:   model.PoolDBC,
		EventType: EventDBCBalanceUpdate,
		Slot:      acc.Slot,
		Payload:   payload,
	}}, nil
}

func (d *DBCProcessor) swaps(pool model.PoolMeta, tx *model.TransactionEvent) ([]model.PoolEvent, error) {
	parsed, errs := d.parser.ParseTransactionEvents(tx)
	var out []model.PoolEvent
	for _, ev := range parsed {
		if ev.Name != dbcSwapEvent || ev.Fields["pool"] != pool.PoolID {
			continue
		}
		result, ok := ev.Fields["swap_result"].(map[string]any)
		if !ok {
			errs = append(errs, fmt.Errorf("swap %s: missing swap_result", ev.Signature))
			continue
		}
		in, _ := result["actual_input_amount"].(uint64)
		outAmount, _ := result["output_amount"].(uint64)
		price, _ := result["next_sqrt_price"].(string)
		payload, err := json.Marshal(dbcSwapPayload{
			Signature:     ev.Signature,
			InputAmount:   in,
			OutputAmount:  outAmount,
			NextSqrtPrice: price,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, model.PoolEvent{
			PoolID:    pool.PoolID,
			Variant:   model.PoolDBC,
			EventType: EventDBCSwap,
			Slot:      ev.Slot,
			Signature: ev.Signature,
			Payload:   payload,
		})
	}
	return out, errors.Join(errs...)
}
