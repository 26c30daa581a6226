package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mr-tron/base58"

	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/model"
)

// Store persists relay events. Every insert is keyed by the event's natural
// identifier and ignores duplicates, so redelivery is harmless.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fault.New(fault.Config, "postgres store", fmt.Errorf("pg dsn is required"))
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fault.New(fault.Config, "postgres store", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fault.New(fault.StoreConnect, "ping postgres", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) InsertAccount(ctx context.Context, acc *model.AccountUpdate) error {
	var txnSig *string
	if acc.TxnSignature != nil {
		sig := base58.Encode(acc.TxnSignature)
		txnSig = &sig
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (
			pubkey, slot, write_version, lamports, owner, executable, rent_epoch, data, txn_signature
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9)
		ON CONFLICT (pubkey, slot, write_version) DO NOTHING
	`,
		base58.Encode(acc.Pubkey),
		int64(acc.Slot),
		int64(acc.WriteVersion),
		int64(acc.Lamports),
		base58.Encode(acc.Owner),
		acc.Executable,
		strconv.FormatUint(acc.RentEpoch, 10),
		acc.Data,
		txnSig,
	)
	if err != nil {
		return fault.New(fault.SinkWrite, "insert account", err)
	}
	return nil
}

func (s *Store) InsertSlot(ctx context.Context, slot *model.SlotUpdate) error {
	var parent *int64
	if slot.Parent != nil {
		p := int64(*slot.Parent)
		parent = &p
	}
	var deadErr *string
	if slot.DeadError != "" {
		deadErr = &slot.DeadError
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO slots (slot, status, parent, dead_error)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (slot, status) DO NOTHING
	`, int64(slot.Slot), slot.Status.String(), parent, deadErr)
	if err != nil {
		return fault.New(fault.SinkWrite, "insert slot", err)
	}
	return nil
}

func (s *Store) InsertTransaction(ctx context.Context, tx *model.TransactionEvent) error {
	keys := make([]string, 0, len(tx.Message.AccountKeys))
	for _, k := range tx.Message.AllKeys() {
		keys = append(keys, base58.Encode(k))
	}
	logs := tx.Meta.LogMessages
	if logs == nil {
		logs = []string{}
	}
	meta, err := json.Marshal(tx.Meta)
	if err != nil {
		return fault.New(fault.SinkWrite, "marshal transaction meta", err)
	}
	var txErr *string
	if tx.Failed() {
		txErr = &tx.Meta.Err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO transactions (
			signature, slot, tx_index, is_vote, err, fee, account_keys, log_messages, meta
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (signature) DO NOTHING
	`,
		base58.Encode(tx.Signature),
		int64(tx.Slot),
		int64(tx.Index),
		tx.IsVote,
		txErr,
		int64(tx.Meta.Fee),
		keys,
		logs,
		meta,
	)
	if err != nil {
		return fault.New(fault.SinkWrite, "insert transaction", err)
	}
	return nil
}

func (s *Store) PutDecodeError(ctx context.Context, rec model.DecodeError) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO decode_errors (stream, entry_id, kind, error)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (stream, entry_id) DO NOTHING
	`, rec.Stream, rec.EntryID, rec.Kind, rec.Error)
	if err != nil {
		return fault.New(fault.SinkWrite, "insert decode error", err)
	}
	return nil
}

// CountRows returns the number of rows in table. Used by health checks and
// tests.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	switch table {
	case "accounts", "slots", "transactions", "decode_errors":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
