package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/model"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container test skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:17-alpine",
		tcpostgres.WithDatabase("relay_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, Migrate(dsn))
	require.NoError(t, Migrate(dsn), "migrations are idempotent")

	s, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestStoreDeduplicatesByNaturalKey(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	parent := uint64(99)
	acc := &model.AccountUpdate{
		Slot: 100, Pubkey: make([]byte, 32), Owner: make([]byte, 32),
		Lamports: 1, RentEpoch: ^uint64(0), Data: []byte{1, 2}, WriteVersion: 7,
	}
	slot := &model.SlotUpdate{Slot: 100, Parent: &parent, Status: model.SlotConfirmed}
	tx := &model.TransactionEvent{
		Signature: make([]byte, 64), Slot: 100,
		Meta:    model.TransactionStatusMeta{Fee: 5000, Err: "boom"},
		Message: model.Message{AccountKeys: [][]byte{make([]byte, 32)}},
	}

	for i := 0; i < 2; i++ {
		require.NoError(t, s.InsertAccount(ctx, acc))
		require.NoError(t, s.InsertSlot(ctx, slot))
		require.NoError(t, s.InsertTransaction(ctx, tx))
		require.NoError(t, s.PutDecodeError(ctx, model.DecodeError{Stream: "s", EntryID: "1-0", Kind: "account", Error: "x"}))
	}

	for _, table := range []string{"accounts", "slots", "transactions", "decode_errors"} {
		n, err := s.CountRows(ctx, table)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n, table)
	}

	require.NoError(t, s.InsertSlot(ctx, &model.SlotUpdate{Slot: 100, Status: model.SlotRooted}))
	n, err := s.CountRows(ctx, "slots")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "each status transition is its own row")
}

func TestNewStoreValidation(t *testing.T) {
	_, err := NewStore(context.Background(), "")
	assert.True(t, fault.Is(err, fault.Config))

	_, err = (&Store{}).CountRows(context.Background(), "pg_user; drop table x")
	assert.Error(t, err)
}
