package store

import (
	"context"
	"testing"
	"time"

	"goldtrade/internal/model"
	"goldtrade/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func seedAccount(t *testing.T, m *Memory) model.Account {
	t.Helper()
	a := model.Account{
		ID:             "acct-1",
		AdminID:        "admin-1",
		Name:           "Test",
		ReservedAmount: decimal.NewFromInt(1000),
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	m.AddAccount(a)
	return a
}

func TestMemoryRollbackDiscardsWrites(t *testing.T) {
	m := NewMemory()
	a := seedAccount(t, m)
	ctx := context.Background()

	tx, err := m.Begin(ctx)
	require.NoError(t, err)
	got, err := tx.GetAccountForUpdate(ctx, a.AdminID, a.ID)
	require.NoError(t, err)
	got.ReservedAmount = decimal.NewFromInt(1)
	require.NoError(t, tx.UpdateAccountBalances(ctx, got))
	require.NoError(t, tx.AppendLedgerEntry(ctx, model.LedgerEntry{ID: "x", AdminID: a.AdminID}))
	require.NoError(t, tx.Rollback(ctx))

	after, err := m.GetAccount(ctx, a.AdminID, a.ID)
	require.NoError(t, err)
	require.True(t, after.ReservedAmount.Equal(decimal.NewFromInt(1000)))
	require.Empty(t, m.Entries())
}

func TestMemoryCommitPublishesWrites(t *testing.T) {
	m := NewMemory()
	a := seedAccount(t, m)
	ctx := context.Background()

	tx, err := m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateOrder(ctx, model.Order{ID: "o-1", AdminID: a.AdminID, AccountID: a.ID, Status: types.OrderStatusProcessing}))
	require.NoError(t, tx.Commit(ctx))

	o, err := m.GetOrder(ctx, a.AdminID, "o-1")
	require.NoError(t, err)
	require.Equal(t, types.OrderStatusProcessing, o.Status)

	processing, err := m.ListProcessingOrders(ctx)
	require.NoError(t, err)
	require.Len(t, processing, 1)
}

func TestMemoryAdminScoping(t *testing.T) {
	m := NewMemory()
	a := seedAccount(t, m)
	ctx := context.Background()

	_, err := m.GetAccount(ctx, "admin-2", a.ID)
	require.ErrorIs(t, err, ErrNotFound)

	tx, err := m.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.GetAccountForUpdate(ctx, "admin-2", a.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, tx.Rollback(ctx))
}

func TestMemoryCreateAccountRejectsDuplicateID(t *testing.T) {
	m := NewMemory()
	a := seedAccount(t, m)
	err := m.CreateAccount(context.Background(), a)
	require.ErrorIs(t, err, ErrConflict)
}

func TestMemorySoftDeleteHidesAccount(t *testing.T) {
	m := NewMemory()
	a := seedAccount(t, m)
	ctx := context.Background()

	require.NoError(t, m.SoftDeleteAccount(ctx, a.AdminID, a.ID))
	_, err := m.GetAccount(ctx, a.AdminID, a.ID)
	require.ErrorIs(t, err, ErrNotFound)
	accts, err := m.ListAccounts(ctx, a.AdminID)
	require.NoError(t, err)
	require.Empty(t, accts)
}
