package accounts

import (
	"context"
	"testing"

	"goldtrade/internal/store"
	"goldtrade/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testSettings() Settings {
	return Settings{
		Name:          "Zarina",
		BidSpread:     dec("0.20"),
		AskSpread:     dec("0.30"),
		MarginPercent: dec("2"),
	}
}

func TestCreateAndList(t *testing.T) {
	svc := NewService(store.NewMemory())
	ctx := context.Background()

	a, err := svc.Create(ctx, "admin-1", testSettings(), dec("1000"))
	require.NoError(t, err)
	require.NotEmpty(t, a.ID)
	require.True(t, a.ReservedAmount.Equal(dec("1000")))
	require.True(t, a.AmountFC.IsZero())

	accts, err := svc.List(ctx, "admin-1")
	require.NoError(t, err)
	require.Len(t, accts, 1)

	other, err := svc.List(ctx, "admin-2")
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestCreateRejectsBadSettings(t *testing.T) {
	svc := NewService(store.NewMemory())
	ctx := context.Background()

	s := testSettings()
	s.Name = "  "
	_, err := svc.Create(ctx, "admin-1", s, decimal.Zero)
	require.Error(t, err)

	s = testSettings()
	s.MarginPercent = decimal.Zero
	_, err = svc.Create(ctx, "admin-1", s, decimal.Zero)
	require.Error(t, err)

	s = testSettings()
	s.BidSpread = dec("-0.1")
	_, err = svc.Create(ctx, "admin-1", s, decimal.Zero)
	require.Error(t, err)

	_, err = svc.Create(ctx, "admin-1", testSettings(), dec("-5"))
	require.Error(t, err)
}

func TestDepositAppendsLedgerEntry(t *testing.T) {
	mem := store.NewMemory()
	svc := NewService(mem)
	ctx := context.Background()

	a, err := svc.Create(ctx, "admin-1", testSettings(), dec("100"))
	require.NoError(t, err)

	updated, err := svc.Deposit(ctx, "admin-1", a.ID, dec("50"))
	require.NoError(t, err)
	require.True(t, updated.ReservedAmount.Equal(dec("150")))

	entries := mem.Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	require.Equal(t, types.EntryTypeTransaction, e.EntryType)
	require.Equal(t, types.EntryNatureCredit, e.Nature)
	require.True(t, e.RunningBalance.Equal(dec("150")))
	require.NotNil(t, e.Transaction)
	require.True(t, e.Transaction.PreviousBalance.Equal(dec("100")))
}

func TestWithdrawChecksFreeCash(t *testing.T) {
	svc := NewService(store.NewMemory())
	ctx := context.Background()

	a, err := svc.Create(ctx, "admin-1", testSettings(), dec("100"))
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, "admin-1", a.ID, dec("200"))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	updated, err := svc.Withdraw(ctx, "admin-1", a.ID, dec("40"))
	require.NoError(t, err)
	require.True(t, updated.ReservedAmount.Equal(dec("60")))
}

func TestUpdateSettingsAndDelete(t *testing.T) {
	svc := NewService(store.NewMemory())
	ctx := context.Background()

	a, err := svc.Create(ctx, "admin-1", testSettings(), decimal.Zero)
	require.NoError(t, err)

	s := testSettings()
	s.AskSpread = dec("0.50")
	updated, err := svc.UpdateSettings(ctx, "admin-1", a.ID, s)
	require.NoError(t, err)
	require.True(t, updated.AskSpread.Equal(dec("0.50")))

	// settings are admin-scoped like every other query
	_, err = svc.UpdateSettings(ctx, "admin-2", a.ID, s)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.Delete(ctx, "admin-1", a.ID))
	_, err = svc.Get(ctx, "admin-1", a.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, "admin-1", a.ID), ErrNotFound)
}
