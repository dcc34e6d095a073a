package engine

import (
	"context"
	"errors"
	"testing"

	"goldtrade/internal/model"
	"goldtrade/internal/store"
	"goldtrade/internal/types"
	"goldtrade/internal/venue"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type stubGateway struct {
	quote      venue.Quote
	info       venue.SymbolInfo
	fill       venue.TradeResult
	placeErr   error
	closeRes   venue.CloseResult
	closeErr   error
	placeCalls int
	closeCalls int
}

func (g *stubGateway) GetPrice(ctx context.Context, symbol string) (venue.Quote, error) {
	return g.quote, nil
}

func (g *stubGateway) GetSymbolInfo(ctx context.Context, symbol string) (venue.SymbolInfo, error) {
	return g.info, nil
}

func (g *stubGateway) PlaceTrade(ctx context.Context, req venue.TradeRequest) (venue.TradeResult, error) {
	g.placeCalls++
	if g.placeErr != nil {
		return venue.TradeResult{}, g.placeErr
	}
	res := g.fill
	res.Volume = req.Volume
	res.Side = req.Side
	res.Symbol = req.Symbol
	return res, nil
}

func (g *stubGateway) CloseTrade(ctx context.Context, req venue.CloseRequest) (venue.CloseResult, error) {
	g.closeCalls++
	if g.closeErr != nil {
		return venue.CloseResult{}, g.closeErr
	}
	return g.closeRes, nil
}

func (g *stubGateway) GetPositions(ctx context.Context) ([]venue.Position, error) {
	return nil, nil
}

func newStubGateway() *stubGateway {
	return &stubGateway{
		quote: venue.Quote{
			Symbol:       "XAUUSD",
			Bid:          dec("84.80"),
			Ask:          dec("85.00"),
			MarketStatus: types.MarketStatusTradeable,
		},
		info: venue.SymbolInfo{
			Name:       "XAUUSD",
			VolumeMin:  dec("0.01"),
			VolumeMax:  dec("100"),
			VolumeStep: dec("0.01"),
			TradeMode:  1,
		},
		fill: venue.TradeResult{Ticket: 777, Deal: 1001, Price: dec("85.00")},
	}
}

const (
	testAdmin   = "admin-1"
	testAccount = "acct-1"
)

func newTestEngine(t *testing.T) (*Engine, *store.Memory, *stubGateway) {
	t.Helper()
	st := store.NewMemory()
	st.AddAccount(model.Account{
		ID:             testAccount,
		AdminID:        testAdmin,
		Name:           "Test trader",
		ReservedAmount: dec("1000"),
		AmountFC:       dec("0"),
		MetalWeight:    dec("0"),
		BidSpread:      dec("0.20"),
		AskSpread:      dec("0.30"),
		MarginPercent:  dec("2"),
	})
	gw := newStubGateway()
	eng := New(st, gw, map[string]string{"GOLD": "XAUUSD"}, 234000)
	return eng, st, gw
}

func buyDraft() Draft {
	return Draft{
		Symbol:      "GOLD",
		Side:        types.TradeSideBuy,
		Volume:      dec("1"),
		QuotedPrice: dec("85.00"),
	}
}

func TestOpenTradeBalancesAndLedger(t *testing.T) {
	eng, st, gw := newTestEngine(t)
	ctx := context.Background()

	res, err := eng.OpenTrade(ctx, nil, testAdmin, testAccount, buyDraft())
	require.NoError(t, err)

	// Margin on 1 lot at 85.00 with 2%: (85/31.103)*116.64*1*0.02 = 6.38.
	require.True(t, res.Balances.ReservedAmount.Equal(dec("993.62")), res.Balances.ReservedAmount.String())
	require.True(t, res.Balances.MetalWeight.Equal(dec("1")), res.Balances.MetalWeight.String())
	require.Equal(t, types.OrderStatusOpen, res.Order.Status)
	require.NotNil(t, res.Order.Ticket)
	require.Equal(t, int64(777), *res.Order.Ticket)
	// Client fill is ask + askSpread.
	require.True(t, res.Order.OpenPrice.Equal(dec("85.30")), res.Order.OpenPrice.String())
	require.Equal(t, 1, gw.placeCalls)

	entries, err := st.ListLedgerEntries(ctx, testAdmin, res.Order.OrderNo)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	require.Equal(t, types.EntryTypeOrder, entries[0].EntryType)
	require.Equal(t, types.EntryNatureDebit, entries[0].Nature)
	require.True(t, entries[0].RunningBalance.Equal(dec("993.62")))
	require.Equal(t, types.EntryTypeLPPosition, entries[1].EntryType)
	require.Equal(t, types.EntryTypeTransaction, entries[2].EntryType)
	require.NotNil(t, entries[2].Transaction)
	require.Equal(t, types.AssetClassCash, entries[2].Transaction.Asset)
	require.True(t, entries[2].Transaction.PreviousBalance.Equal(dec("1000")))
	require.Equal(t, types.AssetClassGold, entries[3].Transaction.Asset)
	require.True(t, entries[3].RunningBalance.Equal(dec("1")))

	// LP position is keyed on the order number and records the raw fill.
	acct, err := st.GetAccount(ctx, testAdmin, testAccount)
	require.NoError(t, err)
	require.True(t, acct.ReservedAmount.Equal(dec("993.62")))
	require.True(t, res.Position.EntryPrice.Equal(dec("85.00")))
}

func TestOpenTradeInsufficientBalance(t *testing.T) {
	eng, st, gw := newTestEngine(t)
	ctx := context.Background()
	st.AddAccount(model.Account{
		ID:             "poor",
		AdminID:        testAdmin,
		ReservedAmount: dec("1"),
		MarginPercent:  dec("2"),
	})

	_, err := eng.OpenTrade(ctx, nil, testAdmin, "poor", buyDraft())
	var ibe *InsufficientBalanceError
	require.ErrorAs(t, err, &ibe)
	require.True(t, ibe.Available.Equal(dec("1")))

	// Rejected before any venue contact, with nothing persisted.
	require.Zero(t, gw.placeCalls)
	entries, err := st.ListLedgerEntries(ctx, testAdmin, "")
	require.NoError(t, err)
	require.Empty(t, entries)
	acct, err := st.GetAccount(ctx, testAdmin, "poor")
	require.NoError(t, err)
	require.True(t, acct.ReservedAmount.Equal(dec("1")))
}

func TestOpenTradeValidation(t *testing.T) {
	eng, _, gw := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		draft Draft
	}{
		{"bad side", Draft{Symbol: "GOLD", Side: "HOLD", Volume: dec("1"), QuotedPrice: dec("85")}},
		{"volume below minimum", Draft{Symbol: "GOLD", Side: types.TradeSideBuy, Volume: dec("0.001"), QuotedPrice: dec("85")}},
		{"unmapped symbol", Draft{Symbol: "SILVER", Side: types.TradeSideBuy, Volume: dec("1"), QuotedPrice: dec("85")}},
		{"zero price", Draft{Symbol: "GOLD", Side: types.TradeSideBuy, Volume: dec("1"), QuotedPrice: dec("0")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.OpenTrade(ctx, nil, testAdmin, testAccount, tc.draft)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}
	require.Zero(t, gw.placeCalls)
}

func TestOpenTradeVenueRejectionRollsBack(t *testing.T) {
	eng, st, gw := newTestEngine(t)
	ctx := context.Background()
	gw.placeErr = &venue.Error{Code: 10018, Message: "Market closed"}

	_, err := eng.OpenTrade(ctx, nil, testAdmin, testAccount, buyDraft())
	var ve *venue.Error
	require.ErrorAs(t, err, &ve)
	require.Equal(t, 10018, ve.Code)

	// Full rollback: balances and ledger untouched by the attempt.
	acct, err := st.GetAccount(ctx, testAdmin, testAccount)
	require.NoError(t, err)
	require.True(t, acct.ReservedAmount.Equal(dec("1000")))
	require.True(t, acct.MetalWeight.Equal(dec("0")))
	entries, err := st.ListLedgerEntries(ctx, testAdmin, "")
	require.NoError(t, err)
	require.Empty(t, entries)

	// A compensating FAILED record survives for audit.
	failed, err := st.ListOrdersByStatus(ctx, testAdmin, types.OrderStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Contains(t, failed[0].Comment, "Market closed")
}

func TestCloseTradeSettlement(t *testing.T) {
	eng, st, gw := newTestEngine(t)
	ctx := context.Background()

	open, err := eng.OpenTrade(ctx, nil, testAdmin, testAccount, buyDraft())
	require.NoError(t, err)

	gw.closeRes = venue.CloseResult{Outcome: venue.CloseDone, Price: dec("86.50")}
	closed := types.OrderStatusClosed
	res, err := eng.UpdateTrade(ctx, nil, testAdmin, open.Order.ID, Patch{Status: &closed})
	require.NoError(t, err)
	require.Equal(t, 1, gw.closeCalls)

	// Client close is raw 86.50 minus 0.20 bid spread = 86.30; opening
	// client price was 85.30, so profit on 1 lot is 3.75.
	require.Equal(t, types.OrderStatusClosed, res.Order.Status)
	require.NotNil(t, res.Order.ClosePrice)
	require.True(t, res.Order.ClosePrice.Equal(dec("86.30")), res.Order.ClosePrice.String())
	require.NotNil(t, res.Profit)
	require.True(t, res.Profit.Equal(dec("3.75")), res.Profit.String())

	// Reserved gets margin plus profit back; metal returns to flat.
	require.True(t, res.Balances.ReservedAmount.Equal(dec("1003.75")), res.Balances.ReservedAmount.String())
	require.True(t, res.Balances.AmountFC.Equal(dec("3.75")))
	require.True(t, res.Balances.MetalWeight.Equal(dec("0")))

	entries, err := st.ListLedgerEntries(ctx, testAdmin, open.Order.OrderNo)
	require.NoError(t, err)
	require.Len(t, entries, 9)
	closing := entries[4:]
	require.Equal(t, types.EntryNatureCredit, closing[0].Nature)
	require.True(t, closing[0].RunningBalance.Equal(dec("1003.75")))
	// Fifth closing entry is the profit adjustment against AMOUNTFC.
	require.NotNil(t, closing[4].Transaction)
	require.True(t, closing[4].Transaction.Amount.Equal(dec("3.75")))
	require.True(t, closing[4].RunningBalance.Equal(dec("3.75")))
}

func TestOpenTradeLotSteppedFillMovesMetal(t *testing.T) {
	eng, st, gw := newTestEngine(t)
	ctx := context.Background()

	// 0.015 is off the 0.01 step grid; the venue steps it to 0.02 and
	// fills at that volume.
	draft := buyDraft()
	draft.Volume = dec("0.015")
	res, err := eng.OpenTrade(ctx, nil, testAdmin, testAccount, draft)
	require.NoError(t, err)
	require.True(t, res.Order.Volume.Equal(dec("0.02")), res.Order.Volume.String())

	// Metal holdings follow the filled volume, not the requested one.
	require.True(t, res.Balances.MetalWeight.Equal(dec("0.02")), res.Balances.MetalWeight.String())
	acct, err := st.GetAccount(ctx, testAdmin, testAccount)
	require.NoError(t, err)
	require.True(t, acct.MetalWeight.Equal(dec("0.02")))

	// Four opening entries plus the gold correction for the step-up.
	entries, err := st.ListLedgerEntries(ctx, testAdmin, res.Order.OrderNo)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	corr := entries[4]
	require.Equal(t, types.EntryTypeTransaction, corr.EntryType)
	require.Equal(t, types.EntryNatureCredit, corr.Nature)
	require.True(t, corr.Amount.Equal(dec("0.005")), corr.Amount.String())
	require.True(t, corr.RunningBalance.Equal(dec("0.02")))
	require.NotNil(t, corr.Transaction)
	require.Equal(t, types.AssetClassGold, corr.Transaction.Asset)
	require.True(t, corr.Transaction.PreviousBalance.Equal(dec("0.015")))

	// A full round trip leaves no metal stranded.
	gw.closeRes = venue.CloseResult{Outcome: venue.CloseDone, Price: dec("86.50")}
	closed := types.OrderStatusClosed
	closedRes, err := eng.UpdateTrade(ctx, nil, testAdmin, res.Order.ID, Patch{Status: &closed})
	require.NoError(t, err)
	require.True(t, closedRes.Balances.MetalWeight.Equal(dec("0")), closedRes.Balances.MetalWeight.String())
}

func TestFillVolumePatchReconcilesMetal(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	open, err := eng.OpenTrade(ctx, nil, testAdmin, testAccount, buyDraft())
	require.NoError(t, err)
	require.True(t, open.Balances.MetalWeight.Equal(dec("1")))

	// The reconciliation sweep attaches the venue's fill volume through
	// the same patch path; a partial fill shrinks the holdings with it.
	partial := dec("0.9")
	res, err := eng.UpdateTrade(ctx, nil, testAdmin, open.Order.ID, Patch{Volume: &partial})
	require.NoError(t, err)
	require.True(t, res.Order.Volume.Equal(dec("0.9")))
	require.True(t, res.Balances.MetalWeight.Equal(dec("0.9")), res.Balances.MetalWeight.String())

	entries, err := st.ListLedgerEntries(ctx, testAdmin, open.Order.OrderNo)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	corr := entries[4]
	require.Equal(t, types.EntryNatureDebit, corr.Nature)
	require.True(t, corr.Amount.Equal(dec("0.1")), corr.Amount.String())
	require.True(t, corr.RunningBalance.Equal(dec("0.9")))

	closed := types.OrderStatusClosed
	closedRes, err := eng.UpdateTrade(ctx, nil, testAdmin, open.Order.ID, Patch{Status: &closed})
	require.NoError(t, err)
	require.True(t, closedRes.Balances.MetalWeight.Equal(dec("0")), closedRes.Balances.MetalWeight.String())
}

func TestCloseFailedOrderRejected(t *testing.T) {
	eng, st, gw := newTestEngine(t)
	ctx := context.Background()
	gw.placeErr = &venue.Error{Code: 10018, Message: "Market closed"}

	_, err := eng.OpenTrade(ctx, nil, testAdmin, testAccount, buyDraft())
	require.Error(t, err)
	failed, err := st.ListOrdersByStatus(ctx, testAdmin, types.OrderStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	// A FAILED order never debited margin or metal; settling it would
	// invent balances out of nothing.
	closed := types.OrderStatusClosed
	_, err = eng.UpdateTrade(ctx, nil, testAdmin, failed[0].ID, Patch{Status: &closed})
	require.ErrorIs(t, err, ErrOrderNotOpen)

	acct, err := st.GetAccount(ctx, testAdmin, testAccount)
	require.NoError(t, err)
	require.True(t, acct.ReservedAmount.Equal(dec("1000")))
	require.True(t, acct.AmountFC.Equal(dec("0")))
	require.True(t, acct.MetalWeight.Equal(dec("0")))
	entries, err := st.ListLedgerEntries(ctx, testAdmin, "")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCloseTradeAlreadyGoneIsRecoverable(t *testing.T) {
	eng, st, gw := newTestEngine(t)
	ctx := context.Background()

	open, err := eng.OpenTrade(ctx, nil, testAdmin, testAccount, buyDraft())
	require.NoError(t, err)

	// The venue has lost the position; close price is synthesized from
	// the current bid.
	gw.closeRes = venue.CloseResult{Outcome: venue.CloseAlreadyGone}
	gw.quote.Bid = dec("86.50")
	closed := types.OrderStatusClosed
	res, err := eng.UpdateTrade(ctx, nil, testAdmin, open.Order.ID, Patch{Status: &closed})
	require.NoError(t, err)
	require.Equal(t, types.OrderStatusClosed, res.Order.Status)
	require.True(t, res.Order.ClosePrice.Equal(dec("86.30")))
	require.True(t, res.Balances.ReservedAmount.Equal(dec("1003.75")))

	// Full settlement entries were written exactly once.
	entries, err := st.ListLedgerEntries(ctx, testAdmin, open.Order.OrderNo)
	require.NoError(t, err)
	require.Len(t, entries, 9)

	// Closing again is rejected, not re-settled.
	_, err = eng.UpdateTrade(ctx, nil, testAdmin, open.Order.ID, Patch{Status: &closed})
	require.ErrorIs(t, err, ErrAlreadyClosed)
	entries, err = st.ListLedgerEntries(ctx, testAdmin, open.Order.OrderNo)
	require.NoError(t, err)
	require.Len(t, entries, 9)
}

func TestCloseTradeVenueErrorLeavesOrderOpen(t *testing.T) {
	eng, st, gw := newTestEngine(t)
	ctx := context.Background()

	open, err := eng.OpenTrade(ctx, nil, testAdmin, testAccount, buyDraft())
	require.NoError(t, err)

	gw.closeErr = &venue.Error{Code: 10027, Message: "AutoTrading disabled"}
	closed := types.OrderStatusClosed
	_, err = eng.UpdateTrade(ctx, nil, testAdmin, open.Order.ID, Patch{Status: &closed})
	var ve *venue.Error
	require.ErrorAs(t, err, &ve)

	got, err := st.GetOrder(ctx, testAdmin, open.Order.ID)
	require.NoError(t, err)
	require.Equal(t, types.OrderStatusOpen, got.Status)
	acct, err := st.GetAccount(ctx, testAdmin, testAccount)
	require.NoError(t, err)
	require.True(t, acct.ReservedAmount.Equal(dec("993.62")))
}

func TestSellCloseDirection(t *testing.T) {
	eng, _, gw := newTestEngine(t)
	ctx := context.Background()

	draft := buyDraft()
	draft.Side = types.TradeSideSell
	open, err := eng.OpenTrade(ctx, nil, testAdmin, testAccount, draft)
	require.NoError(t, err)
	// SELL fills at bid - bidSpread.
	require.True(t, open.Order.OpenPrice.Equal(dec("84.60")), open.Order.OpenPrice.String())
	require.True(t, open.Balances.MetalWeight.Equal(dec("-1")))

	// Price falls; a SELL closes at ask + askSpread and profits.
	gw.closeRes = venue.CloseResult{Outcome: venue.CloseDone, Price: dec("83.50")}
	closed := types.OrderStatusClosed
	res, err := eng.UpdateTrade(ctx, nil, testAdmin, open.Order.ID, Patch{Status: &closed})
	require.NoError(t, err)
	require.True(t, res.Order.ClosePrice.Equal(dec("83.80")))
	// Profit = (84.60 - 83.80) notional on 1 lot = 3.00.
	require.True(t, res.Profit.Equal(dec("3")), res.Profit.String())
	require.True(t, res.Balances.MetalWeight.Equal(dec("0")))
}

func TestUpdateTradePatchAllowList(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	open, err := eng.OpenTrade(ctx, nil, testAdmin, testAccount, buyDraft())
	require.NoError(t, err)

	comment := "filled late"
	notifyErr := "telegram timeout"
	res, err := eng.UpdateTrade(ctx, nil, testAdmin, open.Order.ID, Patch{
		Comment:           &comment,
		NotificationError: &notifyErr,
	})
	require.NoError(t, err)
	require.Equal(t, "filled late", res.Order.Comment)
	require.NotNil(t, res.Order.NotificationError)
	require.Equal(t, "telegram timeout", *res.Order.NotificationError)
	require.Equal(t, types.OrderStatusOpen, res.Order.Status)

	// An update that leaves the volume alone never touches balances
	// or the ledger.
	acct, err := st.GetAccount(ctx, testAdmin, testAccount)
	require.NoError(t, err)
	require.True(t, acct.ReservedAmount.Equal(dec("993.62")))
	entries, err := st.ListLedgerEntries(ctx, testAdmin, open.Order.OrderNo)
	require.NoError(t, err)
	require.Len(t, entries, 4)
}

func TestUpdateTradeUnknownOrder(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	comment := "x"
	_, err := eng.UpdateTrade(context.Background(), nil, testAdmin, "nope", Patch{Comment: &comment})
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOpenTradeForeignAdmin(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	_, err := eng.OpenTrade(context.Background(), nil, "other-admin", testAccount, buyDraft())
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRunInTxRetriesConflicts(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	attempts := 0
	err := eng.runInTx(context.Background(), nil, func(tx store.Tx) error {
		attempts++
		if attempts < 3 {
			return store.ErrConflict
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRunInTxGivesUpAfterMaxAttempts(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	attempts := 0
	err := eng.runInTx(context.Background(), nil, func(tx store.Tx) error {
		attempts++
		return store.ErrConflict
	})
	require.ErrorIs(t, err, store.ErrConflict)
	require.Equal(t, maxTxAttempts, attempts)
}

func TestRunInTxParticipatesInCallerTx(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	outer, err := st.Begin(ctx)
	require.NoError(t, err)
	called := false
	err = eng.runInTx(ctx, outer, func(tx store.Tx) error {
		called = true
		require.Equal(t, outer, tx)
		return nil
	})
	require.NoError(t, err)
	require.True(t, called)
	// Lifecycle stays with the caller.
	require.NoError(t, outer.Rollback(ctx))
}

func TestRunInTxDoesNotRetryBusinessErrors(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	attempts := 0
	sentinel := errors.New("boom")
	err := eng.runInTx(context.Background(), nil, func(tx store.Tx) error {
		attempts++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 1, attempts)
}
