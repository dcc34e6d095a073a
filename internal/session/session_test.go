package session

import (
	"context"
	"testing"
	"time"

	"goldtrade/internal/engine"
	"goldtrade/internal/store"
	"goldtrade/internal/types"
	"goldtrade/internal/venue"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type stubTrader struct {
	calls  int
	draft  engine.Draft
	result engine.OpenResult
	err    error
}

func (s *stubTrader) OpenTrade(ctx context.Context, tx store.Tx, adminID, accountID string, draft engine.Draft) (engine.OpenResult, error) {
	s.calls++
	s.draft = draft
	return s.result, s.err
}

type stubQuoter struct {
	quote venue.Quote
	err   error
}

func (s *stubQuoter) GetPrice(ctx context.Context, symbol string) (venue.Quote, error) {
	return s.quote, s.err
}

func newTestManager() (*Manager, *stubTrader, *stubQuoter) {
	trader := &stubTrader{}
	quoter := &stubQuoter{quote: venue.Quote{
		Bid:          decimal.RequireFromString("84.80"),
		Ask:          decimal.RequireFromString("85.00"),
		MarketStatus: types.MarketStatusTradeable,
	}}
	m := NewManager(trader, quoter, map[string]string{"GOLD": "XAUUSD"})
	return m, trader, quoter
}

func TestDraftLifecycle(t *testing.T) {
	m, trader, _ := newTestManager()
	ctx := context.Background()

	d, err := m.Start("a1", "acct", "GOLD", types.TradeSideBuy)
	require.NoError(t, err)
	require.Equal(t, StepVolume, d.Step)

	d, err = m.SetVolume(ctx, "a1", "acct", decimal.RequireFromString("1"))
	require.NoError(t, err)
	require.Equal(t, StepConfirm, d.Step)
	require.True(t, d.Quote.Ask.Equal(decimal.RequireFromString("85.00")))

	_, err = m.Confirm(ctx, "a1", "acct")
	require.NoError(t, err)
	require.Equal(t, 1, trader.calls)
	// BUY confirms against the quoted ask.
	require.True(t, trader.draft.QuotedPrice.Equal(decimal.RequireFromString("85.00")))
	require.Equal(t, types.TradeSideBuy, trader.draft.Side)

	// The draft is consumed.
	_, err = m.Confirm(ctx, "a1", "acct")
	require.ErrorIs(t, err, ErrNoDraft)
}

func TestSellConfirmsAgainstBid(t *testing.T) {
	m, trader, _ := newTestManager()
	ctx := context.Background()

	_, err := m.Start("a1", "acct", "GOLD", types.TradeSideSell)
	require.NoError(t, err)
	_, err = m.SetVolume(ctx, "a1", "acct", decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	_, err = m.Confirm(ctx, "a1", "acct")
	require.NoError(t, err)
	require.True(t, trader.draft.QuotedPrice.Equal(decimal.RequireFromString("84.80")))
}

func TestCancelBeforeConfirmIsFree(t *testing.T) {
	m, trader, _ := newTestManager()

	_, err := m.Start("a1", "acct", "GOLD", types.TradeSideBuy)
	require.NoError(t, err)
	require.NoError(t, m.Cancel("a1", "acct"))
	require.Zero(t, trader.calls)
	require.ErrorIs(t, m.Cancel("a1", "acct"), ErrNoDraft)
}

func TestOneDraftPerAccount(t *testing.T) {
	m, _, _ := newTestManager()

	_, err := m.Start("a1", "acct", "GOLD", types.TradeSideBuy)
	require.NoError(t, err)
	_, err = m.Start("a1", "acct", "GOLD", types.TradeSideSell)
	require.ErrorIs(t, err, ErrDraftExists)

	// Another account under the same admin is independent.
	_, err = m.Start("a1", "acct2", "GOLD", types.TradeSideSell)
	require.NoError(t, err)
}

func TestDraftExpiry(t *testing.T) {
	m, _, _ := newTestManager()
	now := time.Now()
	m.now = func() time.Time { return now }

	_, err := m.Start("a1", "acct", "GOLD", types.TradeSideBuy)
	require.NoError(t, err)

	now = now.Add(DraftTTL + time.Second)
	_, err = m.SetVolume(context.Background(), "a1", "acct", decimal.RequireFromString("1"))
	require.ErrorIs(t, err, ErrDraftExpired)
}

func TestMarketClosedBlocksVolumeStep(t *testing.T) {
	m, _, quoter := newTestManager()
	quoter.quote.MarketStatus = types.MarketStatusClosed

	_, err := m.Start("a1", "acct", "GOLD", types.TradeSideBuy)
	require.NoError(t, err)
	_, err = m.SetVolume(context.Background(), "a1", "acct", decimal.RequireFromString("1"))
	require.Error(t, err)

	// The draft survives so the user can retry once the market opens.
	d, err := m.Peek("a1", "acct")
	require.NoError(t, err)
	require.Equal(t, StepVolume, d.Step)
}

func TestWrongStepRejected(t *testing.T) {
	m, _, _ := newTestManager()

	_, err := m.Start("a1", "acct", "GOLD", types.TradeSideBuy)
	require.NoError(t, err)
	_, err = m.Confirm(context.Background(), "a1", "acct")
	require.ErrorIs(t, err, ErrWrongStep)
}
