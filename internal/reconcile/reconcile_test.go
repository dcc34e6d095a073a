package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"goldtrade/internal/engine"
	"goldtrade/internal/model"
	"goldtrade/internal/store"
	"goldtrade/internal/types"
	"goldtrade/internal/venue"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordingUpdater struct {
	patches map[string]engine.Patch // by order id
}

func (r *recordingUpdater) UpdateTrade(ctx context.Context, tx store.Tx, adminID, orderID string, patch engine.Patch) (engine.UpdateResult, error) {
	r.patches[orderID] = patch
	return engine.UpdateResult{}, nil
}

type positionsGateway struct {
	venue.Gateway
	positions []venue.Position
}

func (g *positionsGateway) GetPositions(ctx context.Context) ([]venue.Position, error) {
	return g.positions, nil
}

func seedProcessing(t *testing.T, st *store.Memory, id, orderNo string, openDate time.Time) {
	t.Helper()
	tx, err := st.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.CreateOrder(context.Background(), model.Order{
		ID:        id,
		OrderNo:   orderNo,
		AdminID:   "a1",
		AccountID: "acct",
		Symbol:    "GOLD",
		Side:      types.TradeSideBuy,
		Volume:    decimal.RequireFromString("1"),
		OpenPrice: decimal.RequireFromString("85"),
		Status:    types.OrderStatusProcessing,
		OpenDate:  openDate,
	}))
	require.NoError(t, tx.Commit(context.Background()))
}

func TestSweepPromotesMatchedOrder(t *testing.T) {
	st := store.NewMemory()
	seedProcessing(t, st, "o1", "GT-AAA", time.Now())
	gw := &positionsGateway{positions: []venue.Position{
		{Ticket: 555, Comment: "GT-AAA", Volume: decimal.RequireFromString("1")},
	}}
	updater := &recordingUpdater{patches: map[string]engine.Patch{}}
	s := NewSweeper(st, gw, updater)

	require.NoError(t, s.Sweep(context.Background()))
	patch, ok := updater.patches["o1"]
	require.True(t, ok)
	require.NotNil(t, patch.Status)
	require.Equal(t, types.OrderStatusOpen, *patch.Status)
	require.NotNil(t, patch.Ticket)
	require.Equal(t, int64(555), *patch.Ticket)
}

func TestSweepFailsStaleOrder(t *testing.T) {
	st := store.NewMemory()
	seedProcessing(t, st, "o1", "GT-AAA", time.Now().Add(-time.Hour))
	gw := &positionsGateway{}
	updater := &recordingUpdater{patches: map[string]engine.Patch{}}
	s := NewSweeper(st, gw, updater)

	require.NoError(t, s.Sweep(context.Background()))
	patch, ok := updater.patches["o1"]
	require.True(t, ok)
	require.NotNil(t, patch.Status)
	require.Equal(t, types.OrderStatusFailed, *patch.Status)
	require.NotNil(t, patch.Comment)
	require.Contains(t, *patch.Comment, "reconciliation")
}

func TestSweepLeavesRecentUnmatchedOrder(t *testing.T) {
	st := store.NewMemory()
	seedProcessing(t, st, "o1", "GT-AAA", time.Now())
	gw := &positionsGateway{}
	updater := &recordingUpdater{patches: map[string]engine.Patch{}}
	s := NewSweeper(st, gw, updater)

	require.NoError(t, s.Sweep(context.Background()))
	require.Empty(t, updater.patches)
}

type failingGateway struct{ venue.Gateway }

func (g *failingGateway) GetPositions(ctx context.Context) ([]venue.Position, error) {
	return nil, errors.New("venue down")
}

func TestSweepNoProcessingSkipsVenue(t *testing.T) {
	st := store.NewMemory()
	s := NewSweeper(st, &failingGateway{}, &recordingUpdater{patches: map[string]engine.Patch{}})
	// With nothing to reconcile the venue is never consulted.
	require.NoError(t, s.Sweep(context.Background()))
}
