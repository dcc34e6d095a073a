package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"goldtrade/internal/engine"
	"goldtrade/internal/model"
	"goldtrade/internal/store"
	"goldtrade/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordingUpdater struct {
	mu      sync.Mutex
	patches []engine.Patch
	done    chan struct{}
}

func (r *recordingUpdater) UpdateTrade(ctx context.Context, tx store.Tx, adminID, orderID string, patch engine.Patch) (engine.UpdateResult, error) {
	r.mu.Lock()
	r.patches = append(r.patches, patch)
	r.mu.Unlock()
	close(r.done)
	return engine.UpdateResult{}, nil
}

func openResult() engine.OpenResult {
	return engine.OpenResult{Order: model.Order{
		ID:             "o1",
		OrderNo:        "GT-TEST",
		AdminID:        "a1",
		Symbol:         "GOLD",
		Side:           types.TradeSideBuy,
		Volume:         decimal.RequireFromString("1"),
		OpenPrice:      decimal.RequireFromString("85.30"),
		RequiredMargin: decimal.RequireFromString("6.38"),
	}}
}

func TestDeliverySuccess(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Path
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	updater := &recordingUpdater{done: make(chan struct{})}
	n := New(updater, "tok", 42, true)
	n.baseURL = srv.URL

	require.NoError(t, n.send(context.Background(), "hello"))
	require.Equal(t, "/bottok/sendMessage", got)
}

func TestDeliveryFailureRecordedOnOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"description":"Forbidden: bot was blocked by the user"}`))
	}))
	defer srv.Close()

	updater := &recordingUpdater{done: make(chan struct{})}
	n := New(updater, "tok", 42, true)
	n.baseURL = srv.URL

	n.TradeOpened(openResult())
	select {
	case <-updater.done:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery failure was not recorded")
	}
	require.Len(t, updater.patches, 1)
	require.NotNil(t, updater.patches[0].NotificationError)
	require.Contains(t, *updater.patches[0].NotificationError, "blocked")
}

func TestDeliveryTimeoutRecordedOnOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	updater := &recordingUpdater{done: make(chan struct{})}
	n := New(updater, "tok", 42, true)
	n.baseURL = srv.URL
	// Shrink the delivery deadline so the stalled server trips it. The
	// store write runs on its own deadline and must still land.
	n.timeout = 100 * time.Millisecond
	n.http.Timeout = 100 * time.Millisecond

	n.TradeOpened(openResult())
	select {
	case <-updater.done:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery timeout was not recorded")
	}
	require.Len(t, updater.patches, 1)
	require.NotNil(t, updater.patches[0].NotificationError)
	require.NotEmpty(t, *updater.patches[0].NotificationError)
}

func TestDisabledNotifierSendsNothing(t *testing.T) {
	updater := &recordingUpdater{done: make(chan struct{})}
	n := New(updater, "tok", 42, false)
	n.baseURL = "http://127.0.0.1:1" // would fail if contacted

	n.TradeOpened(openResult())
	select {
	case <-updater.done:
		t.Fatal("disabled notifier recorded a failure")
	case <-time.After(100 * time.Millisecond):
	}
}
