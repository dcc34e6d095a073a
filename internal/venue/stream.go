package venue

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"strings"
	"time"

	"goldtrade/internal/types"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Stream subscribes to the bridge's market-data feed over WebSocket and
// pushes ticks into the price cache, so most GetPrice calls never leave
// the process. The bridge owns reconnect policy on its own side; here we
// redial with a fixed delay when the socket drops.
type Stream struct {
	wsURL   string
	secret  string
	symbols []string
	cache   *CachedGateway
}

func NewStream(bridgeURL, secret string, symbols []string, cache *CachedGateway) *Stream {
	wsURL := strings.Replace(strings.Replace(bridgeURL, "https://", "wss://", 1), "http://", "ws://", 1)
	return &Stream{wsURL: strings.TrimRight(wsURL, "/") + "/stream", secret: secret, symbols: symbols, cache: cache}
}

type streamTick struct {
	Symbol       string  `json:"symbol"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Spread       float64 `json:"spread"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Time         string  `json:"time"`
	MarketStatus string  `json:"marketStatus"`
}

// Run blocks until ctx is cancelled, reconnecting on failures.
func (s *Stream) Run(ctx context.Context) {
	for {
		if err := s.connectAndRead(ctx); err != nil && ctx.Err() == nil {
			log.Printf("venue stream: %v, reconnecting", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (s *Stream) connectAndRead(ctx context.Context) error {
	u := s.wsURL
	if s.secret != "" {
		u += "?secret=" + url.QueryEscape(s.secret)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]interface{}{"type": "request-data", "symbols": s.symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var tick streamTick
		if err := json.Unmarshal(raw, &tick); err != nil || tick.Symbol == "" {
			continue
		}
		q := Quote{
			Symbol:       tick.Symbol,
			Bid:          decimal.NewFromFloat(tick.Bid),
			Ask:          decimal.NewFromFloat(tick.Ask),
			Spread:       decimal.NewFromFloat(tick.Spread),
			High:         decimal.NewFromFloat(tick.High),
			Low:          decimal.NewFromFloat(tick.Low),
			MarketStatus: types.MarketStatus(tick.MarketStatus),
		}
		if ts, err := time.Parse(time.RFC3339, tick.Time); err == nil {
			q.Time = ts
		}
		s.cache.StoreQuote(ctx, q)
	}
}
