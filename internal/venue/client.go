package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"goldtrade/internal/metrics"
	"goldtrade/internal/types"

	"github.com/shopspring/decimal"
)

const (
	maxTradeAttempts = 3
	baseDeviation    = 20
	deviationStep    = 10
	retryBackoff     = 500 * time.Millisecond
)

// Client is the HTTP client for the trading-platform bridge. One client
// serves one venue account.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

func NewClient(baseURL, secret string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

type bridgeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// decodeError turns the bridge's error field (object or bare string) into
// a venue Error.
func decodeError(raw json.RawMessage) *Error {
	var obj bridgeError
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		e := retcodeError(obj.Code)
		e.Message = obj.Message
		return e
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		transient := strings.Contains(s, "Prices changed") ||
			strings.Contains(s, "requote") ||
			strings.Contains(s, "Invalid request")
		return &Error{Message: s, Transient: transient}
	}
	return &Error{Message: string(raw)}
}

func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		req.Header.Set("X-Bridge-Secret", c.secret)
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveVenueCall(endpointLabel(path), time.Since(start), err == nil)
	if err != nil {
		return &Error{Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode bridge response: %w", err)
	}
	if !env.Success {
		return decodeError(env.Error)
	}
	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

type wireQuote struct {
	Symbol       string  `json:"symbol"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Spread       float64 `json:"spread"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Time         string  `json:"time"`
	MarketStatus string  `json:"marketStatus"`
}

func (c *Client) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	var wq wireQuote
	if err := c.call(ctx, http.MethodGet, "/price/"+symbol, nil, &wq); err != nil {
		return Quote{}, err
	}
	q := Quote{
		Symbol:       wq.Symbol,
		Bid:          decimal.NewFromFloat(wq.Bid),
		Ask:          decimal.NewFromFloat(wq.Ask),
		Spread:       decimal.NewFromFloat(wq.Spread),
		High:         decimal.NewFromFloat(wq.High),
		Low:          decimal.NewFromFloat(wq.Low),
		MarketStatus: types.MarketStatus(wq.MarketStatus),
	}
	if ts, err := time.Parse(time.RFC3339, wq.Time); err == nil {
		q.Time = ts
	}
	if q.MarketStatus == "" {
		q.MarketStatus = types.MarketStatusTradeable
	}
	return q, nil
}

type wireSymbolInfo struct {
	Name        string  `json:"name"`
	Point       float64 `json:"point"`
	Digits      int     `json:"digits"`
	TradeMode   int     `json:"trade_mode"`
	VolumeMin   float64 `json:"volume_min"`
	VolumeMax   float64 `json:"volume_max"`
	VolumeStep  float64 `json:"volume_step"`
	StopsLevel  int     `json:"stops_level"`
	FillingMode int     `json:"filling_mode"`
}

func (c *Client) GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	var wi wireSymbolInfo
	if err := c.call(ctx, http.MethodGet, "/symbol/"+symbol, nil, &wi); err != nil {
		return SymbolInfo{}, err
	}
	return SymbolInfo{
		Name:        wi.Name,
		Digits:      wi.Digits,
		Point:       decimal.NewFromFloat(wi.Point),
		VolumeMin:   decimal.NewFromFloat(wi.VolumeMin),
		VolumeMax:   decimal.NewFromFloat(wi.VolumeMax),
		VolumeStep:  decimal.NewFromFloat(wi.VolumeStep),
		StopsLevel:  wi.StopsLevel,
		TradeMode:   wi.TradeMode,
		FillingMode: wi.FillingMode,
	}, nil
}

type wireTradeResult struct {
	Order  int64   `json:"order"`
	Deal   int64   `json:"deal"`
	Volume float64 `json:"volume"`
	Price  float64 `json:"price"`
}

// PlaceTrade places a market deal, retrying transient rejections with a
// widened deviation and rotated filling mode. The retry is a bounded loop:
// once it exhausts, the last error is final.
func (c *Client) PlaceTrade(ctx context.Context, req TradeRequest) (TradeResult, error) {
	body := map[string]interface{}{
		"symbol":  req.Symbol,
		"volume":  req.Volume,
		"type":    string(req.Side),
		"comment": req.Comment,
		"magic":   req.Magic,
	}
	var lastErr error
	filling := "FOK"
	for attempt := 0; attempt < maxTradeAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return TradeResult{}, ctx.Err()
			case <-time.After(retryBackoff << (attempt - 1)):
			}
		}
		body["deviation"] = baseDeviation + attempt*deviationStep
		body["filling"] = filling

		var wr wireTradeResult
		err := c.call(ctx, http.MethodPost, "/trade", body, &wr)
		if err == nil {
			return TradeResult{
				Ticket: wr.Order,
				Deal:   wr.Deal,
				Price:  decimal.NewFromFloat(wr.Price),
				Volume: decimal.NewFromFloat(wr.Volume),
				Symbol: req.Symbol,
				Side:   req.Side,
			}, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return TradeResult{}, err
		}
		filling = rotateFilling(filling)
	}
	return TradeResult{}, lastErr
}

type wireCloseResult struct {
	Deal   int64   `json:"deal"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Profit float64 `json:"profit"`
}

// CloseTrade closes a venue position. A "position not found" response is
// not an error: the venue already considers the position gone, and the
// caller must still close out the local ledger.
func (c *Client) CloseTrade(ctx context.Context, req CloseRequest) (CloseResult, error) {
	body := map[string]interface{}{
		"ticket": req.Ticket,
		"symbol": req.Symbol,
		"volume": req.Volume,
	}
	var lastErr error
	filling := "FOK"
	for attempt := 0; attempt < maxTradeAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return CloseResult{}, ctx.Err()
			case <-time.After(retryBackoff << (attempt - 1)):
			}
		}
		body["deviation"] = baseDeviation + attempt*deviationStep
		body["filling"] = filling

		var wr wireCloseResult
		err := c.call(ctx, http.MethodPost, "/close", body, &wr)
		if err == nil {
			return CloseResult{
				Outcome: CloseDone,
				Price:   decimal.NewFromFloat(wr.Price),
				Profit:  decimal.NewFromFloat(wr.Profit),
			}, nil
		}
		if isPositionGone(err) {
			return CloseResult{Outcome: CloseAlreadyGone}, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return CloseResult{}, err
		}
		filling = rotateFilling(filling)
	}
	return CloseResult{}, lastErr
}

func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	var wire []struct {
		Ticket       int64   `json:"ticket"`
		Symbol       string  `json:"symbol"`
		Type         string  `json:"type"`
		Volume       float64 `json:"volume"`
		PriceOpen    float64 `json:"price_open"`
		PriceCurrent float64 `json:"price_current"`
		Profit       float64 `json:"profit"`
		Comment      string  `json:"comment"`
		Magic        int64   `json:"magic"`
	}
	if err := c.call(ctx, http.MethodGet, "/positions", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(wire))
	for _, p := range wire {
		out = append(out, Position{
			Ticket:       p.Ticket,
			Symbol:       p.Symbol,
			Side:         types.TradeSide(p.Type),
			Volume:       decimal.NewFromFloat(p.Volume),
			PriceOpen:    decimal.NewFromFloat(p.PriceOpen),
			PriceCurrent: decimal.NewFromFloat(p.PriceCurrent),
			Profit:       decimal.NewFromFloat(p.Profit),
			Comment:      p.Comment,
			Magic:        p.Magic,
		})
	}
	return out, nil
}

// endpointLabel strips path parameters so metric labels stay bounded.
func endpointLabel(path string) string {
	p := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}

func rotateFilling(mode string) string {
	if mode == "FOK" {
		return "IOC"
	}
	return "FOK"
}

func isPositionGone(err error) bool {
	var ve *Error
	if !errors.As(err, &ve) {
		return false
	}
	return strings.Contains(ve.Message, "not found")
}
