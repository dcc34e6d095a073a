// Package notify pushes trade confirmations to a Telegram chat. Delivery
// is best effort and never blocks the trading path; a failed delivery is
// recorded on the order so it shows up in the order history.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"goldtrade/internal/engine"
	"goldtrade/internal/store"
)

const sendTimeout = 8 * time.Second

// Updater is the slice of the engine used to record delivery failures.
type Updater interface {
	UpdateTrade(ctx context.Context, tx store.Tx, adminID, orderID string, patch engine.Patch) (engine.UpdateResult, error)
}

type Notifier struct {
	updater Updater
	token   string
	chatID  int64
	enabled bool
	baseURL string
	timeout time.Duration
	http    *http.Client
}

func New(updater Updater, token string, chatID int64, enabled bool) *Notifier {
	return &Notifier{
		updater: updater,
		token:   token,
		chatID:  chatID,
		enabled: enabled,
		baseURL: "https://api.telegram.org",
		timeout: sendTimeout,
		http:    &http.Client{Timeout: sendTimeout},
	}
}

// TradeOpened announces a filled open asynchronously.
func (n *Notifier) TradeOpened(res engine.OpenResult) {
	o := res.Order
	text := fmt.Sprintf("<b>Trade opened</b>\n%s %s %s @ %s\nOrder %s, margin %s",
		o.Side, o.Volume.String(), o.Symbol, o.OpenPrice.StringFixed(2),
		o.OrderNo, o.RequiredMargin.StringFixed(2))
	n.sendAsync(o.AdminID, o.ID, text)
}

// TradeClosed announces a settled close asynchronously.
func (n *Notifier) TradeClosed(res engine.UpdateResult) {
	o := res.Order
	closePrice := "-"
	if o.ClosePrice != nil {
		closePrice = o.ClosePrice.StringFixed(2)
	}
	profit := "-"
	if o.Profit != nil {
		profit = o.Profit.StringFixed(2)
	}
	text := fmt.Sprintf("<b>Trade closed</b>\n%s %s %s @ %s\nOrder %s, profit %s",
		o.Side, o.Volume.String(), o.Symbol, closePrice, o.OrderNo, profit)
	n.sendAsync(o.AdminID, o.ID, text)
}

func (n *Notifier) sendAsync(adminID, orderID, text string) {
	if !n.enabled {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		err := n.send(ctx, text)
		cancel()
		if err != nil {
			n.recordFailure(adminID, orderID, err)
		}
	}()
}

// recordFailure runs on its own deadline: when the delivery failure is
// the send context timing out, that context is already dead and cannot
// host the store write.
func (n *Notifier) recordFailure(adminID, orderID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	msg := strings.TrimSpace(cause.Error())
	if msg == "" {
		msg = "notification delivery failed"
	}
	if _, err := n.updater.UpdateTrade(ctx, nil, adminID, orderID, engine.Patch{NotificationError: &msg}); err != nil {
		log.Printf("notify: record failure on order %s: %v", orderID, err)
	}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (n *Notifier) send(ctx context.Context, text string) error {
	if strings.TrimSpace(n.token) == "" {
		return errors.New("telegram bot token is not configured")
	}
	body, err := json.Marshal(map[string]interface{}{
		"chat_id":    n.chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return err
	}
	url := n.baseURL + "/bot" + n.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return err
	}
	if !parsed.OK {
		desc := strings.TrimSpace(parsed.Description)
		if desc == "" {
			desc = "telegram request failed"
		}
		return errors.New(desc)
	}
	return nil
}
