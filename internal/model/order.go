package model

import (
	"time"

	"goldtrade/internal/types"

	"github.com/shopspring/decimal"
)

// Order is the client-facing trade record. It is created with status
// PROCESSING before the venue is contacted, so a durable local row exists
// even if the venue call never returns.
type Order struct {
	ID                string            `json:"id"`
	OrderNo           string            `json:"order_no"`
	AdminID           string            `json:"admin_id"`
	AccountID         string            `json:"account_id"`
	Symbol            string            `json:"symbol"`
	Side              types.TradeSide   `json:"side"`
	Volume            decimal.Decimal   `json:"volume"`
	OpenPrice         decimal.Decimal   `json:"open_price"`
	RequiredMargin    decimal.Decimal   `json:"required_margin"`
	Status            types.OrderStatus `json:"status"`
	Ticket            *int64            `json:"ticket,omitempty"`
	ClosePrice        *decimal.Decimal  `json:"close_price,omitempty"`
	CloseDate         *time.Time        `json:"close_date,omitempty"`
	Profit            *decimal.Decimal  `json:"profit,omitempty"`
	Comment           string            `json:"comment"`
	NotificationError *string           `json:"notification_error,omitempty"`
	OpenDate          time.Time         `json:"open_date"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// LPPosition mirrors an order on the venue side, linked by PositionID ==
// Order.OrderNo. Its profit tracks spread capture, not directional P/L.
type LPPosition struct {
	ID           string               `json:"id"`
	PositionID   string               `json:"position_id"`
	AdminID      string               `json:"admin_id"`
	AccountID    string               `json:"account_id"`
	Symbol       string               `json:"symbol"`
	Side         types.TradeSide      `json:"side"`
	Volume       decimal.Decimal      `json:"volume"`
	EntryPrice   decimal.Decimal      `json:"entry_price"`
	CurrentPrice decimal.Decimal      `json:"current_price"`
	ClosePrice   *decimal.Decimal     `json:"close_price,omitempty"`
	Profit       decimal.Decimal      `json:"profit"`
	Status       types.PositionStatus `json:"status"`
	OpenDate     time.Time            `json:"open_date"`
	CloseDate    *time.Time           `json:"close_date,omitempty"`
}

// LPProfit tracks realized spread revenue for one order. The value recorded
// at open is accumulated, not replaced, when the closing leg is added.
type LPProfit struct {
	ID        string               `json:"id"`
	AdminID   string               `json:"admin_id"`
	OrderNo   string               `json:"order_no"`
	Status    types.PositionStatus `json:"status"`
	Value     decimal.Decimal      `json:"value"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}
