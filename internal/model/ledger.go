package model

import (
	"time"

	"goldtrade/internal/types"

	"github.com/shopspring/decimal"
)

// LedgerEntry is an append-only accounting record. Entries are never
// mutated or deleted; RunningBalance must equal the account balance for
// the touched asset as committed in the same transaction.
type LedgerEntry struct {
	ID             string                `json:"id"`
	EntryID        string                `json:"entry_id"`
	AdminID        string                `json:"admin_id"`
	AccountID      string                `json:"account_id"`
	EntryType      types.EntryType       `json:"entry_type"`
	RefNo          string                `json:"ref_no"` // order number
	Description    string                `json:"description"`
	Amount         decimal.Decimal       `json:"amount"`
	Nature         types.EntryNature     `json:"nature"`
	RunningBalance decimal.Decimal       `json:"running_balance"`
	Order          *OrderSnapshot        `json:"order,omitempty"`
	LP             *LPSnapshot           `json:"lp,omitempty"`
	Transaction    *TransactionSnapshot  `json:"transaction,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

type OrderSnapshot struct {
	Symbol string            `json:"symbol"`
	Side   types.TradeSide   `json:"side"`
	Volume decimal.Decimal   `json:"volume"`
	Price  decimal.Decimal   `json:"price"`
	Margin decimal.Decimal   `json:"margin"`
	Status types.OrderStatus `json:"status"`
}

type LPSnapshot struct {
	PositionID string               `json:"position_id"`
	Symbol     string               `json:"symbol"`
	Side       types.TradeSide      `json:"side"`
	Volume     decimal.Decimal      `json:"volume"`
	EntryPrice decimal.Decimal      `json:"entry_price"`
	Profit     decimal.Decimal      `json:"profit"`
	Status     types.PositionStatus `json:"status"`
}

type TransactionSnapshot struct {
	Asset           types.AssetClass `json:"asset"`
	PreviousBalance decimal.Decimal  `json:"previous_balance"`
	Amount          decimal.Decimal  `json:"amount"`
}
