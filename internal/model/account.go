package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a trading user's cash/metal position. Balances are mutated
// only by the trade engine, inside a store transaction.
type Account struct {
	ID             string          `json:"id"`
	AdminID        string          `json:"admin_id"`
	Name           string          `json:"name"`
	ReservedAmount decimal.Decimal `json:"reserved_amount"` // cash available for new margin
	AmountFC       decimal.Decimal `json:"amount_fc"`       // settled equity
	MetalWeight    decimal.Decimal `json:"metal_weight"`    // open metal holdings, weight units
	BidSpread      decimal.Decimal `json:"bid_spread"`
	AskSpread      decimal.Decimal `json:"ask_spread"`
	MarginPercent  decimal.Decimal `json:"margin_percent"`
	IsDeleted      bool            `json:"is_deleted"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
