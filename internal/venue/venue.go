// Package venue talks to the trading-platform bridge. The bridge owns the
// actual terminal connection; this package exposes price lookup, trade
// placement and closure, and position listing, with venue-specific retry
// handling kept out of the trade engine.
package venue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goldtrade/internal/types"

	"github.com/shopspring/decimal"
)

// Quote is a live bid/ask snapshot for one symbol.
type Quote struct {
	Symbol       string             `json:"symbol"`
	Bid          decimal.Decimal    `json:"bid"`
	Ask          decimal.Decimal    `json:"ask"`
	Spread       decimal.Decimal    `json:"spread"`
	High         decimal.Decimal    `json:"high"`
	Low          decimal.Decimal    `json:"low"`
	Time         time.Time          `json:"time"`
	MarketStatus types.MarketStatus `json:"market_status"`
}

// SymbolInfo is the venue's trading metadata for one symbol.
type SymbolInfo struct {
	Name        string          `json:"name"`
	Digits      int             `json:"digits"`
	Point       decimal.Decimal `json:"point"`
	VolumeMin   decimal.Decimal `json:"volume_min"`
	VolumeMax   decimal.Decimal `json:"volume_max"`
	VolumeStep  decimal.Decimal `json:"volume_step"`
	StopsLevel  int             `json:"stops_level"`
	TradeMode   int             `json:"trade_mode"`
	FillingMode int             `json:"filling_mode"`
}

// Tradable reports whether the venue currently accepts orders for the symbol.
func (i SymbolInfo) Tradable() bool { return i.TradeMode != 0 }

// StepVolume clamps v into [VolumeMin, VolumeMax] and snaps it to the
// nearest VolumeStep multiple, matching the venue's lot-stepping.
func (i SymbolInfo) StepVolume(v decimal.Decimal) decimal.Decimal {
	if i.VolumeStep.GreaterThan(decimal.Zero) {
		v = v.Div(i.VolumeStep).Round(0).Mul(i.VolumeStep)
	}
	if i.VolumeMin.GreaterThan(decimal.Zero) && v.LessThan(i.VolumeMin) {
		v = i.VolumeMin
	}
	if i.VolumeMax.GreaterThan(decimal.Zero) && v.GreaterThan(i.VolumeMax) {
		v = i.VolumeMax
	}
	return v
}

// TradeRequest places a market deal at the venue.
type TradeRequest struct {
	Symbol  string
	Side    types.TradeSide
	Volume  decimal.Decimal
	Comment string
	Magic   int64
}

// TradeResult is the venue's fill confirmation. Volume may differ from the
// requested volume due to lot-stepping.
type TradeResult struct {
	Ticket int64
	Deal   int64
	Price  decimal.Decimal
	Volume decimal.Decimal
	Symbol string
	Side   types.TradeSide
}

// CloseRequest unwinds an existing venue position by ticket.
type CloseRequest struct {
	Ticket    int64
	Symbol    string
	Side      types.TradeSide // side of the original position
	Volume    decimal.Decimal
	OpenPrice decimal.Decimal
}

// CloseOutcome distinguishes the close results the engine must handle.
type CloseOutcome string

const (
	// CloseDone: venue executed the close at CloseResult.Price.
	CloseDone CloseOutcome = "done"
	// CloseAlreadyGone: venue no longer knows the position. Recoverable;
	// the caller must still settle the local ledger.
	CloseAlreadyGone CloseOutcome = "already_gone"
)

// CloseResult is the tagged outcome of CloseTrade. Price and Profit are
// only meaningful when Outcome is CloseDone.
type CloseResult struct {
	Outcome CloseOutcome
	Price   decimal.Decimal
	Profit  decimal.Decimal
}

// Position is one open position as reported by the venue.
type Position struct {
	Ticket       int64           `json:"ticket"`
	Symbol       string          `json:"symbol"`
	Side         types.TradeSide `json:"type"`
	Volume       decimal.Decimal `json:"volume"`
	PriceOpen    decimal.Decimal `json:"price_open"`
	PriceCurrent decimal.Decimal `json:"price_current"`
	Profit       decimal.Decimal `json:"profit"`
	Comment      string          `json:"comment"`
	Magic        int64           `json:"magic"`
}

// Gateway is the venue-side API the trade engine consumes.
type Gateway interface {
	GetPrice(ctx context.Context, symbol string) (Quote, error)
	GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error)
	PlaceTrade(ctx context.Context, req TradeRequest) (TradeResult, error)
	CloseTrade(ctx context.Context, req CloseRequest) (CloseResult, error)
	GetPositions(ctx context.Context) ([]Position, error)
}

// Error is a venue-reported failure. Transient errors are retried by the
// gateway itself; whatever reaches the engine is final.
type Error struct {
	Code      int
	Message   string
	Transient bool
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("venue error %d: %s", e.Code, e.Message)
	}
	return "venue error: " + e.Message
}

// Venue retcodes, from the terminal protocol.
const (
	retRequote           = 10013
	retMarketClosed      = 10018
	retInsufficientFunds = 10019
	retPricesChanged     = 10020
	retInvalidRequest    = 10021
	retInvalidSLTP       = 10022
	retInvalidParams     = 10017
	retAutoTradingOff    = 10027
)

var retcodeMessages = map[int]string{
	retMarketClosed:      "Market closed",
	retInsufficientFunds: "Insufficient funds",
	retPricesChanged:     "Prices changed",
	retInvalidRequest:    "Invalid request (check volume, symbol, or market status)",
	retInvalidSLTP:       "Invalid SL/TP",
	retInvalidParams:     "Invalid parameters",
	retAutoTradingOff:    "AutoTrading disabled",
}

func retcodeError(code int) *Error {
	msg, ok := retcodeMessages[code]
	if !ok {
		msg = fmt.Sprintf("Error %d", code)
	}
	transient := code == retRequote || code == retPricesChanged || code == retInvalidRequest
	return &Error{Code: code, Message: msg, Transient: transient}
}

// IsTransient reports whether err is a venue error worth retrying.
func IsTransient(err error) bool {
	var ve *Error
	return errors.As(err, &ve) && ve.Transient
}
