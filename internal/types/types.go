package types

type TradeSide string

type OrderStatus string

type PositionStatus string

type EntryType string

type EntryNature string

type AssetClass string

type MarketStatus string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

const (
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusOpen       OrderStatus = "OPEN"
	OrderStatusClosed     OrderStatus = "CLOSED"
	OrderStatusFailed     OrderStatus = "FAILED"
)

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

const (
	EntryTypeOrder       EntryType = "ORDER"
	EntryTypeLPPosition  EntryType = "LP_POSITION"
	EntryTypeTransaction EntryType = "TRANSACTION"
)

const (
	EntryNatureDebit  EntryNature = "DEBIT"
	EntryNatureCredit EntryNature = "CREDIT"
)

const (
	AssetClassCash AssetClass = "CASH"
	AssetClassGold AssetClass = "GOLD"
)

const (
	MarketStatusTradeable MarketStatus = "TRADEABLE"
	MarketStatusClosed    MarketStatus = "CLOSED"
)

func (s TradeSide) Valid() bool {
	return s == TradeSideBuy || s == TradeSideSell
}

// Opposite returns the side that closes a position opened on s.
func (s TradeSide) Opposite() TradeSide {
	if s == TradeSideBuy {
		return TradeSideSell
	}
	return TradeSideBuy
}
