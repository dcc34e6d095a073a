// Package pricing holds the pure margin/notional/profit math for gold
// trades. No I/O: everything here is deterministic so it can be tested
// independently of the transactional machinery.
//
// Intermediate math is carried at full decimal precision; amounts are
// rounded to 2 decimals only at the point of persistence (Round2).
package pricing

import (
	"goldtrade/internal/types"

	"github.com/shopspring/decimal"
)

var (
	// TroyOunceGrams converts a per-troy-ounce quote to per-gram.
	TroyOunceGrams = decimal.NewFromFloat(31.103)
	// UnitsPerStandardBar is the weight factor of one standard bar.
	UnitsPerStandardBar = decimal.NewFromFloat(116.64)
	// MinVolume is the smallest tradable lot.
	MinVolume = decimal.NewFromFloat(0.01)

	hundred = decimal.NewFromInt(100)
)

// Notional is the monetary value of volume at price, before margin
// percentage is applied: (price / troyOunceGrams) * unitsPerStandardBar * volume.
func Notional(price, volume decimal.Decimal) decimal.Decimal {
	return price.Div(TroyOunceGrams).Mul(UnitsPerStandardBar).Mul(volume)
}

// RequiredMargin is the cash reserved against an open position:
// notional * marginPercent / 100.
func RequiredMargin(price, volume, marginPercent decimal.Decimal) decimal.Decimal {
	return Notional(price, volume).Mul(marginPercent).Div(hundred)
}

// ClientOpenPrice adjusts the venue's raw bid/ask by the account spread in
// the direction that favors the house: BUY fills at ask + askSpread, SELL
// at bid - bidSpread.
func ClientOpenPrice(side types.TradeSide, bid, ask, bidSpread, askSpread decimal.Decimal) decimal.Decimal {
	if side == types.TradeSideBuy {
		return ask.Add(askSpread)
	}
	return bid.Sub(bidSpread)
}

// ClientClosePrice mirrors ClientOpenPrice on the closing leg: a BUY
// position closes at bid - bidSpread, a SELL at ask + askSpread, so the
// house captures spread on both legs.
func ClientClosePrice(side types.TradeSide, bid, ask, bidSpread, askSpread decimal.Decimal) decimal.Decimal {
	if side == types.TradeSideBuy {
		return bid.Sub(bidSpread)
	}
	return ask.Add(askSpread)
}

// ClientProfit is the signed difference between closing and opening
// notional, sign flipped for SELL.
func ClientProfit(side types.TradeSide, openPrice, closePrice, volume decimal.Decimal) decimal.Decimal {
	diff := Notional(closePrice, volume).Sub(Notional(openPrice, volume))
	if side == types.TradeSideSell {
		return diff.Neg()
	}
	return diff
}

// SpreadLeg is one leg of LP (spread-capture) profit: the absolute
// notional difference between the LP's own price and the client's price
// for the same fill. It is accumulated at open and again at close.
func SpreadLeg(lpPrice, clientPrice, volume decimal.Decimal) decimal.Decimal {
	return Notional(lpPrice.Sub(clientPrice).Abs(), volume)
}

// Round2 rounds a currency amount to 2 decimal places for persistence.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
