package pricing

import (
	"testing"

	"goldtrade/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestNotional(t *testing.T) {
	// (85 / 31.103) * 116.64 * 1
	n := Notional(dec("85"), dec("1"))
	assert.Equal(t, "318.76", Round2(n).String())
}

func TestRequiredMargin(t *testing.T) {
	m := RequiredMargin(dec("85"), dec("1"), dec("2"))
	assert.Equal(t, "6.38", Round2(m).String())
}

func TestWorkedScenario(t *testing.T) {
	// Open BUY 1.0 at quoted ask 85.00, margin 2%; close at bid 86.00
	// with zero spread.
	margin := RequiredMargin(dec("85"), dec("1"), dec("2"))
	reserved := dec("1000").Sub(Round2(margin))
	assert.Equal(t, "993.62", reserved.String())

	profit := ClientProfit(types.TradeSideBuy, dec("85"), dec("86"), dec("1"))
	require.Equal(t, "3.75", Round2(profit).String())

	final := reserved.Add(Round2(margin)).Add(Round2(profit))
	assert.Equal(t, "1003.75", final.String())
}

func TestClientOpenPriceSpreadDirection(t *testing.T) {
	bid, ask := dec("84.90"), dec("85.00")
	bidSpread, askSpread := dec("0.25"), dec("0.30")

	buy := ClientOpenPrice(types.TradeSideBuy, bid, ask, bidSpread, askSpread)
	assert.True(t, buy.GreaterThanOrEqual(ask), "BUY fill must be at or above raw ask")
	assert.True(t, buy.Equal(dec("85.30")))

	sell := ClientOpenPrice(types.TradeSideSell, bid, ask, bidSpread, askSpread)
	assert.True(t, sell.LessThanOrEqual(bid), "SELL fill must be at or below raw bid")
	assert.True(t, sell.Equal(dec("84.65")))
}

func TestClientClosePriceSpreadDirection(t *testing.T) {
	bid, ask := dec("84.90"), dec("85.00")
	bidSpread, askSpread := dec("0.25"), dec("0.30")

	// Closing a BUY sells back at bid minus spread.
	buyClose := ClientClosePrice(types.TradeSideBuy, bid, ask, bidSpread, askSpread)
	assert.True(t, buyClose.Equal(dec("84.65")))

	// Closing a SELL buys back at ask plus spread.
	sellClose := ClientClosePrice(types.TradeSideSell, bid, ask, bidSpread, askSpread)
	assert.True(t, sellClose.Equal(dec("85.30")))
}

func TestClientProfitSign(t *testing.T) {
	up := ClientProfit(types.TradeSideBuy, dec("85"), dec("86"), dec("2"))
	assert.True(t, up.GreaterThan(decimal.Zero))

	down := ClientProfit(types.TradeSideSell, dec("85"), dec("86"), dec("2"))
	assert.True(t, down.LessThan(decimal.Zero))
	assert.True(t, up.Neg().Equal(down))
}

func TestSpreadLegIsAbsolute(t *testing.T) {
	a := SpreadLeg(dec("85.00"), dec("85.30"), dec("1"))
	b := SpreadLeg(dec("85.30"), dec("85.00"), dec("1"))
	assert.Equal(t, a.String(), b.String())
	assert.True(t, a.GreaterThan(decimal.Zero))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, "1.24", Round2(dec("1.235")).String())
	assert.Equal(t, "1.23", Round2(dec("1.234")).String())
}
