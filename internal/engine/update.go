package engine

import (
	"context"
	"errors"
	"time"

	"goldtrade/internal/metrics"
	"goldtrade/internal/model"
	"goldtrade/internal/pricing"
	"goldtrade/internal/store"
	"goldtrade/internal/types"
	"goldtrade/internal/venue"

	"github.com/shopspring/decimal"
)

// Patch is the allow-listed field set for UpdateTrade. Nil fields are
// left untouched; anything outside this set cannot be changed through
// the update path at all.
type Patch struct {
	Status            *types.OrderStatus
	ClosePrice        *decimal.Decimal
	CloseDate         *time.Time
	Profit            *decimal.Decimal
	Comment           *string
	OpenPrice         *decimal.Decimal
	Ticket            *int64
	Volume            *decimal.Decimal
	Symbol            *string
	NotificationError *string
}

func (p Patch) requestsClose() bool {
	return p.Status != nil && *p.Status == types.OrderStatusClosed
}

// UpdateResult is returned from UpdateTrade. Profit is set only when the
// update closed the order.
type UpdateResult struct {
	Order    model.Order      `json:"order"`
	Balances Balances         `json:"balances"`
	Profit   *decimal.Decimal `json:"profit,omitempty"`
}

// UpdateTrade applies an allow-listed patch to an order. When the patch
// transitions the order to CLOSED it runs the full closing algorithm:
// venue close, spread-adjusted close price, profit settlement, LP close,
// and five closing ledger entries, all in one transaction. Pass tx to
// participate in an outer unit of work, or nil for a self-managed one.
func (e *Engine) UpdateTrade(ctx context.Context, tx store.Tx, adminID, orderID string, patch Patch) (UpdateResult, error) {
	var res UpdateResult
	err := e.runInTx(ctx, tx, func(utx store.Tx) error {
		order, err := utx.GetOrderForUpdate(ctx, adminID, orderID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if patch.requestsClose() {
			if order.Status == types.OrderStatusClosed {
				return ErrAlreadyClosed
			}
			// Only OPEN and PROCESSING orders ever debited margin or
			// metal; settling anything else would corrupt balances.
			if order.Status != types.OrderStatusOpen && order.Status != types.OrderStatusProcessing {
				return ErrOrderNotOpen
			}
			res, err = e.closeInTx(ctx, utx, order, patch)
			return err
		}
		res, err = e.applyUpdateInTx(ctx, utx, adminID, orderID, patch)
		return err
	})
	if err != nil {
		return UpdateResult{}, err
	}
	if patch.requestsClose() {
		metrics.OrdersClosed.WithLabelValues(string(res.Order.Side)).Inc()
	}
	return res, nil
}

// applyUpdateInTx is the non-closing update primitive: allow-listed
// field application plus save. The opening path routes its venue-accept
// update through here as well.
func (e *Engine) applyUpdateInTx(ctx context.Context, tx store.Tx, adminID, orderID string, patch Patch) (UpdateResult, error) {
	order, err := tx.GetOrderForUpdate(ctx, adminID, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return UpdateResult{}, ErrOrderNotFound
		}
		return UpdateResult{}, err
	}
	prevVolume := order.Volume
	applyPatch(&order, patch)
	order.UpdatedAt = time.Now().UTC()
	if err := tx.UpdateOrder(ctx, order); err != nil {
		return UpdateResult{}, err
	}
	res := UpdateResult{Order: order}
	// A fill attached with a different volume than was requested has to
	// move the metal holdings too, or they drift from the filled volume.
	if patch.Volume != nil && !order.Volume.Equal(prevVolume) &&
		order.Status != types.OrderStatusFailed && order.Status != types.OrderStatusClosed {
		acct, err := e.reconcileMetal(ctx, tx, order, prevVolume)
		if err != nil {
			return UpdateResult{}, err
		}
		res.Balances = balancesOf(acct)
	}
	return res, nil
}

func applyPatch(order *model.Order, patch Patch) {
	if patch.Status != nil {
		order.Status = *patch.Status
	}
	if patch.ClosePrice != nil {
		order.ClosePrice = patch.ClosePrice
	}
	if patch.CloseDate != nil {
		order.CloseDate = patch.CloseDate
	}
	if patch.Profit != nil {
		order.Profit = patch.Profit
	}
	if patch.Comment != nil {
		order.Comment = *patch.Comment
	}
	if patch.OpenPrice != nil {
		order.OpenPrice = *patch.OpenPrice
	}
	if patch.Ticket != nil {
		order.Ticket = patch.Ticket
	}
	if patch.Volume != nil {
		order.Volume = *patch.Volume
	}
	if patch.Symbol != nil {
		order.Symbol = *patch.Symbol
	}
	if patch.NotificationError != nil {
		order.NotificationError = patch.NotificationError
	}
}

func (e *Engine) closeInTx(ctx context.Context, tx store.Tx, order model.Order, patch Patch) (UpdateResult, error) {
	acct, err := tx.GetAccountForUpdate(ctx, order.AdminID, order.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return UpdateResult{}, ErrAccountNotFound
		}
		return UpdateResult{}, err
	}

	rawClose, err := e.venueClosePrice(ctx, order)
	if err != nil {
		return UpdateResult{}, err
	}

	// Spread is applied against the client on the closing leg too: a BUY
	// closes below the raw price, a SELL above it.
	clientClose := pricing.ClientClosePrice(order.Side, rawClose, rawClose, acct.BidSpread, acct.AskSpread)
	clientProfit := pricing.Round2(pricing.ClientProfit(order.Side, order.OpenPrice, clientClose, order.Volume))
	settlement := order.RequiredMargin

	prevCash := acct.ReservedAmount
	prevMetal := acct.MetalWeight
	prevFC := acct.AmountFC
	acct.ReservedAmount = pricing.Round2(acct.ReservedAmount.Add(settlement).Add(clientProfit))
	acct.AmountFC = pricing.Round2(acct.AmountFC.Add(clientProfit))
	if order.Side == types.TradeSideBuy {
		acct.MetalWeight = acct.MetalWeight.Sub(order.Volume)
	} else {
		acct.MetalWeight = acct.MetalWeight.Add(order.Volume)
	}
	if err := tx.UpdateAccountBalances(ctx, acct); err != nil {
		return UpdateResult{}, err
	}

	now := time.Now().UTC()
	closeDate := now
	if patch.CloseDate != nil {
		closeDate = *patch.CloseDate
	}

	lp, err := tx.GetLPPositionForUpdate(ctx, order.AdminID, order.OrderNo)
	if err != nil {
		return UpdateResult{}, err
	}
	closeLeg := pricing.Round2(pricing.SpreadLeg(rawClose, clientClose, order.Volume))
	lp.ClosePrice = &rawClose
	lp.CurrentPrice = rawClose
	lp.Profit = pricing.Round2(lp.Profit.Add(closeLeg))
	lp.Status = types.PositionStatusClosed
	lp.CloseDate = &closeDate
	if err := tx.UpdateLPPosition(ctx, lp); err != nil {
		return UpdateResult{}, err
	}

	applyPatch(&order, patch)
	order.Status = types.OrderStatusClosed
	order.ClosePrice = &clientClose
	order.CloseDate = &closeDate
	order.Profit = &clientProfit
	order.UpdatedAt = now
	if err := tx.UpdateOrder(ctx, order); err != nil {
		return UpdateResult{}, err
	}

	if err := e.appendClosingEntries(ctx, tx, acct, order, lp, settlement, clientProfit, prevCash, prevMetal, prevFC); err != nil {
		return UpdateResult{}, err
	}

	profit, err := tx.GetLPProfitForUpdate(ctx, order.AdminID, order.OrderNo)
	if err != nil {
		return UpdateResult{}, err
	}
	profit.Value = pricing.Round2(profit.Value.Add(closeLeg))
	profit.Status = types.PositionStatusClosed
	profit.UpdatedAt = now
	if err := tx.UpdateLPProfit(ctx, profit); err != nil {
		return UpdateResult{}, err
	}

	return UpdateResult{Order: order, Balances: balancesOf(acct), Profit: &clientProfit}, nil
}

// venueClosePrice obtains the raw price the order closed at. With a
// ticket it asks the venue to close; when the venue reports the position
// already gone, or the order never got a ticket, the price is synthesized
// from the current quote so the local ledger can still be settled.
func (e *Engine) venueClosePrice(ctx context.Context, order model.Order) (decimal.Decimal, error) {
	vsym, ok := e.venueSymbol(order.Symbol)
	if !ok {
		vsym = order.Symbol
	}
	if order.Ticket != nil {
		result, err := e.venue.CloseTrade(ctx, venue.CloseRequest{
			Ticket:    *order.Ticket,
			Symbol:    vsym,
			Side:      order.Side,
			Volume:    order.Volume,
			OpenPrice: order.OpenPrice,
		})
		if err != nil {
			return decimal.Decimal{}, err
		}
		if result.Outcome == venue.CloseDone {
			return result.Price, nil
		}
		metrics.RecoveredCloses.Inc()
	}
	quote, err := e.venue.GetPrice(ctx, vsym)
	if err != nil {
		return decimal.Decimal{}, err
	}
	// The closing deal runs opposite the open direction, so it fills on
	// that side of the quote: bid for a BUY close, ask for a SELL close.
	if order.Side.Opposite() == types.TradeSideSell {
		return quote.Bid, nil
	}
	return quote.Ask, nil
}
