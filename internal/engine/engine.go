// Package engine implements the order lifecycle and settlement core: it
// turns a confirmed trade draft into an open position and later unwinds
// it, keeping account balances and the ledger consistent with the
// venue's fills.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"goldtrade/internal/metrics"
	"goldtrade/internal/model"
	"goldtrade/internal/pricing"
	"goldtrade/internal/store"
	"goldtrade/internal/types"
	"goldtrade/internal/venue"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	maxTxAttempts = 3
	txBackoff     = 50 * time.Millisecond
)

type Engine struct {
	store   store.Store
	venue   venue.Gateway
	symbols map[string]string // client symbol -> venue symbol
	magic   int64
}

func New(st store.Store, gw venue.Gateway, symbols map[string]string, magic int64) *Engine {
	return &Engine{store: st, venue: gw, symbols: symbols, magic: magic}
}

// Draft is a confirmed trade intent from the session layer.
type Draft struct {
	Symbol      string
	Side        types.TradeSide
	Volume      decimal.Decimal
	QuotedPrice decimal.Decimal
	Comment     string
}

// Balances is the account snapshot returned with every engine result.
type Balances struct {
	ReservedAmount decimal.Decimal `json:"reserved_amount"`
	AmountFC       decimal.Decimal `json:"amount_fc"`
	MetalWeight    decimal.Decimal `json:"metal_weight"`
}

func balancesOf(a model.Account) Balances {
	return Balances{ReservedAmount: a.ReservedAmount, AmountFC: a.AmountFC, MetalWeight: a.MetalWeight}
}

// OpenResult is returned from a successful OpenTrade.
type OpenResult struct {
	Order    model.Order      `json:"order"`
	Position model.LPPosition `json:"position"`
	Balances Balances         `json:"balances"`
}

// runInTx runs fn in a unit of work. When the caller supplies tx, the
// engine participates in it and leaves commit/rollback to the caller.
// When tx is nil the engine opens its own transaction and retries
// serialization conflicts a bounded number of times with linear backoff.
func (e *Engine) runInTx(ctx context.Context, tx store.Tx, fn func(store.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * txBackoff):
			}
		}
		own, err := e.store.Begin(ctx)
		if err != nil {
			return err
		}
		if err = fn(own); err == nil {
			err = own.Commit(ctx)
		} else {
			_ = own.Rollback(ctx)
		}
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (e *Engine) venueSymbol(symbol string) (string, bool) {
	v, ok := e.symbols[symbol]
	return v, ok
}

func (e *Engine) validateDraft(d Draft) error {
	if !d.Side.Valid() {
		return &ValidationError{Reason: "direction must be BUY or SELL"}
	}
	if d.Volume.LessThan(pricing.MinVolume) {
		return &ValidationError{Reason: "volume must be at least " + pricing.MinVolume.String()}
	}
	if d.QuotedPrice.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Reason: "quoted price must be positive"}
	}
	if _, ok := e.venueSymbol(d.Symbol); !ok {
		return &ValidationError{Reason: "unsupported symbol " + d.Symbol}
	}
	return nil
}

// OpenTrade opens a position for the account: margin check, durable
// PROCESSING record, balance debit and ledger entries, then the venue
// call, all in one transaction. Pass tx to participate in an outer unit
// of work, or nil to let the engine manage its own.
func (e *Engine) OpenTrade(ctx context.Context, tx store.Tx, adminID, accountID string, draft Draft) (OpenResult, error) {
	if err := e.validateDraft(draft); err != nil {
		return OpenResult{}, err
	}
	vsym, _ := e.venueSymbol(draft.Symbol)

	var res OpenResult
	err := e.runInTx(ctx, tx, func(utx store.Tx) error {
		acct, err := utx.GetAccountForUpdate(ctx, adminID, accountID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrAccountNotFound
			}
			return err
		}

		// Margin math uses the quoted price from confirmation time.
		margin := pricing.Round2(pricing.RequiredMargin(draft.QuotedPrice, draft.Volume, acct.MarginPercent))
		if margin.GreaterThan(acct.ReservedAmount) {
			return &InsufficientBalanceError{Required: margin, Available: acct.ReservedAmount}
		}

		now := time.Now().UTC()
		orderNo := newOrderNo()
		order := model.Order{
			ID:             uuid.NewString(),
			OrderNo:        orderNo,
			AdminID:        adminID,
			AccountID:      accountID,
			Symbol:         draft.Symbol,
			Side:           draft.Side,
			Volume:         draft.Volume,
			OpenPrice:      draft.QuotedPrice,
			RequiredMargin: margin,
			Status:         types.OrderStatusProcessing,
			Comment:        draft.Comment,
			OpenDate:       now,
		}
		// Durable local record before the venue is contacted: a crash
		// between venue-accept and commit leaves a PROCESSING row the
		// reconciliation sweep can match by order number.
		if err := utx.CreateOrder(ctx, order); err != nil {
			return err
		}
		lp := model.LPPosition{
			ID:           uuid.NewString(),
			PositionID:   orderNo,
			AdminID:      adminID,
			AccountID:    accountID,
			Symbol:       draft.Symbol,
			Side:         draft.Side,
			Volume:       draft.Volume,
			EntryPrice:   draft.QuotedPrice,
			CurrentPrice: draft.QuotedPrice,
			Status:       types.PositionStatusOpen,
			OpenDate:     now,
		}
		if err := utx.CreateLPPosition(ctx, lp); err != nil {
			return err
		}
		if err := utx.CreateLPProfit(ctx, model.LPProfit{
			ID:        uuid.NewString(),
			AdminID:   adminID,
			OrderNo:   orderNo,
			Status:    types.PositionStatusOpen,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return err
		}

		prevCash := acct.ReservedAmount
		prevMetal := acct.MetalWeight
		acct.ReservedAmount = pricing.Round2(acct.ReservedAmount.Sub(margin))
		if draft.Side == types.TradeSideBuy {
			acct.MetalWeight = acct.MetalWeight.Add(draft.Volume)
		} else {
			acct.MetalWeight = acct.MetalWeight.Sub(draft.Volume)
		}
		if err := utx.UpdateAccountBalances(ctx, acct); err != nil {
			return err
		}

		if err := e.appendOpeningEntries(ctx, utx, acct, order, lp, prevCash, prevMetal); err != nil {
			return err
		}

		// Venue leg: symbol check, live price, placement. Any failure
		// past this point aborts the transaction as a whole.
		info, err := e.venue.GetSymbolInfo(ctx, vsym)
		if err != nil {
			return err
		}
		if !info.Tradable() {
			return &venue.Error{Message: "symbol " + vsym + " not tradable"}
		}
		volume := info.StepVolume(draft.Volume)

		quote, err := e.venue.GetPrice(ctx, vsym)
		if err != nil {
			return err
		}
		fill, err := e.venue.PlaceTrade(ctx, venue.TradeRequest{
			Symbol:  vsym,
			Side:    draft.Side,
			Volume:  volume,
			Comment: orderNo,
			Magic:   e.magic,
		})
		if err != nil {
			return err
		}

		// Client-visible fill price is spread-adjusted away from the
		// venue's raw price, in the house's favor.
		clientFill := pricing.ClientOpenPrice(draft.Side, quote.Bid, quote.Ask, acct.BidSpread, acct.AskSpread)
		openStatus := types.OrderStatusOpen
		upd, err := e.applyUpdateInTx(ctx, utx, adminID, order.ID, Patch{
			Status:    &openStatus,
			Ticket:    &fill.Ticket,
			OpenPrice: &clientFill,
			Volume:    &fill.Volume,
		})
		if err != nil {
			return err
		}
		// The venue may have stepped the volume; the update above then
		// corrected the metal holdings, so its balances are current.
		bal := balancesOf(acct)
		if !fill.Volume.Equal(draft.Volume) {
			bal = upd.Balances
		}

		// LP entry price is the venue's raw fill; its profit records the
		// opening-leg spread capture.
		openLeg := pricing.Round2(pricing.SpreadLeg(fill.Price, clientFill, fill.Volume))
		lp.EntryPrice = fill.Price
		lp.CurrentPrice = fill.Price
		lp.Volume = fill.Volume
		lp.Profit = openLeg
		if err := utx.UpdateLPPosition(ctx, lp); err != nil {
			return err
		}
		profit, err := utx.GetLPProfitForUpdate(ctx, adminID, orderNo)
		if err != nil {
			return err
		}
		profit.Value = openLeg
		if err := utx.UpdateLPProfit(ctx, profit); err != nil {
			return err
		}

		res = OpenResult{Order: upd.Order, Position: lp, Balances: bal}
		return nil
	})
	if err != nil {
		var ve *venue.Error
		if tx == nil && errors.As(err, &ve) {
			// The attempt rolled back whole; keep a FAILED record for
			// audit without any balance or ledger effect.
			e.recordFailedOrder(ctx, adminID, accountID, draft, ve)
			metrics.OrdersFailed.Inc()
		}
		return OpenResult{}, err
	}
	metrics.OrdersOpened.WithLabelValues(string(draft.Side)).Inc()
	return res, nil
}

// recordFailedOrder persists a FAILED order after a venue rejection, in
// its own transaction. Best effort: a failure here only costs the audit
// row, the caller already has the venue error.
func (e *Engine) recordFailedOrder(ctx context.Context, adminID, accountID string, draft Draft, cause *venue.Error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return
	}
	defer tx.Rollback(ctx)
	now := time.Now().UTC()
	order := model.Order{
		ID:             uuid.NewString(),
		OrderNo:        newOrderNo(),
		AdminID:        adminID,
		AccountID:      accountID,
		Symbol:         draft.Symbol,
		Side:           draft.Side,
		Volume:         draft.Volume,
		OpenPrice:      draft.QuotedPrice,
		RequiredMargin: decimal.Zero,
		Status:         types.OrderStatusFailed,
		Comment:        strings.TrimSpace(draft.Comment + " | " + cause.Message),
		OpenDate:       now,
	}
	if err := tx.CreateOrder(ctx, order); err != nil {
		return
	}
	_ = tx.Commit(ctx)
}

func newOrderNo() string {
	return "GT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
