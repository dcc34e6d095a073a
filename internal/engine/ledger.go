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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newEntryID() string {
	return "LE-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

func (e *Engine) appendEntry(ctx context.Context, tx store.Tx, entry model.LedgerEntry) error {
	entry.ID = uuid.NewString()
	entry.EntryID = newEntryID()
	entry.CreatedAt = time.Now().UTC()
	if err := tx.AppendLedgerEntry(ctx, entry); err != nil {
		return err
	}
	metrics.LedgerEntries.WithLabelValues(string(entry.EntryType)).Inc()
	return nil
}

// appendOpeningEntries writes the four opening entries: order margin
// debit, LP position credit, cash transaction, gold transaction. Each
// carries the post-update running balance for the asset it touches.
func (e *Engine) appendOpeningEntries(ctx context.Context, tx store.Tx, acct model.Account, order model.Order, lp model.LPPosition, prevCash, prevMetal decimal.Decimal) error {
	margin := order.RequiredMargin
	goldNature := types.EntryNatureCredit
	if order.Side == types.TradeSideSell {
		goldNature = types.EntryNatureDebit
	}
	entries := []model.LedgerEntry{
		{
			AdminID:        acct.AdminID,
			AccountID:      acct.ID,
			EntryType:      types.EntryTypeOrder,
			RefNo:          order.OrderNo,
			Description:    "Margin reserved for " + string(order.Side) + " " + order.Symbol,
			Amount:         margin,
			Nature:         types.EntryNatureDebit,
			RunningBalance: acct.ReservedAmount,
			Order:          orderSnapshot(order),
		},
		{
			AdminID:        acct.AdminID,
			AccountID:      acct.ID,
			EntryType:      types.EntryTypeLPPosition,
			RefNo:          order.OrderNo,
			Description:    "LP position opened for " + order.OrderNo,
			Amount:         margin,
			Nature:         types.EntryNatureCredit,
			RunningBalance: acct.ReservedAmount,
			LP:             lpSnapshot(lp),
		},
		{
			AdminID:        acct.AdminID,
			AccountID:      acct.ID,
			EntryType:      types.EntryTypeTransaction,
			RefNo:          order.OrderNo,
			Description:    "Cash margin debit",
			Amount:         margin,
			Nature:         types.EntryNatureDebit,
			RunningBalance: acct.ReservedAmount,
			Transaction: &model.TransactionSnapshot{
				Asset:           types.AssetClassCash,
				PreviousBalance: prevCash,
				Amount:          margin,
			},
		},
		{
			AdminID:        acct.AdminID,
			AccountID:      acct.ID,
			EntryType:      types.EntryTypeTransaction,
			RefNo:          order.OrderNo,
			Description:    "Metal weight adjustment",
			Amount:         order.Volume,
			Nature:         goldNature,
			RunningBalance: acct.MetalWeight,
			Transaction: &model.TransactionSnapshot{
				Asset:           types.AssetClassGold,
				PreviousBalance: prevMetal,
				Amount:          order.Volume,
			},
		},
	}
	for _, entry := range entries {
		if err := e.appendEntry(ctx, tx, entry); err != nil {
			return err
		}
	}
	return nil
}

// appendClosingEntries mirrors the opening set and adds a fifth entry for
// the AMOUNTFC profit adjustment.
func (e *Engine) appendClosingEntries(ctx context.Context, tx store.Tx, acct model.Account, order model.Order, lp model.LPPosition, settlement, clientProfit, prevCash, prevMetal, prevFC decimal.Decimal) error {
	goldNature := types.EntryNatureDebit // metal leaves on BUY-close
	if order.Side == types.TradeSideSell {
		goldNature = types.EntryNatureCredit
	}
	profitNature := types.EntryNatureCredit
	if clientProfit.IsNegative() {
		profitNature = types.EntryNatureDebit
	}
	entries := []model.LedgerEntry{
		{
			AdminID:        acct.AdminID,
			AccountID:      acct.ID,
			EntryType:      types.EntryTypeOrder,
			RefNo:          order.OrderNo,
			Description:    "Margin released on close of " + order.OrderNo,
			Amount:         settlement,
			Nature:         types.EntryNatureCredit,
			RunningBalance: acct.ReservedAmount,
			Order:          orderSnapshot(order),
		},
		{
			AdminID:        acct.AdminID,
			AccountID:      acct.ID,
			EntryType:      types.EntryTypeLPPosition,
			RefNo:          order.OrderNo,
			Description:    "LP position closed for " + order.OrderNo,
			Amount:         settlement,
			Nature:         types.EntryNatureDebit,
			RunningBalance: acct.ReservedAmount,
			LP:             lpSnapshot(lp),
		},
		{
			AdminID:        acct.AdminID,
			AccountID:      acct.ID,
			EntryType:      types.EntryTypeTransaction,
			RefNo:          order.OrderNo,
			Description:    "Cash settlement",
			Amount:         pricing.Round2(settlement.Add(clientProfit)),
			Nature:         types.EntryNatureCredit,
			RunningBalance: acct.ReservedAmount,
			Transaction: &model.TransactionSnapshot{
				Asset:           types.AssetClassCash,
				PreviousBalance: prevCash,
				Amount:          pricing.Round2(settlement.Add(clientProfit)),
			},
		},
		{
			AdminID:        acct.AdminID,
			AccountID:      acct.ID,
			EntryType:      types.EntryTypeTransaction,
			RefNo:          order.OrderNo,
			Description:    "Metal weight settlement",
			Amount:         order.Volume,
			Nature:         goldNature,
			RunningBalance: acct.MetalWeight,
			Transaction: &model.TransactionSnapshot{
				Asset:           types.AssetClassGold,
				PreviousBalance: prevMetal,
				Amount:          order.Volume,
			},
		},
		{
			AdminID:        acct.AdminID,
			AccountID:      acct.ID,
			EntryType:      types.EntryTypeTransaction,
			RefNo:          order.OrderNo,
			Description:    "Profit adjustment",
			Amount:         clientProfit.Abs(),
			Nature:         profitNature,
			RunningBalance: acct.AmountFC,
			Transaction: &model.TransactionSnapshot{
				Asset:           types.AssetClassCash,
				PreviousBalance: prevFC,
				Amount:          clientProfit,
			},
		},
	}
	for _, entry := range entries {
		if err := e.appendEntry(ctx, tx, entry); err != nil {
			return err
		}
	}
	return nil
}

// reconcileMetal moves the account's metal holdings by the difference
// between an order's previous and newly filled volume and appends a
// correcting gold entry, keeping holdings in lockstep with the fill.
func (e *Engine) reconcileMetal(ctx context.Context, tx store.Tx, order model.Order, prevVolume decimal.Decimal) (model.Account, error) {
	acct, err := tx.GetAccountForUpdate(ctx, order.AdminID, order.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Account{}, ErrAccountNotFound
		}
		return model.Account{}, err
	}
	delta := order.Volume.Sub(prevVolume)
	if order.Side == types.TradeSideSell {
		delta = delta.Neg()
	}
	prevMetal := acct.MetalWeight
	acct.MetalWeight = acct.MetalWeight.Add(delta)
	if err := tx.UpdateAccountBalances(ctx, acct); err != nil {
		return model.Account{}, err
	}
	nature := types.EntryNatureCredit
	if delta.IsNegative() {
		nature = types.EntryNatureDebit
	}
	entry := model.LedgerEntry{
		AdminID:        order.AdminID,
		AccountID:      order.AccountID,
		EntryType:      types.EntryTypeTransaction,
		RefNo:          order.OrderNo,
		Description:    "Metal weight correction to filled volume",
		Amount:         delta.Abs(),
		Nature:         nature,
		RunningBalance: acct.MetalWeight,
		Transaction: &model.TransactionSnapshot{
			Asset:           types.AssetClassGold,
			PreviousBalance: prevMetal,
			Amount:          delta.Abs(),
		},
	}
	if err := e.appendEntry(ctx, tx, entry); err != nil {
		return model.Account{}, err
	}
	return acct, nil
}

func orderSnapshot(o model.Order) *model.OrderSnapshot {
	price := o.OpenPrice
	if o.ClosePrice != nil {
		price = *o.ClosePrice
	}
	return &model.OrderSnapshot{
		Symbol: o.Symbol,
		Side:   o.Side,
		Volume: o.Volume,
		Price:  price,
		Margin: o.RequiredMargin,
		Status: o.Status,
	}
}

func lpSnapshot(p model.LPPosition) *model.LPSnapshot {
	return &model.LPSnapshot{
		PositionID: p.PositionID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		Volume:     p.Volume,
		EntryPrice: p.EntryPrice,
		Profit:     p.Profit,
		Status:     p.Status,
	}
}
