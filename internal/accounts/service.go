// Package accounts manages trading accounts: provisioning, spread and
// margin settings, and cash funding. Position balances are mutated only
// by the trade engine; funding here goes through the same ledger.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"goldtrade/internal/model"
	"goldtrade/internal/store"
	"goldtrade/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

var maxMarginPercent = decimal.NewFromInt(100)

type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Settings are the per-account trading parameters an admin can change.
type Settings struct {
	Name          string          `json:"name"`
	BidSpread     decimal.Decimal `json:"bid_spread"`
	AskSpread     decimal.Decimal `json:"ask_spread"`
	MarginPercent decimal.Decimal `json:"margin_percent"`
}

func (s Settings) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("name is required")
	}
	if s.BidSpread.IsNegative() || s.AskSpread.IsNegative() {
		return errors.New("spreads must not be negative")
	}
	if !s.MarginPercent.GreaterThan(decimal.Zero) || s.MarginPercent.GreaterThan(maxMarginPercent) {
		return errors.New("margin percent must be in (0, 100]")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, adminID string, settings Settings, initialFunds decimal.Decimal) (model.Account, error) {
	if err := settings.validate(); err != nil {
		return model.Account{}, err
	}
	if initialFunds.IsNegative() {
		return model.Account{}, errors.New("initial funds must not be negative")
	}
	now := time.Now().UTC()
	a := model.Account{
		ID:             uuid.NewString(),
		AdminID:        adminID,
		Name:           strings.TrimSpace(settings.Name),
		ReservedAmount: initialFunds,
		AmountFC:       decimal.Zero,
		MetalWeight:    decimal.Zero,
		BidSpread:      settings.BidSpread,
		AskSpread:      settings.AskSpread,
		MarginPercent:  settings.MarginPercent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return model.Account{}, err
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, adminID string) ([]model.Account, error) {
	return s.store.ListAccounts(ctx, adminID)
}

func (s *Service) Get(ctx context.Context, adminID, accountID string) (model.Account, error) {
	a, err := s.store.GetAccount(ctx, adminID, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Account{}, ErrNotFound
	}
	return a, err
}

func (s *Service) UpdateSettings(ctx context.Context, adminID, accountID string, settings Settings) (model.Account, error) {
	if err := settings.validate(); err != nil {
		return model.Account{}, err
	}
	a, err := s.Get(ctx, adminID, accountID)
	if err != nil {
		return model.Account{}, err
	}
	a.Name = strings.TrimSpace(settings.Name)
	a.BidSpread = settings.BidSpread
	a.AskSpread = settings.AskSpread
	a.MarginPercent = settings.MarginPercent
	a.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateAccountSettings(ctx, a); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, err
	}
	return a, nil
}

func (s *Service) Delete(ctx context.Context, adminID, accountID string) error {
	err := s.store.SoftDeleteAccount(ctx, adminID, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Deposit credits free cash to the account and appends a ledger entry
// in the same transaction, so funding shows up in the audit trail like
// every other balance change.
func (s *Service) Deposit(ctx context.Context, adminID, accountID string, amount decimal.Decimal) (model.Account, error) {
	if !amount.GreaterThan(decimal.Zero) {
		return model.Account{}, errors.New("amount must be positive")
	}
	return s.adjustReserved(ctx, adminID, accountID, amount, types.EntryNatureCredit, "Cash deposit")
}

// Withdraw debits free cash. Reserved margin is untouched: only funds
// not backing an open position can leave the account.
func (s *Service) Withdraw(ctx context.Context, adminID, accountID string, amount decimal.Decimal) (model.Account, error) {
	if !amount.GreaterThan(decimal.Zero) {
		return model.Account{}, errors.New("amount must be positive")
	}
	return s.adjustReserved(ctx, adminID, accountID, amount, types.EntryNatureDebit, "Cash withdrawal")
}

func (s *Service) adjustReserved(ctx context.Context, adminID, accountID string, amount decimal.Decimal, nature types.EntryNature, description string) (model.Account, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return model.Account{}, err
	}
	defer tx.Rollback(ctx)

	a, err := tx.GetAccountForUpdate(ctx, adminID, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, err
	}
	prev := a.ReservedAmount
	if nature == types.EntryNatureCredit {
		a.ReservedAmount = a.ReservedAmount.Add(amount)
	} else {
		if a.ReservedAmount.LessThan(amount) {
			return model.Account{}, ErrInsufficientFunds
		}
		a.ReservedAmount = a.ReservedAmount.Sub(amount)
	}
	a.UpdatedAt = time.Now().UTC()
	if err := tx.UpdateAccountBalances(ctx, a); err != nil {
		return model.Account{}, err
	}

	entry := model.LedgerEntry{
		ID:             uuid.NewString(),
		EntryID:        newEntryID(),
		AdminID:        adminID,
		AccountID:      accountID,
		EntryType:      types.EntryTypeTransaction,
		RefNo:          fmt.Sprintf("FUND-%d", time.Now().UTC().UnixNano()),
		Description:    description,
		Amount:         amount,
		Nature:         nature,
		RunningBalance: a.ReservedAmount,
		Transaction: &model.TransactionSnapshot{
			Asset:           types.AssetClassCash,
			PreviousBalance: prev,
			Amount:          amount,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.AppendLedgerEntry(ctx, entry); err != nil {
		return model.Account{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Account{}, err
	}
	return a, nil
}

func newEntryID() string {
	return "LE-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
