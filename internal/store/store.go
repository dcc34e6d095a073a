// Package store defines the ledger persistence interface of the trade
// engine. PostgreSQL is the production implementation; the in-memory
// implementation backs unit tests.
package store

import (
	"context"
	"errors"

	"goldtrade/internal/model"
	"goldtrade/internal/types"
)

var (
	// ErrNotFound is returned for missing or admin-foreign records.
	ErrNotFound = errors.New("record not found")
	// ErrConflict marks a serialization failure; callers may retry the
	// whole operation.
	ErrConflict = errors.New("transaction conflict")
)

// Store opens transactions and serves non-transactional reads. All
// queries are admin-scoped: an admin never sees another admin's rows.
type Store interface {
	// Begin opens a serializable transaction.
	Begin(ctx context.Context) (Tx, error)

	CreateAccount(ctx context.Context, a model.Account) error
	GetAccount(ctx context.Context, adminID, accountID string) (model.Account, error)
	ListAccounts(ctx context.Context, adminID string) ([]model.Account, error)
	UpdateAccountSettings(ctx context.Context, a model.Account) error
	SoftDeleteAccount(ctx context.Context, adminID, accountID string) error

	GetOrder(ctx context.Context, adminID, orderID string) (model.Order, error)
	ListOrdersByStatus(ctx context.Context, adminID string, status types.OrderStatus) ([]model.Order, error)
	ListLedgerEntries(ctx context.Context, adminID, refNo string) ([]model.LedgerEntry, error)

	// ListProcessingOrders returns PROCESSING orders across all admins,
	// for the reconciliation sweep.
	ListProcessingOrders(ctx context.Context) ([]model.Order, error)
}

// Tx is the unit-of-work handed to engine operations. An operation either
// receives one from its caller (nested participation, lifecycle owned by
// the caller) or opens its own via Store.Begin.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	GetAccountForUpdate(ctx context.Context, adminID, accountID string) (model.Account, error)
	UpdateAccountBalances(ctx context.Context, a model.Account) error

	CreateOrder(ctx context.Context, o model.Order) error
	GetOrderForUpdate(ctx context.Context, adminID, orderID string) (model.Order, error)
	UpdateOrder(ctx context.Context, o model.Order) error

	CreateLPPosition(ctx context.Context, p model.LPPosition) error
	GetLPPositionForUpdate(ctx context.Context, adminID, positionID string) (model.LPPosition, error)
	UpdateLPPosition(ctx context.Context, p model.LPPosition) error

	AppendLedgerEntry(ctx context.Context, e model.LedgerEntry) error

	CreateLPProfit(ctx context.Context, p model.LPProfit) error
	GetLPProfitForUpdate(ctx context.Context, adminID, orderNo string) (model.LPProfit, error)
	UpdateLPProfit(ctx context.Context, p model.LPProfit) error
}
