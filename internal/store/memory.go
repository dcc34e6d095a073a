package store

import (
	"context"
	"sync"

	"goldtrade/internal/model"
	"goldtrade/internal/types"
)

// Memory is an in-memory Store used by tests. Begin takes the store lock
// for the lifetime of the transaction, which gives trivially serializable
// semantics: only one transaction is ever in flight.
type Memory struct {
	mu       sync.Mutex
	accounts map[string]model.Account
	orders   map[string]model.Order
	lps      map[string]model.LPPosition // keyed by position_id
	profits  map[string]model.LPProfit   // keyed by order_no
	entries  []model.LedgerEntry
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]model.Account),
		orders:   make(map[string]model.Order),
		lps:      make(map[string]model.LPPosition),
		profits:  make(map[string]model.LPProfit),
	}
}

// AddAccount seeds an account outside any transaction.
func (m *Memory) AddAccount(a model.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
}

// Entries returns a snapshot of all committed ledger entries.
func (m *Memory) Entries() []model.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.LedgerEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *Memory) snapshot() *memState {
	st := &memState{
		accounts: make(map[string]model.Account, len(m.accounts)),
		orders:   make(map[string]model.Order, len(m.orders)),
		lps:      make(map[string]model.LPPosition, len(m.lps)),
		profits:  make(map[string]model.LPProfit, len(m.profits)),
		entries:  make([]model.LedgerEntry, len(m.entries)),
	}
	for k, v := range m.accounts {
		st.accounts[k] = v
	}
	for k, v := range m.orders {
		st.orders[k] = v
	}
	for k, v := range m.lps {
		st.lps[k] = v
	}
	for k, v := range m.profits {
		st.profits[k] = v
	}
	copy(st.entries, m.entries)
	return st
}

func (m *Memory) Begin(ctx context.Context) (Tx, error) {
	m.mu.Lock()
	return &memTx{parent: m, state: m.snapshot()}, nil
}

func (m *Memory) CreateAccount(ctx context.Context, a model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.ID]; ok {
		return ErrConflict
	}
	m.accounts[a.ID] = a
	return nil
}

func (m *Memory) ListAccounts(ctx context.Context, adminID string) ([]model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Account
	for _, a := range m.accounts {
		if a.AdminID == adminID && !a.IsDeleted {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) UpdateAccountSettings(ctx context.Context, a model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.accounts[a.ID]
	if !ok || cur.AdminID != a.AdminID || cur.IsDeleted {
		return ErrNotFound
	}
	cur.Name = a.Name
	cur.BidSpread = a.BidSpread
	cur.AskSpread = a.AskSpread
	cur.MarginPercent = a.MarginPercent
	cur.UpdatedAt = a.UpdatedAt
	m.accounts[a.ID] = cur
	return nil
}

func (m *Memory) SoftDeleteAccount(ctx context.Context, adminID, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok || a.AdminID != adminID || a.IsDeleted {
		return ErrNotFound
	}
	a.IsDeleted = true
	m.accounts[accountID] = a
	return nil
}

func (m *Memory) GetAccount(ctx context.Context, adminID, accountID string) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok || a.AdminID != adminID || a.IsDeleted {
		return model.Account{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) GetOrder(ctx context.Context, adminID, orderID string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.AdminID != adminID {
		return model.Order{}, ErrNotFound
	}
	return o, nil
}

func (m *Memory) ListOrdersByStatus(ctx context.Context, adminID string, status types.OrderStatus) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Order
	for _, o := range m.orders {
		if o.AdminID == adminID && o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *Memory) ListProcessingOrders(ctx context.Context) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Order
	for _, o := range m.orders {
		if o.Status == types.OrderStatusProcessing {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *Memory) ListLedgerEntries(ctx context.Context, adminID, refNo string) ([]model.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.LedgerEntry
	for _, e := range m.entries {
		if e.AdminID == adminID && (refNo == "" || e.RefNo == refNo) {
			out = append(out, e)
		}
	}
	return out, nil
}

type memState struct {
	accounts map[string]model.Account
	orders   map[string]model.Order
	lps      map[string]model.LPPosition
	profits  map[string]model.LPProfit
	entries  []model.LedgerEntry
}

type memTx struct {
	parent *Memory
	state  *memState
	done   bool
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrConflict
	}
	t.parent.accounts = t.state.accounts
	t.parent.orders = t.state.orders
	t.parent.lps = t.state.lps
	t.parent.profits = t.state.profits
	t.parent.entries = t.state.entries
	t.done = true
	t.parent.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.parent.mu.Unlock()
	return nil
}

func (t *memTx) GetAccountForUpdate(ctx context.Context, adminID, accountID string) (model.Account, error) {
	a, ok := t.state.accounts[accountID]
	if !ok || a.AdminID != adminID || a.IsDeleted {
		return model.Account{}, ErrNotFound
	}
	return a, nil
}

func (t *memTx) UpdateAccountBalances(ctx context.Context, a model.Account) error {
	if _, ok := t.state.accounts[a.ID]; !ok {
		return ErrNotFound
	}
	t.state.accounts[a.ID] = a
	return nil
}

func (t *memTx) CreateOrder(ctx context.Context, o model.Order) error {
	t.state.orders[o.ID] = o
	return nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, adminID, orderID string) (model.Order, error) {
	o, ok := t.state.orders[orderID]
	if !ok || o.AdminID != adminID {
		return model.Order{}, ErrNotFound
	}
	return o, nil
}

func (t *memTx) UpdateOrder(ctx context.Context, o model.Order) error {
	if _, ok := t.state.orders[o.ID]; !ok {
		return ErrNotFound
	}
	t.state.orders[o.ID] = o
	return nil
}

func (t *memTx) CreateLPPosition(ctx context.Context, p model.LPPosition) error {
	t.state.lps[p.PositionID] = p
	return nil
}

func (t *memTx) GetLPPositionForUpdate(ctx context.Context, adminID, positionID string) (model.LPPosition, error) {
	p, ok := t.state.lps[positionID]
	if !ok || p.AdminID != adminID {
		return model.LPPosition{}, ErrNotFound
	}
	return p, nil
}

func (t *memTx) UpdateLPPosition(ctx context.Context, p model.LPPosition) error {
	if _, ok := t.state.lps[p.PositionID]; !ok {
		return ErrNotFound
	}
	t.state.lps[p.PositionID] = p
	return nil
}

func (t *memTx) AppendLedgerEntry(ctx context.Context, e model.LedgerEntry) error {
	t.state.entries = append(t.state.entries, e)
	return nil
}

func (t *memTx) CreateLPProfit(ctx context.Context, p model.LPProfit) error {
	t.state.profits[p.OrderNo] = p
	return nil
}

func (t *memTx) GetLPProfitForUpdate(ctx context.Context, adminID, orderNo string) (model.LPProfit, error) {
	p, ok := t.state.profits[orderNo]
	if !ok || p.AdminID != adminID {
		return model.LPProfit{}, ErrNotFound
	}
	return p, nil
}

func (t *memTx) UpdateLPProfit(ctx context.Context, p model.LPProfit) error {
	if _, ok := t.state.profits[p.OrderNo]; !ok {
		return ErrNotFound
	}
	t.state.profits[p.OrderNo] = p
	return nil
}
