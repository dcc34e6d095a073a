// Package session is the command layer in front of the trade engine: it
// holds per-account draft state while a trade is being assembled step by
// step, and hands the completed draft to the engine on confirmation.
// Draft state is owned by the Manager and lives only in memory; an
// unconfirmed draft costs nothing to cancel.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"goldtrade/internal/engine"
	"goldtrade/internal/store"
	"goldtrade/internal/types"
	"goldtrade/internal/venue"

	"github.com/shopspring/decimal"
)

// Step is the stage a draft is waiting at.
type Step string

const (
	StepVolume  Step = "volume"
	StepConfirm Step = "confirm"
)

var (
	ErrNoDraft      = errors.New("no trade in progress")
	ErrDraftExists  = errors.New("a trade is already in progress")
	ErrDraftExpired = errors.New("trade draft expired")
	ErrWrongStep    = errors.New("unexpected step for this command")
)

// DraftTTL is how long an unconfirmed draft survives between commands.
var DraftTTL = 5 * time.Minute

// Trader is the slice of the engine the session layer drives.
type Trader interface {
	OpenTrade(ctx context.Context, tx store.Tx, adminID, accountID string, draft engine.Draft) (engine.OpenResult, error)
}

// Quoter provides the live quote shown to the user before confirmation.
type Quoter interface {
	GetPrice(ctx context.Context, symbol string) (venue.Quote, error)
}

// Draft is the in-flight trade state for one account.
type Draft struct {
	AdminID   string
	AccountID string
	Symbol    string
	Side      types.TradeSide
	Volume    decimal.Decimal
	Quote     venue.Quote
	Step      Step
	UpdatedAt time.Time
}

type Manager struct {
	mu      sync.Mutex
	drafts  map[string]*Draft
	trader  Trader
	quoter  Quoter
	symbols map[string]string
	now     func() time.Time
}

func NewManager(trader Trader, quoter Quoter, symbols map[string]string) *Manager {
	return &Manager{
		drafts:  make(map[string]*Draft),
		trader:  trader,
		quoter:  quoter,
		symbols: symbols,
		now:     time.Now,
	}
}

func key(adminID, accountID string) string {
	return adminID + "/" + accountID
}

func (m *Manager) get(adminID, accountID string) (*Draft, error) {
	d, ok := m.drafts[key(adminID, accountID)]
	if !ok {
		return nil, ErrNoDraft
	}
	if m.now().Sub(d.UpdatedAt) > DraftTTL {
		delete(m.drafts, key(adminID, accountID))
		return nil, ErrDraftExpired
	}
	return d, nil
}

// Start begins a draft for the account. Only one draft per account can
// be in flight.
func (m *Manager) Start(adminID, accountID, symbol string, side types.TradeSide) (Draft, error) {
	if !side.Valid() {
		return Draft{}, errors.New("direction must be BUY or SELL")
	}
	if _, ok := m.symbols[symbol]; !ok {
		return Draft{}, errors.New("unsupported symbol " + symbol)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, err := m.get(adminID, accountID); err == nil && d != nil {
		return Draft{}, ErrDraftExists
	}
	d := &Draft{
		AdminID:   adminID,
		AccountID: accountID,
		Symbol:    symbol,
		Side:      side,
		Step:      StepVolume,
		UpdatedAt: m.now(),
	}
	m.drafts[key(adminID, accountID)] = d
	return *d, nil
}

// SetVolume records the requested volume and fetches the quote the user
// will confirm against.
func (m *Manager) SetVolume(ctx context.Context, adminID, accountID string, volume decimal.Decimal) (Draft, error) {
	m.mu.Lock()
	d, err := m.get(adminID, accountID)
	if err != nil {
		m.mu.Unlock()
		return Draft{}, err
	}
	if d.Step != StepVolume {
		m.mu.Unlock()
		return Draft{}, ErrWrongStep
	}
	vsym := m.symbols[d.Symbol]
	m.mu.Unlock()

	quote, err := m.quoter.GetPrice(ctx, vsym)
	if err != nil {
		return Draft{}, err
	}
	if quote.MarketStatus == types.MarketStatusClosed {
		return Draft{}, errors.New("market is closed")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	d, err = m.get(adminID, accountID)
	if err != nil {
		return Draft{}, err
	}
	d.Volume = volume
	d.Quote = quote
	d.Step = StepConfirm
	d.UpdatedAt = m.now()
	return *d, nil
}

// Confirm submits the draft to the engine. The draft is removed whether
// the open succeeds or fails; the caller starts over after an error.
func (m *Manager) Confirm(ctx context.Context, adminID, accountID string) (engine.OpenResult, error) {
	m.mu.Lock()
	d, err := m.get(adminID, accountID)
	if err != nil {
		m.mu.Unlock()
		return engine.OpenResult{}, err
	}
	if d.Step != StepConfirm {
		m.mu.Unlock()
		return engine.OpenResult{}, ErrWrongStep
	}
	delete(m.drafts, key(adminID, accountID))
	m.mu.Unlock()

	quoted := d.Quote.Ask
	if d.Side == types.TradeSideSell {
		quoted = d.Quote.Bid
	}
	return m.trader.OpenTrade(ctx, nil, adminID, accountID, engine.Draft{
		Symbol:      d.Symbol,
		Side:        d.Side,
		Volume:      d.Volume,
		QuotedPrice: quoted,
	})
}

// Cancel drops the draft. Cancelling with nothing in flight is an error
// so the caller can tell the user.
func (m *Manager) Cancel(adminID, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.get(adminID, accountID); err != nil {
		return err
	}
	delete(m.drafts, key(adminID, accountID))
	return nil
}

// Peek returns the current draft without changing it.
func (m *Manager) Peek(adminID, accountID string) (Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.get(adminID, accountID)
	if err != nil {
		return Draft{}, err
	}
	return *d, nil
}
