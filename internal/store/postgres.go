package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"goldtrade/internal/model"
	"goldtrade/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store on a pgx pool. Transactions are opened at
// serializable isolation; combined with the FOR UPDATE row locks taken by
// the *ForUpdate queries this closes the margin-check/debit race between
// concurrent opens on the same account.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, mapErr(err)
	}
	return &pgTx{tx: tx}, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return ErrConflict
		}
	}
	return err
}

const accountCols = "id, admin_id, name, reserved_amount, amount_fc, metal_weight, bid_spread, ask_spread, margin_percent, is_deleted, created_at, updated_at"

func scanAccount(row pgx.Row) (model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.AdminID, &a.Name, &a.ReservedAmount, &a.AmountFC, &a.MetalWeight,
		&a.BidSpread, &a.AskSpread, &a.MarginPercent, &a.IsDeleted, &a.CreatedAt, &a.UpdatedAt)
	return a, mapErr(err)
}

func (s *Postgres) GetAccount(ctx context.Context, adminID, accountID string) (model.Account, error) {
	row := s.pool.QueryRow(ctx, "select "+accountCols+" from accounts where id = $1 and admin_id = $2 and is_deleted = false", accountID, adminID)
	return scanAccount(row)
}

func (s *Postgres) CreateAccount(ctx context.Context, a model.Account) error {
	_, err := s.pool.Exec(ctx, `
		insert into accounts (id, admin_id, name, reserved_amount, amount_fc, metal_weight,
			bid_spread, ask_spread, margin_percent, is_deleted, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.AdminID, a.Name, a.ReservedAmount, a.AmountFC, a.MetalWeight,
		a.BidSpread, a.AskSpread, a.MarginPercent, a.IsDeleted, a.CreatedAt, a.UpdatedAt)
	return mapErr(err)
}

func (s *Postgres) ListAccounts(ctx context.Context, adminID string) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx, "select "+accountCols+" from accounts where admin_id = $1 and is_deleted = false order by created_at asc", adminID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, mapErr(rows.Err())
}

func (s *Postgres) UpdateAccountSettings(ctx context.Context, a model.Account) error {
	tag, err := s.pool.Exec(ctx, `
		update accounts set name = $3, bid_spread = $4, ask_spread = $5, margin_percent = $6, updated_at = $7
		where id = $1 and admin_id = $2 and is_deleted = false`,
		a.ID, a.AdminID, a.Name, a.BidSpread, a.AskSpread, a.MarginPercent, a.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) SoftDeleteAccount(ctx context.Context, adminID, accountID string) error {
	tag, err := s.pool.Exec(ctx, `
		update accounts set is_deleted = true, updated_at = now()
		where id = $1 and admin_id = $2 and is_deleted = false`,
		accountID, adminID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const orderCols = "id, order_no, admin_id, account_id, symbol, side, status, volume, open_price, required_margin, ticket, close_price, close_date, profit, comment, notification_error, open_date, created_at, updated_at"

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	var side, status string
	err := row.Scan(&o.ID, &o.OrderNo, &o.AdminID, &o.AccountID, &o.Symbol, &side, &status,
		&o.Volume, &o.OpenPrice, &o.RequiredMargin, &o.Ticket, &o.ClosePrice, &o.CloseDate,
		&o.Profit, &o.Comment, &o.NotificationError, &o.OpenDate, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, mapErr(err)
	}
	o.Side = types.TradeSide(side)
	o.Status = types.OrderStatus(status)
	return o, nil
}

func (s *Postgres) GetOrder(ctx context.Context, adminID, orderID string) (model.Order, error) {
	row := s.pool.QueryRow(ctx, "select "+orderCols+" from orders where id = $1 and admin_id = $2", orderID, adminID)
	return scanOrder(row)
}

func (s *Postgres) ListOrdersByStatus(ctx context.Context, adminID string, status types.OrderStatus) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, "select "+orderCols+" from orders where admin_id = $1 and status = $2 order by created_at asc", adminID, string(status))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, mapErr(rows.Err())
}

func (s *Postgres) ListProcessingOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, "select "+orderCols+" from orders where status = $1 order by created_at asc", string(types.OrderStatusProcessing))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, mapErr(rows.Err())
}

func (s *Postgres) ListLedgerEntries(ctx context.Context, adminID, refNo string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
		select id, entry_id, admin_id, account_id, entry_type, ref_no, description, amount, nature, running_balance, payload, created_at
		from ledger_entries
		where admin_id = $1 and ($2 = '' or ref_no = $2)
		order by created_at asc, entry_id asc
	`, adminID, refNo)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var entryType, nature string
		var payload []byte
		if err := rows.Scan(&e.ID, &e.EntryID, &e.AdminID, &e.AccountID, &entryType, &e.RefNo,
			&e.Description, &e.Amount, &nature, &e.RunningBalance, &payload, &e.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		e.EntryType = types.EntryType(entryType)
		e.Nature = types.EntryNature(nature)
		if err := unmarshalPayload(&e, payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, mapErr(rows.Err())
}

type ledgerPayload struct {
	Order       *model.OrderSnapshot       `json:"order,omitempty"`
	LP          *model.LPSnapshot          `json:"lp,omitempty"`
	Transaction *model.TransactionSnapshot `json:"transaction,omitempty"`
}

func marshalPayload(e model.LedgerEntry) ([]byte, error) {
	return json.Marshal(ledgerPayload{Order: e.Order, LP: e.LP, Transaction: e.Transaction})
}

func unmarshalPayload(e *model.LedgerEntry, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	var p ledgerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	e.Order = p.Order
	e.LP = p.LP
	e.Transaction = p.Transaction
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Commit(ctx context.Context) error   { return mapErr(t.tx.Commit(ctx)) }
func (t *pgTx) Rollback(ctx context.Context) error { return mapErr(t.tx.Rollback(ctx)) }

func (t *pgTx) GetAccountForUpdate(ctx context.Context, adminID, accountID string) (model.Account, error) {
	row := t.tx.QueryRow(ctx, "select "+accountCols+" from accounts where id = $1 and admin_id = $2 and is_deleted = false for update", accountID, adminID)
	return scanAccount(row)
}

func (t *pgTx) UpdateAccountBalances(ctx context.Context, a model.Account) error {
	tag, err := t.tx.Exec(ctx, "update accounts set reserved_amount = $1, amount_fc = $2, metal_weight = $3, updated_at = $4 where id = $5 and admin_id = $6",
		a.ReservedAmount, a.AmountFC, a.MetalWeight, time.Now().UTC(), a.ID, a.AdminID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) CreateOrder(ctx context.Context, o model.Order) error {
	_, err := t.tx.Exec(ctx, `
		insert into orders (id, order_no, admin_id, account_id, symbol, side, status, volume, open_price, required_margin, ticket, close_price, close_date, profit, comment, notification_error, open_date, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, o.ID, o.OrderNo, o.AdminID, o.AccountID, o.Symbol, string(o.Side), string(o.Status),
		o.Volume, o.OpenPrice, o.RequiredMargin, o.Ticket, o.ClosePrice, o.CloseDate,
		o.Profit, o.Comment, o.NotificationError, o.OpenDate, time.Now().UTC(), time.Now().UTC())
	return mapErr(err)
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, adminID, orderID string) (model.Order, error) {
	row := t.tx.QueryRow(ctx, "select "+orderCols+" from orders where id = $1 and admin_id = $2 for update", orderID, adminID)
	return scanOrder(row)
}

func (t *pgTx) UpdateOrder(ctx context.Context, o model.Order) error {
	tag, err := t.tx.Exec(ctx, `
		update orders set symbol = $1, side = $2, status = $3, volume = $4, open_price = $5, ticket = $6, close_price = $7, close_date = $8, profit = $9, comment = $10, notification_error = $11, updated_at = $12
		where id = $13 and admin_id = $14
	`, o.Symbol, string(o.Side), string(o.Status), o.Volume, o.OpenPrice, o.Ticket,
		o.ClosePrice, o.CloseDate, o.Profit, o.Comment, o.NotificationError, time.Now().UTC(), o.ID, o.AdminID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const lpCols = "id, position_id, admin_id, account_id, symbol, side, status, volume, entry_price, current_price, close_price, profit, open_date, close_date"

func scanLP(row pgx.Row) (model.LPPosition, error) {
	var p model.LPPosition
	var side, status string
	err := row.Scan(&p.ID, &p.PositionID, &p.AdminID, &p.AccountID, &p.Symbol, &side, &status,
		&p.Volume, &p.EntryPrice, &p.CurrentPrice, &p.ClosePrice, &p.Profit, &p.OpenDate, &p.CloseDate)
	if err != nil {
		return p, mapErr(err)
	}
	p.Side = types.TradeSide(side)
	p.Status = types.PositionStatus(status)
	return p, nil
}

func (t *pgTx) CreateLPPosition(ctx context.Context, p model.LPPosition) error {
	_, err := t.tx.Exec(ctx, `
		insert into lp_positions (id, position_id, admin_id, account_id, symbol, side, status, volume, entry_price, current_price, close_price, profit, open_date, close_date)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, p.ID, p.PositionID, p.AdminID, p.AccountID, p.Symbol, string(p.Side), string(p.Status),
		p.Volume, p.EntryPrice, p.CurrentPrice, p.ClosePrice, p.Profit, p.OpenDate, p.CloseDate)
	return mapErr(err)
}

func (t *pgTx) GetLPPositionForUpdate(ctx context.Context, adminID, positionID string) (model.LPPosition, error) {
	row := t.tx.QueryRow(ctx, "select "+lpCols+" from lp_positions where position_id = $1 and admin_id = $2 for update", positionID, adminID)
	return scanLP(row)
}

func (t *pgTx) UpdateLPPosition(ctx context.Context, p model.LPPosition) error {
	tag, err := t.tx.Exec(ctx, `
		update lp_positions set status = $1, current_price = $2, close_price = $3, profit = $4, close_date = $5
		where position_id = $6 and admin_id = $7
	`, string(p.Status), p.CurrentPrice, p.ClosePrice, p.Profit, p.CloseDate, p.PositionID, p.AdminID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendLedgerEntry(ctx context.Context, e model.LedgerEntry) error {
	payload, err := marshalPayload(e)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		insert into ledger_entries (id, entry_id, admin_id, account_id, entry_type, ref_no, description, amount, nature, running_balance, payload, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, e.ID, e.EntryID, e.AdminID, e.AccountID, string(e.EntryType), e.RefNo, e.Description,
		e.Amount, string(e.Nature), e.RunningBalance, payload, e.CreatedAt)
	return mapErr(err)
}

func (t *pgTx) CreateLPProfit(ctx context.Context, p model.LPProfit) error {
	_, err := t.tx.Exec(ctx, `
		insert into lp_profits (id, admin_id, order_no, status, value, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, p.ID, p.AdminID, p.OrderNo, string(p.Status), p.Value, p.CreatedAt, p.UpdatedAt)
	return mapErr(err)
}

func (t *pgTx) GetLPProfitForUpdate(ctx context.Context, adminID, orderNo string) (model.LPProfit, error) {
	var p model.LPProfit
	var status string
	err := t.tx.QueryRow(ctx, "select id, admin_id, order_no, status, value, created_at, updated_at from lp_profits where order_no = $1 and admin_id = $2 for update", orderNo, adminID).
		Scan(&p.ID, &p.AdminID, &p.OrderNo, &status, &p.Value, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, mapErr(err)
	}
	p.Status = types.PositionStatus(status)
	return p, nil
}

func (t *pgTx) UpdateLPProfit(ctx context.Context, p model.LPProfit) error {
	tag, err := t.tx.Exec(ctx, "update lp_profits set status = $1, value = $2, updated_at = $3 where order_no = $4 and admin_id = $5",
		string(p.Status), p.Value, time.Now().UTC(), p.OrderNo, p.AdminID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
