package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
create table if not exists admins (
	id            text primary key,
	username      text not null unique,
	password_hash text not null,
	created_at    timestamptz not null default now()
);

create table if not exists accounts (
	id              text primary key,
	admin_id        text not null references admins(id),
	name            text not null default '',
	reserved_amount numeric(18,2) not null default 0,
	amount_fc       numeric(18,2) not null default 0,
	metal_weight    numeric(18,3) not null default 0,
	bid_spread      numeric(18,4) not null default 0,
	ask_spread      numeric(18,4) not null default 0,
	margin_percent  numeric(9,4)  not null default 2,
	is_deleted      boolean not null default false,
	created_at      timestamptz not null default now(),
	updated_at      timestamptz not null default now()
);

create table if not exists orders (
	id                 text primary key,
	order_no           text not null unique,
	admin_id           text not null references admins(id),
	account_id         text not null references accounts(id),
	symbol             text not null,
	side               text not null,
	status             text not null,
	volume             numeric(18,3) not null,
	open_price         numeric(18,4) not null,
	required_margin    numeric(18,2) not null,
	ticket             bigint,
	close_price        numeric(18,4),
	close_date         timestamptz,
	profit             numeric(18,2),
	comment            text not null default '',
	notification_error text,
	open_date          timestamptz not null,
	created_at         timestamptz not null default now(),
	updated_at         timestamptz not null default now()
);
create index if not exists orders_admin_status_idx on orders (admin_id, status);

create table if not exists lp_positions (
	id            text primary key,
	position_id   text not null unique,
	admin_id      text not null references admins(id),
	account_id    text not null references accounts(id),
	symbol        text not null,
	side          text not null,
	status        text not null,
	volume        numeric(18,3) not null,
	entry_price   numeric(18,4) not null,
	current_price numeric(18,4) not null,
	close_price   numeric(18,4),
	profit        numeric(18,2) not null default 0,
	open_date     timestamptz not null,
	close_date    timestamptz
);

create table if not exists ledger_entries (
	id              text primary key,
	entry_id        text not null unique,
	admin_id        text not null references admins(id),
	account_id      text not null references accounts(id),
	entry_type      text not null,
	ref_no          text not null,
	description     text not null default '',
	amount          numeric(18,2) not null,
	nature          text not null,
	running_balance numeric(18,3) not null,
	payload         jsonb,
	created_at      timestamptz not null
);
create index if not exists ledger_entries_ref_idx on ledger_entries (admin_id, ref_no);

create table if not exists lp_profits (
	id         text primary key,
	admin_id   text not null references admins(id),
	order_no   text not null unique,
	status     text not null,
	value      numeric(18,2) not null default 0,
	created_at timestamptz not null,
	updated_at timestamptz not null
);
`

// InitSchema creates the tables if they do not exist yet.
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
