package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS quotes (
	id BIGSERIAL PRIMARY KEY,
	code TEXT NOT NULL,
	name TEXT NOT NULL,
	industry TEXT NOT NULL,
	trade_date DATE NOT NULL,
	open DOUBLE PRECISION,
	high DOUBLE PRECISION,
	low DOUBLE PRECISION,
	close DOUBLE PRECISION,
	volume DOUBLE PRECISION,
	amount DOUBLE PRECISION,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (code, trade_date)
);

CREATE TABLE IF NOT EXISTS picks (
	industry TEXT NOT NULL,
	quarter TEXT NOT NULL,
	rank INT NOT NULL,
	code TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (industry, quarter, rank)
);

CREATE TABLE IF NOT EXISTS nav_runs (
	run_id UUID PRIMARY KEY,
	industry TEXT NOT NULL,
	final_assets NUMERIC NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS nav_records (
	run_id UUID NOT NULL REFERENCES nav_runs(run_id) ON DELETE CASCADE,
	quarter TEXT NOT NULL,
	start_assets NUMERIC NOT NULL,
	end_assets NUMERIC,
	return_pct DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, quarter)
);
`

// Connect opens the database and ensures the schema exists.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}
