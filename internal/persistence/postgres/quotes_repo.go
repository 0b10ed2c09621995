package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/quantfan/asharescan/internal/domain"
	"github.com/quantfan/asharescan/internal/persistence"
)

type quotesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewQuotesRepo creates the PostgreSQL quotes repository.
func NewQuotesRepo(db *sqlx.DB, timeout time.Duration) persistence.QuotesRepo {
	return &quotesRepo{db: db, timeout: timeout}
}

// InsertBatch stores fetched bars atomically. Conflicting (code, date)
// rows are left untouched so re-fetches stay idempotent.
func (r *quotesRepo) InsertBatch(ctx context.Context, quotes []domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(quotes)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO quotes (code, name, industry, trade_date, open, high, low, close, volume, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (code, trade_date) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, q := range quotes {
		if _, err := stmt.ExecContext(ctx,
			q.Code, q.Name, q.Industry, q.Date,
			q.Open, q.High, q.Low, q.Close, q.Volume, q.Amount); err != nil {
			return fmt.Errorf("insert quote %s@%s: %w", q.Code, q.Date.Format("2006-01-02"), err)
		}
	}
	return tx.Commit()
}

// ListByIndustry retrieves bars for an industry within a date range,
// oldest first.
func (r *quotesRepo) ListByIndustry(ctx context.Context, industry string, tr persistence.TimeRange) ([]domain.Quote, error) {
	if err := tr.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT code, name, industry, trade_date, open, high, low, close, volume, amount
		FROM quotes
		WHERE industry = $1 AND trade_date >= $2 AND trade_date <= $3
		ORDER BY trade_date ASC, code ASC`

	var out []domain.Quote
	if err := r.db.SelectContext(ctx, &out, query, industry, tr.From, tr.To); err != nil {
		return nil, fmt.Errorf("list quotes for %s: %w", industry, err)
	}
	return out, nil
}

// isUniqueViolation reports Postgres error class 23505.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
