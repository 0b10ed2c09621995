package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/quantfan/asharescan/internal/persistence"
)

type picksRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPicksRepo creates the PostgreSQL picks repository.
func NewPicksRepo(db *sqlx.DB, timeout time.Duration) persistence.PicksRepo {
	return &picksRepo{db: db, timeout: timeout}
}

// UpsertBatch stores selections, replacing all earlier rows of each
// touched (industry, quarter) so re-runs with a smaller pick count leave
// no stale ranks behind.
func (r *picksRepo) UpsertBatch(ctx context.Context, picks []persistence.PickRecord) error {
	if len(picks) == 0 {
		return nil
	}
	for _, p := range picks {
		if err := p.Validate(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	type quarterKey struct{ industry, quarter string }
	seen := map[quarterKey]bool{}
	for _, p := range picks {
		key := quarterKey{p.Industry, p.Quarter}
		if seen[key] {
			continue
		}
		seen[key] = true
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM picks WHERE industry = $1 AND quarter = $2`,
			p.Industry, p.Quarter); err != nil {
			return fmt.Errorf("clear picks %s/%s: %w", p.Industry, p.Quarter, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO picks (industry, quarter, rank, code, name, score)
		VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range picks {
		if _, err := stmt.ExecContext(ctx, p.Industry, p.Quarter, p.Rank, p.Code, p.Name, p.Score); err != nil {
			return fmt.Errorf("insert pick %s/%s#%d: %w", p.Industry, p.Quarter, p.Rank, err)
		}
	}
	return tx.Commit()
}

// ListByIndustry retrieves all stored picks for an industry ordered by
// quarter then rank.
func (r *picksRepo) ListByIndustry(ctx context.Context, industry string) ([]persistence.PickRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT industry, quarter, rank, code, name, score, created_at
		FROM picks
		WHERE industry = $1
		ORDER BY quarter ASC, rank ASC`

	var out []persistence.PickRecord
	if err := r.db.SelectContext(ctx, &out, query, industry); err != nil {
		return nil, fmt.Errorf("list picks for %s: %w", industry, err)
	}
	return out, nil
}
