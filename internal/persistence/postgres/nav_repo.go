package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/quantfan/asharescan/internal/persistence"
)

type navRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewNAVRepo creates the PostgreSQL backtest-run repository.
func NewNAVRepo(db *sqlx.DB, timeout time.Duration) persistence.NAVRepo {
	return &navRepo{db: db, timeout: timeout}
}

// InsertRun stores a completed backtest run with its quarterly ledger.
func (r *navRepo) InsertRun(ctx context.Context, run persistence.NAVRun) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO nav_runs (run_id, industry, final_assets)
		VALUES ($1, $2, $3)`,
		run.RunID, run.Industry, run.FinalAssets)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("run %s: %w", run.RunID, persistence.ErrDuplicate)
		}
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}

	for _, rec := range run.Records {
		end := sql.NullString{String: rec.EndAssets, Valid: rec.EndAssets != ""}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO nav_records (run_id, quarter, start_assets, end_assets, return_pct)
			VALUES ($1, $2, $3, $4, $5)`,
			run.RunID, rec.Quarter, rec.StartAssets, end, rec.ReturnPct); err != nil {
			return fmt.Errorf("insert nav record %s/%s: %w", run.RunID, rec.Quarter, err)
		}
	}
	return tx.Commit()
}

// LatestRun retrieves the most recent run for an industry, nil when none
// exists.
func (r *navRepo) LatestRun(ctx context.Context, industry string) (*persistence.NAVRun, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var run persistence.NAVRun
	err := r.db.GetContext(ctx, &run, `
		SELECT run_id, industry, final_assets, created_at
		FROM nav_runs
		WHERE industry = $1
		ORDER BY created_at DESC
		LIMIT 1`, industry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run for %s: %w", industry, err)
	}

	err = r.db.SelectContext(ctx, &run.Records, `
		SELECT quarter, start_assets, COALESCE(end_assets::text, '') AS end_assets, return_pct
		FROM nav_records
		WHERE run_id = $1
		ORDER BY quarter ASC`, run.RunID)
	if err != nil {
		return nil, fmt.Errorf("nav records for run %s: %w", run.RunID, err)
	}
	return &run, nil
}
