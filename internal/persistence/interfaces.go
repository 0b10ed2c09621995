// Package persistence defines the storage contracts for fetched quotes,
// quarterly picks, and backtest runs. Implementations live in subpackages.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quantfan/asharescan/internal/domain"
)

// ErrDuplicate marks unique-constraint violations so callers can treat
// re-runs as idempotent.
var ErrDuplicate = errors.New("duplicate record")

// TimeRange bounds a query, inclusive on both ends.
type TimeRange struct {
	From time.Time
	To   time.Time
}

func (tr TimeRange) Validate() error {
	if tr.To.Before(tr.From) {
		return fmt.Errorf("time range %s..%s is inverted",
			tr.From.Format("2006-01-02"), tr.To.Format("2006-01-02"))
	}
	return nil
}

// PickRecord is one stored quarterly selection row.
type PickRecord struct {
	Industry  string    `db:"industry" json:"industry"`
	Quarter   string    `db:"quarter" json:"quarter"`
	Rank      int       `db:"rank" json:"rank"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Score     float64   `db:"score" json:"score"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (p PickRecord) Validate() error {
	if p.Industry == "" || p.Quarter == "" || p.Name == "" {
		return fmt.Errorf("pick record needs industry, quarter and name")
	}
	if p.Rank < 1 {
		return fmt.Errorf("pick rank must be >= 1, got %d", p.Rank)
	}
	return nil
}

// NAVRecord is one quarter of a stored backtest run.
type NAVRecord struct {
	Quarter     string  `db:"quarter" json:"quarter"`
	StartAssets string  `db:"start_assets" json:"start_assets"`
	EndAssets   string  `db:"end_assets" json:"end_assets"`
	ReturnPct   float64 `db:"return_pct" json:"return_pct"`
}

// NAVRun is one completed backtest run.
type NAVRun struct {
	RunID       string      `db:"run_id" json:"run_id"`
	Industry    string      `db:"industry" json:"industry"`
	FinalAssets string      `db:"final_assets" json:"final_assets"`
	Records     []NAVRecord `json:"records"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// QuotesRepo stores fetched daily bars.
type QuotesRepo interface {
	InsertBatch(ctx context.Context, quotes []domain.Quote) error
	ListByIndustry(ctx context.Context, industry string, tr TimeRange) ([]domain.Quote, error)
}

// PicksRepo stores quarterly selections.
type PicksRepo interface {
	UpsertBatch(ctx context.Context, picks []PickRecord) error
	ListByIndustry(ctx context.Context, industry string) ([]PickRecord, error)
}

// NAVRepo stores backtest runs.
type NAVRepo interface {
	InsertRun(ctx context.Context, run NAVRun) error
	LatestRun(ctx context.Context, industry string) (*NAVRun, error)
}
