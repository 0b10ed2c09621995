package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfan/asharescan/internal/persistence"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestUpsertBatchClearsQuarterBeforeInsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPicksRepo(db, time.Second)

	picks := []persistence.PickRecord{
		{Industry: "银行", Quarter: "2021Q2", Rank: 1, Code: "601398.SH", Name: "工商银行", Score: 1.2},
		{Industry: "银行", Quarter: "2021Q2", Rank: 2, Code: "601939.SH", Name: "建设银行", Score: 0.8},
	}

	mock.ExpectBegin()
	// One delete per touched quarter, so a re-run with a smaller top-n
	// cannot leave stale ranks behind.
	mock.ExpectExec("DELETE FROM picks").
		WithArgs("银行", "2021Q2").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectPrepare("INSERT INTO picks")
	mock.ExpectExec("INSERT INTO picks").
		WithArgs("银行", "2021Q2", 1, "601398.SH", "工商银行", 1.2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO picks").
		WithArgs("银行", "2021Q2", 2, "601939.SH", "建设银行", 0.8).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.UpsertBatch(context.Background(), picks))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchEmptyIsNoOp(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPicksRepo(db, time.Second)

	require.NoError(t, repo.UpsertBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchRejectsInvalidRecords(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPicksRepo(db, time.Second)

	bad := []persistence.PickRecord{{Industry: "银行", Quarter: "2021Q2", Rank: 0, Name: "工商银行"}}
	require.Error(t, repo.UpsertBatch(context.Background(), bad))
	assert.NoError(t, mock.ExpectationsWereMet())
}
