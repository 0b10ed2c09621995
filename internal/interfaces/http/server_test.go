package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfan/asharescan/internal/persistence"
)

type fakePicksRepo struct {
	records []persistence.PickRecord
}

func (f *fakePicksRepo) UpsertBatch(context.Context, []persistence.PickRecord) error { return nil }

func (f *fakePicksRepo) ListByIndustry(_ context.Context, industry string) ([]persistence.PickRecord, error) {
	var out []persistence.PickRecord
	for _, r := range f.records {
		if r.Industry == industry {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeNAVRepo struct {
	run *persistence.NAVRun
}

func (f *fakeNAVRepo) InsertRun(context.Context, persistence.NAVRun) error { return nil }

func (f *fakeNAVRepo) LatestRun(_ context.Context, industry string) (*persistence.NAVRun, error) {
	if f.run != nil && f.run.Industry == industry {
		return f.run, nil
	}
	return nil, nil
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer("127.0.0.1", "0", t.TempDir(), nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer("127.0.0.1", "0", t.TempDir(), nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestPicksEndpointFromFiles(t *testing.T) {
	dir := t.TempDir()
	payload := `[{"quarter":"2021Q2","rank":1,"name":"工商银行"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "银行_picks.json"), []byte(payload), 0o644))

	srv := NewServer("127.0.0.1", "0", dir, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/picks/银行", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, payload, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/picks/证券", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPicksEndpointFromStore(t *testing.T) {
	repo := &fakePicksRepo{records: []persistence.PickRecord{
		{Industry: "银行", Quarter: "2021Q2", Rank: 1, Code: "601398.SH", Name: "工商银行", Score: 1.2},
	}}
	srv := NewServer("127.0.0.1", "0", t.TempDir(), repo, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/picks/银行", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var records []persistence.PickRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "工商银行", records[0].Name)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/picks/证券", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNAVEndpoint(t *testing.T) {
	repo := &fakeNAVRepo{run: &persistence.NAVRun{
		RunID:       "run-1",
		Industry:    "银行",
		FinalAssets: "1100000.00",
		Records:     []persistence.NAVRecord{{Quarter: "2021Q1", StartAssets: "1000000.00", ReturnPct: 0}},
	}}
	srv := NewServer("127.0.0.1", "0", t.TempDir(), nil, repo)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nav/银行", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var run persistence.NAVRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "1100000.00", run.FinalAssets)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nav/证券", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNAVEndpointWithoutStore(t *testing.T) {
	srv := NewServer("127.0.0.1", "0", t.TempDir(), nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nav/银行", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
