// Package http serves the monitoring endpoints: health, Prometheus
// metrics, and the latest quarterly picks per industry from the output
// tree.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/quantfan/asharescan/internal/persistence"
)

// Server is the monitoring HTTP server.
type Server struct {
	httpServer *http.Server
	outputDir  string
	picks      persistence.PicksRepo
	nav        persistence.NAVRepo
	startedAt  time.Time
}

// NewServer builds the server. outputDir is where pipeline runs write
// their JSON artifacts; picks and nav may be nil when no database is
// configured, in which case pick requests fall back to the output tree
// and NAV requests answer 404.
func NewServer(host, port, outputDir string, picks persistence.PicksRepo, nav persistence.NAVRepo) *Server {
	s := &Server{outputDir: outputDir, picks: picks, nav: nav, startedAt: time.Now()}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/picks/{industry}", s.handlePicks).Methods(http.MethodGet)
	r.HandleFunc("/nav/{industry}", s.handleNAV).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         host + ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.httpServer.Addr).Msg("monitor server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

type healthResponse struct {
	Status    string `json:"status"`
	UptimeSec int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		UptimeSec: int64(time.Since(s.startedAt).Seconds()),
	})
}

// handlePicks serves stored picks for an industry, preferring the
// database over the <output>/<industry>_picks.json artifact.
func (s *Server) handlePicks(w http.ResponseWriter, r *http.Request) {
	industry := mux.Vars(r)["industry"]

	if s.picks != nil {
		records, err := s.picks.ListByIndustry(r.Context(), industry)
		if err != nil {
			log.Error().Err(err).Str("industry", industry).Msg("list stored picks")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		if len(records) == 0 {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no picks for industry " + industry})
			return
		}
		writeJSON(w, http.StatusOK, records)
		return
	}

	path := filepath.Join(s.outputDir, industry+"_picks.json")

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no picks for industry " + industry})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("industry", industry).Msg("read picks artifact")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// handleNAV serves the latest stored backtest run for an industry.
func (s *Server) handleNAV(w http.ResponseWriter, r *http.Request) {
	industry := mux.Vars(r)["industry"]

	if s.nav == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no run store configured"})
		return
	}
	run, err := s.nav.LatestRun(r.Context(), industry)
	if err != nil {
		log.Error().Err(err).Str("industry", industry).Msg("latest stored run")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if run == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no runs for industry " + industry})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}
