package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	monitorhttp "github.com/quantfan/asharescan/internal/interfaces/http"
	"github.com/quantfan/asharescan/internal/persistence"
	"github.com/quantfan/asharescan/internal/persistence/postgres"
)

// runMonitor serves health, Prometheus metrics, pick and NAV endpoints
// until interrupted. With a Postgres DSN configured, picks and runs are
// served from the database.
func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	port := cfg.Monitor.Port
	if override, _ := cmd.Flags().GetString("port"); override != "" {
		port = override
	}
	if _, err := strconv.Atoi(port); err != nil {
		return fmt.Errorf("invalid port: %s", port)
	}

	var (
		picksRepo persistence.PicksRepo
		navRepo   persistence.NAVRepo
	)
	if cfg.Postgres.DSN != "" {
		db, err := postgres.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		picksRepo = postgres.NewPicksRepo(db, cfg.Postgres.Timeout())
		navRepo = postgres.NewNAVRepo(db, cfg.Postgres.Timeout())
	}

	srv := monitorhttp.NewServer(cfg.Monitor.Host, port, cfg.Dirs.Output, picksRepo, navRepo)
	return srv.Run(ctx)
}
