package cmd

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"strings"

	"leadscout/lib/configutil"
	"leadscout/lib/telemetry"
	"leadscout/lib/util/serviceutil"
	"leadscout/services/leads"
	leadsdb "leadscout/services/leads/db"

	_ "modernc.org/sqlite"
)

type FeedConfig struct {
	BaseURL     string `json:"base_url"`
	PageSize    int    `json:"page_size"`
	PageDelayMs int    `json:"page_delay_ms"`
}

type Config struct {
	Feed               FeedConfig       `json:"feed"`
	DatabaseFile       string           `json:"database_file"`
	LoadTimeoutSeconds int              `json:"load_timeout_seconds"`
	Smtp               leads.SmtpConfig `json:"smtp"`
	// recipient for the post-run summary email; empty disables delivery
	SummaryEmail string `json:"summary_email"`
}

func readConfig() Config {
	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config.json5", err)
	}
	if config.DatabaseFile == "" {
		config.DatabaseFile = "leadscout.db"
	}
	return config
}

// returns a flush func the command must run before exiting, otherwise
// the last spans and metrics never leave the process
func initTelemetry(ctx context.Context) func() {
	telemetry.InitSlog(verbose)

	tel, err := telemetry.SetupFromEnv(ctx, "leadscout")
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("no telemetry.json5 found, exporters disabled")
		return func() {}
	}
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	telemetry.InstrumentPerfStats(ctx)

	return func() {
		err := tel.Shutdown(context.Background())
		if err != nil {
			slog.Warn("telemetry shutdown failed", "err", err)
		}
	}
}

func openLeadsDB(path string) *sql.DB {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		serviceutil.Fatal("failed to open leads database", err)
	}
	_, err = database.Exec(leadsdb.Schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		serviceutil.Fatal("failed to apply leads schema", err)
	}
	return database
}
