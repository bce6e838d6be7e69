// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main is the entry point for the Sentinel server.
//
// Sentinel is a continuous behavioral authentication engine: it scores
// keyboard/mouse telemetry and request context against a per-user identity
// model, fuses the result into a trust score, and returns an ALLOW,
// CHALLENGE, or BLOCK decision for each evaluate call (SPEC_FULL.md §4.10).
//
// # Initialization order
//
//  1. Configuration: layered defaults/config-file/environment (koanf v2).
//  2. Logging: zerolog, configured from cfg.Logging.
//  3. Storage: BadgerDB for hot/cold state, DuckDB for the audit log.
//  4. Policy: the Casbin-backed navigator policy enforcer.
//  5. Publishing: the NATS provisional-ban publisher (best-effort).
//  6. Orchestrator: the fusion/decision engine wiring all of the above.
//  7. Supervisor tree: data (Badger GC), publish (NATS publisher),
//     api (HTTP server) layers, each independently restartable.
//  8. HTTP server: serves /healthz, /metrics, /stream/*, /evaluate.
//
// # Signal Handling
//
// SIGINT/SIGTERM trigger a graceful shutdown: the supervisor tree's root
// context is canceled, each layer stops its services within its configured
// timeout, and any services that failed to stop in time are reported.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/sentinel-auth/sentinel/internal/api"
	"github.com/sentinel-auth/sentinel/internal/audit"
	"github.com/sentinel-auth/sentinel/internal/authz"
	"github.com/sentinel-auth/sentinel/internal/coldstate"
	"github.com/sentinel-auth/sentinel/internal/config"
	"github.com/sentinel-auth/sentinel/internal/eventprocessor"
	"github.com/sentinel-auth/sentinel/internal/hotstate"
	"github.com/sentinel-auth/sentinel/internal/logging"
	"github.com/sentinel-auth/sentinel/internal/navigator"
	"github.com/sentinel-auth/sentinel/internal/orchestrator"
	"github.com/sentinel-auth/sentinel/internal/supervisor"
	"github.com/sentinel-auth/sentinel/internal/supervisor/services"
)

//nolint:gocyclo // main initialization function with sequential setup steps
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	logging.Info().Msg("starting sentinel")

	hotDB, err := badger.Open(badger.DefaultOptions(cfg.Storage.BadgerDir + "/hot").WithLoggingLevel(badger.WARNING))
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open hot-state badger db")
	}
	defer func() {
		if err := hotDB.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing hot-state db")
		}
	}()

	coldDB, err := badger.Open(badger.DefaultOptions(cfg.Storage.BadgerDir + "/cold").WithLoggingLevel(badger.WARNING))
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open cold-state badger db")
	}
	defer func() {
		if err := coldDB.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing cold-state db")
		}
	}()

	hot := hotstate.New(hotDB)
	cold := coldstate.New(coldDB)

	duckDB, err := sql.Open("duckdb", cfg.Storage.DuckDBPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open audit duckdb")
	}
	defer func() {
		if err := duckDB.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing audit db")
		}
	}()

	auditStore := audit.NewDuckDBStore(duckDB)
	if err := auditStore.CreateTable(context.Background()); err != nil {
		logging.Fatal().Err(err).Msg("failed to create audit_logs table")
	}

	enforcer, err := authz.NewEnforcer(authz.DefaultEnforcerConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize policy enforcer")
	}
	nav := navigator.New(navigator.DefaultConfig(), enforcer)

	publisher, err := eventprocessor.NewPublisher(cfg.NATS)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize nats publisher")
	}

	engine := orchestrator.New(cfg, hot, cold, auditStore, nav, publisher)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create supervisor tree")
	}

	tree.AddDataService(services.NewBadgerGCService(hotDB, 10*time.Minute, "hot-gc"))
	tree.AddDataService(services.NewBadgerGCService(coldDB, 30*time.Minute, "cold-gc"))
	tree.AddPublishService(services.NewCloserService(publisher, "nats-publisher"))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(cfg, engine),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("http server service added")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop")
		}
	}

	logging.Info().Msg("sentinel stopped gracefully")
}
