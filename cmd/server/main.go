/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Grindstone engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Build the zap logger
  3. Open the SQLite store (schema migrates on open)
  4. Wire scoring, tracker, planner, backup and scheduler
  5. Start the scheduler, then the HTTP server

COMMAND-LINE FLAGS:
  -port        HTTP server port (default: 8080)
  -db          SQLite database path (default: grindstone.db)
               Use ":memory:" for an in-memory database
  -backup-dir  Directory for database snapshots (default: backups)
  -log-level   zap level: debug, info, warn, error (default: info)

ENVIRONMENT:
  GRINDSTONE_API_KEY   Shared key for the /api subtree. Unset disables
                       authentication (development only).

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections, drain active requests (30s)
  2. Stop the scheduler, waiting out any in-flight job (10s)
  3. Close the database
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/grindstone.db"

  # Run on a different port with verbose logging
  ./server -port=3000 -log-level=debug

SEE ALSO:
  - api/server.go: Router configuration
  - scheduler/scheduler.go: Background jobs
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/grindstone/engine/api"
	"github.com/grindstone/engine/backup"
	"github.com/grindstone/engine/core"
	"github.com/grindstone/engine/planner"
	"github.com/grindstone/engine/scheduler"
	"github.com/grindstone/engine/scoring"
	"github.com/grindstone/engine/store/sqlite"
	"github.com/grindstone/engine/tracker"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "grindstone.db", "SQLite database path")
	backupDir := flag.String("backup-dir", "backups", "directory for database snapshots")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.String("path", *dbPath), zap.Error(err))
	}
	defer store.Close()

	clock := core.SystemClock{}
	engine := scoring.New(store, logger.Named("scoring"))
	track := tracker.New(store, engine, clock, logger.Named("tracker"))
	plan := planner.New(store, engine, clock, logger.Named("planner"))
	backups := backup.New(store, *backupDir, clock, logger.Named("backup"))
	sched := scheduler.New(store, engine, plan, backups, clock, logger.Named("scheduler"))

	if err := sched.Start(); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	handler := api.NewHandler(store, track, plan, engine, backups, sched, clock, logger.Named("api"))
	router := api.NewRouter(handler, os.Getenv("GRINDSTONE_API_KEY"))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.Int("port", *port),
			zap.String("db", *dbPath),
			zap.String("backup_dir", *backupDir))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelHTTP()
	if err := server.Shutdown(httpCtx); err != nil {
		logger.Error("http shutdown incomplete", zap.Error(err))
	}

	schedCtx, cancelSched := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSched()
	if err := sched.Stop(schedCtx); err != nil {
		logger.Error("scheduler shutdown incomplete", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("bad log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
