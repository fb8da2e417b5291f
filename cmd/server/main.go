/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ERP inventory ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Open the store (SQLite or PostgreSQL) and migrate the schema
  3. Create API handler with dependencies
  4. Start the month-end closing reminder
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -driver     sqlite3 | pgx (default: sqlite3)
  -db         SQLite path or PostgreSQL URL (default: erp.db)
              Use ":memory:" for an in-memory SQLite database
  -log-level  logrus level (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the closing reminder
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/erp.db"
  DATABASE_URL=postgres://erp@localhost/erp ./server -driver=pgx

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlstore/sqlstore.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/erp-ledger/api"
	"github.com/warp/erp-ledger/config"
	"github.com/warp/erp-ledger/store/sqlstore"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := cfg.NewLogger()

	store, err := sqlstore.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).WithField("driver", cfg.DBDriver).Fatal("failed to initialize database")
	}
	defer store.Close()

	handler := api.NewHandler(store, log)
	handler.Closer.RequireFixedMasters = cfg.RequireFixedMasters
	handler.Pipeline.EnforceProcessSequence = cfg.EnforceProcessSequence

	reminder := api.NewClosingReminder(handler.Closer, log)
	reminder.CheckInterval = cfg.ReminderInterval
	reminder.Enabled = cfg.ReminderInterval > 0
	reminder.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(handler, cfg.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port":   cfg.Port,
			"driver": cfg.DBDriver,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	reminder.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
		return
	}
	log.Info("server stopped")
}
