/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the wallet engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Initialize logger and SQLite store (migrations run on open)
  3. Connect the AMQP publisher when AMQP_URL is set
  4. Create API handler and router
  5. Start the reconciliation scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DATABASE_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, close the publisher and the database
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/wallets.db"

  # Run with in-memory database and JSON logs
  LOG_FORMAT=json ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/wallet-engine/api"
	"github.com/warp/wallet-engine/config"
	"github.com/warp/wallet-engine/events"
	"github.com/warp/wallet-engine/ledger"
	"github.com/warp/wallet-engine/logging"
	"github.com/warp/wallet-engine/store/sqlite"
)

type publisher interface {
	ledger.Publisher
	Close() error
}

func main() {
	cfg := config.Load()

	// Flags
	port := flag.String("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DatabasePath, "SQLite database path")
	flag.Parse()
	cfg.Port, cfg.DatabasePath = *port, *dbPath

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Initialize store
	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("db", cfg.DatabasePath).Msg("failed to initialize database")
	}
	defer store.Close()

	var pub publisher = events.Nop{}
	if cfg.PublishingEnabled() {
		p, err := events.Dial(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to AMQP broker")
		}
		pub = p
		log.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing balance events")
	}
	defer pub.Close()

	handler := api.NewHandler(store, api.Options{
		Logger:               log,
		Publisher:            pub,
		ReconcileConcurrency: cfg.ReconcileConcurrency,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		Logger:         log,
		AllowedOrigins: cfg.CORSOrigins,
	})

	scheduler := api.NewReconciliationScheduler(handler.Reconciler, log)
	scheduler.Enabled = cfg.ReconcileEnabled
	scheduler.CheckInterval = cfg.ReconcileInterval
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
