/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the incident finance server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file + FINANCE_* environment variables)
  2. Build the zap logger
  3. Create the store router over the data directory
  4. Configure the HTTP router
  5. Start the server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close every open database
  4. Exit

EXAMPLES:
  # Run with defaults (data under ./data)
  ./server

  # Run with a config file
  ./server -config=./config.yaml

  # Override via environment
  FINANCE_SERVER_PORT=3000 FINANCE_STORAGE_DIR=/var/lib/finance ./server

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration loading
  - store/sqlite/router.go: Store provisioning
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/incident-finance/api"
	"github.com/warp/incident-finance/config"
	"github.com/warp/incident-finance/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	router, err := sqlite.NewRouter(cfg.Storage.Dir, logger)
	if err != nil {
		logger.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer router.Close()

	handler := api.NewHandler(router, logger)
	mux := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Addr()),
			zap.String("data_dir", cfg.Storage.Dir))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}
