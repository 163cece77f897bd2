package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/bistro-api/internal/config"
	"github.com/ksred/bistro-api/internal/database"
	"github.com/ksred/bistro-api/internal/inventory"
	"github.com/ksred/bistro-api/internal/server"
)

// setupLogging uses pretty console output outside production
func setupLogging(cfg config.Config) {
	if !cfg.IsProduction() {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
}

func main() {
	cfg := config.Load()
	setupLogging(cfg)

	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		zlog.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to initialize database")
	}

	srv := server.New(db, cfg)

	processor := inventory.NewProcessor(srv.Inventory, cfg.LowStockInterval)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()
	go processor.Start(processorCtx)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("Starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")
	processorCancel()

	// Give in-flight settlements 5 seconds to commit
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	zlog.Info().Msg("Server exiting")
}
