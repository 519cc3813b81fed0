package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pv/obd-monitor-go/internal/api"
	"github.com/pv/obd-monitor-go/internal/bridge"
	"github.com/pv/obd-monitor-go/internal/broadcast"
	"github.com/pv/obd-monitor-go/internal/config"
	"github.com/pv/obd-monitor-go/internal/engine"
	"github.com/pv/obd-monitor-go/internal/logger"
	"github.com/pv/obd-monitor-go/internal/monitor"
	"github.com/pv/obd-monitor-go/internal/obd"
	"github.com/pv/obd-monitor-go/internal/storage"
)

func main() {
	cfg := config.Parse()
	logger.Init(cfg.LogFormat, slog.LevelInfo)

	vehicle, err := config.LoadVehicle(cfg.VehiclePath)
	if err != nil {
		logger.Error("Failed to load vehicle config", "path", cfg.VehiclePath, "error", err)
		os.Exit(1)
	}

	// Create storage
	var store storage.Store
	switch cfg.Storage {
	case config.StorageMemory:
		store = storage.NewMemoryStore()
		logger.Info("Using in-memory storage")
	default:
		store = storage.NewSQLiteStore(cfg.SQLitePath)
		logger.Info("Using SQLite storage", "path", cfg.SQLitePath)
	}

	// Create adapter connector
	var connector obd.Connector
	switch cfg.Adapter {
	case "sim":
		connector = obd.NewSimConnector()
		logger.Info("Using simulated adapter")
	default:
		logger.Error("Unknown adapter driver", "adapter", cfg.Adapter)
		os.Exit(1)
	}

	// Wire the core
	hub := broadcast.NewHub(cfg.StreamBuffer)
	eng := engine.New(vehicle, connector, store, hub)
	br := bridge.New(16)
	mon := monitor.New(eng, store, hub, br, cfg.CallTimeout)

	if err := mon.Start(); err != nil {
		logger.Error("Failed to start acquisition engine", "error", err)
		if shutdownErr := mon.Shutdown(cfg.CallTimeout); shutdownErr != nil {
			logger.Error("Shutdown after failed start", "error", shutdownErr)
		}
		os.Exit(1)
	}

	// Start HTTP server
	handlers := api.NewHandlers(mon)
	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: api.NewServer(handlers),
	}

	go func() {
		logger.Info("Starting server", "addr", fmt.Sprintf("http://localhost%s", addr))
		logger.Info("Monitoring vehicle",
			"name", vehicle.Name,
			"port", vehicle.AdapterPort,
			"interval", vehicle.EffectiveInterval(),
			"pids", len(vehicle.SortedPIDs()))

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	if err := httpServer.Shutdown(context.Background()); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	if err := mon.Shutdown(cfg.CallTimeout); err != nil {
		logger.Error("Monitor shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("Stopped")
}
