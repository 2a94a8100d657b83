package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agenthost/agenthost/internal/agent/registry"
	"github.com/agenthost/agenthost/internal/common/config"
	"github.com/agenthost/agenthost/internal/common/logger"
	"github.com/agenthost/agenthost/internal/server"
	"github.com/agenthost/agenthost/internal/storage"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting agenthost...")

	// 3. Load agent launch profiles
	profilesPath := cfg.Agent.ProfilesPath
	if profilesPath == "" {
		profilesPath = "agents.yaml"
	}
	reg, err := registry.Load(profilesPath)
	if err != nil {
		log.Fatal("Failed to load agent registry", zap.Error(err))
	}
	log.Info("Loaded agent registry", zap.Strings("agents", reg.Names()))

	// 4. Open the session store
	var store *storage.Store
	if cfg.Storage.Path != "" {
		store, err = storage.Open(cfg.Storage.Path, log)
		if err != nil {
			log.Fatal("Failed to open session store", zap.Error(err))
		}
		defer store.Close()
		log.Info("Opened session store", zap.String("path", cfg.Storage.Path))
	}

	// 5. Assemble and start the server
	srv := server.New(cfg, reg, store, log)
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 6. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down agenthost...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	log.Info("agenthost stopped")
}
