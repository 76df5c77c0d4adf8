package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/weekly-campaign/internal/app"
	"github.com/ignite/weekly-campaign/internal/config"
	"github.com/ignite/weekly-campaign/internal/worker"
)

func main() {
	log.Println("Starting weekly campaign tick worker...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	scheduler := worker.NewTickScheduler(a.Service, a.DB, a.Redis, cfg.Worker.LockTTL())
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start tick scheduler: %v", err)
	}
	log.Println("Worker running (ticks once per minute)...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	scheduler.Stop()
	log.Println("Worker stopped")
}
