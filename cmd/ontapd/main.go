package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"ontap-backend/config"
	"ontap-backend/internal/api"
	"ontap-backend/internal/db"
	"ontap-backend/internal/event"
	"ontap-backend/internal/ingest"
	"ontap-backend/internal/meter"
	"ontap-backend/internal/notification"
	"ontap-backend/internal/pour"
	"ontap-backend/internal/session"
	"ontap-backend/internal/tap"
)

func main() {
	logger := log.New(os.Stdout, "ontapd ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Notification workers consume derived keg events.
	workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions)
	workerPool.Start(ctx)

	deriver := event.NewDeriver(gormDB, workerPool)
	windower := session.NewWindower(cfg.Session.Timeout)
	meters := meter.NewRegistry(gormDB, cfg.Flow.DefaultTicksPerML)
	recorder := pour.NewRecorder(gormDB, windower, deriver, meters)
	taps := tap.NewRegistry(gormDB, deriver)

	listener := ingest.NewListener(cfg, meters, recorder)
	go func() {
		if err := listener.Run(ctx); err != nil {
			logger.Printf("meter ingestion stopped: %v", err)
		}
	}()

	router := api.NewRouter(cfg, gormDB, recorder, taps, &webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
