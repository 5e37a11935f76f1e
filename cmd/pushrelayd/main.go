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

	"push-relay-backend/config"
	"push-relay-backend/internal/api"
	"push-relay-backend/internal/db"
	"push-relay-backend/internal/dispatch"
	"push-relay-backend/internal/store"
	"push-relay-backend/internal/tenant"
)

func main() {
	logger := log.New(os.Stdout, "push-relay ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatalf("VAPID keys must be configured. Please generate them and add them to your config or environment.")
	}
	if len(cfg.Auth.Tenants) == 0 {
		logger.Fatalf("at least one tenant must be configured")
	}

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

	appStore := store.NewGormStore(gormDB)

	// The tenant public keys must all be settled (fetched or recorded as
	// absent) before the server starts accepting traffic.
	fetchCtx, fetchCancel := context.WithTimeout(context.Background(), 30*time.Second)
	registry := tenant.LoadRegistry(fetchCtx, cfg.Auth.Tenants, &tenant.HTTPKeyFetcher{
		Client: &http.Client{Timeout: 10 * time.Second},
	})
	fetchCancel()
	logger.Printf("tenant registry loaded for issuers %v", registry.Issuers())

	dispatcher := dispatch.New(appStore, &webpushOptions)

	router := api.NewRouter(appStore, registry, dispatcher, cfg)
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
