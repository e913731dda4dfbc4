package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"notate/api/internal/app"
	"notate/api/internal/config"
	"notate/api/internal/credentials"
	"notate/api/internal/session"
	"notate/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	var kv store.KV
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		log.Printf("Using PostgreSQL store")
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer pg.Close()
		kv = pg
	} else {
		log.Printf("Using file store at %s", cfg.DataDir)
		fileKV, err := store.NewFileKV(cfg.DataDir)
		if err != nil {
			log.Fatalf("failed to create data dir: %v", err)
		}
		kv = fileKV
	}

	var sessions session.Registry
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis session registry")
		redisRegistry, err := session.NewRedisRegistry(cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisRegistry.Close()
		sessions = redisRegistry
	} else {
		// Sessions live in process memory; a restart signs everyone out.
		sessions = session.NewMemoryRegistry()
	}

	service := app.New(cfg, kv, credentials.NewService(kv), sessions)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Notate API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
