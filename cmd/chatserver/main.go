// Package main runs the reference chat server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flatmate/internal/config"
	"flatmate/internal/observability"
	"flatmate/internal/server"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "flatmate-chatserver",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TraceExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TraceSampler,
	})
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}

	db, err := server.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	if err := server.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	repo := server.NewChatRepository(db)
	if cfg.Env == "development" {
		if _, err := server.SeedDemoProfiles(context.Background(), repo); err != nil {
			log.Fatalf("failed to seed demo profiles: %v", err)
		}
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Printf("redis unavailable, falling back to in-process delivery: %v", err)
			rdb = nil
		}
	}

	hub := server.NewHub()
	notifier := server.NewNotifier(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := hub.StartWiring(ctx, notifier); err != nil {
		log.Fatalf("failed to wire notifier: %v", err)
	}

	srv := server.NewServer(cfg, repo, hub, notifier)

	go func() {
		log.Printf("chatserver listening on :%s", cfg.Port)
		if err := srv.Listen(); err != nil {
			log.Fatalf("server stopped: %v", err)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	log.Println("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown error: %v", err)
	}
}
