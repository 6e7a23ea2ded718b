package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go-gateway/internal/client"
	"go-gateway/internal/config"
	"go-gateway/internal/ledger"
	"go-gateway/internal/worker"
	"go-gateway/pkg/health"
	"go-gateway/pkg/redis"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	redisClient := redis.NewClient(cfg.GetRedisAddr())
	if err := redisClient.Ping(context.Background()); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	httpClient := client.NewHTTPClient()
	healthCache := health.NewCache(redisClient, httpClient, cfg)
	paymentLedger := ledger.NewLedger(redisClient, httpClient, cfg)

	consumer := worker.NewConsumer(redisClient, paymentLedger, healthCache, cfg)
	if err := consumer.Start(); err != nil {
		log.Fatalf("Failed to start consumer: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down gracefully...")

	consumer.Stop()
	httpClient.Close()
	redisClient.Close()
	log.Println("Worker stopped")
}
