package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-gateway/internal/client"
	"go-gateway/internal/config"
	"go-gateway/internal/handler"
	"go-gateway/internal/ledger"
	"go-gateway/pkg/redis"

	"github.com/valyala/fasthttp"
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
	paymentLedger := ledger.NewLedger(redisClient, httpClient, cfg)
	paymentHandler := handler.NewPaymentHandler(paymentLedger)

	server := &fasthttp.Server{
		Handler:            route(paymentHandler),
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		IdleTimeout:        30 * time.Second,
		MaxRequestBodySize: 1024,
	}

	listener, cleanup, err := listen(cfg)
	if err != nil {
		log.Fatalf("Failed to create listener: %v", err)
	}
	defer listener.Close()

	go func() {
		log.Printf("HTTP server listening on %s", listener.Addr())
		if err := server.Serve(listener); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down gracefully...")

	if err := server.Shutdown(); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	cleanup()
	httpClient.Close()
	redisClient.Close()
	log.Println("Server stopped")
}

func route(h *handler.PaymentHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/payments":
			h.PostPayments(ctx)
		case "/payments-summary":
			h.GetPaymentsSummary(ctx)
		case "/health":
			h.GetHealth(ctx)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}
}

func listen(cfg *config.Config) (net.Listener, func(), error) {
	if cfg.SocketPath == "" {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.AppPort))
		return listener, func() {}, err
	}

	os.Remove(cfg.SocketPath)
	listener, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return nil, nil, err
	}
	if err := os.Chmod(cfg.SocketPath, 0666); err != nil {
		listener.Close()
		return nil, nil, err
	}
	return listener, func() { os.Remove(cfg.SocketPath) }, nil
}
