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

	"agora/gateway/internal/app"
	"agora/gateway/internal/cache"
	"agora/gateway/internal/config"
	"agora/gateway/internal/lifecycle"
	"agora/gateway/internal/remote"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	var store cache.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for the space cache")
		redisStore, err := cache.NewRedisStore(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		if err := redisStore.Ping(ctx); err != nil {
			log.Printf("WARNING: redis unreachable at startup: %v", err)
		}
		store = redisStore
	} else {
		log.Printf("Using in-process memory for the space cache")
		store = cache.NewMemory()
	}

	client := remote.NewClient(cfg.UpstreamURL, cfg.UpstreamTimeout)

	var contract lifecycle.ContractCaller = noopContract{}
	if strings.TrimSpace(cfg.IncentiveRPCURL) != "" {
		log.Printf("Incentive settlement enabled via %s", cfg.IncentiveRPCURL)
		contract = lifecycle.NewRPCContractCaller(cfg.IncentiveRPCURL, cfg.UpstreamTimeout)
	}

	service := app.NewService(
		store,
		client,
		[]byte(cfg.JWTSecret),
		lifecycle.NewLogToasts(),
		lifecycle.NewNoopPopup(),
		logNavigator{},
		lifecycle.KeyTranslator{},
		contract,
	)

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
		log.Printf("Agora gateway listening on %s", cfg.Addr)
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

type noopContract struct{}

func (noopContract) SelectIncentives(context.Context, string, []remote.IncentiveCandidate) error {
	return nil
}

// logNavigator stands in for client-side navigation; the gateway only
// records where the viewer would be sent.
type logNavigator struct{}

func (logNavigator) Navigate(path string) { log.Printf("navigate: %s", path) }
