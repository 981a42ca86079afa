package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr        string
	UpstreamURL string
	JWTSecret   string
	CORSOrigin  string
	// Redis Configuration
	RedisURL string
	CacheTTL time.Duration
	// Upstream HTTP client
	UpstreamTimeout time.Duration
	// Incentive settlement
	IncentiveRPCURL string
}

func Load() Config {
	return Config{
		Addr:            getenv("GATEWAY_ADDR", ":8799"),
		UpstreamURL:     getenv("AGORA_UPSTREAM_URL", "http://localhost:8080"),
		JWTSecret:       getenv("AGORA_JWT_SECRET", "agora-dev-secret"),
		CORSOrigin:      getenv("AGORA_CORS_ORIGIN", "*"),
		RedisURL:        getenv("REDIS_URL", "redis://localhost:6379/0"),
		CacheTTL:        time.Duration(getenvInt("AGORA_CACHE_TTL_SECONDS", 900)) * time.Second,
		UpstreamTimeout: time.Duration(getenvInt("AGORA_UPSTREAM_TIMEOUT_SECONDS", 15)) * time.Second,
		// Empty disables on-chain incentive settlement at finish.
		IncentiveRPCURL: getenv("AGORA_INCENTIVE_RPC_URL", ""),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
