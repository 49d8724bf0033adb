package config

import (
	"os"
	"strconv"
	"time"

	"spacedan/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL string
	WSURL      string
	AuthToken  string
	JWTSecret  string // optional; when set, tokens are verified locally

	// Local status / metrics API
	AgentPort string

	// Local persisted store (redis). Empty addr selects the in-memory store.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Optional paired-universe channel for typing presence
	UniverseID string

	// Name shown to the peer in typing broadcasts. Falls back to the
	// session user id when empty.
	DisplayName string

	RPCTimeout time.Duration

	LogLevel string
	LogJSON  bool
}

// Load reads configuration from the environment (.env honored).
func Load() *Config {
	_ = godotenv.Load()

	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		logger.Fatal("API_BASE_URL is not set")
	}

	token := os.Getenv("AUTH_TOKEN")
	if token == "" {
		logger.Fatal("AUTH_TOKEN is not set")
	}

	wsURL := os.Getenv("WS_URL")
	if wsURL == "" {
		logger.Fatal("WS_URL is not set")
	}

	port := os.Getenv("AGENT_PORT")
	if port == "" {
		port = "8090"
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}

	rpcTimeout := 10 * time.Second
	if v := os.Getenv("RPC_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rpcTimeout = time.Duration(n) * time.Second
		}
	}

	return &Config{
		APIBaseURL:    apiURL,
		WSURL:         wsURL,
		AuthToken:     token,
		JWTSecret:     os.Getenv("JWT_SECRET"),
		AgentPort:     port,
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
		UniverseID:    os.Getenv("UNIVERSE_ID"),
		DisplayName:   os.Getenv("DISPLAY_NAME"),
		RPCTimeout:    rpcTimeout,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogJSON:       os.Getenv("LOG_JSON") == "true",
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
