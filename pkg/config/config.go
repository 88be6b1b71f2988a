// Package config loads the recognized options of spec §6 from the
// environment, with an optional .env file (matching the teacher's reliance
// on github.com/joho/godotenv for local development).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every recognized option from spec §6.
type Config struct {
	ListenAddr         string
	DurableStoreURL    string
	EphemeralStoreURL  string
	FrontendOrigin     string
	IdleTimeout        time.Duration
	StoreRetryAttempts int
	OpLogWindow        int
	PresenceTTL        time.Duration
	OpLogTTL           time.Duration
	ChatRingSize       int
	ChatTTL            time.Duration
}

// Load reads configuration from the environment, loading a .env file first
// if one is present (ignored if absent, same as the teacher's pattern of
// tolerating a missing .env in production).
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ListenAddr:         getEnv("LISTEN_ADDR", ":8080"),
		DurableStoreURL:    getEnv("DURABLE_STORE_URL", getEnv("DATABASE_URL", "")),
		EphemeralStoreURL:  getEnv("EPHEMERAL_STORE_URL", getEnv("REDIS_ADDR", "")),
		FrontendOrigin:     getEnv("FRONTEND_ORIGIN", "*"),
		IdleTimeout:        getEnvSeconds("IDLE_TIMEOUT_SECONDS", 60),
		StoreRetryAttempts: getEnvInt("STORE_RETRY_ATTEMPTS", 3),
		OpLogWindow:        getEnvInt("OP_LOG_WINDOW", 100),
		PresenceTTL:        getEnvSeconds("PRESENCE_TTL_SECONDS", 3600),
		OpLogTTL:           getEnvSeconds("OP_LOG_TTL_SECONDS", 300),
		ChatRingSize:       getEnvInt("CHAT_RING_SIZE", 100),
		ChatTTL:            getEnvSeconds("CHAT_TTL_SECONDS", 86400),
	}
}

// GetDatabaseConnectionString returns the durable store's Postgres DSN.
func (c *Config) GetDatabaseConnectionString() string {
	return c.DurableStoreURL
}

// GetServerAddr returns the TCP address the session endpoint binds to.
func (c *Config) GetServerAddr() string {
	return c.ListenAddr
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvSeconds(key string, fallbackSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackSeconds)) * time.Second
}

func (c *Config) String() string {
	return fmt.Sprintf("listen=%s durable_store=%s ephemeral_store=%s", c.ListenAddr, c.DurableStoreURL, c.EphemeralStoreURL)
}
