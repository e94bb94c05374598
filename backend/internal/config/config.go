package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the signaling server.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// AllowedOrigins gates both CORS on the HTTP API and the websocket
	// upgrade. Empty or "*" allows every origin.
	AllowedOrigins []string

	// RedisURL enables the room event mirror when set.
	RedisURL string

	// PublicURL is used to build share links returned by POST /api/rooms.
	PublicURL string

	RoomIDLength int
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       os.Getenv("LOG_LEVEL"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		RedisURL:       os.Getenv("REDIS_URL"),
		PublicURL:      strings.TrimRight(os.Getenv("PUBLIC_URL"), "/"),
		RoomIDLength:   getEnvInt("ROOM_ID_LENGTH", 8),
	}

	if cfg.RoomIDLength < 4 {
		cfg.RoomIDLength = 4
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// AllowsAnyOrigin reports whether origin checks are disabled.
func (c *Config) AllowsAnyOrigin() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return len(c.AllowedOrigins) == 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, entry := range strings.Split(s, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
