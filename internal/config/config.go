package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the discussion service.
type Config struct {
	// Addr is the listen address for the HTTP/WebSocket server.
	Addr string

	// SurrealDB connection settings for the durable message store.
	DBUrl  string
	DBNs   string
	DBDb   string
	DBUser string
	DBPass string

	// JWTSecret signs and verifies the identity tokens presented at
	// connection-admit time and on the REST history endpoints.
	JWTSecret string

	// AllowedOrigins restricts which Origin hosts may open a WebSocket
	// (e.g. the dashboard host). Empty means origin checking is disabled,
	// which is only appropriate for local development.
	AllowedOrigins []string

	// TypingTTL is how long a typing entry may go without a refresh before
	// the presence sweep removes it and broadcasts a stop-typing.
	TypingTTL time.Duration

	// HistoryLimit is the default page size for history fetches.
	HistoryLimit int
}

// New loads configuration from environment variables.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		Addr:           getEnv("APP_ADDR", ":8080"),
		DBUrl:          os.Getenv("SURREAL_URL"),
		DBUser:         os.Getenv("SURREAL_USER"),
		DBPass:         os.Getenv("SURREAL_PASS"),
		DBNs:           os.Getenv("SURREAL_NS"),
		DBDb:           os.Getenv("SURREAL_DB"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		AllowedOrigins: getList("WS_ALLOWED_ORIGINS"),
		TypingTTL:      getDuration("TYPING_TTL", 3*time.Second),
		HistoryLimit:   getInt("HISTORY_LIMIT", 50),
	}

	if cfg.DBUrl == "" || cfg.DBNs == "" || cfg.DBDb == "" {
		log.Fatal("Required environment variables SURREAL_URL, SURREAL_NS, or SURREAL_DB are not set.")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("Required environment variable JWT_SECRET is not set.")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid duration for %s: %q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("Invalid value for %s: %q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
