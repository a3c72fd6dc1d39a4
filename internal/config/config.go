package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// RedisURL points at the shared store and pub/sub backbone. When empty
	// the server runs in single-process mode on in-memory implementations.
	RedisURL string

	// Secret is the shared signing key for session credentials. When empty
	// the server runs in open mode and accepts any join request. This is a
	// deployment policy switch, not a hidden code path.
	Secret string

	// SessionWindow is how long after issuance a signed credential is
	// accepted.
	SessionWindow time.Duration

	// LeaveText is the control message body published when a session
	// disconnects.
	LeaveText string

	Keys KeyNamespaces
}

// KeyNamespaces holds the store key and pub/sub topic prefixes. Each must be
// distinct: storage keys and topics are both derived from channel names and
// must not collide.
type KeyNamespaces struct {
	MessageID      string // counter allocating message ids
	Message        string // prefix for per-message field hashes
	History        string // prefix for per-channel history lists
	Topic          string // prefix for pub/sub topics
	Presence       string // prefix for per-channel online sets
	PresenceDetail string // prefix for per-member detail hashes
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", "8020"),
		Env:           getEnv("ENV", "development"),
		RedisURL:      os.Getenv("REDIS_URL"),
		Secret:        os.Getenv("CHAT_SECRET"),
		SessionWindow: time.Duration(getEnvInt("SESSION_WINDOW_SECONDS", 86400)) * time.Second,
		LeaveText:     getEnv("CHAT_LEAVE_TEXT", " went offline."),
		Keys: KeyNamespaces{
			MessageID:      getEnv("KEY_MESSAGE_ID", "chat-id"),
			Message:        getEnv("KEY_MESSAGE_PREFIX", "chat-message"),
			History:        getEnv("KEY_HISTORY_PREFIX", "chat-history"),
			Topic:          getEnv("KEY_TOPIC_PREFIX", "chat"),
			Presence:       getEnv("KEY_PRESENCE_PREFIX", "chat-online"),
			PresenceDetail: getEnv("KEY_PRESENCE_DETAIL_PREFIX", "chat-member"),
		},
	}

	// In production, require the shared backbone
	if cfg.Env == "production" && cfg.RedisURL == "" {
		panic("REDIS_URL is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// OpenMode reports whether credential verification is bypassed.
func (c *Config) OpenMode() bool {
	return c.Secret == ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
