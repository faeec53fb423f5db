package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/shootingwala/inbox/clients/go/inbox"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Messaging API and the actor this process acts as
	APIURL      string
	Actor       inbox.Actor
	Admin       inbox.Actor
	TokenSecret string
	HTTPTimeout time.Duration

	// Polling
	ConversationPollInterval time.Duration
	MessagePollInterval      time.Duration

	// Storage
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	// Rate limiting
	RateLimitPerMinute int
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting

	CORSOrigins []string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8090"),
		Env:         getEnv("ENV", "development"),
		APIURL:      getEnv("INBOX_API_URL", "http://localhost:3000"),
		TokenSecret: os.Getenv("API_TOKEN_SECRET"),
		HTTPTimeout: getDuration("HTTP_TIMEOUT", 30*time.Second),
		Actor: inbox.Actor{
			ID:   os.Getenv("ACTOR_ID"),
			Name: os.Getenv("ACTOR_NAME"),
			Type: getActorType("ACTOR_TYPE", inbox.ActorPhotographer),
		},
		Admin: inbox.Actor{
			ID:   getEnv("ADMIN_ID", "admin"),
			Name: getEnv("ADMIN_NAME", "Admin"),
			Type: inbox.ActorAdmin,
		},
		ConversationPollInterval: getDuration("CONVERSATION_POLL_INTERVAL", 15*time.Second),
		MessagePollInterval:      getDuration("MESSAGE_POLL_INTERVAL", 5*time.Second),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		SQLitePath:               getEnv("SQLITE_PATH", "./data/inbox.db"),
		RedisURL:                 os.Getenv("REDIS_URL"),
		RateLimitPerMinute:       getInt("RATE_LIMIT_PER_MINUTE", 120),
		RateLimitWhitelist:       splitList(os.Getenv("RATE_LIMIT_WHITELIST")),
		CORSOrigins:              splitList(getEnv("CORS_ORIGINS", "*")),
	}

	// In production, require the API and the acting identity
	if cfg.Env == "production" {
		if os.Getenv("INBOX_API_URL") == "" {
			panic("INBOX_API_URL is required in production")
		}
		if cfg.Actor.ID == "" {
			panic("ACTOR_ID is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration parses values like "15s" or "2m". Bare integers are seconds.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if n, err := strconv.Atoi(value); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

func getActorType(key string, defaultValue inbox.ActorType) inbox.ActorType {
	if t, err := inbox.ParseActorType(os.Getenv(key)); err == nil {
		return t
	}
	return defaultValue
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
