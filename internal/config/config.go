package config

import (
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL string

	RedisAddr       string
	RedisPassword   string
	RedisTLS        bool
	CatalogCacheTTL time.Duration

	PatientJWTSecret string
	RateLimitRPS     float64
	RateLimitBurst   int

	// Clinic scheduling
	ClinicID       string
	ClinicTimezone string
	SlotInterval   time.Duration
	AutoConfirm    bool

	// Outbox delivery
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	EventsQueueURL      string
	OutboxPollInterval  time.Duration

	// Client side (bookingctl)
	APIBaseURL  string
	APIToken    string
	HTTPTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:       getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisTLS:        getEnvAsBool("REDIS_TLS", false),
		CatalogCacheTTL: getEnvAsDuration("CATALOG_CACHE_TTL", 5*time.Minute),

		PatientJWTSecret: getEnv("PATIENT_JWT_SECRET", ""),
		RateLimitRPS:     getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:   getEnvAsInt("RATE_LIMIT_BURST", 20),

		ClinicID:       getEnv("CLINIC_ID", "default"),
		ClinicTimezone: getEnv("CLINIC_TIMEZONE", "America/New_York"),
		SlotInterval:   getEnvAsDuration("SLOT_INTERVAL", 30*time.Minute),
		AutoConfirm:    getEnvAsBool("AUTO_CONFIRM", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		EventsQueueURL:      getEnv("EVENTS_QUEUE_URL", ""),
		OutboxPollInterval:  getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),

		APIBaseURL:  strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8080"), "/"),
		APIToken:    getEnv("API_TOKEN", ""),
		HTTPTimeout: getEnvAsDuration("HTTP_TIMEOUT", 10*time.Second),
	}
}

// Location resolves ClinicTimezone, falling back to UTC when the zone is unknown.
func (c *Config) Location() *time.Location {
	if c == nil || strings.TrimSpace(c.ClinicTimezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}
