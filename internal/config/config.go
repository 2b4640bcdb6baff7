package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string
	ServiceName string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string

	AdminSubject   string
	OTPTTL         time.Duration
	OTPMaxAttempts int
	OTPLockout     time.Duration
	SessionTTL     time.Duration

	WaitTimeout    time.Duration
	MaxConnections int

	RateDescriptionPerSec int
	RateICEPerSec         int
	RateChatPerSec        int
	RateLimitRPM          int
	SweepInterval         time.Duration

	STUNURLs          []string
	TURNURLs          []string
	TURNSecret        string
	TURNCredentialTTL time.Duration

	TelegramBotToken string
	TelegramChatID   int64

	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// RedisEnabled reports whether a durable backend is configured. Without it
// all state is process-local and the service must run as a single instance.
func (c Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment: getEnv("APP_ENV", "development"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		ServiceName: getEnv("SERVICE_NAME", "support-signaling"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		KeyPrefix:     getEnv("KEY_PREFIX", "support"),

		AdminSubject:   getEnv("ADMIN_SUBJECT", "admin"),
		OTPTTL:         getDuration("OTP_TTL", 5*time.Minute),
		OTPMaxAttempts: getInt("OTP_MAX_ATTEMPTS", 5),
		OTPLockout:     getDuration("OTP_LOCKOUT", 15*time.Minute),
		SessionTTL:     getDuration("SESSION_TTL", 12*time.Hour),

		WaitTimeout:    getDuration("WAIT_TIMEOUT", 60*time.Second),
		MaxConnections: getInt("MAX_CONNECTIONS", 50),

		RateDescriptionPerSec: getInt("RATE_DESCRIPTION_PER_SEC", 5),
		RateICEPerSec:         getInt("RATE_ICE_PER_SEC", 20),
		RateChatPerSec:        getInt("RATE_CHAT_PER_SEC", 3),
		RateLimitRPM:          getInt("RATE_LIMIT_RPM", 600),
		SweepInterval:         getDuration("SWEEP_INTERVAL", time.Minute),

		STUNURLs:          getList("STUN_URLS", []string{"stun:stun.l.google.com:19302"}),
		TURNURLs:          getList("TURN_URLS", nil),
		TURNSecret:        os.Getenv("TURN_SECRET"),
		TURNCredentialTTL: getDuration("TURN_CREDENTIAL_TTL", 5*time.Minute),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   getInt64("TELEGRAM_CHAT_ID", 0),

		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", true),
	}

	if cfg.OTPMaxAttempts < 1 {
		return Config{}, fmt.Errorf("OTP_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.MaxConnections < 2 {
		return Config{}, fmt.Errorf("MAX_CONNECTIONS must allow at least one admin and one customer")
	}
	if cfg.TURNSecret != "" && len(cfg.TURNURLs) == 0 {
		return Config{}, fmt.Errorf("TURN_URLS is required when TURN_SECRET is set")
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID == 0 {
		return Config{}, fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
