package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the order service, loaded from
// environment variables.
type Config struct {
	Server   ServerConfig
	Merchant MerchantConfig
	Mail     MailConfig
	Counter  CounterConfig
	Events   EventsConfig
	LogLevel string
}

type ServerConfig struct {
	Port            string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type MerchantConfig struct {
	// Timezone is the merchant's operating time zone; order numbers and
	// notification timestamps use this zone, not UTC.
	Timezone    string
	OrderPrefix string
}

type MailConfig struct {
	SendGridAPIKey string
	OperatorEmail  string
	SenderEmail    string
	SenderName     string
	// Breaker settings for the fail-fast wrapper around the transport.
	BreakerMaxFailures int
	BreakerTimeout     time.Duration
}

type CounterConfig struct {
	// DatabaseURL enables the Postgres-backed day counter. Empty means the
	// generator runs on process memory only.
	DatabaseURL string
}

type EventsConfig struct {
	// KafkaBrokers enables dispatch audit events. Empty disables them.
	KafkaBrokers string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "3000"),
			AllowedOrigins:  getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:5173", "https://koowhips.ca"}),
			ReadTimeout:     getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Merchant: MerchantConfig{
			Timezone:    getEnv("MERCHANT_TIMEZONE", "America/Toronto"),
			OrderPrefix: getEnv("ORDER_PREFIX", "KW"),
		},
		Mail: MailConfig{
			SendGridAPIKey:     os.Getenv("SENDGRID_API_KEY"),
			OperatorEmail:      os.Getenv("OPERATOR_EMAIL"),
			SenderEmail:        os.Getenv("SENDER_EMAIL"),
			SenderName:         getEnv("SENDER_NAME", "KooWhips Orders"),
			BreakerMaxFailures: getEnvAsInt("MAIL_BREAKER_MAX_FAILURES", 5),
			BreakerTimeout:     getEnvAsDuration("MAIL_BREAKER_TIMEOUT", 60*time.Second),
		},
		Counter: CounterConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		Events: EventsConfig{
			KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that required settings are present and coherent.
func (c *Config) Validate() error {
	if c.Mail.SendGridAPIKey == "" {
		return fmt.Errorf("SENDGRID_API_KEY is required")
	}
	if c.Mail.OperatorEmail == "" {
		return fmt.Errorf("OPERATOR_EMAIL is required")
	}
	if c.Mail.SenderEmail == "" {
		return fmt.Errorf("SENDER_EMAIL is required")
	}
	if c.Merchant.OrderPrefix == "" {
		return fmt.Errorf("ORDER_PREFIX must not be empty")
	}
	if _, err := time.LoadLocation(c.Merchant.Timezone); err != nil {
		return fmt.Errorf("invalid MERCHANT_TIMEZONE %q: %w", c.Merchant.Timezone, err)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
