package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StoreSupabase = "supabase"
	StorePostgres = "postgres"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string
	FrontendURL string

	SupabaseURL            string
	SupabaseAnonKey        string
	SupabaseServiceRoleKey string
	StoreDriver            string
	DatabaseURL            string

	MongoDBURI      string
	MongoDBPassword string
	MongoDBDatabase string

	RedisAddr     string
	RedisUser     string
	RedisPassword string

	RazorpayKeyID     string
	RazorpayKeySecret string
	RazorpayBaseURL   string
	GatewayTimeout    time.Duration

	Currency string
	TaxRate  decimal.Decimal

	MailjetAPIKey    string
	MailjetSecretKey string
	MailFromEmail    string
	MailFromName     string

	OutboxSchedule string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:        getEnvWithDefault("PORT", "8080"),
		Environment: getEnvWithDefault("ENVIRONMENT", "development"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		FrontendURL: getEnvWithDefault("FRONTEND_URL", "http://localhost:3000"),

		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseAnonKey:        os.Getenv("SUPABASE_URL_ANON_KEY"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		StoreDriver:            strings.ToLower(getEnvWithDefault("STORE_DRIVER", StoreSupabase)),
		DatabaseURL:            os.Getenv("DATABASE_URL"),

		MongoDBURI:      os.Getenv("MONGODB_URI"),
		MongoDBPassword: os.Getenv("MONGODB_PASSWORD"),
		MongoDBDatabase: getEnvWithDefault("MONGODB_DATABASE", "staybook"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisUser:     os.Getenv("REDIS_USER"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		RazorpayKeyID:     os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret: os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayBaseURL:   os.Getenv("RAZORPAY_BASE_URL"),

		Currency: strings.ToUpper(getEnvWithDefault("CURRENCY", "INR")),

		MailjetAPIKey:    os.Getenv("MAILJET_API_KEY"),
		MailjetSecretKey: os.Getenv("MAILJET_SECRET_KEY"),
		MailFromEmail:    getEnvWithDefault("MAIL_FROM_EMAIL", "bookings@staybook.app"),
		MailFromName:     getEnvWithDefault("MAIL_FROM_NAME", "StayBook"),

		OutboxSchedule: getEnvWithDefault("OUTBOX_SCHEDULE", "@every 1m"),
	}

	timeout, err := time.ParseDuration(getEnvWithDefault("GATEWAY_TIMEOUT", "15s"))
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("GATEWAY_TIMEOUT must be a positive duration")
	}
	cfg.GatewayTimeout = timeout

	taxRate, err := decimal.NewFromString(getEnvWithDefault("TAX_RATE", "0.18"))
	if err != nil || taxRate.IsNegative() || taxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("TAX_RATE must be a fraction between 0 and 1")
	}
	cfg.TaxRate = taxRate

	// Validate required fields
	if cfg.SupabaseURL == "" {
		return nil, fmt.Errorf("SUPABASE_URL is required")
	}
	if cfg.SupabaseAnonKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL_ANON_KEY is required")
	}
	switch cfg.StoreDriver {
	case StoreSupabase:
		if cfg.SupabaseServiceRoleKey == "" {
			return nil, fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY is required")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q", StoreSupabase, StorePostgres)
	}
	if cfg.MongoDBURI == "" {
		return nil, fmt.Errorf("MONGODB_URI is required")
	}
	if cfg.RazorpayKeyID == "" || cfg.RazorpayKeySecret == "" {
		return nil, fmt.Errorf("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required")
	}

	return cfg, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
