package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds service configuration.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	Database DatabaseConfig
	NATS     NATSConfig
	Auth     AuthConfig
	Approval ApprovalConfig
	OCR      OCRConfig
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
}

type ServerConfig struct {
	HTTPPort        int
	GRPCPort        int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	RateLimit       string // ulule formatted rate, e.g. "600-M"
	AllowedOrigins  []string
}

type DatabaseConfig struct {
	URL           string
	MaxConns      int32
	MinConns      int32
	MaxConnTime   time.Duration
	MaxIdleTime   time.Duration
	RunMigrations bool
}

type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

type ApprovalConfig struct {
	// RulesFile, when set, replaces the database rule tables with a YAML file.
	RulesFile            string
	AccountCodeMinLength int
}

type OCRConfig struct {
	FieldFloor float64
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("SERVICE_NAME", "be-ap-invoice-approvals")
	v.SetDefault("SERVICE_VERSION", "dev")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("HTTP_PORT", 8086)
	v.SetDefault("GRPC_PORT", 9086)
	v.SetDefault("HTTP_READ_TIMEOUT", "15s")
	v.SetDefault("HTTP_WRITE_TIMEOUT", "15s")
	v.SetDefault("HTTP_IDLE_TIMEOUT", "60s")
	v.SetDefault("SHUTDOWN_TIMEOUT", "20s")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("RATE_LIMIT", "600-M")
	v.SetDefault("CORS_ALLOWED_ORIGINS", []string{"*"})

	v.SetDefault("PGSQL_URL", "")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("DB_MAX_CONN_TIME", "1h")
	v.SetDefault("DB_MAX_IDLE_TIME", "30m")
	v.SetDefault("RUN_MIGRATIONS", true)

	v.SetDefault("NATS_URL", "")
	v.SetDefault("NATS_SUBJECT_PREFIX", "notifications.ap")

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("APPROVAL_RULES_FILE", "")
	v.SetDefault("ACCOUNT_CODE_MIN_LENGTH", 3)
	v.SetDefault("OCR_MANUAL_REVIEW_FIELD_FLOOR", 0.5)

	v.AutomaticEnv()

	cfg := &Config{
		Service: ServiceConfig{
			Name:        v.GetString("SERVICE_NAME"),
			Version:     v.GetString("SERVICE_VERSION"),
			Environment: v.GetString("ENVIRONMENT"),
			LogLevel:    v.GetString("LOG_LEVEL"),
		},
		Server: ServerConfig{
			HTTPPort:        v.GetInt("HTTP_PORT"),
			GRPCPort:        v.GetInt("GRPC_PORT"),
			ReadTimeout:     v.GetDuration("HTTP_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("HTTP_WRITE_TIMEOUT"),
			IdleTimeout:     v.GetDuration("HTTP_IDLE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
			RequestTimeout:  v.GetDuration("REQUEST_TIMEOUT"),
			RateLimit:       v.GetString("RATE_LIMIT"),
			AllowedOrigins:  v.GetStringSlice("CORS_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			URL:           v.GetString("PGSQL_URL"),
			MaxConns:      v.GetInt32("DB_MAX_CONNS"),
			MinConns:      v.GetInt32("DB_MIN_CONNS"),
			MaxConnTime:   v.GetDuration("DB_MAX_CONN_TIME"),
			MaxIdleTime:   v.GetDuration("DB_MAX_IDLE_TIME"),
			RunMigrations: v.GetBool("RUN_MIGRATIONS"),
		},
		NATS: NATSConfig{
			URL:           v.GetString("NATS_URL"),
			SubjectPrefix: v.GetString("NATS_SUBJECT_PREFIX"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
			JWTIssuer: v.GetString("JWT_ISSUER"),
		},
		Approval: ApprovalConfig{
			RulesFile:            v.GetString("APPROVAL_RULES_FILE"),
			AccountCodeMinLength: v.GetInt("ACCOUNT_CODE_MIN_LENGTH"),
		},
		OCR: OCRConfig{
			FieldFloor: v.GetFloat64("OCR_MANUAL_REVIEW_FIELD_FLOOR"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("PGSQL_URL is required")
	}
	if c.Auth.JWTSecret == "" && c.Service.Environment == "production" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.Approval.AccountCodeMinLength < 1 {
		return fmt.Errorf("ACCOUNT_CODE_MIN_LENGTH must be positive, got %d", c.Approval.AccountCodeMinLength)
	}
	if c.OCR.FieldFloor < 0 || c.OCR.FieldFloor > 1 {
		return fmt.Errorf("OCR_MANUAL_REVIEW_FIELD_FLOOR must be within [0,1], got %v", c.OCR.FieldFloor)
	}
	return nil
}
