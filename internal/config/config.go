package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// AuthConfig carries the lockout/OTP/session policy knobs. The defaults are
// the production policy; every value is env-overridable so deployments can
// tune without a rebuild.
type AuthConfig struct {
	MaxLoginAttempts      int
	LockoutDuration       time.Duration // Base lockout; doubles per lockout cycle
	MaxLockoutDuration    time.Duration // Backoff ceiling
	AttemptWindow         time.Duration // Rolling window for counting failures
	OtpExpiry             time.Duration
	MaxOtpVerifyAttempts  int
	OtpVerifyLockDuration time.Duration
	SessionExpiry         time.Duration
	SessionMaxAge         time.Duration // Ceiling used by expired-session cleanup
	TakeoverTokenSecret   string
	TakeoverTokenExpiry   time.Duration
	CleanupSecret         string // Bearer secret for the cron cleanup endpoint
	CleanupInterval       time.Duration
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cleanupSecret := getEnv("SESSION_CLEANUP_SECRET", "")
	if cleanupSecret == "" {
		return nil, fmt.Errorf("SESSION_CLEANUP_SECRET is required")
	}

	takeoverSecret := getEnv("TAKEOVER_TOKEN_SECRET", "")
	if takeoverSecret == "" {
		return nil, fmt.Errorf("TAKEOVER_TOKEN_SECRET is required")
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "campusauth"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			MaxLoginAttempts:      getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
			LockoutDuration:       getEnvAsDuration("LOCKOUT_DURATION", 30*time.Minute),
			MaxLockoutDuration:    getEnvAsDuration("MAX_LOCKOUT_DURATION", 24*time.Hour),
			AttemptWindow:         getEnvAsDuration("ATTEMPT_WINDOW", 60*time.Minute),
			OtpExpiry:             getEnvAsDuration("OTP_EXPIRY", 10*time.Minute),
			MaxOtpVerifyAttempts:  getEnvAsInt("MAX_OTP_VERIFY_ATTEMPTS", 3),
			OtpVerifyLockDuration: getEnvAsDuration("OTP_VERIFY_LOCK_DURATION", 15*time.Minute),
			SessionExpiry:         getEnvAsDuration("SESSION_EXPIRY", 24*time.Hour),
			SessionMaxAge:         getEnvAsDuration("SESSION_MAX_AGE", 24*time.Hour),
			TakeoverTokenSecret:   takeoverSecret,
			TakeoverTokenExpiry:   getEnvAsDuration("TAKEOVER_TOKEN_EXPIRY", 2*time.Minute),
			CleanupSecret:         cleanupSecret,
			CleanupInterval:       getEnvAsDuration("SESSION_CLEANUP_INTERVAL", 1*time.Hour),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@campusauth.local"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateSecret("SESSION_CLEANUP_SECRET", cleanupSecret, env); err != nil {
		return nil, err
	}
	if err := validateSecret("TAKEOVER_TOKEN_SECRET", takeoverSecret, env); err != nil {
		return nil, err
	}

	if err := validatePolicy(&cfg.Auth); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecret enforces minimum strength for shared secrets
func validateSecret(name, secret, env string) error {
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

// validatePolicy rejects configurations that would disable the protections
func validatePolicy(auth *AuthConfig) error {
	if auth.MaxLoginAttempts < 1 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be at least 1")
	}
	if auth.MaxOtpVerifyAttempts < 1 {
		return fmt.Errorf("MAX_OTP_VERIFY_ATTEMPTS must be at least 1")
	}
	if auth.LockoutDuration <= 0 || auth.AttemptWindow <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION and ATTEMPT_WINDOW must be positive")
	}
	if auth.MaxLockoutDuration < auth.LockoutDuration {
		return fmt.Errorf("MAX_LOCKOUT_DURATION cannot be below LOCKOUT_DURATION")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
