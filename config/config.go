package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds the environment driven configuration for the storefront API.
type Config struct {
	AppName     string `env:"APP_NAME" envDefault:"storefront-api"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"storefront"`

	RedisURL      string `env:"REDIS_URL"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JWTSecret         string        `env:"JWT_SECRET,required"`
	JWTIssuer         string        `env:"JWT_ISSUER" envDefault:"storefront"`
	TokenTTL          time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	TempAdminTokenTTL time.Duration `env:"TEMP_ADMIN_TOKEN_TTL" envDefault:"1h"`

	OTPTTL             time.Duration `env:"OTP_TTL" envDefault:"5m"`
	OTPLength          int           `env:"OTP_LENGTH" envDefault:"6"`
	OTPMaxAttempts     int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`
	OTPRequestsPerHour int           `env:"OTP_REQUESTS_PER_HOUR" envDefault:"5"`
	OTPVerifiesPerHour int           `env:"OTP_VERIFICATIONS_PER_HOUR" envDefault:"10"`
	BcryptCost         int           `env:"BCRYPT_COST" envDefault:"10"`
	EnableRateLimiter  bool          `env:"ENABLE_RATE_LIMITER" envDefault:"true"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses environment variables into Config.
//
// Configuration Loading Order (highest to lowest priority):
// 1. Environment variables
// 2. .env file (if present)
// 3. Default values from struct tags
func Load() (*Config, error) {
	loadEnvFiles()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET must not be blank")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.TempAdminTokenTTL <= 0 || c.TempAdminTokenTTL > c.TokenTTL {
		return fmt.Errorf("TEMP_ADMIN_TOKEN_TTL must be positive and not exceed TOKEN_TTL")
	}
	if c.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive")
	}
	if c.OTPLength < 4 || c.OTPLength > 10 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 10")
	}
	if c.OTPMaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// loadEnvFiles does not override variables already present in the environment.
func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
