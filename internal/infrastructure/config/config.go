package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Environment string
	DevToken    string
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Purchases   PurchasesConfig
	Analytics   AnalyticsConfig
	Sentry      SentryConfig
	Trial       TrialConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL          string
	Password     string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret    string
	AccessTTL time.Duration
	Issuer    string
}

// PurchasesConfig holds purchase platform configuration
type PurchasesConfig struct {
	APIURL            string
	APIKey            string
	AppUserID         string
	EntitlementKey    string
	AppleSharedSecret string
	GoogleKeyJSON     string
	Timeout           time.Duration
}

// AnalyticsConfig holds the analytics collector configuration
type AnalyticsConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// SentryConfig holds Sentry configuration
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// TrialConfig holds trial window configuration
type TrialConfig struct {
	Duration       time.Duration
	ReevalInterval time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// .env file is optional for production (env vars are used)
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server_port", 8080)
	viper.SetDefault("server_read_timeout", 10*time.Second)
	viper.SetDefault("server_write_timeout", 10*time.Second)
	viper.SetDefault("server_shutdown_timeout", 30*time.Second)

	viper.SetDefault("environment", "production")

	// JWT defaults
	viper.SetDefault("jwt_access_ttl", 15*time.Minute)
	viper.SetDefault("jwt_issuer", "goalforge-entitlement")

	// Redis defaults
	viper.SetDefault("redis_pool_size", 10)
	viper.SetDefault("redis_min_idle_conns", 3)
	viper.SetDefault("redis_dial_timeout", 5*time.Second)
	viper.SetDefault("redis_read_timeout", 3*time.Second)
	viper.SetDefault("redis_write_timeout", 3*time.Second)
	viper.SetDefault("redis_pool_timeout", 4*time.Second)

	// Purchase platform defaults
	viper.SetDefault("purchases_entitlement_key", "premium")
	viper.SetDefault("purchases_timeout", 30*time.Second)

	// Analytics defaults
	viper.SetDefault("analytics_timeout", 10*time.Second)

	// Trial defaults. The 24h window is load-bearing for deployed clients.
	viper.SetDefault("trial_duration", 24*time.Hour)
	viper.SetDefault("trial_reeval_interval", time.Minute)
}

func validate(cfg *Config) error {
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if cfg.Trial.Duration <= 0 {
		return fmt.Errorf("TRIAL_DURATION must be positive")
	}
	if cfg.Environment == "production" || cfg.Environment == "" {
		// Production never substitutes a simulated purchase platform, and the
		// cache must be durable: fail closed at startup instead.
		if cfg.Purchases.APIURL == "" || cfg.Purchases.APIKey == "" {
			return fmt.Errorf("PURCHASES_API_URL and PURCHASES_API_KEY are required in production")
		}
		if cfg.Database.URL == "" && cfg.Redis.URL == "" {
			return fmt.Errorf("DATABASE_URL or REDIS_URL is required in production")
		}
	}
	return nil
}
