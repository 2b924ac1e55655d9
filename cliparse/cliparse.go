package cliparse

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const (
	DefaultPort           = 3318
	DefaultTokenTTL       = 7 * 24 * time.Hour
	DefaultBaseURL        = "https://kidwa.app"
	DefaultExpiryInterval = 30 * time.Second
)

type Config struct {
	Port           int
	DatabaseURL    string
	DatabaseType   string
	JWTSecret      string
	IPHashSalt     string
	TokenTTL       time.Duration
	BaseURL        string
	ExpiryInterval time.Duration
	LogLevel       string
	Dev            bool

	// Positional arguments left after flag parsing.
	Args []string
}

// ParseFlags reads flags, then the environment (including an optional .env
// file), then defaults.
func ParseFlags(args []string) (Config, error) {
	var cfg Config
	var envFile string

	fs := pflag.NewFlagSet("kidwa", pflag.ContinueOnError)

	// Network and storage
	fs.IntVarP(&cfg.Port, "port", "p", 0, "Server port")
	fs.StringVarP(&cfg.DatabaseURL, "database-url", "d", "", "Database URL")
	fs.StringVarP(&cfg.DatabaseType, "database-type", "t", "", "Database type (sqlite or postgres)")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "Session signing secret (prefer env)")
	fs.StringVar(&cfg.IPHashSalt, "ip-salt", "", "Salt for vote IP hashing (prefer env)")

	fs.DurationVar(&cfg.TokenTTL, "token-ttl", 0, "Session token lifetime")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "Public URL used in share links")
	fs.DurationVar(&cfg.ExpiryInterval, "expiry-interval", 0, "How often ended polls are closed")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.Dev, "dev", false, "Human-readable development logging")
	fs.StringVar(&envFile, "env-file", ".env", "Optional dotenv file")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.Args = fs.Args()

	// Existing environment variables win over the file.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	// Fall back to environment variables
	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil || port <= 0 || port > 65535 {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = DefaultPort
		}
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	if cfg.DatabaseType == "" {
		cfg.DatabaseType = envOr("DATABASE_TYPE", "sqlite")
	}
	if cfg.DatabaseType != "sqlite" && cfg.DatabaseType != "postgres" {
		return Config{}, fmt.Errorf("unsupported database type %q", cfg.DatabaseType)
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if cfg.IPHashSalt == "" {
		cfg.IPHashSalt = os.Getenv("IP_HASH_SALT")
	}

	var err error
	if cfg.TokenTTL == 0 {
		if cfg.TokenTTL, err = envDuration("TOKEN_TTL", DefaultTokenTTL); err != nil {
			return Config{}, err
		}
	}
	if cfg.ExpiryInterval == 0 {
		if cfg.ExpiryInterval, err = envDuration("EXPIRY_INTERVAL", DefaultExpiryInterval); err != nil {
			return Config{}, err
		}
	}
	if cfg.TokenTTL <= 0 || cfg.ExpiryInterval <= 0 {
		return Config{}, errors.New("durations must be positive")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = envOr("BASE_URL", DefaultBaseURL)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.LogLevel == "" {
		cfg.LogLevel = envOr("LOG_LEVEL", "info")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("unsupported log level %q", cfg.LogLevel)
	}

	if !fs.Changed("dev") {
		if v := os.Getenv("DEV"); v != "" {
			dev, err := strconv.ParseBool(v)
			if err != nil {
				return Config{}, errors.New("invalid DEV env variable")
			}
			cfg.Dev = dev
		}
	}

	return cfg, nil
}

// RequireSecrets checks the settings only the API server needs.
func (c Config) RequireSecrets() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET required")
	}
	if c.IPHashSalt == "" {
		return errors.New("IP_HASH_SALT required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable: %w", key, err)
	}
	return d, nil
}
