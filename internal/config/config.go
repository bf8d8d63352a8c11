package config // package config loads application configuration from environment variables

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env        string // application environment (e.g. "dev", "prod")
	Port       string // HTTP port to listen on
	DBUser     string // database username
	DBPass     string // database password (optional)
	DBHost     string // database host address
	DBPort     string // database port number
	DBName     string // database name
	JWTSecret  string // secret used to sign session tokens
	BcryptCost int    // bcrypt cost for login-code hashing
	AMQPURL    string // RabbitMQ URL for notifications
	NotifyDir  string // directory of the notification outbox log
	Session    SessionConfig
}

// SessionConfig groups the session policy.
type SessionConfig struct {
	TokenTTL          time.Duration // lifetime of a login token
	InactivityTimeout time.Duration // idle time after which a session is closed
	LoginCodeTTL      time.Duration // validity of an emailed login code
}

// Load reads configuration values from environment variables and returns a
// Config. Missing required variables cause the program to exit with a fatal
// log message.
func Load() Config {
	return Config{
		Env:        must("APP_ENV"),
		Port:       must("APP_PORT"),
		DBUser:     must("DB_USER"),
		DBPass:     os.Getenv("DB_PASS"),
		DBHost:     must("DB_HOST"),
		DBPort:     must("DB_PORT"),
		DBName:     must("DB_NAME"),
		JWTSecret:  must("JWT_SECRET"),
		BcryptCost: envInt("BCRYPT_COST", 10),
		AMQPURL:    amqpURL(),
		NotifyDir:  envStr("NOTIFY_LOG_DIR", "logs"),
		Session:    LoadSessionConfig(),
	}
}

// LoadSessionConfig reads the session policy with its defaults.
func LoadSessionConfig() SessionConfig {
	cfg := SessionConfig{
		TokenTTL:          envDur("TOKEN_TTL", 24*time.Hour),
		InactivityTimeout: envDur("INACTIVITY_TIMEOUT", 30*time.Minute),
		LoginCodeTTL:      envDur("LOGIN_CODE_TTL", 10*time.Minute),
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = 30 * time.Minute
	}
	if cfg.LoginCodeTTL <= 0 {
		cfg.LoginCodeTTL = 10 * time.Minute
	}
	return cfg
}

func amqpURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatal().Str("key", key).Msg("missing required env var")
	}
	return v
}
