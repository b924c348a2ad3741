package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	MinSecretLength  = 32
	MinPBKDF2Rounds  = 100_000
	DefaultTimezone  = "Asia/Manila"
	defaultJWTExpiry = "24h"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Crypto    CryptoConfig
	Board     BoardConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port        string
	Host        string
	Env         string
	StoragePort string
}

// StorageConfig locates the storage collaborator used by the web backend.
type StorageConfig struct {
	Endpoint string
	Timeout  time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type AuthConfig struct {
	GoogleClientID string
	JWTSecret      string
	JWTExpiration  time.Duration
	AllowedUsers   []string
}

// CryptoConfig holds the application-wide envelope key derivation inputs.
type CryptoConfig struct {
	Secret     string
	Salt       string
	Iterations int
}

type BoardConfig struct {
	Timezone        string
	OverdueInterval time.Duration
	PushConcurrency int
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxConnPerUser  int
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	godotenv.Load()

	jwtExp, err := getEnvAsDuration("JWT_EXPIRATION", defaultJWTExpiry)
	if err != nil {
		return nil, err
	}
	storageTimeout, err := getEnvAsDuration("STORAGE_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	overdue, err := getEnvAsDuration("OVERDUE_CHECK_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}
	writeWait, err := getEnvAsDuration("WS_WRITE_WAIT", "10s")
	if err != nil {
		return nil, err
	}
	pongWait, err := getEnvAsDuration("WS_PONG_WAIT", "60s")
	if err != nil {
		return nil, err
	}
	pingPeriod, err := getEnvAsDuration("WS_PING_PERIOD", "54s")
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Host:        getEnv("HOST", "0.0.0.0"),
			Env:         getEnv("ENV", "development"),
			StoragePort: getEnv("STORAGE_PORT", "8081"),
		},
		Storage: StorageConfig{
			Endpoint: getEnv("APPS_SCRIPT_URL", ""),
			Timeout:  storageTimeout,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "sheetnotes"),
		},
		Auth: AuthConfig{
			GoogleClientID: getEnv("GOOGLE_CLIENT_ID", ""),
			JWTSecret:      getEnv("JWT_SECRET", ""),
			JWTExpiration:  jwtExp,
			AllowedUsers:   getEnvAsList("ALLOWED_USERS"),
		},
		Crypto: CryptoConfig{
			Secret:     getEnv("ENCRYPTION_SECRET", ""),
			Salt:       getEnv("ENCRYPTION_SALT", ""),
			Iterations: getEnvAsInt("PBKDF2_ITERATIONS", MinPBKDF2Rounds),
		},
		Board: BoardConfig{
			Timezone:        getEnv("DUE_DATE_TIMEZONE", DefaultTimezone),
			OverdueInterval: overdue,
			PushConcurrency: getEnvAsInt("PUSH_CONCURRENCY", 8),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 1024),
			WriteWait:       writeWait,
			PongWait:        pongWait,
			PingPeriod:      pingPeriod,
			MaxConnPerUser:  getEnvAsInt("WS_MAX_CONN_PER_USER", 5),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}, nil
}

// Validate checks the settings the web backend cannot run without.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.GoogleClientID == "" {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID is required"))
	}
	if len(c.Auth.JWTSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", MinSecretLength))
	}
	if c.Auth.JWTExpiration <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRATION must be positive"))
	}
	if c.Storage.Endpoint == "" {
		errs = append(errs, errors.New("APPS_SCRIPT_URL is required"))
	}
	if c.Crypto.Secret == "" {
		errs = append(errs, errors.New("ENCRYPTION_SECRET is required"))
	}
	if c.Crypto.Salt == "" {
		errs = append(errs, errors.New("ENCRYPTION_SALT is required"))
	}
	if c.Crypto.Iterations < MinPBKDF2Rounds {
		errs = append(errs, fmt.Errorf("PBKDF2_ITERATIONS must be at least %d", MinPBKDF2Rounds))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Location resolves DUE_DATE_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Board.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid DUE_DATE_TIMEZONE %q: %w", c.Board.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// getEnvAsList splits a comma-separated value, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, v := range strings.Split(getEnv(key, ""), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
