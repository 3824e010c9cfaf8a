// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Supported store backends
const (
	DBTypeMongo    = "mongo"
	DBTypePostgres = "postgres"
	DBTypeMemory   = "memory"
)

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port           int
	Host           string
	MetricsEnabled bool
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// DatabaseConfig holds database configuration settings
type DatabaseConfig struct {
	Type         string // "mongo", "postgres" or "memory"
	URI          string
	Name         string
	StoreTimeout time.Duration
}

// AuthConfig holds token settings
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// SocketConfig holds websocket session settings
type SocketConfig struct {
	SendBuffer int
}

// Config holds the complete application configuration
type Config struct {
	Server         *ServerConfig
	Database       *DatabaseConfig
	Auth           *AuthConfig
	Socket         *SocketConfig
	AllowedOrigins []string
	LogLevel       string
	Debug          bool
}

// envVars is the flat view of the environment. Defaults live in the tags.
type envVars struct {
	Port           int           `envconfig:"PORT" default:"5000"`
	Host           string        `envconfig:"HOST" default:"0.0.0.0"`
	MetricsEnabled bool          `envconfig:"METRICS_ENABLED" default:"true"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"5s"`
	MaxBodyBytes   int64         `envconfig:"MAX_BODY_BYTES" default:"8388608"`

	DBType         string        `envconfig:"DB_TYPE" default:"mongo"`
	MongoURI       string        `envconfig:"MONGODB_URI" default:"mongodb://localhost:27017"`
	MongoDatabase  string        `envconfig:"MONGODB_DATABASE" default:"chat-app"`
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	DBHost         string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort         int           `envconfig:"DB_PORT" default:"5432"`
	DBUser         string        `envconfig:"DB_USER"`
	DBPassword     string        `envconfig:"DB_PASSWORD"`
	DBName         string        `envconfig:"DB_NAME" default:"postgres"`
	DBSSLMode      string        `envconfig:"DB_SSL_MODE" default:"require"`
	StoreTimeout   time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
	JWTSecret      string        `envconfig:"JWT_SECRET"`
	TokenTTL       time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	SocketBuffer   int           `envconfig:"WS_SEND_BUFFER" default:"256"`
	ClientURL      string        `envconfig:"CLIENT_URL"`
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	Debug          bool          `envconfig:"DEBUG" default:"false"`
}

// LoadConfig loads configuration from environment variables and applies defaults
func LoadConfig() (*Config, error) {
	// Try to load .env file from multiple possible locations
	envLocations := []string{
		".env",          // Current directory
		"../../.env",    // Project root when running from cmd/engine
		"../../../.env", // Even higher directory
		filepath.Join(os.Getenv("GOPATH"), "src/quickchat/.env"),
	}

	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			break
		}
	}

	var env envVars
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return fromEnv(env)
}

func fromEnv(env envVars) (*Config, error) {
	if env.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if env.SocketBuffer <= 0 {
		return nil, fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", env.SocketBuffer)
	}

	dbConfig := &DatabaseConfig{
		Type:         strings.ToLower(env.DBType),
		StoreTimeout: env.StoreTimeout,
	}

	switch dbConfig.Type {
	case DBTypeMongo:
		dbConfig.URI = env.MongoURI
		dbConfig.Name = env.MongoDatabase
	case DBTypePostgres:
		// Prioritize DATABASE_URL if provided
		if env.DatabaseURL != "" {
			dbConfig.URI = env.DatabaseURL
			break
		}
		if env.DBUser == "" {
			return nil, fmt.Errorf("DB_USER environment variable is required when DB_TYPE is postgres and DATABASE_URL is not set")
		}
		if env.DBPassword == "" {
			return nil, fmt.Errorf("DB_PASSWORD environment variable is required when DB_TYPE is postgres and DATABASE_URL is not set")
		}
		dbConfig.Name = env.DBName
		dbConfig.URI = fmt.Sprintf(
			"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
			env.DBUser,
			env.DBPassword,
			env.DBHost,
			env.DBPort,
			env.DBName,
			env.DBSSLMode,
		)
	case DBTypeMemory:
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", env.DBType)
	}

	origins := env.AllowedOrigins
	if env.ClientURL != "" {
		origins = []string{env.ClientURL}
	}

	return &Config{
		Server: &ServerConfig{
			Port:           env.Port,
			Host:           env.Host,
			MetricsEnabled: env.MetricsEnabled,
			RequestTimeout: env.RequestTimeout,
			MaxBodyBytes:   env.MaxBodyBytes,
		},
		Database: dbConfig,
		Auth: &AuthConfig{
			JWTSecret: env.JWTSecret,
			TokenTTL:  env.TokenTTL,
		},
		Socket: &SocketConfig{
			SendBuffer: env.SocketBuffer,
		},
		AllowedOrigins: origins,
		LogLevel:       env.LogLevel,
		Debug:          env.Debug,
	}, nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
