package config

import (
	"fmt"
	"runtime"
	"time"

	"cipherlink-backend/pkg/constants"
	"cipherlink-backend/pkg/env"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cassandra CassandraConfig
	Redis     RedisConfig
	Encrypt   EncryptConfig
	JWT       JWTConfig
	Log       LogConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port        int
	Environment string // development, staging, production
	ServiceName string
}

// DatabaseConfig holds CockroachDB configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

// CassandraConfig holds Cassandra configuration
type CassandraConfig struct {
	Hosts    []string
	Keyspace string
	Username string
	Password string
	Timeout  time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// EncryptConfig holds the message encryption pipeline configuration
type EncryptConfig struct {
	// ParallelThreshold is the unique-recipient count at which session-key
	// sealing is dispatched to the worker pool instead of running inline
	ParallelThreshold int

	// PoolSize is the number of seal workers; defaults to available parallelism
	PoolSize int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret             string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        env.GetInt("PORT", 8080),
			Environment: env.GetString("ENV", "development"),
			ServiceName: env.GetString("SERVICE_NAME", "cipherlink"),
		},
		Database: DatabaseConfig{
			Host:     env.GetString("COCKROACH_HOST", "localhost"),
			Port:     env.GetInt("COCKROACH_PORT", 26257),
			User:     env.GetString("COCKROACH_USER", "root"),
			Password: env.GetStringFromFile("COCKROACH_PASSWORD", ""),
			Database: env.GetString("COCKROACH_DATABASE", "cipherlink_db"),
			SSLMode:  env.GetString("COCKROACH_SSLMODE", "disable"),
			MaxConns: env.GetInt("COCKROACH_MAX_CONNS", 25),
			MinConns: env.GetInt("COCKROACH_MIN_CONNS", 5),
		},
		Cassandra: CassandraConfig{
			Hosts:    []string{env.GetString("CASSANDRA_HOST", "localhost")},
			Keyspace: env.GetString("CASSANDRA_KEYSPACE", "cipherlink_ks"),
			Username: env.GetStringFromFile("CASSANDRA_USER", ""),
			Password: env.GetStringFromFile("CASSANDRA_PASSWORD", ""),
			Timeout:  env.GetDuration("CASSANDRA_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		Encrypt: EncryptConfig{
			ParallelThreshold: env.GetInt("ENCRYPT_PARALLEL_THRESHOLD", constants.DefaultParallelThreshold),
			PoolSize:          env.GetInt("SEAL_POOL_SIZE", runtime.NumCPU()),
		},
		JWT: JWTConfig{
			Secret:             env.GetStringFromFile("JWT_SECRET", ""),
			AccessTokenExpiry:  env.GetDuration("JWT_ACCESS_EXPIRY", constants.AccessTokenExpiry),
			RefreshTokenExpiry: env.GetDuration("JWT_REFRESH_EXPIRY", constants.RefreshTokenExpiry),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "logs/message-service.log"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present and sane
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.Encrypt.ParallelThreshold < 1 {
		return fmt.Errorf("ENCRYPT_PARALLEL_THRESHOLD must be >= 1")
	}
	if c.Encrypt.PoolSize < 1 {
		return fmt.Errorf("SEAL_POOL_SIZE must be >= 1")
	}
	return nil
}

// ConnString builds the CockroachDB connection string
func (c *DatabaseConfig) ConnString() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}
