package config

import (
	"fmt"
	"time"

	"nurselink-backend/pkg/env"
)

// Config holds all configuration for the call service
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cassandra CassandraConfig
	JWT       JWTConfig
	Widget    WidgetConfig
	Log       LogConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port        int
	Environment string // development, staging, production
	ServiceName string
}

// DatabaseConfig holds PostgreSQL configuration
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

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// CassandraConfig holds Cassandra configuration for the call audit log
type CassandraConfig struct {
	Enabled  bool
	Hosts    []string
	Keyspace string
	Timeout  time.Duration
}

// JWTConfig holds JWT configuration (token consumption only)
type JWTConfig struct {
	Secret string
}

// WidgetConfig holds the hosted media widget configuration
type WidgetConfig struct {
	BaseURL string // rooms are joined at <BaseURL>/<roomName>
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        env.GetInt("PORT", 8084),
			Environment: env.GetString("ENV", "development"),
			ServiceName: env.GetString("SERVICE_NAME", "call-service"),
		},
		Database: DatabaseConfig{
			Host:     env.GetString("DB_HOST", "localhost"),
			Port:     env.GetInt("DB_PORT", 5432),
			User:     env.GetString("DB_USER", "postgres"),
			Password: env.GetStringFromFile("DB_PASSWORD", ""),
			Database: env.GetString("DB_NAME", "nurselink"),
			SSLMode:  env.GetString("DB_SSL_MODE", "disable"),
			MaxConns: env.GetInt("DB_MAX_CONNS", 25),
			MinConns: env.GetInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		Cassandra: CassandraConfig{
			Enabled:  env.GetBool("CASSANDRA_ENABLED", false),
			Hosts:    splitHosts(env.GetString("CASSANDRA_HOSTS", "localhost")),
			Keyspace: env.GetString("CASSANDRA_KEYSPACE", "nurselink"),
			Timeout:  env.GetDuration("CASSANDRA_TIMEOUT", 600*time.Millisecond),
		},
		JWT: JWTConfig{
			Secret: env.GetStringFromFile("JWT_SECRET", ""),
		},
		Widget: WidgetConfig{
			BaseURL: env.GetString("WIDGET_BASE_URL", "https://meet.nurselink.app"),
		},
		Log: LogConfig{
			Level:  env.GetString("LOG_LEVEL", "info"),
			Format: env.GetString("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.Server.Environment == "production" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}

	return nil
}

func splitHosts(value string) []string {
	var result []string
	for i := 0; i < len(value); {
		j := i
		for j < len(value) && value[j] != ',' {
			j++
		}
		if i < j {
			result = append(result, value[i:j])
		}
		i = j + 1
	}
	return result
}
