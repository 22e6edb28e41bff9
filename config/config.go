package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	AMQP      AMQPConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port  string
	Env   string
	Debug bool
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type AMQPConfig struct {
	URL             string
	Exchange        string
	AuditRoutingKey string
}

type TelemetryConfig struct {
	OTLPEndpoint string
}

// Load reads configuration from the environment, falling back to a .env file
// when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		redisDB = 0
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:  getEnv("PORT", "8083"),
			Env:   getEnv("ENV", "development"),
			Debug: getEnv("DEBUG", "false") == "true",
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "messaging"),
			Password: getEnv("DB_PASSWORD", "messaging_password"),
			DBName:   getEnv("DB_NAME", "messaging_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-this-secret-key"),
		},
		AMQP: AMQPConfig{
			URL:             getEnv("AMQP_URL", ""),
			Exchange:        getEnv("AMQP_EXCHANGE", "messaging.events"),
			AuditRoutingKey: getEnv("AMQP_AUDIT_ROUTING_KEY", "audit.messaging"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),
		},
	}

	if cfg.JWT.Secret == "change-this-secret-key" && cfg.Server.Env == "production" {
		return nil, fmt.Errorf("JWT_SECRET must be set in production")
	}

	return cfg, nil
}

// DSN returns the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
