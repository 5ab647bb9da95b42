package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type AppConfig struct {
	Port      string
	JWTSecret string
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RabbitMQ  RabbitMQConfig
	Kafka     KafkaConfig
	RateLimit RateLimitConfig
}

type LogConfig struct {
	File   string
	Level  string
	Stdout bool
	// SQLLevel is the GORM log level: silent, error, warn or info.
	SQLLevel string
}

type DatabaseConfig struct {
	Driver   string // "pgx" or "postgres" (lib/pq)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	TimeZone string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		d.Host, d.User, d.Password, d.DBName, d.Port, d.SSLMode, d.TimeZone,
	)
}

// RedisConfig is optional; an empty Addr disables the itinerary cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RabbitMQConfig is optional; without a URL driver notices are only logged.
type RabbitMQConfig struct {
	URL   string
	Queue string
}

// KafkaConfig is optional; without brokers trip events are dropped.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

// Load reads .env (if present) and the environment.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, relying on env vars")
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("config: REDIS_DB: %w", err)
	}
	ttl, err := time.ParseDuration(getEnv("REDIS_TTL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("config: REDIS_TTL: %w", err)
	}
	rps, err := strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "20"), 64)
	if err != nil {
		return nil, fmt.Errorf("config: RATE_LIMIT_RPS: %w", err)
	}
	burst, err := strconv.Atoi(getEnv("RATE_LIMIT_BURST", "40"))
	if err != nil {
		return nil, fmt.Errorf("config: RATE_LIMIT_BURST: %w", err)
	}
	logStdout, _ := strconv.ParseBool(getEnv("LOG_STDOUT", "false"))

	cfg := &AppConfig{
		Port:      getEnv("PORT", "8080"),
		JWTSecret: getEnv("JWT_SECRET", "supersecret"),
		Log: LogConfig{
			File:     getEnv("LOG_FILE", "./logs/app.log"),
			Level:    getEnv("LOG_LEVEL", "debug"),
			Stdout:   logStdout,
			SQLLevel: getEnv("LOG_SQL_LEVEL", "warn"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "pgx"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "dispatch"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			TimeZone: getEnv("DB_TIMEZONE", "UTC"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
			TTL:      ttl,
		},
		RabbitMQ: RabbitMQConfig{
			URL:   getEnv("RABBITMQ_URL", ""),
			Queue: getEnv("RABBITMQ_QUEUE", "driver_notifications"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "trip-events"),
		},
		RateLimit: RateLimitConfig{PerSecond: rps, Burst: burst},
	}

	switch cfg.Database.Driver {
	case "pgx", "postgres":
	default:
		return nil, fmt.Errorf("config: unsupported DB_DRIVER %q", cfg.Database.Driver)
	}
	return cfg, nil
}

// getEnv reads an environment variable or returns the provided default
func getEnv(key, defaultValue string) string {
	if v, exists := os.LookupEnv(key); exists {
		return v
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
