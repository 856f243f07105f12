package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Anomaly     AnomalyConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL              string
	ImportExchange   string
	ImportQueue      string
	ImportRoutingKey string
	EventsExchange   string
	EventsRoutingKey string
	DLQQueue         string
	PrefetchCount    int
}

// AnomalyConfig holds implausible-reading detection settings
type AnomalyConfig struct {
	SpikeThreshold float64
	MinDataPoints  int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "meter-import-worker"),
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:              getEnv("RABBITMQ_URL", ""),
			ImportExchange:   getEnv("RABBITMQ_IMPORT_EXCHANGE", "meter-import.jobs.exchange"),
			ImportQueue:      getEnv("RABBITMQ_IMPORT_QUEUE", "meter-import.jobs.queue"),
			ImportRoutingKey: getEnv("RABBITMQ_IMPORT_ROUTING_KEY", "import.job.submitted"),
			EventsExchange:   getEnv("RABBITMQ_EVENTS_EXCHANGE", "meter-import.events.exchange"),
			EventsRoutingKey: getEnv("RABBITMQ_EVENTS_ROUTING_KEY", "import.job.completed"),
			DLQQueue:         getEnv("RABBITMQ_DLQ_QUEUE", "meter-import.jobs.dlq"),
			PrefetchCount:    getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Anomaly: AnomalyConfig{
			SpikeThreshold: getEnvAsFloat("ANOMALY_SPIKE_THRESHOLD", 3.0),
			MinDataPoints:  getEnvAsInt("ANOMALY_MIN_DATA_POINTS", 3),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
