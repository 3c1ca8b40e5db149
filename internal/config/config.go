// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config is the service configuration.
type Config struct {
	Port     string
	LogLevel log.Level

	MongoURI string
	MongoDB  string

	JWTSecret string
	JWTExpiry time.Duration

	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	CatalogPath string
	LaborRate   float64

	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Load reads an optional .env file and then the environment. Unset values
// fall back to defaults; malformed ones are errors.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && len(files) > 0 {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDB:         getEnv("MONGO_DB", "maintenance"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		MQTTBroker:      os.Getenv("MQTT_BROKER"),
		MQTTClientID:    getEnv("MQTT_CLIENT_ID", "workorder-safety"),
		MQTTTopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "maintenance"),
		MinioEndpoint:   os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:  os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:  os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:     getEnv("MINIO_BUCKET", "work-order-attachments"),
		CatalogPath:     os.Getenv("CATALOG_PATH"),
	}

	var err error
	if cfg.LogLevel, err = log.ParseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if cfg.JWTExpiry, err = time.ParseDuration(getEnv("JWT_EXPIRY", "24h")); err != nil {
		return nil, fmt.Errorf("JWT_EXPIRY: %w", err)
	}
	if cfg.MinioUseSSL, err = strconv.ParseBool(getEnv("MINIO_USE_SSL", "false")); err != nil {
		return nil, fmt.Errorf("MINIO_USE_SSL: %w", err)
	}
	if cfg.LaborRate, err = strconv.ParseFloat(getEnv("LABOR_RATE", "75"), 64); err != nil {
		return nil, fmt.Errorf("LABOR_RATE: %w", err)
	}
	if cfg.LaborRate < 0 {
		return nil, fmt.Errorf("LABOR_RATE: must not be negative")
	}
	if cfg.RateLimitRequests, err = strconv.Atoi(getEnv("RATE_LIMIT_REQUESTS", "120")); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_REQUESTS: %w", err)
	}
	if cfg.RateLimitWindow, err = time.ParseDuration(getEnv("RATE_LIMIT_WINDOW", "1m")); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_WINDOW: %w", err)
	}
	return cfg, nil
}

// UsesMongo reports whether a Mongo connection is configured.
func (c *Config) UsesMongo() bool { return c.MongoURI != "" }

// UsesMQTT reports whether event publishing is configured.
func (c *Config) UsesMQTT() bool { return c.MQTTBroker != "" }

// UsesMinio reports whether attachment storage is configured.
func (c *Config) UsesMinio() bool { return c.MinioEndpoint != "" }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
