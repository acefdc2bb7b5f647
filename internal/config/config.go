// Package config содержит логику чтения конфигурации сервиса членства в клубе.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	JWTSecret   string `env:"JWT_SECRET"`

	JWTIssuer string        `env:"JWT_ISSUER" envDefault:"clubhub"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`
	ClubName  string        `env:"CLUB_NAME" envDefault:"University Club"`
	LogLevel  string        `env:"LOG_LEVEL" envDefault:"info"`

	RabbitMQURL  string   `env:"RABBITMQ_URL"`
	EmailQueue   string   `env:"EMAIL_QUEUE" envDefault:"email_jobs"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"membership.events"`

	OutboxInterval    time.Duration `env:"OUTBOX_INTERVAL" envDefault:"2s"`
	OutboxBatch       int           `env:"OUTBOX_BATCH" envDefault:"50"`
	OutboxMaxAttempts int           `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"8"`

	AdminName     string `env:"ADMIN_NAME" envDefault:"Administrator"`
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envJWTSecret := cfg.JWTSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.JWTSecret, "s", "", "secret for signing auth tokens")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envJWTSecret != "" {
		cfg.JWTSecret = envJWTSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
