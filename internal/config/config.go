package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string // YAML key: "database"
	}
	RabbitMQ struct {
		Host     string
		Port     int
		User     string
		Password string
	}
	Redis struct {
		Addr     string
		Password string
	}
	Services struct {
		DispatchServicePort int
		MetricsPort         int
	}
	Tokens struct {
		SecretKey string // signs start/payment QR payloads
	}
	Dispatch struct {
		AlertTTLSeconds       int
		SweepIntervalSeconds  int
		ScheduleBufferMinutes int
		OriginFenceMeters     int
	}
}

// AlertTTL is the configured offer window.
func (c *Config) AlertTTL() time.Duration {
	return time.Duration(c.Dispatch.AlertTTLSeconds) * time.Second
}

// SweepInterval is how often the sweeper binary fires.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Dispatch.SweepIntervalSeconds) * time.Second
}

// ScheduleBuffer is the minimum gap required between two trip windows held
// by one driver.
func (c *Config) ScheduleBuffer() time.Duration {
	return time.Duration(c.Dispatch.ScheduleBufferMinutes) * time.Minute
}

// LoadFromFile loads config from a YAML file to a Config struct, applies defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := parseYAML(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// Redis
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}

	// Services
	if cfg.Services.DispatchServicePort == 0 {
		cfg.Services.DispatchServicePort = 3000
	}
	if cfg.Services.MetricsPort == 0 {
		cfg.Services.MetricsPort = 9090
	}

	// Dispatch tunables
	if cfg.Dispatch.AlertTTLSeconds == 0 {
		cfg.Dispatch.AlertTTLSeconds = 60
	}
	if cfg.Dispatch.SweepIntervalSeconds == 0 {
		cfg.Dispatch.SweepIntervalSeconds = 30
	}
	if cfg.Dispatch.ScheduleBufferMinutes == 0 {
		cfg.Dispatch.ScheduleBufferMinutes = 30
	}
	if cfg.Dispatch.OriginFenceMeters == 0 {
		cfg.Dispatch.OriginFenceMeters = 100
	}

	if cfg.Tokens.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.Tokens.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.name is required")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// Services
	if c.Services.DispatchServicePort <= 0 || c.Services.DispatchServicePort > 65535 {
		problems = append(problems, "services.dispatch_service must be in 1..65535")
	}
	if c.Services.MetricsPort <= 0 || c.Services.MetricsPort > 65535 {
		problems = append(problems, "services.metrics must be in 1..65535")
	}

	// Dispatch
	if c.Dispatch.AlertTTLSeconds < 1 {
		problems = append(problems, "dispatch.alert_ttl_seconds must be positive")
	}
	if c.Dispatch.ScheduleBufferMinutes < 0 {
		problems = append(problems, "dispatch.schedule_buffer_minutes cannot be negative")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
