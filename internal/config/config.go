package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config keeps runtime settings for the service.
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`

	DatabaseDriver string `mapstructure:"DATABASE_DRIVER"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`

	JWTSecret     string `mapstructure:"JWT_SECRET"`
	TelegramToken string `mapstructure:"TELEGRAM_TOKEN"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	RecurrenceInterval time.Duration `mapstructure:"RECURRENCE_INTERVAL"`
	ReminderInterval   time.Duration `mapstructure:"REMINDER_INTERVAL"`
	TickTimeout        time.Duration `mapstructure:"TICK_TIMEOUT"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogFile  string `mapstructure:"LOG_FILE"`
}

var keys = []string{
	"ENVIRONMENT", "HTTP_ADDR", "DATABASE_DRIVER", "DATABASE_URL", "JWT_SECRET", "TELEGRAM_TOKEN",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "RECURRENCE_INTERVAL", "REMINDER_INTERVAL",
	"TICK_TIMEOUT", "LOG_LEVEL", "LOG_FILE",
}

// Load reads configuration from an optional .env file in dir and the environment,
// environment variables taking precedence.
func Load(dir string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_URL", "taskflow.db")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("RECURRENCE_INTERVAL", time.Minute)
	v.SetDefault("REMINDER_INTERVAL", time.Minute)
	v.SetDefault("TICK_TIMEOUT", 30*time.Second)
	v.SetDefault("LOG_LEVEL", "info")

	// Unmarshal only sees keys viper knows about; AutomaticEnv alone does not register them.
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)

	if cfg.RecurrenceInterval <= 0 {
		cfg.RecurrenceInterval = time.Minute
	}
	if cfg.ReminderInterval <= 0 {
		cfg.ReminderInterval = time.Minute
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = 30 * time.Second
	}

	return cfg, nil
}

// Validate checks the settings the long-running server cannot start without.
func (c Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

// IsProduction reports whether the service runs with production defaults.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
