package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Name     string `envconfig:"APP_NAME" default:"clinicx"`
		LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"clinic"`
		SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

		MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
		MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
		ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	}

	Scheduling struct {
		DefaultDurationMinutes int `envconfig:"SCHEDULING_DEFAULT_DURATION_MINUTES" default:"30"`
	}

	Ledger struct {
		Currency        string `envconfig:"LEDGER_CURRENCY" default:"USD"`
		InvoiceAttempts int    `envconfig:"LEDGER_INVOICE_ATTEMPTS" default:"5"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

// Load reads the optional .env file into the environment and then processes
// it. Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.Scheduling.DefaultDurationMinutes <= 0 {
		return nil, fmt.Errorf("SCHEDULING_DEFAULT_DURATION_MINUTES must be positive, got %d", cfg.Scheduling.DefaultDurationMinutes)
	}

	if cfg.Ledger.InvoiceAttempts <= 0 {
		return nil, fmt.Errorf("LEDGER_INVOICE_ATTEMPTS must be positive, got %d", cfg.Ledger.InvoiceAttempts)
	}

	return &cfg, nil
}
