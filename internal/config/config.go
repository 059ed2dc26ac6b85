package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"PocketFin"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		Driver     string `envconfig:"DB_DRIVER" default:"sqlite"`
		Host       string `envconfig:"DB_HOST" default:"localhost"`
		Port       int    `envconfig:"DB_PORT" default:"5432"`
		User       string `envconfig:"DB_USER" default:"postgres"`
		Password   string `envconfig:"DB_PASSWORD" default:""`
		Name       string `envconfig:"DB_NAME" default:"pocketfin"`
		SQLitePath string `envconfig:"DB_SQLITE_PATH" default:"./data/pocketfin.db"`
	}

	Server struct {
		Timeout time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
	}

	Auth struct {
		Secret string `envconfig:"AUTH_SECRET"`
		Issuer string `envconfig:"AUTH_ISSUER"`
	}

	Advice struct {
		APIKey      string        `envconfig:"GEMINI_API_KEY"`
		TextModel   string        `envconfig:"GEMINI_TEXT_MODEL" default:"gemini-pro"`
		VisionModel string        `envconfig:"GEMINI_VISION_MODEL" default:"gemini-pro-vision"`
		Endpoint    string        `envconfig:"GEMINI_ENDPOINT"`
		Timeout     time.Duration `envconfig:"ADVICE_TIMEOUT" default:"30s"`
	}

	Events struct {
		AMQPURL  string `envconfig:"AMQP_URL"`
		Exchange string `envconfig:"AMQP_EXCHANGE" default:"pocketfin"`
	}
}

// DataSource returns the database/sql driver name and DSN for the configured backend.
func (c *Config) DataSource() (driver, dsn string) {
	if c.DB.Driver == DriverPostgres {
		return DriverPostgres, fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
	}

	return DriverSQLite, c.DB.SQLitePath
}

func (c *Config) Validate() error {
	var errs []error

	switch c.DB.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q: want %q or %q", c.DB.Driver, DriverPostgres, DriverSQLite))
	}

	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("AUTH_SECRET is required"))
	}

	if c.Advice.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("ADVICE_TIMEOUT must be positive, got %s", c.Advice.Timeout))
	}

	return errors.Join(errs...)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
