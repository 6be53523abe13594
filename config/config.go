// Package config assembles runtime settings from .env, the environment and flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"codocs/internal/autosave"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

type Postgres struct {
	User     string
	Password string
	Host     string
	Port     string
	DBName   string
	SSLMode  string
}

// DSN is the lib/pq connection URL.
func (p Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

type Config struct {
	Addr           string
	StoreDriver    string
	Postgres       Postgres
	MongoURI       string
	MongoDB        string
	NamegenURL     string
	NamegenTimeout time.Duration
	AutosaveDelay  time.Duration
	LogLevel       string
	CORSOrigin     string
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.StoreDriver, validation.Required, validation.In(StorePostgres, StoreMongo, StoreMemory)),
		validation.Field(&c.Postgres, validation.When(c.StoreDriver == StorePostgres, validation.By(func(any) error {
			return validation.ValidateStruct(&c.Postgres,
				validation.Field(&c.Postgres.Host, validation.Required),
				validation.Field(&c.Postgres.DBName, validation.Required),
			)
		}))),
		validation.Field(&c.MongoURI, validation.When(c.StoreDriver == StoreMongo, validation.Required)),
		validation.Field(&c.NamegenTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.AutosaveDelay, validation.Min(time.Millisecond)),
	)
}

// Load reads an optional .env file, then the environment, then command-line
// flags. Later sources win.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Addr:        ":" + env("PORT", "8080"),
		StoreDriver: env("STORE_DRIVER", StorePostgres),
		Postgres: Postgres{
			User:     env("user", ""),
			Password: env("password", ""),
			Host:     env("host", ""),
			Port:     env("port", "5432"),
			DBName:   env("dbname", ""),
			SSLMode:  env("sslmode", "require"),
		},
		MongoURI:   env("MONGO_URI", ""),
		MongoDB:    env("MONGO_DB", "codocs"),
		NamegenURL: env("NAMEGEN_URL", ""),
		LogLevel:   env("LOG_LEVEL", "info"),
		CORSOrigin: env("CORS_ORIGIN", "*"),
	}

	var err error
	if cfg.NamegenTimeout, err = envDuration("NAMEGEN_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.AutosaveDelay, err = envDuration("AUTOSAVE_DELAY", autosave.DefaultDelay); err != nil {
		return nil, err
	}

	fs := pflag.NewFlagSet("codocs", pflag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "storage backend: postgres, mongo or memory")
	fs.StringVar(&cfg.MongoURI, "mongo-uri", cfg.MongoURI, "MongoDB connection URI")
	fs.StringVar(&cfg.MongoDB, "mongo-db", cfg.MongoDB, "MongoDB database name")
	fs.StringVar(&cfg.NamegenURL, "namegen-url", cfg.NamegenURL, "random username service URL")
	fs.DurationVar(&cfg.NamegenTimeout, "namegen-timeout", cfg.NamegenTimeout, "random username service timeout")
	fs.DurationVar(&cfg.AutosaveDelay, "autosave-delay", cfg.AutosaveDelay, "delay between an edit and its flush to storage")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := env(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
