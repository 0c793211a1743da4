package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	DriverMemory    = "memory"
	DriverPostgres  = "postgres"
	DriverSQLite    = "sqlite"
	DriverTarantool = "tarantool"
)

type Postgres struct {
	Host     string `env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `env:"POSTGRES_PORT" env-default:"5432"`
	User     string `env:"POSTGRES_USER" env-default:"postgres"`
	Password string `env:"POSTGRES_PASSWORD"`
	DB       string `env:"POSTGRES_DB" env-default:"poll"`
}

func (p Postgres) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, p.Port),
		Path:     "/" + p.DB,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

type Tarantool struct {
	Host     string `env:"TARANTOOL_HOST" env-default:"localhost"`
	Port     string `env:"TARANTOOL_PORT" env-default:"3301"`
	Username string `env:"TARANTOOL_USER" env-default:"admin"`
	Password string `env:"TARANTOOL_PASSWORD" env-default:"secret"`
}

func (t Tarantool) Addr() string {
	return net.JoinHostPort(t.Host, t.Port)
}

type Vote struct {
	MaxAttempts     int           `env:"VOTE_MAX_ATTEMPTS" env-default:"5"`
	InitialInterval time.Duration `env:"VOTE_RETRY_INITIAL_INTERVAL" env-default:"10ms"`
	MaxInterval     time.Duration `env:"VOTE_RETRY_MAX_INTERVAL" env-default:"200ms"`
}

type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" env-default:"0.0.0.0:8080"`
	LogLevel        string        `env:"LOG_LEVEL" env-default:"info"`
	StoreDriver     string        `env:"STORE_DRIVER" env-default:"memory"`
	SQLitePath      string        `env:"SQLITE_PATH" env-default:"livepoll.db"`
	MailboxSize     int           `env:"MAILBOX_SIZE" env-default:"16"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"30s"`

	Postgres  Postgres
	Tarantool Tarantool
	Vote      Vote
}

// New loads an optional .env file and then reads the process environment.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case DriverMemory, DriverPostgres, DriverSQLite, DriverTarantool:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Vote.MaxAttempts < 1 {
		return fmt.Errorf("VOTE_MAX_ATTEMPTS must be at least 1")
	}
	if c.MailboxSize < 1 {
		return fmt.Errorf("MAILBOX_SIZE must be at least 1")
	}
	return nil
}
