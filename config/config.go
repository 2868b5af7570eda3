// Package config loads the storefront agent settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/joho/godotenv"
)

const Prefix = "STOREFRONT"

// ErrHelpWanted is returned by Load after the usage text was printed for --help.
var ErrHelpWanted = conf.ErrHelpWanted

type Config struct {
	Backend struct {
		URL         string        `conf:"default:http://localhost:8080/api"`
		Timeout     time.Duration `conf:"default:15s"`
		TokenCookie string        `conf:"default:token"`
	}
	Snapshot struct {
		Backend string        `conf:"default:memory,help:memory|redis|postgres"`
		Key     string        `conf:"default:cart"`
		Prefix  string        `conf:"default:storefront:snapshot:"`
		TTL     time.Duration `conf:"default:720h"`
	}
	Redis struct {
		Addr     string `conf:"default:localhost:6379"`
		Password string `conf:"mask"`
		DB       int    `conf:"default:0"`
	}
	Postgres struct {
		DSN string `conf:"mask"`
	}
	NATS struct {
		URL     string `conf:"default:nats://localhost:4222"`
		Subject string `conf:"default:storefront.session.>"`
		Name    string `conf:"default:storefront-agent"`
	}
	Events struct {
		Dedupe string        `conf:"default:memory,help:memory|redis"`
		TTL    time.Duration `conf:"default:24h"`
	}
	Stripe struct {
		SecretKey  string `conf:"mask"`
		SuccessURL string `conf:"default:http://localhost:3000/checkout/success"`
		CancelURL  string `conf:"default:http://localhost:3000/cart"`
		Currency   string `conf:"default:usd"`
	}
	Log struct {
		Development bool   `conf:"default:false"`
		Level       string `conf:"default:info"`
	}
}

// Load reads envFile when it exists, then parses STOREFRONT_* variables and command line flags.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	var cfg Config
	help, err := conf.Parse(Prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
		}
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Snapshot.Backend {
	case "memory", "redis":
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("postgres snapshot backend requires STOREFRONT_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown snapshot backend %q", c.Snapshot.Backend)
	}

	switch c.Events.Dedupe {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown event dedupe backend %q", c.Events.Dedupe)
	}
	return nil
}

// String renders the configuration with secrets masked.
func (c Config) String() string {
	out, err := conf.String(&c)
	if err != nil {
		return err.Error()
	}
	return out
}
