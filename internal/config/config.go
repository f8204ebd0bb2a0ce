package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console | json
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
		// Catalog is a YAML quiz catalog used when no database is configured.
		Catalog string `yaml:"catalog"`
	} `yaml:"quiz"`
	Session struct {
		TTL string `yaml:"ttl"`
	} `yaml:"session"`
	Ledger struct {
		Backend      string   `yaml:"backend"` // memory | pebble | postgres
		Path         string   `yaml:"path"`
		ClaimOnce    bool     `yaml:"claim_once"`
		VerifyScores bool     `yaml:"verify_scores"`
		AllowBurn    bool     `yaml:"allow_burn"`
		Creators     []string `yaml:"creators"`
	} `yaml:"ledger"`
	Rewards struct {
		RequirePerfect *bool `yaml:"require_perfect"`
	} `yaml:"rewards"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		Issuer    string `yaml:"issuer"`
		TokenTTL  string `yaml:"token_ttl"`
	} `yaml:"auth"`
	Events struct {
		AMQPURL  string `yaml:"amqp_url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"events"`
}

// Load reads YAML config from path. A missing file yields defaults so the
// service can run from environment alone. Environment variables (optionally
// from a .env file) override the file.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.Events.AMQPURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("LEDGER_BACKEND"); v != "" {
		cfg.Ledger.Backend = v
	}
	if v := os.Getenv("QUIZ_CATALOG"); v != "" {
		cfg.Quiz.Catalog = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// LedgerBackend resolves the configured backend, defaulting to postgres when
// a database is configured and memory otherwise.
func (c Config) LedgerBackend() string {
	b := strings.ToLower(strings.TrimSpace(c.Ledger.Backend))
	if b != "" {
		return b
	}
	if c.Postgres.URL != "" {
		return "postgres"
	}
	return "memory"
}

// RequirePerfect defaults to true: rewards are only offered for perfect scores.
func (c Config) RequirePerfect() bool {
	if c.Rewards.RequirePerfect == nil {
		return true
	}
	return *c.Rewards.RequirePerfect
}

// EventsExchange defaults to "quiz.ledger".
func (c Config) EventsExchange() string {
	if c.Events.Exchange == "" {
		return "quiz.ledger"
	}
	return c.Events.Exchange
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
