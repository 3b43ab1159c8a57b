package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/authbridge/internal/flagx"
)

const ConfigEnvVar = "AUTHBRIDGE_CLIENT_CONFIG"

// Config holds runtime settings for the terminal client.
type Config struct {
	ServerURL           string        `env:"AUTHBRIDGE_SERVER_URL"`
	ProviderURL         string        `env:"NEXT_PUBLIC_SUPABASE_URL"`
	AnonKey             string        `env:"NEXT_PUBLIC_SUPABASE_ANON_KEY"`
	DataDir             string        `env:"AUTHBRIDGE_DATA_DIR"`
	SessionPollAttempts int           `env:"AUTHBRIDGE_SESSION_POLL_ATTEMPTS"`
	SessionPollInterval time.Duration `env:"AUTHBRIDGE_SESSION_POLL_INTERVAL"`
	RequestTimeout      time.Duration `env:"AUTHBRIDGE_REQUEST_TIMEOUT"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DataDir = ".authbridge"
	c.SessionPollAttempts = 20
	c.SessionPollInterval = 250 * time.Millisecond
	c.RequestTimeout = 10 * time.Second
}

// LoadConfig applies defaults, then JSON, then flags, then the environment.
func LoadConfig() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, flagx.ConfigPath(args, ConfigEnvVar)); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ServerURL) == "" {
		errs = append(errs, errors.New("server url is not set"))
	}
	if strings.TrimSpace(c.ProviderURL) == "" {
		errs = append(errs, errors.New("NEXT_PUBLIC_SUPABASE_URL is not set"))
	}
	if strings.TrimSpace(c.AnonKey) == "" {
		errs = append(errs, errors.New("NEXT_PUBLIC_SUPABASE_ANON_KEY is not set"))
	}
	if c.SessionPollAttempts <= 0 || c.SessionPollInterval <= 0 {
		errs = append(errs, errors.New("session poll attempts and interval must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
