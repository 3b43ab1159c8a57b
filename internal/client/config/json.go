package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/authbridge/internal/timex"
)

// jsonConfig is the on-disk shape; absent fields keep earlier values.
type jsonConfig struct {
	ServerURL           *string         `json:"server_url"`
	ProviderURL         *string         `json:"provider_url"`
	AnonKey             *string         `json:"anon_key"`
	DataDir             *string         `json:"data_dir"`
	SessionPollAttempts *int            `json:"session_poll_attempts"`
	SessionPollInterval *timex.Duration `json:"session_poll_interval"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
}

func parseJson(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var jc jsonConfig
	if err := json.Unmarshal(b, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if jc.ServerURL != nil {
		cfg.ServerURL = *jc.ServerURL
	}
	if jc.ProviderURL != nil {
		cfg.ProviderURL = *jc.ProviderURL
	}
	if jc.AnonKey != nil {
		cfg.AnonKey = *jc.AnonKey
	}
	if jc.DataDir != nil {
		cfg.DataDir = *jc.DataDir
	}
	if jc.SessionPollAttempts != nil {
		cfg.SessionPollAttempts = *jc.SessionPollAttempts
	}
	if jc.SessionPollInterval != nil {
		cfg.SessionPollInterval = jc.SessionPollInterval.Duration
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	return nil
}
