package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// legacyEnv holds variable names still honoured as fallbacks.
type legacyEnv struct {
	ServiceRole string `env:"SUPABASE_SERVICE_ROLE"`
}

// parseEnv overlays set environment variables onto cfg. Unset variables
// leave earlier layers alone.
func parseEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if cfg.ServiceRoleKey == "" {
		var legacy legacyEnv
		if err := env.Parse(&legacy); err != nil {
			return fmt.Errorf("parse env: %w", err)
		}
		cfg.ServiceRoleKey = legacy.ServiceRole
	}
	return nil
}
