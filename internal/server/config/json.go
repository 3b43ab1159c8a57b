package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/authbridge/internal/timex"
)

// jsonConfig is the on-disk shape. Pointer fields distinguish "absent" from
// the zero value, so a partial file only overrides what it names.
type jsonConfig struct {
	ListenAddr      *string         `json:"listen_addr"`
	ProviderURL     *string         `json:"provider_url"`
	AnonKey         *string         `json:"anon_key"`
	ServiceRoleKey  *string         `json:"service_role_key"`
	JWTSecret       *string         `json:"jwt_secret"`
	PinPepper       *string         `json:"pin_pepper"`
	AdminSecret     *string         `json:"admin_secret"`
	DatabaseDSN     *string         `json:"database_dsn"`
	RedisURL        *string         `json:"redis_url"`
	CookieSecure    *bool           `json:"cookie_secure"`
	CookieDomain    *string         `json:"cookie_domain"`
	LoginPath       *string         `json:"login_path"`
	LogLevel        *string         `json:"log_level"`
	RateLimitMax    *int            `json:"rate_limit_max"`
	RateLimitWindow *timex.Duration `json:"rate_limit_window"`
	OTPMaxAttempts  *int            `json:"otp_max_attempts"`
	SweepInterval   *timex.Duration `json:"sweep_interval"`
	ShutdownTimeout *timex.Duration `json:"shutdown_timeout"`

	PinAttemptsMax      *int            `json:"pin_attempts_max"`
	PinAttemptsWindow   *timex.Duration `json:"pin_attempts_window"`
	PinLockoutThreshold *int            `json:"pin_lockout_threshold"`
	PinLockoutDuration  *timex.Duration `json:"pin_lockout_duration"`
	TrustedProxies      []string        `json:"trusted_proxies"`
}

// parseJson overlays the file at path onto cfg. An empty path is a no-op.
func parseJson(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var c jsonConfig
	if err := json.Unmarshal(b, &c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.ListenAddr, c.ListenAddr)
	setString(&cfg.ProviderURL, c.ProviderURL)
	setString(&cfg.AnonKey, c.AnonKey)
	setString(&cfg.ServiceRoleKey, c.ServiceRoleKey)
	setString(&cfg.JWTSecret, c.JWTSecret)
	setString(&cfg.PinPepper, c.PinPepper)
	setString(&cfg.AdminSecret, c.AdminSecret)
	setString(&cfg.DatabaseDSN, c.DatabaseDSN)
	setString(&cfg.RedisURL, c.RedisURL)
	setString(&cfg.CookieDomain, c.CookieDomain)
	setString(&cfg.LoginPath, c.LoginPath)
	setString(&cfg.LogLevel, c.LogLevel)
	if c.CookieSecure != nil {
		cfg.CookieSecure = *c.CookieSecure
	}
	if c.RateLimitMax != nil {
		cfg.RateLimitMax = *c.RateLimitMax
	}
	if c.OTPMaxAttempts != nil {
		cfg.OTPMaxAttempts = *c.OTPMaxAttempts
	}
	setDuration(&cfg.RateLimitWindow, c.RateLimitWindow)
	setDuration(&cfg.SweepInterval, c.SweepInterval)
	setDuration(&cfg.ShutdownTimeout, c.ShutdownTimeout)
	setInt(&cfg.PinAttemptsMax, c.PinAttemptsMax)
	setInt(&cfg.PinLockoutThreshold, c.PinLockoutThreshold)
	setDuration(&cfg.PinAttemptsWindow, c.PinAttemptsWindow)
	setDuration(&cfg.PinLockoutDuration, c.PinLockoutDuration)
	if c.TrustedProxies != nil {
		cfg.TrustedProxies = c.TrustedProxies
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
