package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/authbridge/internal/flagx"
)

// parseFlags overlays command-line flags onto cfg.
//
// Supported flags (short forms):
//
//	-a string     listen address (e.g. ":8080")
//	-d string     PostgreSQL DSN
//	-r string     Redis URL for shared rate-limit buckets
//	-l string     log level
//	-m int        OTP sends per window and key
//	-w duration   OTP rate-limit window (e.g. "10m")
//
// Secrets are deliberately not accepted as flags; they would show up in
// process listings.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-r", "-l", "-m", "-w"})

	fs := flag.NewFlagSet("authbridge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ListenAddr, "a", cfg.ListenAddr, "address and port to listen on")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.RedisURL, "r", cfg.RedisURL, "redis URL")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.IntVar(&cfg.RateLimitMax, "m", cfg.RateLimitMax, "otp sends per window")
	fs.DurationVar(&cfg.RateLimitWindow, "w", cfg.RateLimitWindow, "otp rate-limit window")

	return fs.Parse(args)
}
