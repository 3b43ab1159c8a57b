package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/authbridge/internal/flagx"
)

// parseFlags overlays the flags listed in the package doc onto cfg. Other
// arguments are filtered out first with flagx.FilterArgs.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-s", "-p", "-d", "-n", "-i"})

	fs := flag.NewFlagSet("authbridge-client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "s", cfg.ServerURL, "bridge server base URL")
	fs.StringVar(&cfg.ProviderURL, "p", cfg.ProviderURL, "identity provider URL")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "local data directory")
	fs.IntVar(&cfg.SessionPollAttempts, "n", cfg.SessionPollAttempts, "session poll attempts")
	fs.DurationVar(&cfg.SessionPollInterval, "i", cfg.SessionPollInterval, "session poll interval")

	return fs.Parse(args)
}
