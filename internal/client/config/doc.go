// Package config loads runtime configuration for the authbridge terminal
// client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c / -config or AUTHBRIDGE_CLIENT_CONFIG.
//  3. Command-line flags.
//  4. Environment variables (provider URL and anon key only).
//
// Supported flags
//
//	-s string     bridge server base URL
//	-p string     identity provider URL
//	-d string     local data directory
//	-n int        session poll attempts
//	-i duration   session poll interval
//
// # JSON schema
//
// Durations use timex.Duration, so "250ms" and integer nanoseconds both work:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "provider_url": "https://proj.supabase.co",
//	  "anon_key": "...",
//	  "data_dir": "~/.authbridge",
//	  "session_poll_attempts": 20,
//	  "session_poll_interval": "250ms",
//	  "request_timeout": "10s"
//	}
package config
