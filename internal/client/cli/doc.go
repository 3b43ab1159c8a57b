// Package cli provides the interactive authbridge command-line client.
//
// It wires configuration, the local SQLite store, the bridge server client,
// the identity-provider browser client and the runtime's token store, then
// runs a small REPL.
//
// Key features:
//   - Sign in with a one-time code sent by email or SMS
//   - Set a device PIN and unlock with it later, even after logout
//   - Show, refresh and end the current session
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
