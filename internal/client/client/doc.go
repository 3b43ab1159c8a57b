// Package client is the terminal client's HTTP binding to the bridge
// server's /api endpoints.
//
// The client keeps the server's session cookies in a cookie jar, so once
// SyncSession or PinSignIn succeeds, guarded calls such as SetupPin and Me
// carry the session automatically. Note that the jar only sends Secure
// cookies over https; a plain-http development server must run with
// AUTHBRIDGE_COOKIE_SECURE=false.
//
// Errors:
//   - ErrUnavailable wraps transport failures (server down, timeouts).
//   - ErrUnauthorized wraps 401 answers.
//   - *APIError carries the server's stable error code for everything else.
package client
