package common

// RequestIDHeaderName carries the per-request correlation id on responses.
const RequestIDHeaderName = "X-Request-Id"

// AdminSecretHeaderName authenticates operator-only endpoints.
const AdminSecretHeaderName = "x-admin-secret"
