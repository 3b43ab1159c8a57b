// Package provider is a small client for the identity provider's GoTrue
// REST API (the /auth/v1 surface of a Supabase project).
//
// All clients come from one Factory, parameterized by Scope:
//
//	ScopeBrowser  anon key; OTP send/verify, code exchange, refresh, password sign-in
//	ScopeServer   anon key; operations on behalf of a caller's access token
//	ScopeAdmin    service-role key; user administration
//
// Admin operations refuse to run on a non-admin client, and an admin client
// cannot be built without a service-role key.
package provider
