// Package restauth authenticates REST API callers with bearer tokens and
// gates protected routes on roles.
//
// An [Engine] is assembled once by a [Builder] and is safe for concurrent
// use. It owns:
//
//   - the login flow: credential check, failed-login lockout, inactivity and
//     active-flag checks, an optional TOTP second factor and password expiry;
//   - the token lifecycle: issue, validate with a sliding expiration,
//     refresh, revoke one token or every token of an identity;
//   - password changes under a configurable strength policy;
//   - role checks used by the middleware package.
//
// Persistence is abstracted by [Store]. The store/memory, store/redisstore
// and store/postgres packages implement it.
//
// # Errors
//
// Client-facing failures are *[Error] values wrapping one of the Err*
// sentinels, so callers branch with errors.Is and render with [StatusCode]
// and [Message]. Backend failures surface as [ErrStoreUnavailable] and never
// leak backend details.
package restauth
