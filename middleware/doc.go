// Package middleware adapts restauth.Engine to net/http.
//
// [Guard] authenticates a request from its Authorization header (or the
// access_token query parameter when allowed), [RequireRoles] checks the
// validated identity's roles and [ClientIP] records the caller's address
// for token bookkeeping. Rejections are written as JSON bodies of the form
// {"errors": ["message"]} with the status carried by the engine error.
//
// The package makes no authentication decision of its own: token checks go
// through Engine.Validate and role checks through Engine.Authorize.
package middleware
