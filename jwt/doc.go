// Package jwt encodes and decodes the signed bearer strings handed to
// clients. A bearer string carries the identity's validation key (user_id),
// the token identifier (jti) and the token type; it never carries roles or
// any other authorization data, which is always re-read from the store.
package jwt
