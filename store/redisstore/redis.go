// Package redisstore keeps identities, roles and tokens in Redis.
//
// Layout under the configured prefix:
//
//	{p}id:<id>          hash   identity fields
//	{p}email:<email>    string identity ID
//	{p}uuid:<uuid>      string identity ID
//	{p}ids              set    identity IDs
//	{p}roles            hash   role name -> description
//	{p}links:<id>       list   role names linked to the identity
//	{p}tok:<jti>        hash   token fields
//	{p}tokval:<bearer>  string JTI
//	{p}toks:<id>        set    JTIs owned by the identity
//
// Multi-key writes run as Lua scripts so every token is updated atomically.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/MrEthical07/restauth"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "ra:"

const createIdentityScript = `
if redis.call("EXISTS", KEYS[1]) == 1 or redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
for i = 2, #ARGV, 2 do
  redis.call("HSET", KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call("SET", KEYS[2], ARGV[1])
redis.call("SET", KEYS[3], ARGV[1])
redis.call("SADD", KEYS[4], ARGV[1])
return 1
`

var createIdentityLua = redis.NewScript(createIdentityScript)

const saveIdentityScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local owner = redis.call("GET", KEYS[2])
if owner and owner ~= ARGV[1] then
  return 2
end
local old = redis.call("HMGET", KEYS[1], "email", "uuid")
if old[1] then
  redis.call("DEL", ARGV[2] .. "email:" .. old[1])
end
if old[2] then
  redis.call("DEL", ARGV[2] .. "uuid:" .. old[2])
end
redis.call("DEL", KEYS[1])
for i = 3, #ARGV, 2 do
  redis.call("HSET", KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call("SET", KEYS[2], ARGV[1])
redis.call("SET", KEYS[3], ARGV[1])
return 1
`

var saveIdentityLua = redis.NewScript(saveIdentityScript)

const touchLoginScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "last_login", ARGV[1])
return 1
`

var touchLoginLua = redis.NewScript(touchLoginScript)

const saveTokenScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
for i = 2, #ARGV, 2 do
  redis.call("HSET", KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call("SET", KEYS[2], ARGV[1])
redis.call("SADD", KEYS[3], ARGV[1])
return 1
`

var saveTokenLua = redis.NewScript(saveTokenScript)

const touchTokenScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "last_access", ARGV[1])
redis.call("HSET", KEYS[1], "expiration", ARGV[2])
return 1
`

var touchTokenLua = redis.NewScript(touchTokenScript)

const deleteTokenScript = `
local fields = redis.call("HMGET", KEYS[1], "token", "identity_id")
if not fields[1] then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("DEL", ARGV[1] .. "tokval:" .. fields[1])
if fields[2] then
  redis.call("SREM", ARGV[1] .. "toks:" .. fields[2], ARGV[2])
end
return 1
`

var deleteTokenLua = redis.NewScript(deleteTokenScript)

// Store implements restauth.Store on a Redis client.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

var _ restauth.Store = (*Store)(nil)

// New returns a Store using client. An empty prefix selects DefaultPrefix.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) identityKey(id string) string       { return s.prefix + "id:" + id }
func (s *Store) emailKey(email string) string       { return s.prefix + "email:" + email }
func (s *Store) uuidKey(uuid string) string         { return s.prefix + "uuid:" + uuid }
func (s *Store) idsKey() string                     { return s.prefix + "ids" }
func (s *Store) rolesKey() string                   { return s.prefix + "roles" }
func (s *Store) linksKey(id string) string          { return s.prefix + "links:" + id }
func (s *Store) tokenKey(jti string) string         { return s.prefix + "tok:" + jti }
func (s *Store) tokenValueKey(v string) string      { return s.prefix + "tokval:" + v }
func (s *Store) identityTokensKey(id string) string { return s.prefix + "toks:" + id }

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", restauth.ErrStoreUnavailable, err)
}

/*
====================================
IDENTITIES
====================================
*/

func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (*restauth.Identity, error) {
	return s.identityByIndex(ctx, s.emailKey(email))
}

func (s *Store) GetIdentityByUUID(ctx context.Context, uuid string) (*restauth.Identity, error) {
	return s.identityByIndex(ctx, s.uuidKey(uuid))
}

func (s *Store) identityByIndex(ctx context.Context, indexKey string) (*restauth.Identity, error) {
	id, err := s.redis.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, restauth.ErrNotFound
		}
		return nil, unavailable(err)
	}
	return s.GetIdentityByID(ctx, id)
}

func (s *Store) GetIdentityByID(ctx context.Context, id string) (*restauth.Identity, error) {
	fields, err := s.redis.HGetAll(ctx, s.identityKey(id)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, restauth.ErrNotFound
	}

	identity, err := decodeIdentity(fields)
	if err != nil {
		return nil, err
	}
	identity.Roles, err = s.rolesOf(ctx, id)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

func (s *Store) CreateIdentity(ctx context.Context, identity *restauth.Identity) error {
	args, err := encodeIdentity(identity)
	if err != nil {
		return err
	}
	keys := []string{
		s.identityKey(identity.ID),
		s.emailKey(identity.Email),
		s.uuidKey(identity.UUID),
		s.idsKey(),
	}

	created, err := createIdentityLua.Run(ctx, s.redis, keys, append([]any{identity.ID}, args...)...).Int64()
	if err != nil {
		return unavailable(err)
	}
	if created == 0 {
		return restauth.ErrAlreadyExists
	}
	return nil
}

func (s *Store) SaveIdentity(ctx context.Context, identity *restauth.Identity) error {
	args, err := encodeIdentity(identity)
	if err != nil {
		return err
	}
	keys := []string{
		s.identityKey(identity.ID),
		s.emailKey(identity.Email),
		s.uuidKey(identity.UUID),
	}

	status, err := saveIdentityLua.Run(ctx, s.redis, keys, append([]any{identity.ID, s.prefix}, args...)...).Int64()
	if err != nil {
		return unavailable(err)
	}
	switch status {
	case 0:
		return restauth.ErrNotFound
	case 2:
		return restauth.ErrAlreadyExists
	}
	return nil
}

// TouchLogin writes last_login alone so that a concurrent SaveIdentity is
// never overwritten.
func (s *Store) TouchLogin(ctx context.Context, id string, at time.Time) error {
	touched, err := touchLoginLua.Run(ctx, s.redis, []string{s.identityKey(id)}, formatOptionalTime(&at)).Int64()
	if err != nil {
		return unavailable(err)
	}
	if touched == 0 {
		return restauth.ErrNotFound
	}
	return nil
}

func (s *Store) CountIdentities(ctx context.Context) (int, error) {
	n, err := s.redis.SCard(ctx, s.idsKey()).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

func encodeIdentity(identity *restauth.Identity) ([]any, error) {
	active := ""
	if identity.IsActive != nil {
		active = strconv.FormatBool(*identity.IsActive)
	}
	props := ""
	if len(identity.Properties) > 0 {
		raw, err := json.Marshal(identity.Properties)
		if err != nil {
			return nil, fmt.Errorf("encode identity properties: %w", err)
		}
		props = string(raw)
	}
	return []any{
		"id", identity.ID,
		"uuid", identity.UUID,
		"email", identity.Email,
		"name", identity.Name,
		"surname", identity.Surname,
		"password_hash", identity.PasswordHash,
		"is_active", active,
		"last_login", formatOptionalTime(identity.LastLogin),
		"last_password_change", formatOptionalTime(identity.LastPasswordChange),
		"auth_method", identity.AuthMethod,
		"properties", props,
	}, nil
}

func decodeIdentity(fields map[string]string) (*restauth.Identity, error) {
	identity := &restauth.Identity{
		ID:           fields["id"],
		UUID:         fields["uuid"],
		Email:        fields["email"],
		Name:         fields["name"],
		Surname:      fields["surname"],
		PasswordHash: fields["password_hash"],
		AuthMethod:   fields["auth_method"],
	}
	if v := fields["is_active"]; v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("decode identity %s: %w", identity.ID, err)
		}
		identity.IsActive = &active
	}
	var err error
	if identity.LastLogin, err = parseOptionalTime(fields["last_login"]); err != nil {
		return nil, fmt.Errorf("decode identity %s: %w", identity.ID, err)
	}
	if identity.LastPasswordChange, err = parseOptionalTime(fields["last_password_change"]); err != nil {
		return nil, fmt.Errorf("decode identity %s: %w", identity.ID, err)
	}
	if v := fields["properties"]; v != "" {
		if err := json.Unmarshal([]byte(v), &identity.Properties); err != nil {
			return nil, fmt.Errorf("decode identity %s: %w", identity.ID, err)
		}
	}
	return identity, nil
}

func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func parseTime(v string) (time.Time, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n).UTC(), nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseOptionalTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := parseTime(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

/*
====================================
ROLES
====================================
*/

func (s *Store) GetRole(ctx context.Context, name string) (*restauth.Role, error) {
	desc, err := s.redis.HGet(ctx, s.rolesKey(), name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, restauth.ErrNotFound
		}
		return nil, unavailable(err)
	}
	return &restauth.Role{Name: name, Description: desc}, nil
}

func (s *Store) CreateRole(ctx context.Context, role restauth.Role) error {
	created, err := s.redis.HSetNX(ctx, s.rolesKey(), role.Name, role.Description).Result()
	if err != nil {
		return unavailable(err)
	}
	if !created {
		return restauth.ErrAlreadyExists
	}
	return nil
}

// DeleteRole removes the role. Links to it are dropped lazily when roles
// are next resolved.
func (s *Store) DeleteRole(ctx context.Context, name string) error {
	n, err := s.redis.HDel(ctx, s.rolesKey(), name).Result()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return restauth.ErrNotFound
	}
	return nil
}

func (s *Store) ListRoles(ctx context.Context) ([]restauth.Role, error) {
	all, err := s.redis.HGetAll(ctx, s.rolesKey()).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]restauth.Role, 0, len(all))
	for name, desc := range all {
		out = append(out, restauth.Role{Name: name, Description: desc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) LinkRoles(ctx context.Context, identityID string, names []string) error {
	exists, err := s.redis.Exists(ctx, s.identityKey(identityID)).Result()
	if err != nil {
		return unavailable(err)
	}
	if exists == 0 {
		return restauth.ErrNotFound
	}

	linked := make([]any, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	if len(names) > 0 {
		found, err := s.redis.HMGet(ctx, s.rolesKey(), names...).Result()
		if err != nil {
			return unavailable(err)
		}
		for i, name := range names {
			if found[i] == nil {
				return fmt.Errorf("role %q: %w", name, restauth.ErrNotFound)
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			linked = append(linked, name)
		}
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.linksKey(identityID))
		if len(linked) > 0 {
			pipe.RPush(ctx, s.linksKey(identityID), linked...)
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) RolesOf(ctx context.Context, identityID string) ([]restauth.Role, error) {
	exists, err := s.redis.Exists(ctx, s.identityKey(identityID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if exists == 0 {
		return nil, restauth.ErrNotFound
	}
	return s.rolesOf(ctx, identityID)
}

func (s *Store) rolesOf(ctx context.Context, identityID string) ([]restauth.Role, error) {
	names, err := s.redis.LRange(ctx, s.linksKey(identityID), 0, -1).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]restauth.Role, 0, len(names))
	if len(names) == 0 {
		return out, nil
	}

	descs, err := s.redis.HMGet(ctx, s.rolesKey(), names...).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	for i, name := range names {
		desc, ok := descs[i].(string)
		if !ok {
			continue
		}
		out = append(out, restauth.Role{Name: name, Description: desc})
	}
	return out, nil
}

/*
====================================
TOKENS
====================================
*/

func (s *Store) SaveToken(ctx context.Context, token *restauth.Token) error {
	keys := []string{
		s.tokenKey(token.JTI),
		s.tokenValueKey(token.Token),
		s.identityTokensKey(token.IdentityID),
	}
	args := append([]any{token.JTI}, encodeToken(token)...)

	created, err := saveTokenLua.Run(ctx, s.redis, keys, args...).Int64()
	if err != nil {
		return unavailable(err)
	}
	if created == 0 {
		return restauth.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetTokenByJTI(ctx context.Context, jti string) (*restauth.Token, error) {
	fields, err := s.redis.HGetAll(ctx, s.tokenKey(jti)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, restauth.ErrNotFound
	}
	return decodeToken(jti, fields)
}

func (s *Store) GetTokenByValue(ctx context.Context, value string) (*restauth.Token, error) {
	jti, err := s.redis.Get(ctx, s.tokenValueKey(value)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, restauth.ErrNotFound
		}
		return nil, unavailable(err)
	}
	return s.GetTokenByJTI(ctx, jti)
}

func (s *Store) TouchToken(ctx context.Context, jti string, lastAccess, expiration time.Time) error {
	touched, err := touchTokenLua.Run(ctx, s.redis, []string{s.tokenKey(jti)}, formatTime(lastAccess), formatTime(expiration)).Int64()
	if err != nil {
		return unavailable(err)
	}
	if touched == 0 {
		return restauth.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteToken(ctx context.Context, jti string) error {
	deleted, err := deleteTokenLua.Run(ctx, s.redis, []string{s.tokenKey(jti)}, s.prefix, jti).Int64()
	if err != nil {
		return unavailable(err)
	}
	if deleted == 0 {
		return restauth.ErrNotFound
	}
	return nil
}

// TokensOf lists the identity's tokens by creation time. JTIs whose hash is
// gone are skipped.
func (s *Store) TokensOf(ctx context.Context, identityID string) ([]restauth.Token, error) {
	jtis, err := s.redis.SMembers(ctx, s.identityTokensKey(identityID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []restauth.Token{}, nil
		}
		return nil, unavailable(err)
	}

	out := make([]restauth.Token, 0, len(jtis))
	if len(jtis) == 0 {
		return out, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(jtis))
	for i, jti := range jtis {
		cmds[i] = pipe.HGetAll(ctx, s.tokenKey(jti))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable(err)
	}

	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			return nil, unavailable(err)
		}
		if len(fields) == 0 {
			continue
		}
		token, err := decodeToken(jtis[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, *token)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Creation.Equal(out[j].Creation) {
			return out[i].JTI < out[j].JTI
		}
		return out[i].Creation.Before(out[j].Creation)
	})
	return out, nil
}

func encodeToken(token *restauth.Token) []any {
	return []any{
		"token", token.Token,
		"type", token.Type,
		"creation", formatTime(token.Creation),
		"last_access", formatTime(token.LastAccess),
		"expiration", formatTime(token.Expiration),
		"ip", token.IP,
		"location", token.Location,
		"identity_id", token.IdentityID,
	}
}

func decodeToken(jti string, fields map[string]string) (*restauth.Token, error) {
	token := &restauth.Token{
		JTI:        jti,
		Token:      fields["token"],
		Type:       fields["type"],
		IP:         fields["ip"],
		Location:   fields["location"],
		IdentityID: fields["identity_id"],
	}
	var err error
	if token.Creation, err = parseTime(fields["creation"]); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", jti, err)
	}
	if token.LastAccess, err = parseTime(fields["last_access"]); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", jti, err)
	}
	if token.Expiration, err = parseTime(fields["expiration"]); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", jti, err)
	}
	return token, nil
}
