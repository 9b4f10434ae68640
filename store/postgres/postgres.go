// Package postgres is a restauth.Store backed by PostgreSQL through
// database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MrEthical07/restauth"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS auth_identities (
	id                   TEXT PRIMARY KEY,
	uuid                 TEXT NOT NULL UNIQUE,
	email                TEXT NOT NULL UNIQUE,
	name                 TEXT NOT NULL DEFAULT '',
	surname              TEXT NOT NULL DEFAULT '',
	password_hash        TEXT NOT NULL DEFAULT '',
	is_active            BOOLEAN,
	last_login           TIMESTAMPTZ,
	last_password_change TIMESTAMPTZ,
	auth_method          TEXT NOT NULL DEFAULT 'credentials',
	properties           JSONB NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS auth_roles (
	name        TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS auth_identity_roles (
	identity_id TEXT NOT NULL REFERENCES auth_identities(id) ON DELETE CASCADE,
	role_name   TEXT NOT NULL REFERENCES auth_roles(name) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	PRIMARY KEY (identity_id, role_name)
);
CREATE TABLE IF NOT EXISTS auth_tokens (
	jti         TEXT PRIMARY KEY,
	token       TEXT NOT NULL UNIQUE,
	type        TEXT NOT NULL,
	creation    TIMESTAMPTZ NOT NULL,
	last_access TIMESTAMPTZ NOT NULL,
	expiration  TIMESTAMPTZ NOT NULL,
	ip          TEXT NOT NULL DEFAULT '',
	location    TEXT NOT NULL DEFAULT '',
	identity_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS auth_tokens_identity_idx ON auth_tokens (identity_id, creation);
`

const identityColumns = `id, uuid, email, name, surname, password_hash, is_active, last_login, last_password_change, auth_method, properties`

const (
	queryIdentityByEmail = `SELECT ` + identityColumns + ` FROM auth_identities WHERE email = $1`
	queryIdentityByUUID  = `SELECT ` + identityColumns + ` FROM auth_identities WHERE uuid = $1`
	queryIdentityByID    = `SELECT ` + identityColumns + ` FROM auth_identities WHERE id = $1`
	queryInsertIdentity  = `INSERT INTO auth_identities (` + identityColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	queryUpdateIdentity  = `UPDATE auth_identities SET uuid = $2, email = $3, name = $4, surname = $5, password_hash = $6, is_active = $7, last_login = $8, last_password_change = $9, auth_method = $10, properties = $11 WHERE id = $1`
	queryTouchLogin      = `UPDATE auth_identities SET last_login = $2 WHERE id = $1`
	queryCountIdentities = `SELECT COUNT(*) FROM auth_identities`
	queryIdentityExists  = `SELECT EXISTS (SELECT 1 FROM auth_identities WHERE id = $1)`

	queryRole       = `SELECT name, description FROM auth_roles WHERE name = $1`
	queryInsertRole = `INSERT INTO auth_roles (name, description) VALUES ($1, $2)`
	queryDeleteRole = `DELETE FROM auth_roles WHERE name = $1`
	queryListRoles  = `SELECT name, description FROM auth_roles ORDER BY name`
	queryRolesNamed = `SELECT name FROM auth_roles WHERE name = ANY($1)`
	queryRolesOf    = `SELECT r.name, r.description FROM auth_identity_roles l JOIN auth_roles r ON r.name = l.role_name WHERE l.identity_id = $1 ORDER BY l.position`
	queryUnlinkAll  = `DELETE FROM auth_identity_roles WHERE identity_id = $1`
	queryLinkRole   = `INSERT INTO auth_identity_roles (identity_id, role_name, position) VALUES ($1, $2, $3)`

	tokenColumns      = `jti, token, type, creation, last_access, expiration, ip, location, identity_id`
	queryInsertToken  = `INSERT INTO auth_tokens (` + tokenColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	queryTokenByJTI   = `SELECT ` + tokenColumns + ` FROM auth_tokens WHERE jti = $1`
	queryTokenByValue = `SELECT ` + tokenColumns + ` FROM auth_tokens WHERE token = $1`
	queryTouchToken   = `UPDATE auth_tokens SET last_access = $2, expiration = $3 WHERE jti = $1`
	queryDeleteToken  = `DELETE FROM auth_tokens WHERE jti = $1`
	queryTokensOf     = `SELECT ` + tokenColumns + ` FROM auth_tokens WHERE identity_id = $1 ORDER BY creation, jti`
)

// Store implements restauth.Store on a *sql.DB opened with the postgres driver.
type Store struct {
	db *sql.DB
}

var _ restauth.Store = (*Store)(nil)

// New wraps db. Call Migrate once before first use.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn with lib/pq and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", restauth.ErrStoreUnavailable, err)
	}
	return New(db), nil
}

// Migrate creates the tables used by the store when they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate auth schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// classify maps driver errors onto the store error contract.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return restauth.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return restauth.ErrAlreadyExists
	}
	return fmt.Errorf("%w: %v", restauth.ErrStoreUnavailable, err)
}

/*
====================================
IDENTITIES
====================================
*/

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*restauth.Identity, error) {
	var (
		identity           restauth.Identity
		active             sql.NullBool
		lastLogin          sql.NullTime
		lastPasswordChange sql.NullTime
		props              []byte
	)
	err := row.Scan(
		&identity.ID, &identity.UUID, &identity.Email, &identity.Name, &identity.Surname,
		&identity.PasswordHash, &active, &lastLogin, &lastPasswordChange, &identity.AuthMethod, &props,
	)
	if err != nil {
		return nil, err
	}
	if active.Valid {
		v := active.Bool
		identity.IsActive = &v
	}
	if lastLogin.Valid {
		v := lastLogin.Time.UTC()
		identity.LastLogin = &v
	}
	if lastPasswordChange.Valid {
		v := lastPasswordChange.Time.UTC()
		identity.LastPasswordChange = &v
	}
	if len(props) > 0 {
		if err := json.Unmarshal(props, &identity.Properties); err != nil {
			return nil, fmt.Errorf("decode identity %s properties: %w", identity.ID, err)
		}
		if len(identity.Properties) == 0 {
			identity.Properties = nil
		}
	}
	return &identity, nil
}

func identityArgs(identity *restauth.Identity) ([]any, error) {
	props := []byte("{}")
	if len(identity.Properties) > 0 {
		raw, err := json.Marshal(identity.Properties)
		if err != nil {
			return nil, fmt.Errorf("encode identity properties: %w", err)
		}
		props = raw
	}
	var active sql.NullBool
	if identity.IsActive != nil {
		active = sql.NullBool{Bool: *identity.IsActive, Valid: true}
	}
	return []any{
		identity.ID, identity.UUID, identity.Email, identity.Name, identity.Surname,
		identity.PasswordHash, active, nullTime(identity.LastLogin), nullTime(identity.LastPasswordChange),
		identity.AuthMethod, props,
	}, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (s *Store) identity(ctx context.Context, query, arg string) (*restauth.Identity, error) {
	identity, err := scanIdentity(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, classify(err)
	}
	identity.Roles, err = s.rolesOf(ctx, identity.ID)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (*restauth.Identity, error) {
	return s.identity(ctx, queryIdentityByEmail, email)
}

func (s *Store) GetIdentityByUUID(ctx context.Context, uuid string) (*restauth.Identity, error) {
	return s.identity(ctx, queryIdentityByUUID, uuid)
}

func (s *Store) GetIdentityByID(ctx context.Context, id string) (*restauth.Identity, error) {
	return s.identity(ctx, queryIdentityByID, id)
}

func (s *Store) CreateIdentity(ctx context.Context, identity *restauth.Identity) error {
	args, err := identityArgs(identity)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, queryInsertIdentity, args...); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) SaveIdentity(ctx context.Context, identity *restauth.Identity) error {
	args, err := identityArgs(identity)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, queryUpdateIdentity, args...)
	if err != nil {
		return classify(err)
	}
	return expectOneRow(res)
}

// TouchLogin updates last_login only; the rest of the row may be changing
// under a concurrent password change.
func (s *Store) TouchLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, queryTouchLogin, id, at)
	if err != nil {
		return classify(err)
	}
	return expectOneRow(res)
}

func (s *Store) CountIdentities(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, queryCountIdentities).Scan(&n); err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return restauth.ErrNotFound
	}
	return nil
}

/*
====================================
ROLES
====================================
*/

func (s *Store) GetRole(ctx context.Context, name string) (*restauth.Role, error) {
	var role restauth.Role
	if err := s.db.QueryRowContext(ctx, queryRole, name).Scan(&role.Name, &role.Description); err != nil {
		return nil, classify(err)
	}
	return &role, nil
}

func (s *Store) CreateRole(ctx context.Context, role restauth.Role) error {
	if _, err := s.db.ExecContext(ctx, queryInsertRole, role.Name, role.Description); err != nil {
		return classify(err)
	}
	return nil
}

// DeleteRole removes the role; links to it go with it.
func (s *Store) DeleteRole(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, queryDeleteRole, name)
	if err != nil {
		return classify(err)
	}
	return expectOneRow(res)
}

func (s *Store) ListRoles(ctx context.Context) ([]restauth.Role, error) {
	rows, err := s.db.QueryContext(ctx, queryListRoles)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return scanRoles(rows)
}

func scanRoles(rows *sql.Rows) ([]restauth.Role, error) {
	out := []restauth.Role{}
	for rows.Next() {
		var role restauth.Role
		if err := rows.Scan(&role.Name, &role.Description); err != nil {
			return nil, classify(err)
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// LinkRoles replaces the identity's links inside one transaction.
func (s *Store) LinkRoles(ctx context.Context, identityID string, names []string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists bool
	if err = tx.QueryRowContext(ctx, queryIdentityExists, identityID).Scan(&exists); err != nil {
		return classify(err)
	}
	if !exists {
		return restauth.ErrNotFound
	}

	linked := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		linked = append(linked, name)
	}

	if len(linked) > 0 {
		known, qerr := tx.QueryContext(ctx, queryRolesNamed, pq.Array(linked))
		if qerr != nil {
			return classify(qerr)
		}
		found := make(map[string]struct{}, len(linked))
		for known.Next() {
			var name string
			if err = known.Scan(&name); err != nil {
				known.Close()
				return classify(err)
			}
			found[name] = struct{}{}
		}
		known.Close()
		if err = known.Err(); err != nil {
			return classify(err)
		}
		for _, name := range linked {
			if _, ok := found[name]; !ok {
				err = fmt.Errorf("role %q: %w", name, restauth.ErrNotFound)
				return err
			}
		}
	}

	if _, err = tx.ExecContext(ctx, queryUnlinkAll, identityID); err != nil {
		return classify(err)
	}
	for i, name := range linked {
		if _, err = tx.ExecContext(ctx, queryLinkRole, identityID, name, i); err != nil {
			return classify(err)
		}
	}
	if err = tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) RolesOf(ctx context.Context, identityID string) ([]restauth.Role, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, queryIdentityExists, identityID).Scan(&exists); err != nil {
		return nil, classify(err)
	}
	if !exists {
		return nil, restauth.ErrNotFound
	}
	return s.rolesOf(ctx, identityID)
}

func (s *Store) rolesOf(ctx context.Context, identityID string) ([]restauth.Role, error) {
	rows, err := s.db.QueryContext(ctx, queryRolesOf, identityID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return scanRoles(rows)
}

/*
====================================
TOKENS
====================================
*/

func scanToken(row rowScanner) (*restauth.Token, error) {
	var token restauth.Token
	err := row.Scan(
		&token.JTI, &token.Token, &token.Type, &token.Creation, &token.LastAccess,
		&token.Expiration, &token.IP, &token.Location, &token.IdentityID,
	)
	if err != nil {
		return nil, err
	}
	token.Creation = token.Creation.UTC()
	token.LastAccess = token.LastAccess.UTC()
	token.Expiration = token.Expiration.UTC()
	return &token, nil
}

func (s *Store) SaveToken(ctx context.Context, token *restauth.Token) error {
	_, err := s.db.ExecContext(ctx, queryInsertToken,
		token.JTI, token.Token, token.Type, token.Creation, token.LastAccess,
		token.Expiration, token.IP, token.Location, token.IdentityID,
	)
	return classify(err)
}

func (s *Store) GetTokenByJTI(ctx context.Context, jti string) (*restauth.Token, error) {
	token, err := scanToken(s.db.QueryRowContext(ctx, queryTokenByJTI, jti))
	if err != nil {
		return nil, classify(err)
	}
	return token, nil
}

func (s *Store) GetTokenByValue(ctx context.Context, value string) (*restauth.Token, error) {
	token, err := scanToken(s.db.QueryRowContext(ctx, queryTokenByValue, value))
	if err != nil {
		return nil, classify(err)
	}
	return token, nil
}

// TouchToken is a single-row UPDATE, so concurrent touches never resurrect
// a deleted token.
func (s *Store) TouchToken(ctx context.Context, jti string, lastAccess, expiration time.Time) error {
	res, err := s.db.ExecContext(ctx, queryTouchToken, jti, lastAccess, expiration)
	if err != nil {
		return classify(err)
	}
	return expectOneRow(res)
}

func (s *Store) DeleteToken(ctx context.Context, jti string) error {
	res, err := s.db.ExecContext(ctx, queryDeleteToken, jti)
	if err != nil {
		return classify(err)
	}
	return expectOneRow(res)
}

func (s *Store) TokensOf(ctx context.Context, identityID string) ([]restauth.Token, error) {
	rows, err := s.db.QueryContext(ctx, queryTokensOf, identityID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []restauth.Token{}
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *token)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Creation.Before(out[j].Creation) })
	return out, nil
}
