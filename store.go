package restauth

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Store implementations for absent records.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned by Store implementations when a create
	// collides with an existing record.
	ErrAlreadyExists = errors.New("already exists")
)

// Store persists identities, roles and tokens.
//
// Implementations return ErrNotFound (possibly wrapped) for absent records
// and wrap ErrStoreUnavailable for transient failures. Any other error is
// treated as a store outage by the Engine. Identity lookups return the
// identity with its Roles populated. Token writes are atomic per JTI.
type Store interface {
	GetIdentityByEmail(ctx context.Context, email string) (*Identity, error)
	GetIdentityByUUID(ctx context.Context, uuid string) (*Identity, error)
	GetIdentityByID(ctx context.Context, id string) (*Identity, error)
	// CreateIdentity persists a new identity whose ID and UUID are already set.
	CreateIdentity(ctx context.Context, identity *Identity) error
	// SaveIdentity overwrites every stored field of an existing identity
	// except its roles.
	SaveIdentity(ctx context.Context, identity *Identity) error
	// TouchLogin sets the last login time of the identity id and nothing
	// else.
	TouchLogin(ctx context.Context, id string, at time.Time) error
	CountIdentities(ctx context.Context) (int, error)

	GetRole(ctx context.Context, name string) (*Role, error)
	CreateRole(ctx context.Context, role Role) error
	DeleteRole(ctx context.Context, name string) error
	ListRoles(ctx context.Context) ([]Role, error)
	// LinkRoles replaces the identity's roles with the named ones. Every
	// name must refer to an existing role.
	LinkRoles(ctx context.Context, identityID string, names []string) error
	RolesOf(ctx context.Context, identityID string) ([]Role, error)

	SaveToken(ctx context.Context, token *Token) error
	GetTokenByJTI(ctx context.Context, jti string) (*Token, error)
	GetTokenByValue(ctx context.Context, value string) (*Token, error)
	// TouchToken updates the access and expiration times of an existing
	// token and returns ErrNotFound when it was deleted meanwhile.
	TouchToken(ctx context.Context, jti string, lastAccess, expiration time.Time) error
	DeleteToken(ctx context.Context, jti string) error
	TokensOf(ctx context.Context, identityID string) ([]Token, error)
}
