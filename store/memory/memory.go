// Package memory is a process-local restauth.Store. Every operation holds
// one mutex, so token updates are atomic per JTI. Records are copied on the
// way in and out; callers never alias stored state.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/restauth"
)

// Store implements restauth.Store in memory.
type Store struct {
	mu sync.Mutex

	identities map[string]*restauth.Identity // by ID
	byEmail    map[string]string
	byUUID     map[string]string
	links      map[string][]string // identity ID -> role names

	roles map[string]restauth.Role

	tokens  map[string]*restauth.Token // by JTI
	byValue map[string]string
}

var _ restauth.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		identities: make(map[string]*restauth.Identity),
		byEmail:    make(map[string]string),
		byUUID:     make(map[string]string),
		links:      make(map[string][]string),
		roles:      make(map[string]restauth.Role),
		tokens:     make(map[string]*restauth.Token),
		byValue:    make(map[string]string),
	}
}

func live(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", restauth.ErrStoreUnavailable, err)
	}
	return nil
}

// withRoles returns a copy of the identity stored under id with its roles
// resolved. The caller holds s.mu.
func (s *Store) withRoles(id string) *restauth.Identity {
	out := s.identities[id].Clone()
	out.Roles = s.rolesOf(id)
	return out
}

func (s *Store) rolesOf(id string) []restauth.Role {
	names := s.links[id]
	out := make([]restauth.Role, 0, len(names))
	for _, name := range names {
		if role, ok := s.roles[name]; ok {
			out = append(out, role)
		}
	}
	return out
}

func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (*restauth.Identity, error) {
	if err := live(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, restauth.ErrNotFound
	}
	return s.withRoles(id), nil
}

func (s *Store) GetIdentityByUUID(ctx context.Context, uuid string) (*restauth.Identity, error) {
	if err := live(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byUUID[uuid]
	if !ok {
		return nil, restauth.ErrNotFound
	}
	return s.withRoles(id), nil
}

func (s *Store) GetIdentityByID(ctx context.Context, id string) (*restauth.Identity, error) {
	if err := live(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[id]; !ok {
		return nil, restauth.ErrNotFound
	}
	return s.withRoles(id), nil
}

func (s *Store) CreateIdentity(ctx context.Context, identity *restauth.Identity) error {
	if err := live(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[identity.ID]; ok {
		return restauth.ErrAlreadyExists
	}
	if _, ok := s.byEmail[identity.Email]; ok {
		return restauth.ErrAlreadyExists
	}

	stored := identity.Clone()
	stored.Roles = nil
	s.identities[stored.ID] = stored
	s.byEmail[stored.Email] = stored.ID
	s.byUUID[stored.UUID] = stored.ID
	return nil
}

func (s *Store) SaveIdentity(ctx context.Context, identity *restauth.Identity) error {
	if err := live(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.identities[identity.ID]
	if !ok {
		return restauth.ErrNotFound
	}
	if owner, taken := s.byEmail[identity.Email]; taken && owner != identity.ID {
		return restauth.ErrAlreadyExists
	}

	delete(s.byEmail, current.Email)
	delete(s.byUUID, current.UUID)

	stored := identity.Clone()
	stored.Roles = nil
	s.identities[stored.ID] = stored
	s.byEmail[stored.Email] = stored.ID
	s.byUUID[stored.UUID] = stored.ID
	return nil
}

func (s *Store) TouchLogin(ctx context.Context, id string, at time.Time) error {
	if err := live(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[id]
	if !ok {
		return restauth.ErrNotFound
	}
	identity.LastLogin = &at
	return nil
}

func (s *Store) CountIdentities(ctx context.Context) (int, error) {
	if err := live(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.identities), nil
}

func (s *Store) GetRole(ctx context.Context, name string) (*restauth.Role, error) {
	if err := live(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[name]
	if !ok {
		return nil, restauth.ErrNotFound
	}
	return &role, nil
}

func (s *Store) CreateRole(ctx context.Context, role restauth.Role) error {
	if err := live(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[role.Name]; ok {
		return restauth.ErrAlreadyExists
	}
	s.roles[role.Name] = role
	return nil
}

// DeleteRole removes the role and every link to it.
func (s *Store) DeleteRole(ctx context.Context, name string) error {
	if err := live(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[name]; !ok {
		return restauth.ErrNotFound
	}
	delete(s.roles, name)
	for id, names := range s.links {
		kept := names[:0]
		for _, n := range names {
			if n != name {
				kept = append(kept, n)
			}
		}
		s.links[id] = kept
	}
	return nil
}

func (s *Store) ListRoles(ctx context.Context) ([]restauth.Role, error) {
	if err := live(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]restauth.Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) LinkRoles(ctx context.Context, identityID string, names []string) error {
	if err := live(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[identityID]; !ok {
		return restauth.ErrNotFound
	}
	linked := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := s.roles[name]; !ok {
			return fmt.Errorf("role %q: %w", name, restauth.ErrNotFound)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		linked = append(linked, name)
	}
	s.links[identityID] = linked
	return nil
}

func (s *Store) RolesOf(ctx context.Context, identityID string) ([]restauth.Role, error) {
	if err := live(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[identityID]; !ok {
		return nil, restauth.ErrNotFound
	}
	return s.rolesOf(identityID), nil
}

func (s *Store) SaveToken(ctx context.Context, token *restauth.Token) error {
	if err := live(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token.JTI]; ok {
		return restauth.ErrAlreadyExists
	}
	stored := *token
	s.tokens[stored.JTI] = &stored
	s.byValue[stored.Token] = stored.JTI
	return nil
}

func (s *Store) GetTokenByJTI(ctx context.Context, jti string) (*restauth.Token, error) {
	if err := live(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[jti]
	if !ok {
		return nil, restauth.ErrNotFound
	}
	out := *token
	return &out, nil
}

func (s *Store) GetTokenByValue(ctx context.Context, value string) (*restauth.Token, error) {
	if err := live(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	jti, ok := s.byValue[value]
	if !ok {
		return nil, restauth.ErrNotFound
	}
	out := *s.tokens[jti]
	return &out, nil
}

func (s *Store) TouchToken(ctx context.Context, jti string, lastAccess, expiration time.Time) error {
	if err := live(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[jti]
	if !ok {
		return restauth.ErrNotFound
	}
	token.LastAccess = lastAccess
	token.Expiration = expiration
	return nil
}

func (s *Store) DeleteToken(ctx context.Context, jti string) error {
	if err := live(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[jti]
	if !ok {
		return restauth.ErrNotFound
	}
	delete(s.byValue, token.Token)
	delete(s.tokens, jti)
	return nil
}

// TokensOf lists the identity's tokens by creation time.
func (s *Store) TokensOf(ctx context.Context, identityID string) ([]restauth.Token, error) {
	if err := live(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []restauth.Token{}
	for _, token := range s.tokens {
		if token.IdentityID == identityID {
			out = append(out, *token)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Creation.Equal(out[j].Creation) {
			return out[i].JTI < out[j].JTI
		}
		return out[i].Creation.Before(out[j].Creation)
	})
	return out, nil
}
