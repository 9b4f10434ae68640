package restauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrEthical07/restauth/metrics"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Init creates the configured default roles that are missing and, when the
// store holds no identity at all, injects the default account with every
// default role. It is idempotent.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}

	for _, role := range e.config.Roles.Default {
		_, err := e.store.GetRole(ctx, role.Name)
		if err == nil {
			continue
		}
		if !isNotFound(err) {
			return e.storeFailure("get role", err, logrus.Fields{"role": role.Name})
		}
		if err := e.store.CreateRole(ctx, role); err != nil && !errors.Is(err, ErrAlreadyExists) {
			return e.storeFailure("create role", err, logrus.Fields{"role": role.Name})
		}
		e.logger.WithField("role", role.Name).Info("Injected default role")
	}

	count, err := e.store.CountIdentities(ctx)
	if err != nil {
		return e.storeFailure("count identities", err, nil)
	}
	if count > 0 {
		return nil
	}

	roles := e.config.Roles
	if roles.DefaultUser == "" || roles.DefaultPassword == "" {
		e.logger.Warn("No identity found and no default credentials configured, skipping default user")
		return nil
	}

	names := make([]string, 0, len(roles.Default))
	for _, role := range roles.Default {
		names = append(names, role.Name)
	}
	if _, err := e.CreateIdentity(ctx, NewIdentity{
		Email:           roles.DefaultUser,
		Password:        roles.DefaultPassword,
		Name:            "Default",
		Surname:         "User",
		ExpiredPassword: true,
	}, names); err != nil {
		return err
	}
	e.logger.WithField("email", roles.DefaultUser).Info("Injected default user")
	return nil
}

// CreateIdentity hashes the password of n, stores the new identity and
// links it to roles, or to the default role when roles is empty. Unknown
// role names are rejected before anything is stored.
func (e *Engine) CreateIdentity(ctx context.Context, n NewIdentity, roles []string) (*Identity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(n.Email))
	if email == "" {
		return nil, errors.New("identity email required")
	}
	if n.Password == "" {
		return nil, errors.New("identity password required")
	}

	digest, err := e.hasher.Hash(n.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	active := true
	if n.IsActive != nil {
		active = *n.IsActive
	}
	method := n.AuthMethod
	if method == "" {
		method = AuthMethodCredentials
	}

	identity := &Identity{
		ID:           uuid.NewString(),
		UUID:         uuid.NewString(),
		Email:        email,
		Name:         n.Name,
		Surname:      n.Surname,
		PasswordHash: digest,
		IsActive:     &active,
		AuthMethod:   method,
	}
	if len(n.Properties) > 0 {
		identity.Properties = make(map[string]string, len(n.Properties))
		for k, v := range n.Properties {
			identity.Properties[k] = v
		}
	}
	if !n.ExpiredPassword {
		now := e.now()
		identity.LastPasswordChange = &now
	}

	if err := e.checkRoles(ctx, e.rolesOrDefault(roles)); err != nil {
		return nil, err
	}

	err = e.store.CreateIdentity(ctx, identity)
	if errors.Is(err, ErrAlreadyExists) {
		return nil, newError(ErrAlreadyExists, http.StatusConflict, fmt.Sprintf("This user already exists: %s", email))
	}
	if err != nil {
		return nil, e.storeFailure("create identity", err, logrus.Fields{"email": email})
	}

	if err := e.LinkRoles(ctx, identity, roles); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventIdentityCreated, true, auditRecord{identityID: identity.ID, login: email}, nil)
	return identity, nil
}

// LinkRoles replaces the roles of identity with names, or with the default
// role when names is empty, and refreshes identity.Roles.
func (e *Engine) LinkRoles(ctx context.Context, identity *Identity, names []string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if identity == nil {
		return errInvalidCredentials()
	}
	names = e.rolesOrDefault(names)

	err := e.store.LinkRoles(ctx, identity.ID, names)
	if isNotFound(err) {
		return errUnknownRole(names)
	}
	if err != nil {
		return e.storeFailure("link roles", err, logrus.Fields{"identity": identity.ID})
	}

	linked, err := e.store.RolesOf(ctx, identity.ID)
	if err != nil && !isNotFound(err) {
		return e.storeFailure("list roles", err, logrus.Fields{"identity": identity.ID})
	}
	identity.Roles = linked

	e.emitAudit(ctx, auditEventRolesLinked, true, auditRecord{
		identityID: identity.ID,
		metadata:   map[string]string{"roles": strings.Join(names, ",")},
	}, nil)
	return nil
}

func (e *Engine) rolesOrDefault(names []string) []string {
	if len(names) == 0 && e.config.Roles.DefaultRole != "" {
		return []string{e.config.Roles.DefaultRole}
	}
	return names
}

// checkRoles fails when any of names is not a stored role.
func (e *Engine) checkRoles(ctx context.Context, names []string) error {
	for _, name := range names {
		_, err := e.store.GetRole(ctx, name)
		if isNotFound(err) {
			return errUnknownRole(names)
		}
		if err != nil {
			return e.storeFailure("get role", err, logrus.Fields{"role": name})
		}
	}
	return nil
}

func errUnknownRole(names []string) error {
	return newError(ErrNotFound, http.StatusBadRequest, fmt.Sprintf("Unknown role in %v", names))
}

// VerifyRoles reports whether identity satisfies required under policy.
// An empty requirement is always satisfied.
func VerifyRoles(identity *Identity, required []string, policy RolePolicy) bool {
	if len(required) == 0 {
		return true
	}
	if identity == nil {
		return false
	}

	for _, name := range required {
		held := identity.HasRole(name)
		switch {
		case policy == RolesAny && held:
			return true
		case policy == RolesAll && !held:
			return false
		}
	}
	return policy == RolesAll
}

// Authorize returns ErrInsufficientPrivileges when identity does not
// satisfy required under policy.
func (e *Engine) Authorize(identity *Identity, required []string, policy RolePolicy) error {
	if VerifyRoles(identity, required, policy) {
		return nil
	}
	if e != nil && e.logger != nil {
		e.metricInc(metrics.PrivilegeDenied)
		fields := logrus.Fields{"required": required, "policy": policy.String()}
		if identity != nil {
			fields["identity"] = identity.ID
		}
		e.logger.WithFields(fields).Info("Missing privileges")
	}
	return ErrorForInsufficientPrivileges()
}
