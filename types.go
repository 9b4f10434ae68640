package restauth

import "time"

// Token types.
const (
	TokenTypeAccess        = "access"
	TokenTypePasswordReset = "pwd_reset"
	TokenTypeActivation    = "activation"
)

// AuthMethodCredentials is the default authentication method of an identity.
const AuthMethodCredentials = "credentials"

// Identity is a user account as seen by the engine.
//
// ID never changes. UUID is the validation key embedded in every bearer
// string; rotating it invalidates all of the identity's bearer strings.
type Identity struct {
	ID                 string
	UUID               string
	Email              string
	Name               string
	Surname            string
	PasswordHash       string
	IsActive           *bool
	LastLogin          *time.Time
	LastPasswordChange *time.Time
	AuthMethod         string
	Roles              []Role
	Properties         map[string]string
}

// HasRole reports whether the identity holds the named role.
func (i *Identity) HasRole(name string) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// RoleNames lists the identity's role names in stored order.
func (i *Identity) RoleNames() []string {
	if i == nil {
		return nil
	}
	out := make([]string, 0, len(i.Roles))
	for _, r := range i.Roles {
		out = append(out, r.Name)
	}
	return out
}

// Clone returns a deep copy. Store implementations use it so callers never
// alias stored state.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	if i.IsActive != nil {
		v := *i.IsActive
		out.IsActive = &v
	}
	if i.LastLogin != nil {
		v := *i.LastLogin
		out.LastLogin = &v
	}
	if i.LastPasswordChange != nil {
		v := *i.LastPasswordChange
		out.LastPasswordChange = &v
	}
	if i.Roles != nil {
		out.Roles = append([]Role(nil), i.Roles...)
	}
	if i.Properties != nil {
		out.Properties = make(map[string]string, len(i.Properties))
		for k, v := range i.Properties {
			out.Properties[k] = v
		}
	}
	return &out
}

// Role is a named group of privileges.
type Role struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Token is a persisted bearer string and its lifecycle metadata.
type Token struct {
	JTI        string
	Token      string
	Type       string
	Creation   time.Time
	LastAccess time.Time
	Expiration time.Time
	IP         string
	Location   string
	IdentityID string
}

// Expired reports whether the token's sliding expiration lies before now.
func (t *Token) Expired(now time.Time) bool {
	return t.Expiration.Before(now)
}

// View projects the token into its wire shape.
func (t *Token) View() TokenView {
	return TokenView{
		ID:         t.JTI,
		Token:      t.Token,
		TokenType:  t.Type,
		Emitted:    t.Creation.Unix(),
		LastAccess: t.LastAccess.Unix(),
		Expiration: t.Expiration.Unix(),
		IP:         t.IP,
		Location:   t.Location,
	}
}

// TokenView is the client-visible projection of a Token. Times are epoch seconds.
type TokenView struct {
	ID         string `json:"id"`
	Token      string `json:"token"`
	TokenType  string `json:"token_type"`
	Emitted    int64  `json:"emitted"`
	LastAccess int64  `json:"last_access"`
	Expiration int64  `json:"expiration"`
	IP         string `json:"IP"`
	Location   string `json:"hostname"`
}

// TokenFilter narrows Engine.Tokens. Empty fields match everything.
type TokenFilter struct {
	IdentityID string
	JTI        string
}

// LoginRequest carries the credentials of a login attempt. Password is a
// pointer so that an absent password can be told apart from an empty one.
type LoginRequest struct {
	Username        string  `json:"username"`
	Password        *string `json:"password"`
	TOTPCode        string  `json:"totp_code,omitempty"`
	NewPassword     string  `json:"new_password,omitempty"`
	PasswordConfirm string  `json:"password_confirm,omitempty"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token      string    `json:"token"`
	Identity   *Identity `json:"-"`
	Expiration time.Time `json:"expiration"`
}

// NewIdentity describes an account to create.
type NewIdentity struct {
	Email      string
	Password   string
	Name       string
	Surname    string
	AuthMethod string
	IsActive   *bool
	// ExpiredPassword leaves LastPasswordChange unset so the password must be
	// changed at first login when that is enforced.
	ExpiredPassword bool
	Properties      map[string]string
}

// RolePolicy selects how required roles are matched.
type RolePolicy int

const (
	// RolesAll requires every listed role.
	RolesAll RolePolicy = iota
	// RolesAny requires at least one listed role.
	RolesAny
)

func (p RolePolicy) String() string {
	if p == RolesAny {
		return "any"
	}
	return "all"
}
