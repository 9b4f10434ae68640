package restauth

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/restauth/metrics"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func (e *Engine) tokenTTL(tokenType string) time.Duration {
	if tokenType == TokenTypeAccess {
		return e.config.Token.ShortTTL
	}
	return e.config.Token.LongTTL
}

// IssueToken creates and persists a bearer token of tokenType for identity.
//
// Access tokens expire ShortTTL after their last use; every other type
// expires after LongTTL. Whatever the sliding expiration, the signed string
// itself hard-expires after LongTTL. The identity is not written back; the
// token carries its current validation key.
func (e *Engine) IssueToken(ctx context.Context, identity *Identity, tokenType string) (*Token, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if identity == nil || identity.UUID == "" {
		return nil, errInvalidCredentials()
	}
	if tokenType == "" {
		tokenType = TokenTypeAccess
	}

	now := e.now()
	jti := uuid.NewString()
	bearer, err := e.codec.Encode(identity.UUID, jti, tokenType, now, e.config.Token.LongTTL)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	ip := ClientIPFromContext(ctx)
	token := &Token{
		JTI:        jti,
		Token:      bearer,
		Type:       tokenType,
		Creation:   now,
		LastAccess: now,
		Expiration: now.Add(e.tokenTTL(tokenType)),
		IP:         ip,
		Location:   e.locate(ctx, ip),
		IdentityID: identity.ID,
	}

	if err := e.store.SaveToken(ctx, token); err != nil {
		return nil, e.storeFailure("save token", err, logrus.Fields{"identity": identity.ID, "jti": jti})
	}

	e.metricInc(metrics.TokenIssued)
	e.emitAudit(ctx, auditEventTokenIssued, true, auditRecord{
		identityID: identity.ID,
		jti:        jti,
		metadata:   map[string]string{"token_type": tokenType},
	}, nil)
	return token, nil
}

// RefreshToken slides the expiration of the token jti to ShortTTL from now.
// It returns false when the token does not exist or has already expired;
// expired tokens are deleted.
func (e *Engine) RefreshToken(ctx context.Context, jti string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}

	token, err := e.store.GetTokenByJTI(ctx, jti)
	if isNotFound(err) {
		e.logger.WithField("jti", jti).Warn("Token not found")
		return false, nil
	}
	if err != nil {
		return false, e.storeFailure("get token", err, logrus.Fields{"jti": jti})
	}

	now := e.now()
	if token.Expired(now) {
		e.logger.WithFields(logrus.Fields{
			"jti":        jti,
			"expiration": token.Expiration,
		}).Info("Token expired, invalidating")
		if err := e.store.DeleteToken(ctx, jti); err != nil && !isNotFound(err) {
			return false, e.storeFailure("delete token", err, logrus.Fields{"jti": jti})
		}
		e.metricInc(metrics.TokenExpired)
		return false, nil
	}

	err = e.store.TouchToken(ctx, jti, now, now.Add(e.config.Token.ShortTTL))
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, e.storeFailure("touch token", err, logrus.Fields{"jti": jti})
	}

	e.metricInc(metrics.TokenRefreshed)
	return true, nil
}

// InvalidateToken deletes the token whose bearer string is bearer. It
// returns false when no such token exists.
func (e *Engine) InvalidateToken(ctx context.Context, bearer string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}

	token, err := e.store.GetTokenByValue(ctx, bearer)
	if isNotFound(err) {
		e.logger.Warn("Could not invalidate a non-existing token")
		return false, nil
	}
	if err != nil {
		return false, e.storeFailure("get token", err, nil)
	}

	err = e.store.DeleteToken(ctx, token.JTI)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, e.storeFailure("delete token", err, logrus.Fields{"jti": token.JTI})
	}

	e.metricInc(metrics.TokenInvalidated)
	e.emitAudit(ctx, auditEventTokenInvalidated, true, auditRecord{
		identityID: token.IdentityID,
		jti:        token.JTI,
	}, nil)
	return true, nil
}

// InvalidateAll rotates the identity's validation key. Every bearer string
// issued before the call stops validating, while the token rows themselves
// are left in place.
func (e *Engine) InvalidateAll(ctx context.Context, identity *Identity) error {
	if err := e.ready(); err != nil {
		return err
	}
	if identity == nil {
		return errInvalidCredentials()
	}

	previous := identity.UUID
	identity.UUID = uuid.NewString()
	if err := e.store.SaveIdentity(ctx, identity); err != nil {
		identity.UUID = previous
		return e.storeFailure("save identity", err, logrus.Fields{"identity": identity.ID})
	}

	e.metricInc(metrics.InvalidateAll)
	e.emitAudit(ctx, auditEventInvalidateAll, true, auditRecord{identityID: identity.ID}, nil)
	return nil
}

// VerifyTokenLink reports whether the token jti exists and belongs to identity.
func (e *Engine) VerifyTokenLink(ctx context.Context, jti string, identity *Identity) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if identity == nil {
		return false, nil
	}

	token, err := e.store.GetTokenByJTI(ctx, jti)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, e.storeFailure("get token", err, logrus.Fields{"jti": jti})
	}
	return token.IdentityID == identity.ID, nil
}

// Tokens lists tokens matching filter. A JTI filter returns at most one
// token; an empty filter returns nothing. Expired tokens are listed too.
func (e *Engine) Tokens(ctx context.Context, filter TokenFilter) ([]TokenView, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	out := []TokenView{}
	switch {
	case filter.JTI != "":
		token, err := e.store.GetTokenByJTI(ctx, filter.JTI)
		if isNotFound(err) {
			return out, nil
		}
		if err != nil {
			return nil, e.storeFailure("get token", err, logrus.Fields{"jti": filter.JTI})
		}
		if filter.IdentityID != "" && token.IdentityID != filter.IdentityID {
			return out, nil
		}
		return append(out, token.View()), nil

	case filter.IdentityID != "":
		tokens, err := e.store.TokensOf(ctx, filter.IdentityID)
		if err != nil && !isNotFound(err) {
			return nil, e.storeFailure("list tokens", err, logrus.Fields{"identity": filter.IdentityID})
		}
		for i := range tokens {
			out = append(out, tokens[i].View())
		}
	}
	return out, nil
}

// Validate resolves a bearer string to its identity. The signature and hard
// expiration are checked first, then the identity key, the token row and
// finally the sliding expiration, which is extended on success.
//
// Every rejection is reported as ErrInvalidToken; backend failures as
// ErrStoreUnavailable.
func (e *Engine) Validate(ctx context.Context, bearer string) (*Identity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		e.metrics.Observe(metrics.ValidateLatency, time.Since(start))
	}()

	invalid := func(reason string) error {
		e.logger.WithField("reason", reason).Debug("Bearer rejected")
		e.metricInc(metrics.ValidateFailure)
		return errInvalidToken(bearer)
	}

	if bearer == "" {
		return nil, invalid("empty")
	}

	claims, err := e.codec.Decode(bearer)
	if err != nil {
		return nil, invalid(err.Error())
	}
	if claims.Type != "" && claims.Type != TokenTypeAccess {
		return nil, invalid("wrong token type")
	}

	identity, err := e.store.GetIdentityByUUID(ctx, claims.UserID)
	if isNotFound(err) {
		return nil, invalid("unknown identity key")
	}
	if err != nil {
		return nil, e.storeFailure("get identity", err, nil)
	}

	linked, err := e.VerifyTokenLink(ctx, claims.ID, identity)
	if err != nil {
		return nil, err
	}
	if !linked {
		return nil, invalid("token not linked to identity")
	}

	alive, err := e.RefreshToken(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if !alive {
		return nil, invalid("token expired")
	}

	e.metricInc(metrics.ValidateSuccess)
	return identity, nil
}
