package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/nadajinny/GROO/internal/apperror"
	"github.com/nadajinny/GROO/internal/httpx"
	"github.com/nadajinny/GROO/internal/observability"
)

type RevocationChecker interface {
	IsBlacklisted(ctx context.Context, token string) bool
}

type PrincipalFinder interface {
	FindByEmail(ctx context.Context, email string) (Principal, error)
}

// Authenticator resolves a bearer access token to a principal. Every
// rejection reason collapses to apperror.ErrUnauthorized.
type Authenticator struct {
	codec      *Codec
	revocation RevocationChecker
	principals PrincipalFinder
	logger     *observability.Logger
}

func NewAuthenticator(codec *Codec, revocation RevocationChecker, principals PrincipalFinder, logger *observability.Logger) *Authenticator {
	if logger == nil {
		logger = observability.Discard()
	}
	return &Authenticator{codec: codec, revocation: revocation, principals: principals, logger: logger}
}

// Authenticate does not re-check the principal's status: deactivation only
// blocks new logins.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := a.codec.Verify(token)
	if err != nil {
		a.logger.Debug("access_token_rejected", map[string]any{"reason": err.Error()})
		return Principal{}, apperror.ErrUnauthorized
	}
	if claims.Type != TokenTypeAccess || claims.Subject == "" {
		return Principal{}, apperror.ErrUnauthorized
	}
	if a.revocation != nil && a.revocation.IsBlacklisted(ctx, token) {
		return Principal{}, apperror.ErrUnauthorized
	}

	principal, err := a.principals.FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrPrincipalMissing) {
			return Principal{}, apperror.ErrUnauthorized
		}
		return Principal{}, err
	}
	return principal, nil
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := httpx.BearerToken(r)
		if !ok {
			httpx.WriteError(w, apperror.ErrUnauthorized)
			return
		}

		principal, err := a.Authenticate(r.Context(), token)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequireAdmin must run after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			httpx.WriteError(w, apperror.ErrUnauthorized)
			return
		}
		if principal.Role != RoleAdmin {
			httpx.WriteError(w, apperror.ErrForbiddenOperation)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type principalKey struct{}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
