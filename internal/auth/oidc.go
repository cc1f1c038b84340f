package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

const (
	googleIssuer         = "https://accounts.google.com"
	firebaseIssuerPrefix = "https://securetoken.google.com/"
)

type idTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// OIDCVerifier adapts an OpenID Connect ID token verifier to SocialVerifier.
type OIDCVerifier struct {
	provider Provider
	verifier idTokenVerifier
}

type identityClaims struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
}

func NewOIDCVerifier(provider Provider, verifier *oidc.IDTokenVerifier) *OIDCVerifier {
	return &OIDCVerifier{provider: provider, verifier: verifier}
}

// NewGoogleVerifier discovers Google's signing keys and checks the audience
// against clientID.
func NewGoogleVerifier(ctx context.Context, clientID string) (*OIDCVerifier, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, fmt.Errorf("google client id is required")
	}

	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("discover google oidc provider: %w", err)
	}
	return NewOIDCVerifier(ProviderGoogle, provider.Verifier(&oidc.Config{ClientID: clientID})), nil
}

// NewFirebaseVerifier verifies Firebase ID tokens for projectID.
func NewFirebaseVerifier(ctx context.Context, projectID string) (*OIDCVerifier, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("firebase project id is required")
	}

	provider, err := oidc.NewProvider(ctx, firebaseIssuerPrefix+projectID)
	if err != nil {
		return nil, fmt.Errorf("discover firebase oidc provider: %w", err)
	}
	return NewOIDCVerifier(ProviderFirebase, provider.Verifier(&oidc.Config{ClientID: projectID})), nil
}

// Verify returns the verified profile. Emails the provider has not verified
// are dropped.
func (v *OIDCVerifier) Verify(ctx context.Context, idToken string) (SocialProfile, error) {
	token, err := v.verifier.Verify(ctx, idToken)
	if err != nil {
		return SocialProfile{}, fmt.Errorf("%w: %v", ErrSocialTokenRejected, err)
	}

	var claims identityClaims
	if err := token.Claims(&claims); err != nil {
		return SocialProfile{}, fmt.Errorf("%w: decode claims: %v", ErrSocialTokenRejected, err)
	}

	email := strings.TrimSpace(claims.Email)
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		email = ""
	}

	return SocialProfile{
		Provider:    v.provider,
		Subject:     token.Subject,
		Email:       email,
		DisplayName: strings.TrimSpace(claims.Name),
	}, nil
}
