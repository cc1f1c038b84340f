package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://securetoken.google.com/groo-test"

func newStaticVerifier(t *testing.T, key *rsa.PrivateKey) *OIDCVerifier {
	t.Helper()
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	return NewOIDCVerifier(ProviderFirebase, oidc.NewVerifier(testIssuer, keySet, &oidc.Config{ClientID: "groo-test"}))
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func baseIDClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":            testIssuer,
		"aud":            "groo-test",
		"sub":            "firebase-uid-1",
		"iat":            now.Add(-time.Minute).Unix(),
		"exp":            now.Add(time.Hour).Unix(),
		"email":          "frank@example.com",
		"email_verified": true,
		"name":           "Frank",
	}
}

func TestOIDCVerifierAcceptsValidToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	verifier := newStaticVerifier(t, key)

	profile, err := verifier.Verify(context.Background(), signIDToken(t, key, baseIDClaims()))
	require.NoError(t, err)
	assert.Equal(t, ProviderFirebase, profile.Provider)
	assert.Equal(t, "firebase-uid-1", profile.Subject)
	assert.Equal(t, "frank@example.com", profile.Email)
	assert.Equal(t, "Frank", profile.DisplayName)
}

func TestOIDCVerifierDropsUnverifiedEmail(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	verifier := newStaticVerifier(t, key)

	claims := baseIDClaims()
	claims["email_verified"] = false
	profile, err := verifier.Verify(context.Background(), signIDToken(t, key, claims))
	require.NoError(t, err)
	assert.Empty(t, profile.Email)
}

func TestOIDCVerifierRejections(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	verifier := newStaticVerifier(t, key)

	wrongAudience := baseIDClaims()
	wrongAudience["aud"] = "someone-else"
	expired := baseIDClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	wrongIssuer := baseIDClaims()
	wrongIssuer["iss"] = "https://accounts.example.com"

	cases := map[string]string{
		"foreign key":    signIDToken(t, otherKey, baseIDClaims()),
		"wrong audience": signIDToken(t, key, wrongAudience),
		"expired":        signIDToken(t, key, expired),
		"wrong issuer":   signIDToken(t, key, wrongIssuer),
		"garbage":        "not.a.jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := verifier.Verify(context.Background(), token)
			assert.ErrorIs(t, err, ErrSocialTokenRejected)
		})
	}
}
