package auth

import (
	"context"
	"errors"
)

// ErrSocialTokenRejected is returned by a SocialVerifier when the identity
// token itself is bad (signature, audience, expiry). Any other verifier error
// is treated as a provider failure.
var ErrSocialTokenRejected = errors.New("social token rejected")

type SocialProfile struct {
	Provider    Provider
	Subject     string
	Email       string
	DisplayName string
}

type SocialVerifier interface {
	Verify(ctx context.Context, idToken string) (SocialProfile, error)
}

// MergePolicy decides whether a social identity may sign in as an existing
// principal that owns the same email.
type MergePolicy interface {
	CanMerge(existing Principal, profile SocialProfile) bool
}

// MergeByEmail links any provider to an existing account with the same email.
type MergeByEmail struct{}

func (MergeByEmail) CanMerge(Principal, SocialProfile) bool {
	return true
}

// SameProviderOnly only reuses accounts created through the same provider.
type SameProviderOnly struct{}

func (SameProviderOnly) CanMerge(existing Principal, profile SocialProfile) bool {
	return existing.Provider == profile.Provider
}

func ParseMergePolicy(value string) MergePolicy {
	switch value {
	case "same-provider":
		return SameProviderOnly{}
	default:
		return MergeByEmail{}
	}
}
