package auth

import (
	"time"

	"github.com/nadajinny/GROO/internal/apperror"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

func ParseRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleUser, RoleAdmin:
		return Role(value), true
	default:
		return "", false
	}
}

type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusDeactivated Status = "DEACTIVATED"
)

func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusActive, StatusDeactivated:
		return Status(value), true
	default:
		return "", false
	}
}

type Provider string

const (
	ProviderLocal    Provider = "LOCAL"
	ProviderGoogle   Provider = "GOOGLE"
	ProviderFirebase Provider = "FIREBASE"
)

type Principal struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"displayName"`
	Role         Role      `json:"role"`
	Status       Status    `json:"status"`
	Provider     Provider  `json:"provider"`
	ProviderID   string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (p Principal) Active() bool {
	return p.Status == StatusActive
}

type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// RefreshToken is a ledger row. The raw token is never stored, only its hash.
type RefreshToken struct {
	ID          string
	PrincipalID string
	Principal   Principal
	ExpiresAt   time.Time
	RevokedAt   *time.Time
	CreatedAt   time.Time
}

func (t RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Validate reports why the token can no longer be redeemed. Revocation wins
// over expiry.
func (t RefreshToken) Validate(now time.Time) error {
	if t.Revoked() {
		return apperror.ErrRefreshTokenNotFound
	}
	if !now.Before(t.ExpiresAt) {
		return apperror.ErrTokenExpired
	}
	return nil
}

type UserStats struct {
	Total       int64 `json:"total"`
	Active      int64 `json:"active"`
	Deactivated int64 `json:"deactivated"`
	Admins      int64 `json:"admins"`
}

// UserFilter narrows an admin user listing. Zero values match everything.
// Page is zero based.
type UserFilter struct {
	Keyword string
	Role    Role
	Status  Status
	Page    int
	Size    int
}

type UserPage struct {
	Items         []Principal `json:"items"`
	Page          int         `json:"page"`
	Size          int         `json:"size"`
	TotalElements int64       `json:"totalElements"`
	TotalPages    int         `json:"totalPages"`
}
