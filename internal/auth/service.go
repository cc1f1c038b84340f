package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/nadajinny/GROO/internal/apperror"
	"github.com/nadajinny/GROO/internal/observability"
)

const (
	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	minPasswordLength    = 8
	maxPasswordLength    = 64
	maxDisplayNameLength = 60
	maxEmailLength       = 254
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type PrincipalStore interface {
	FindByEmail(ctx context.Context, email string) (Principal, error)
	FindByID(ctx context.Context, id string) (Principal, error)
	CreatePrincipal(ctx context.Context, p Principal) (Principal, error)
}

type RefreshLedger interface {
	CreateRefreshToken(ctx context.Context, principalID, rawToken string, expiresAt time.Time) error
	FindRefreshToken(ctx context.Context, rawToken string) (RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string) error
}

type AdminStore interface {
	UpsertAdmin(ctx context.Context, email, passwordHash string) error
}

type Blacklister interface {
	Blacklist(ctx context.Context, token string, ttl time.Duration)
}

type Service struct {
	principals PrincipalStore
	ledger     RefreshLedger
	codec      *Codec
	blacklist  Blacklister
	verifiers  map[Provider]SocialVerifier
	merge      MergePolicy
	logger     *observability.Logger
	now        func() time.Time

	// compared against on unknown emails so both login failures cost a bcrypt round
	dummyHash []byte
}

func NewService(principals PrincipalStore, ledger RefreshLedger, codec *Codec, blacklist Blacklister, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.Discard()
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("groo-dummy-password"), bcrypt.DefaultCost)

	return &Service{
		principals: principals,
		ledger:     ledger,
		codec:      codec,
		blacklist:  blacklist,
		verifiers:  make(map[Provider]SocialVerifier),
		merge:      MergeByEmail{},
		logger:     logger,
		now:        time.Now,
		dummyHash:  dummy,
	}
}

func (s *Service) WithSocialVerifier(provider Provider, verifier SocialVerifier) {
	if verifier != nil {
		s.verifiers[provider] = verifier
	}
}

func (s *Service) WithMergePolicy(policy MergePolicy) {
	if policy != nil {
		s.merge = policy
	}
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (Tokens, error) {
	email := normalizeEmail(input.Email)
	displayName := strings.TrimSpace(input.DisplayName)
	if err := validateRegistration(email, input.Password, displayName); err != nil {
		return Tokens{}, err
	}

	if _, err := s.principals.FindByEmail(ctx, email); err == nil {
		observability.AuthEvents.WithLabelValues("register", "email_taken").Inc()
		return Tokens{}, apperror.ErrEmailAlreadyExists
	} else if !errors.Is(err, ErrPrincipalMissing) {
		return Tokens{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return Tokens{}, fmt.Errorf("hash password: %w", err)
	}

	principal, err := s.principals.CreatePrincipal(ctx, Principal{
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		Role:         RoleUser,
		Status:       StatusActive,
		Provider:     ProviderLocal,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			observability.AuthEvents.WithLabelValues("register", "email_taken").Inc()
			return Tokens{}, apperror.ErrEmailAlreadyExists
		}
		return Tokens{}, err
	}

	s.logger.Info("principal_registered", map[string]any{"principal_id": principal.ID})
	observability.AuthEvents.WithLabelValues("register", "success").Inc()
	return s.issueTokens(ctx, principal)
}

// Login fails with the same error for an unknown email and a wrong password.
// The password is checked before the account status.
func (s *Service) Login(ctx context.Context, email, password string) (Tokens, error) {
	email = normalizeEmail(email)

	principal, err := s.principals.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrPrincipalMissing) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			observability.AuthEvents.WithLabelValues("login", "invalid_credentials").Inc()
			return Tokens{}, apperror.ErrInvalidCredentials
		}
		return Tokens{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(principal.PasswordHash), []byte(password)); err != nil {
		observability.AuthEvents.WithLabelValues("login", "invalid_credentials").Inc()
		return Tokens{}, apperror.ErrInvalidCredentials
	}

	if !principal.Active() {
		observability.AuthEvents.WithLabelValues("login", "deactivated").Inc()
		return Tokens{}, apperror.ErrForbiddenOperation.WithMessage("account is deactivated")
	}

	observability.AuthEvents.WithLabelValues("login", "success").Inc()
	return s.issueTokens(ctx, principal)
}

func (s *Service) LoginWithGoogle(ctx context.Context, idToken string) (Tokens, error) {
	return s.LoginWithSocial(ctx, ProviderGoogle, idToken)
}

func (s *Service) LoginWithFirebase(ctx context.Context, idToken string) (Tokens, error) {
	return s.LoginWithSocial(ctx, ProviderFirebase, idToken)
}

func (s *Service) LoginWithSocial(ctx context.Context, provider Provider, idToken string) (Tokens, error) {
	operation := "social_" + strings.ToLower(string(provider))

	verifier, ok := s.verifiers[provider]
	if !ok {
		observability.AuthEvents.WithLabelValues(operation, "not_configured").Inc()
		return Tokens{}, apperror.ErrSocialLoginFailure.WithMessage("social provider is not configured")
	}

	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return Tokens{}, apperror.ErrInvalidSocialToken
	}

	profile, err := verifier.Verify(ctx, idToken)
	if err != nil {
		if errors.Is(err, ErrSocialTokenRejected) {
			observability.AuthEvents.WithLabelValues(operation, "rejected").Inc()
			return Tokens{}, apperror.ErrInvalidSocialToken
		}
		s.logger.Warn("social_verify_failed", map[string]any{"provider": string(provider), "error": err.Error()})
		observability.AuthEvents.WithLabelValues(operation, "provider_failure").Inc()
		return Tokens{}, apperror.ErrSocialLoginFailure.Wrap(err)
	}

	email := normalizeEmail(profile.Email)
	if email == "" {
		observability.AuthEvents.WithLabelValues(operation, "missing_email").Inc()
		return Tokens{}, apperror.ErrInvalidSocialToken.WithMessage("social token has no verified email")
	}

	principal, err := s.resolveSocialPrincipal(ctx, email, profile)
	if err != nil {
		return Tokens{}, err
	}
	if !principal.Active() {
		observability.AuthEvents.WithLabelValues(operation, "deactivated").Inc()
		return Tokens{}, apperror.ErrForbiddenOperation.WithMessage("account is deactivated")
	}

	observability.AuthEvents.WithLabelValues(operation, "success").Inc()
	return s.issueTokens(ctx, principal)
}

func (s *Service) resolveSocialPrincipal(ctx context.Context, email string, profile SocialProfile) (Principal, error) {
	existing, err := s.principals.FindByEmail(ctx, email)
	if err == nil {
		if !s.merge.CanMerge(existing, profile) {
			return Principal{}, apperror.ErrSocialLoginFailure.WithMessage("email is registered with another sign-in method")
		}
		return existing, nil
	}
	if !errors.Is(err, ErrPrincipalMissing) {
		return Principal{}, err
	}

	unusable, err := randomToken(32)
	if err != nil {
		return Principal{}, fmt.Errorf("generate placeholder password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(unusable), bcrypt.DefaultCost)
	if err != nil {
		return Principal{}, fmt.Errorf("hash placeholder password: %w", err)
	}

	displayName := profile.DisplayName
	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		displayName = string([]rune(displayName)[:maxDisplayNameLength])
	}

	principal, err := s.principals.CreatePrincipal(ctx, Principal{
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		Role:         RoleUser,
		Status:       StatusActive,
		Provider:     profile.Provider,
		ProviderID:   profile.Subject,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			// lost a race with a concurrent first login for the same email
			existing, findErr := s.principals.FindByEmail(ctx, email)
			if findErr != nil {
				return Principal{}, findErr
			}
			if !s.merge.CanMerge(existing, profile) {
				return Principal{}, apperror.ErrSocialLoginFailure.WithMessage("email is registered with another sign-in method")
			}
			return existing, nil
		}
		return Principal{}, err
	}

	s.logger.Info("principal_registered", map[string]any{"principal_id": principal.ID, "provider": string(profile.Provider)})
	return principal, nil
}

// Refresh issues a new pair. The presented refresh token stays valid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	record, err := s.lookupRefresh(ctx, refreshToken)
	if err != nil {
		observability.AuthEvents.WithLabelValues("refresh", "rejected").Inc()
		return Tokens{}, err
	}
	if err := record.Validate(s.now()); err != nil {
		observability.AuthEvents.WithLabelValues("refresh", "rejected").Inc()
		return Tokens{}, err
	}

	observability.AuthEvents.WithLabelValues("refresh", "success").Inc()
	return s.issueTokens(ctx, record.Principal)
}

// Logout revokes the refresh token and, when given, blacklists the access
// token for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context, refreshToken, accessToken string) error {
	record, err := s.lookupRefresh(ctx, refreshToken)
	if err != nil {
		return err
	}

	if err := s.ledger.RevokeRefreshToken(ctx, record.ID); err != nil {
		return err
	}

	accessToken = strings.TrimSpace(accessToken)
	if accessToken != "" && s.blacklist != nil {
		s.blacklist.Blacklist(ctx, accessToken, s.codec.RemainingValidity(accessToken))
	}

	s.logger.Info("principal_logged_out", map[string]any{"principal_id": record.PrincipalID})
	observability.AuthEvents.WithLabelValues("logout", "success").Inc()
	return nil
}

// BootstrapAdmin makes sure an ADMIN principal exists for email. Both values
// empty is a no-op.
func (s *Service) BootstrapAdmin(ctx context.Context, store AdminStore, email, password string) error {
	email = normalizeEmail(email)
	password = strings.TrimSpace(password)

	if email == "" && password == "" {
		return nil
	}
	if email == "" || password == "" {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD are required together")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	return store.UpsertAdmin(ctx, email, string(hash))
}

func (s *Service) lookupRefresh(ctx context.Context, refreshToken string) (RefreshToken, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return RefreshToken{}, apperror.ErrRefreshTokenNotFound
	}

	record, err := s.ledger.FindRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenMissing) {
			return RefreshToken{}, apperror.ErrRefreshTokenNotFound
		}
		return RefreshToken{}, err
	}
	return record, nil
}

func (s *Service) issueTokens(ctx context.Context, principal Principal) (Tokens, error) {
	access, expiresIn, err := s.codec.IssueAccess(principal)
	if err != nil {
		return Tokens{}, err
	}

	refresh, expiresAt, err := s.codec.IssueRefresh(principal)
	if err != nil {
		return Tokens{}, err
	}
	if err := s.ledger.CreateRefreshToken(ctx, principal.ID, refresh, expiresAt); err != nil {
		return Tokens{}, err
	}

	return Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	}, nil
}

func validateRegistration(email, password, displayName string) error {
	switch {
	case email == "":
		return apperror.Validation("email is required")
	case len(email) > maxEmailLength || !emailRegex.MatchString(email):
		return apperror.Validation("email format is invalid")
	}

	passwordLength := utf8.RuneCountInString(password)
	if strings.TrimSpace(password) == "" || passwordLength < minPasswordLength || passwordLength > maxPasswordLength {
		return apperror.Validation("password must be between 8 and 64 characters")
	}

	if displayName == "" {
		return apperror.Validation("display name is required")
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return apperror.Validation("display name must be at most 60 characters")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
