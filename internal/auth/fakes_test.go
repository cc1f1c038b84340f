package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu         sync.Mutex
	principals map[string]Principal
	tokens     map[string]RefreshToken
	revokes    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		principals: make(map[string]Principal),
		tokens:     make(map[string]RefreshToken),
	}
}

func (m *memoryStore) FindByEmail(_ context.Context, email string) (Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.principals {
		if p.Email == email {
			return p, nil
		}
	}
	return Principal{}, ErrPrincipalMissing
}

func (m *memoryStore) FindByID(_ context.Context, id string) (Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return Principal{}, ErrPrincipalMissing
	}
	return p, nil
}

func (m *memoryStore) CreatePrincipal(_ context.Context, p Principal) (Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.principals {
		if existing.Email == p.Email {
			return Principal{}, ErrEmailTaken
		}
	}
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	m.principals[p.ID] = p
	return p, nil
}

func (m *memoryStore) UpsertAdmin(_ context.Context, email, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.principals {
		if p.Email == email {
			p.Role = RoleAdmin
			p.PasswordHash = passwordHash
			m.principals[id] = p
			return nil
		}
	}
	id := uuid.NewString()
	m.principals[id] = Principal{ID: id, Email: email, PasswordHash: passwordHash, Role: RoleAdmin, Status: StatusActive, Provider: ProviderLocal}
	return nil
}

func (m *memoryStore) setStatus(id string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.principals[id]
	p.Status = status
	m.principals[id] = p
}

func (m *memoryStore) CreateRefreshToken(_ context.Context, principalID, rawToken string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[rawToken] = RefreshToken{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now().UTC(),
	}
	return nil
}

func (m *memoryStore) FindRefreshToken(_ context.Context, rawToken string) (RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[rawToken]
	if !ok {
		return RefreshToken{}, ErrRefreshTokenMissing
	}
	token.Principal = m.principals[token.PrincipalID]
	return token, nil
}

func (m *memoryStore) RevokeRefreshToken(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokes++
	for raw, token := range m.tokens {
		if token.ID == id && token.RevokedAt == nil {
			now := time.Now().UTC()
			token.RevokedAt = &now
			m.tokens[raw] = token
		}
	}
	return nil
}

type blacklistCall struct {
	token string
	ttl   time.Duration
}

type recordingBlacklist struct {
	mu      sync.Mutex
	calls   []blacklistCall
	blocked map[string]bool
}

func newRecordingBlacklist() *recordingBlacklist {
	return &recordingBlacklist{blocked: make(map[string]bool)}
}

func (b *recordingBlacklist) Blacklist(_ context.Context, token string, ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, blacklistCall{token: token, ttl: ttl})
	if token != "" && ttl > 0 {
		b.blocked[token] = true
	}
}

func (b *recordingBlacklist) IsBlacklisted(_ context.Context, token string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blocked[token]
}

type stubVerifier struct {
	profile SocialProfile
	err     error
}

func (s stubVerifier) Verify(context.Context, string) (SocialProfile, error) {
	return s.profile, s.err
}

const testSecret = "0123456789abcdef0123456789abcdef-groo"

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
