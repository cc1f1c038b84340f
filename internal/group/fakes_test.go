package group

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nadajinny/GROO/internal/auth"
	"github.com/nadajinny/GROO/internal/authz"
)

type memoryStore struct {
	mu          sync.Mutex
	groups      map[string]authz.Group
	memberships map[string]authz.Membership
	users       map[string]auth.Principal
	seq         int
	clock       time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		groups:      make(map[string]authz.Group),
		memberships: make(map[string]authz.Membership),
		users:       make(map[string]auth.Principal),
		clock:       time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *memoryStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memoryStore) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memoryStore) addUser(id, email, name string) auth.Principal {
	p := auth.Principal{ID: id, Email: email, DisplayName: name, Role: auth.RoleUser, Status: auth.StatusActive}
	m.users[email] = p
	return p
}

func (m *memoryStore) FindByEmail(_ context.Context, email string) (auth.Principal, error) {
	p, ok := m.users[email]
	if !ok {
		return auth.Principal{}, auth.ErrPrincipalMissing
	}
	return p, nil
}

func (m *memoryStore) userByID(id string) auth.Principal {
	for _, p := range m.users {
		if p.ID == id {
			return p
		}
	}
	return auth.Principal{}
}

func (m *memoryStore) CreateWithOwner(_ context.Context, g authz.Group) (authz.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	g.ID = m.nextID("g")
	g.Status = authz.GroupActive
	g.CreatedAt = now
	g.UpdatedAt = now
	m.groups[g.ID] = g

	id := m.nextID("m")
	m.memberships[id] = authz.Membership{ID: id, GroupID: g.ID, PrincipalID: g.OwnerID, Role: authz.RoleOwner, JoinedAt: now}
	return g, nil
}

func (m *memoryStore) FindGroup(_ context.Context, id string) (authz.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return authz.Group{}, authz.ErrNotFound
	}
	return g, nil
}

func (m *memoryStore) FindGroupByInvitationCode(_ context.Context, code string) (authz.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groups {
		if g.InvitationCode == code {
			return g, nil
		}
	}
	return authz.Group{}, authz.ErrNotFound
}

func (m *memoryStore) InvitationCodeExists(ctx context.Context, code string) (bool, error) {
	_, err := m.FindGroupByInvitationCode(ctx, code)
	return err == nil, nil
}

func (m *memoryStore) UpdateGroup(_ context.Context, id string, input UpdateInput) (authz.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return authz.Group{}, authz.ErrNotFound
	}
	g.Name = input.Name
	g.Description = input.Description
	g.Status = authz.GroupActive
	if input.Archived {
		g.Status = authz.GroupArchived
	}
	g.UpdatedAt = m.tick()
	m.groups[id] = g
	return g, nil
}

func (m *memoryStore) SetInvitationCode(_ context.Context, id, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return authz.ErrNotFound
	}
	g.InvitationCode = code
	m.groups[id] = g
	return nil
}

func (m *memoryStore) FindMembership(_ context.Context, groupID, principalID string) (authz.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ms := range m.memberships {
		if ms.GroupID == groupID && ms.PrincipalID == principalID {
			return m.withUser(ms), nil
		}
	}
	return authz.Membership{}, authz.ErrNotFound
}

func (m *memoryStore) FindMembershipByID(_ context.Context, id string) (authz.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.memberships[id]
	if !ok {
		return authz.Membership{}, authz.ErrNotFound
	}
	return m.withUser(ms), nil
}

func (m *memoryStore) ListMembers(_ context.Context, groupID string) ([]authz.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := make([]authz.Membership, 0)
	for _, ms := range m.memberships {
		if ms.GroupID == groupID {
			members = append(members, m.withUser(ms))
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Role.Rank() != members[j].Role.Rank() {
			return members[i].Role.Rank() < members[j].Role.Rank()
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, nil
}

func (m *memoryStore) AddMembership(_ context.Context, groupID, principalID string, role authz.GroupRole) (authz.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ms := range m.memberships {
		if ms.GroupID == groupID && ms.PrincipalID == principalID {
			return authz.Membership{}, ErrMembershipExists
		}
	}
	ms := authz.Membership{ID: m.nextID("m"), GroupID: groupID, PrincipalID: principalID, Role: role, JoinedAt: m.tick()}
	m.memberships[ms.ID] = ms
	return ms, nil
}

func (m *memoryStore) DeleteMembership(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.memberships[id]; !ok {
		return authz.ErrNotFound
	}
	delete(m.memberships, id)
	return nil
}

func (m *memoryStore) ListForPrincipal(_ context.Context, principalID string) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Summary, 0)
	for _, ms := range m.memberships {
		if ms.PrincipalID != principalID {
			continue
		}
		g := m.groups[ms.GroupID]
		var count int64
		for _, other := range m.memberships {
			if other.GroupID == g.ID {
				count++
			}
		}
		out = append(out, Summary{ID: g.ID, Name: g.Name, Description: g.Description, Status: g.Status, MyRole: ms.Role, MemberCount: count, CreatedAt: g.CreatedAt})
	}
	return out, nil
}

func (m *memoryStore) withUser(ms authz.Membership) authz.Membership {
	p := m.userByID(ms.PrincipalID)
	ms.Email = p.Email
	ms.DisplayName = p.DisplayName
	return ms
}

// ProjectGroupID and TaskGroupID satisfy authz.ResourceResolver; groups have
// no projects in these tests.
func (m *memoryStore) ProjectGroupID(context.Context, string) (string, error) {
	return "", authz.ErrNotFound
}

func (m *memoryStore) TaskGroupID(context.Context, string) (string, error) {
	return "", authz.ErrNotFound
}
