package authz

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadajinny/GROO/internal/apperror"
)

type fakeStore struct {
	memberships map[string]Membership
	groups      map[string]Group
	projects    map[string]string
	tasks       map[string]string
	err         error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		memberships: make(map[string]Membership),
		groups:      make(map[string]Group),
		projects:    make(map[string]string),
		tasks:       make(map[string]string),
	}
}

func (f *fakeStore) add(groupID, principalID string, role GroupRole) {
	f.memberships[groupID+"/"+principalID] = Membership{ID: fmt.Sprintf("m-%s-%s", groupID, principalID), GroupID: groupID, PrincipalID: principalID, Role: role}
}

func (f *fakeStore) FindMembership(_ context.Context, groupID, principalID string) (Membership, error) {
	if f.err != nil {
		return Membership{}, f.err
	}
	m, ok := f.memberships[groupID+"/"+principalID]
	if !ok {
		return Membership{}, ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) FindGroupByInvitationCode(_ context.Context, code string) (Group, error) {
	for _, g := range f.groups {
		if g.InvitationCode == code {
			return g, nil
		}
	}
	return Group{}, ErrNotFound
}

func (f *fakeStore) ProjectGroupID(_ context.Context, projectID string) (string, error) {
	groupID, ok := f.projects[projectID]
	if !ok {
		return "", ErrNotFound
	}
	return groupID, nil
}

func (f *fakeStore) TaskGroupID(_ context.Context, taskID string) (string, error) {
	groupID, ok := f.tasks[taskID]
	if !ok {
		return "", ErrNotFound
	}
	return groupID, nil
}

func newGateFixture() (*Gate, *fakeStore) {
	store := newFakeStore()
	store.add("g1", "owner", RoleOwner)
	store.add("g1", "manager", RoleManager)
	store.add("g1", "member", RoleMember)
	store.groups["g1"] = Group{ID: "g1", InvitationCode: "ABCDEF0123456789", Status: GroupActive}
	store.groups["g2"] = Group{ID: "g2", InvitationCode: "ARCHIVED00000000", Status: GroupArchived}
	store.projects["p1"] = "g1"
	store.tasks["t1"] = "g1"
	return NewGate(store, store), store
}

func TestRoleActionMatrix(t *testing.T) {
	cases := []struct {
		role    GroupRole
		action  Action
		allowed bool
	}{
		{RoleOwner, ActionView, true},
		{RoleManager, ActionView, true},
		{RoleMember, ActionView, true},
		{RoleOwner, ActionUpdateSettings, true},
		{RoleManager, ActionUpdateSettings, true},
		{RoleMember, ActionUpdateSettings, false},
		{RoleOwner, ActionManageMembers, true},
		{RoleManager, ActionManageMembers, true},
		{RoleMember, ActionManageMembers, false},
		{RoleOwner, ActionRegenerateInvitation, true},
		{RoleManager, ActionRegenerateInvitation, false},
		{RoleMember, ActionRegenerateInvitation, false},
		{GroupRole("ADMIN"), ActionView, false},
		{RoleOwner, Action(99), false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s/%s", tc.role, tc.action), func(t *testing.T) {
			assert.Equal(t, tc.allowed, Allows(tc.role, tc.action))
		})
	}
}

func TestAuthorize(t *testing.T) {
	gate, _ := newGateFixture()
	ctx := context.Background()

	_, err := gate.Authorize(ctx, "g1", "stranger", ActionView)
	assert.ErrorIs(t, err, apperror.ErrGroupAccessDenied)

	_, err = gate.Authorize(ctx, "g1", "member", ActionUpdateSettings)
	assert.ErrorIs(t, err, apperror.ErrForbiddenOperation)

	m, err := gate.Authorize(ctx, "g1", "manager", ActionManageMembers)
	require.NoError(t, err)
	assert.Equal(t, RoleManager, m.Role)

	_, err = gate.Authorize(ctx, "g1", "manager", ActionRegenerateInvitation)
	assert.ErrorIs(t, err, apperror.ErrForbiddenOperation)
}

func TestAuthorizePropagatesStoreErrors(t *testing.T) {
	gate, store := newGateFixture()
	store.err = errors.New("db down")

	_, err := gate.RequireMember(context.Background(), "g1", "owner")
	assert.EqualError(t, err, "db down")
}

func TestCanAssignRole(t *testing.T) {
	assert.NoError(t, CanAssignRole(RoleOwner, RoleMember))
	assert.NoError(t, CanAssignRole(RoleOwner, RoleManager))
	assert.NoError(t, CanAssignRole(RoleOwner, RoleOwner))
	assert.NoError(t, CanAssignRole(RoleManager, RoleMember))
	assert.ErrorIs(t, CanAssignRole(RoleManager, RoleManager), apperror.ErrForbiddenOperation)
	assert.ErrorIs(t, CanAssignRole(RoleManager, RoleOwner), apperror.ErrForbiddenOperation)
	assert.ErrorIs(t, CanAssignRole(RoleMember, RoleMember), apperror.ErrForbiddenOperation)
	assert.ErrorIs(t, CanAssignRole(RoleOwner, GroupRole("GUEST")), apperror.ErrValidationFailed)
}

func TestCanRemove(t *testing.T) {
	assert.NoError(t, CanRemove(RoleOwner, RoleManager))
	assert.NoError(t, CanRemove(RoleManager, RoleMember))
	assert.NoError(t, CanRemove(RoleManager, RoleManager))
	assert.ErrorIs(t, CanRemove(RoleOwner, RoleOwner), apperror.ErrForbiddenOperation)
	assert.ErrorIs(t, CanRemove(RoleManager, RoleOwner), apperror.ErrForbiddenOperation)
	assert.ErrorIs(t, CanRemove(RoleMember, RoleMember), apperror.ErrForbiddenOperation)
}

func TestProjectAndTaskAccess(t *testing.T) {
	gate, _ := newGateFixture()
	ctx := context.Background()

	groupID, err := gate.RequireProjectAccess(ctx, "p1", "member")
	require.NoError(t, err)
	assert.Equal(t, "g1", groupID)

	_, err = gate.RequireProjectAccess(ctx, "p1", "stranger")
	assert.ErrorIs(t, err, apperror.ErrProjectAccessDenied)

	_, err = gate.RequireProjectAccess(ctx, "missing", "member")
	assert.ErrorIs(t, err, apperror.ErrProjectNotFound)

	_, err = gate.RequireTaskAccess(ctx, "t1", "stranger")
	assert.ErrorIs(t, err, apperror.ErrProjectAccessDenied)

	_, err = gate.RequireTaskAccess(ctx, "missing", "member")
	assert.ErrorIs(t, err, apperror.ErrTaskNotFound)

	_, err = gate.RequireGroupProjectAccess(ctx, "g1", "stranger")
	assert.ErrorIs(t, err, apperror.ErrProjectAccessDenied)
}

func TestCheckJoinOrdering(t *testing.T) {
	gate, store := newGateFixture()
	ctx := context.Background()

	_, err := gate.CheckJoin(ctx, "unknown", "newcomer")
	assert.ErrorIs(t, err, apperror.ErrInvitationInvalid)

	_, err = gate.CheckJoin(ctx, "   ", "newcomer")
	assert.ErrorIs(t, err, apperror.ErrInvitationInvalid)

	// archived wins over existing membership
	store.add("g2", "member", RoleMember)
	_, err = gate.CheckJoin(ctx, "archived00000000", "member")
	assert.ErrorIs(t, err, apperror.ErrGroupArchived)

	_, err = gate.CheckJoin(ctx, "ABCDEF0123456789", "member")
	assert.ErrorIs(t, err, apperror.ErrGroupMemberAlreadyExists)

	group, err := gate.CheckJoin(ctx, "  abcdef0123456789 ", "newcomer")
	require.NoError(t, err)
	assert.Equal(t, "g1", group.ID)
}

func TestGroupRoleHelpers(t *testing.T) {
	role, ok := ParseGroupRole("MANAGER")
	assert.True(t, ok)
	assert.Equal(t, RoleManager, role)

	_, ok = ParseGroupRole("manager")
	assert.False(t, ok)

	assert.Less(t, RoleOwner.Rank(), RoleManager.Rank())
	assert.Less(t, RoleManager.Rank(), RoleMember.Rank())
}
