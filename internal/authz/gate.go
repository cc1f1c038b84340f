package authz

import (
	"context"
	"errors"
	"strings"

	"github.com/nadajinny/GROO/internal/apperror"
)

type MembershipStore interface {
	FindMembership(ctx context.Context, groupID, principalID string) (Membership, error)
	FindGroupByInvitationCode(ctx context.Context, code string) (Group, error)
}

// ResourceResolver maps projects and tasks to the group that owns them.
type ResourceResolver interface {
	ProjectGroupID(ctx context.Context, projectID string) (string, error)
	TaskGroupID(ctx context.Context, taskID string) (string, error)
}

// Gate answers every group-scoped authorization question. Callers must have
// authenticated the principal already.
type Gate struct {
	memberships MembershipStore
	resources   ResourceResolver
}

func NewGate(memberships MembershipStore, resources ResourceResolver) *Gate {
	return &Gate{memberships: memberships, resources: resources}
}

func (g *Gate) RequireMember(ctx context.Context, groupID, principalID string) (Membership, error) {
	return g.membership(ctx, groupID, principalID, apperror.ErrGroupAccessDenied)
}

// Authorize requires membership and a role allowed to perform action.
func (g *Gate) Authorize(ctx context.Context, groupID, principalID string, action Action) (Membership, error) {
	m, err := g.RequireMember(ctx, groupID, principalID)
	if err != nil {
		return Membership{}, err
	}
	if !Allows(m.Role, action) {
		return Membership{}, apperror.ErrForbiddenOperation
	}
	return m, nil
}

func Allows(role GroupRole, action Action) bool {
	switch action {
	case ActionView:
		return role == RoleOwner || role == RoleManager || role == RoleMember
	case ActionUpdateSettings, ActionManageMembers:
		switch role {
		case RoleOwner, RoleManager:
			return true
		case RoleMember:
			return false
		default:
			return false
		}
	case ActionRegenerateInvitation:
		return role == RoleOwner
	default:
		return false
	}
}

// CanAssignRole reports whether actor may grant role to someone else. Only
// owners hand out MANAGER or OWNER.
func CanAssignRole(actor, role GroupRole) error {
	if !Allows(actor, ActionManageMembers) {
		return apperror.ErrForbiddenOperation
	}
	switch role {
	case RoleMember:
		return nil
	case RoleManager, RoleOwner:
		if actor == RoleOwner {
			return nil
		}
		return apperror.ErrForbiddenOperation
	default:
		return apperror.Validation("unknown group role")
	}
}

// CanRemove reports whether actor may remove a member holding target. Owners
// cannot be removed by anyone.
func CanRemove(actor, target GroupRole) error {
	if !Allows(actor, ActionManageMembers) {
		return apperror.ErrForbiddenOperation
	}
	switch target {
	case RoleOwner:
		return apperror.ErrForbiddenOperation
	case RoleManager, RoleMember:
		return nil
	default:
		return apperror.ErrForbiddenOperation
	}
}

// RequireGroupProjectAccess guards listing and creating projects in a group.
func (g *Gate) RequireGroupProjectAccess(ctx context.Context, groupID, principalID string) (Membership, error) {
	return g.membership(ctx, groupID, principalID, apperror.ErrProjectAccessDenied)
}

// RequireProjectAccess resolves the project's group and requires membership
// in it. It returns the owning group id.
func (g *Gate) RequireProjectAccess(ctx context.Context, projectID, principalID string) (string, error) {
	groupID, err := g.resources.ProjectGroupID(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", apperror.ErrProjectNotFound
		}
		return "", err
	}
	if _, err := g.membership(ctx, groupID, principalID, apperror.ErrProjectAccessDenied); err != nil {
		return "", err
	}
	return groupID, nil
}

// RequireTaskAccess resolves task → project → group and requires membership.
func (g *Gate) RequireTaskAccess(ctx context.Context, taskID, principalID string) (string, error) {
	groupID, err := g.resources.TaskGroupID(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", apperror.ErrTaskNotFound
		}
		return "", err
	}
	if _, err := g.membership(ctx, groupID, principalID, apperror.ErrProjectAccessDenied); err != nil {
		return "", err
	}
	return groupID, nil
}

// CheckJoin validates a join by invitation code. The first failing check
// wins: unknown code, archived group, existing membership.
func (g *Gate) CheckJoin(ctx context.Context, code, principalID string) (Group, error) {
	normalized := NormalizeInvitationCode(code)
	if normalized == "" {
		return Group{}, apperror.ErrInvitationInvalid
	}

	group, err := g.memberships.FindGroupByInvitationCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Group{}, apperror.ErrInvitationInvalid
		}
		return Group{}, err
	}
	if group.Status == GroupArchived {
		return Group{}, apperror.ErrGroupArchived
	}

	_, err = g.memberships.FindMembership(ctx, group.ID, principalID)
	switch {
	case err == nil:
		return Group{}, apperror.ErrGroupMemberAlreadyExists
	case errors.Is(err, ErrNotFound):
		return group, nil
	default:
		return Group{}, err
	}
}

func NormalizeInvitationCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (g *Gate) membership(ctx context.Context, groupID, principalID string, denied *apperror.Error) (Membership, error) {
	m, err := g.memberships.FindMembership(ctx, groupID, principalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Membership{}, denied
		}
		return Membership{}, err
	}
	return m, nil
}
