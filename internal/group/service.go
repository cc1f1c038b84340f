package group

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nadajinny/GROO/internal/apperror"
	"github.com/nadajinny/GROO/internal/auth"
	"github.com/nadajinny/GROO/internal/authz"
	"github.com/nadajinny/GROO/internal/observability"
)

const maxInvitationAttempts = 8

type Store interface {
	authz.MembershipStore
	CreateWithOwner(ctx context.Context, g authz.Group) (authz.Group, error)
	FindGroup(ctx context.Context, id string) (authz.Group, error)
	UpdateGroup(ctx context.Context, id string, input UpdateInput) (authz.Group, error)
	InvitationCodeExists(ctx context.Context, code string) (bool, error)
	SetInvitationCode(ctx context.Context, id, code string) error
	FindMembershipByID(ctx context.Context, id string) (authz.Membership, error)
	ListMembers(ctx context.Context, groupID string) ([]authz.Membership, error)
	AddMembership(ctx context.Context, groupID, principalID string, role authz.GroupRole) (authz.Membership, error)
	DeleteMembership(ctx context.Context, id string) error
	ListForPrincipal(ctx context.Context, principalID string) ([]Summary, error)
}

type PrincipalLookup interface {
	FindByEmail(ctx context.Context, email string) (auth.Principal, error)
}

type Service struct {
	store      Store
	principals PrincipalLookup
	gate       *authz.Gate
	logger     *observability.Logger
	newCode    func() string
}

func NewService(store Store, principals PrincipalLookup, gate *authz.Gate, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.Discard()
	}
	return &Service{
		store:      store,
		principals: principals,
		gate:       gate,
		logger:     logger,
		newCode:    generateInvitationCode,
	}
}

func (s *Service) Create(ctx context.Context, principalID string, input CreateInput) (Detail, error) {
	name, description, err := validateGroupFields(input.Name, input.Description)
	if err != nil {
		return Detail{}, err
	}

	code, err := s.uniqueInvitationCode(ctx)
	if err != nil {
		return Detail{}, err
	}

	g, err := s.store.CreateWithOwner(ctx, authz.Group{
		Name:           name,
		Description:    description,
		OwnerID:        principalID,
		InvitationCode: code,
	})
	if err != nil {
		return Detail{}, fmt.Errorf("create group: %w", err)
	}

	s.logger.Info("group created", map[string]any{"group_id": g.ID, "owner_id": principalID})
	return s.detail(ctx, g, authz.RoleOwner)
}

func (s *Service) ListMine(ctx context.Context, principalID string) ([]Summary, error) {
	groups, err := s.store.ListForPrincipal(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

func (s *Service) Get(ctx context.Context, groupID, principalID string) (Detail, error) {
	g, err := s.findGroup(ctx, groupID)
	if err != nil {
		return Detail{}, err
	}
	m, err := s.gate.RequireMember(ctx, groupID, principalID)
	if err != nil {
		return Detail{}, err
	}
	return s.detail(ctx, g, m.Role)
}

func (s *Service) Update(ctx context.Context, groupID, principalID string, input UpdateInput) (Detail, error) {
	if _, err := s.findGroup(ctx, groupID); err != nil {
		return Detail{}, err
	}
	m, err := s.gate.Authorize(ctx, groupID, principalID, authz.ActionUpdateSettings)
	if err != nil {
		return Detail{}, err
	}

	name, description, err := validateGroupFields(input.Name, input.Description)
	if err != nil {
		return Detail{}, err
	}

	g, err := s.store.UpdateGroup(ctx, groupID, UpdateInput{Name: name, Description: description, Archived: input.Archived})
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			return Detail{}, apperror.ErrGroupNotFound
		}
		return Detail{}, fmt.Errorf("update group: %w", err)
	}
	return s.detail(ctx, g, m.Role)
}

func (s *Service) Members(ctx context.Context, groupID, principalID string) ([]authz.Membership, error) {
	if _, err := s.findGroup(ctx, groupID); err != nil {
		return nil, err
	}
	if _, err := s.gate.RequireMember(ctx, groupID, principalID); err != nil {
		return nil, err
	}

	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

func (s *Service) AddMember(ctx context.Context, groupID, principalID string, input AddMemberInput) (authz.Membership, error) {
	if _, err := s.findGroup(ctx, groupID); err != nil {
		return authz.Membership{}, err
	}
	actor, err := s.gate.Authorize(ctx, groupID, principalID, authz.ActionManageMembers)
	if err != nil {
		return authz.Membership{}, err
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return authz.Membership{}, apperror.Validation("email is required")
	}
	target, err := s.principals.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, auth.ErrPrincipalMissing) {
			return authz.Membership{}, apperror.ErrUserNotFound
		}
		return authz.Membership{}, fmt.Errorf("find user: %w", err)
	}

	if _, err := s.store.FindMembership(ctx, groupID, target.ID); err == nil {
		return authz.Membership{}, apperror.ErrGroupMemberAlreadyExists
	} else if !errors.Is(err, authz.ErrNotFound) {
		return authz.Membership{}, fmt.Errorf("find membership: %w", err)
	}

	role := authz.RoleMember
	if strings.TrimSpace(input.Role) != "" {
		parsed, ok := authz.ParseGroupRole(strings.ToUpper(strings.TrimSpace(input.Role)))
		if !ok {
			return authz.Membership{}, apperror.Validation("role must be OWNER, MANAGER or MEMBER")
		}
		role = parsed
	}
	if err := authz.CanAssignRole(actor.Role, role); err != nil {
		return authz.Membership{}, err
	}

	m, err := s.addMembership(ctx, groupID, target.ID, role)
	if err != nil {
		return authz.Membership{}, err
	}
	m.Email = target.Email
	m.DisplayName = target.DisplayName

	s.logger.Info("group member added", map[string]any{"group_id": groupID, "user_id": target.ID, "role": string(role)})
	return m, nil
}

func (s *Service) RemoveMember(ctx context.Context, groupID, membershipID, principalID string) error {
	if _, err := s.findGroup(ctx, groupID); err != nil {
		return err
	}
	actor, err := s.gate.Authorize(ctx, groupID, principalID, authz.ActionManageMembers)
	if err != nil {
		return err
	}

	target, err := s.store.FindMembershipByID(ctx, membershipID)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			return apperror.ErrGroupMemberNotFound
		}
		return fmt.Errorf("find membership: %w", err)
	}
	if target.GroupID != groupID {
		return apperror.ErrGroupMemberNotFound
	}
	if err := authz.CanRemove(actor.Role, target.Role); err != nil {
		return err
	}

	if err := s.store.DeleteMembership(ctx, membershipID); err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			return apperror.ErrGroupMemberNotFound
		}
		return fmt.Errorf("delete membership: %w", err)
	}

	s.logger.Info("group member removed", map[string]any{"group_id": groupID, "membership_id": membershipID})
	return nil
}

func (s *Service) Join(ctx context.Context, principalID string, input JoinInput) (Detail, error) {
	code := authz.NormalizeInvitationCode(input.InvitationCode)
	if n := len(code); n < 8 || n > 32 {
		return Detail{}, apperror.Validation("invitationCode must be 8 to 32 characters")
	}

	g, err := s.gate.CheckJoin(ctx, code, principalID)
	if err != nil {
		return Detail{}, err
	}
	if _, err := s.addMembership(ctx, g.ID, principalID, authz.RoleMember); err != nil {
		return Detail{}, err
	}

	s.logger.Info("group joined", map[string]any{"group_id": g.ID, "user_id": principalID})
	return s.detail(ctx, g, authz.RoleMember)
}

func (s *Service) RegenerateInvitation(ctx context.Context, groupID, principalID string) (Detail, error) {
	if _, err := s.findGroup(ctx, groupID); err != nil {
		return Detail{}, err
	}
	m, err := s.gate.Authorize(ctx, groupID, principalID, authz.ActionRegenerateInvitation)
	if err != nil {
		return Detail{}, err
	}

	code, err := s.uniqueInvitationCode(ctx)
	if err != nil {
		return Detail{}, err
	}
	if err := s.store.SetInvitationCode(ctx, groupID, code); err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			return Detail{}, apperror.ErrGroupNotFound
		}
		return Detail{}, fmt.Errorf("set invitation code: %w", err)
	}

	g, err := s.findGroup(ctx, groupID)
	if err != nil {
		return Detail{}, err
	}
	return s.detail(ctx, g, m.Role)
}

func (s *Service) addMembership(ctx context.Context, groupID, principalID string, role authz.GroupRole) (authz.Membership, error) {
	m, err := s.store.AddMembership(ctx, groupID, principalID, role)
	if err != nil {
		if errors.Is(err, ErrMembershipExists) {
			return authz.Membership{}, apperror.ErrGroupMemberAlreadyExists
		}
		return authz.Membership{}, fmt.Errorf("add membership: %w", err)
	}
	return m, nil
}

func (s *Service) findGroup(ctx context.Context, groupID string) (authz.Group, error) {
	g, err := s.store.FindGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			return authz.Group{}, apperror.ErrGroupNotFound
		}
		return authz.Group{}, fmt.Errorf("find group: %w", err)
	}
	return g, nil
}

func (s *Service) detail(ctx context.Context, g authz.Group, role authz.GroupRole) (Detail, error) {
	members, err := s.store.ListMembers(ctx, g.ID)
	if err != nil {
		return Detail{}, fmt.Errorf("list members: %w", err)
	}
	return Detail{Group: g, MyRole: role, MemberCount: int64(len(members)), Members: members}, nil
}

func (s *Service) uniqueInvitationCode(ctx context.Context) (string, error) {
	for range maxInvitationAttempts {
		code := s.newCode()
		exists, err := s.store.InvitationCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a unique invitation code")
}

func validateGroupFields(name, description string) (string, string, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" {
		return "", "", apperror.Validation("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", "", apperror.Validation(fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return "", "", apperror.Validation(fmt.Sprintf("description must be at most %d characters", maxDescriptionLength))
	}
	return name, description, nil
}

// generateInvitationCode returns 16 uppercase hex characters.
func generateInvitationCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:invitationCodeLength])
}
