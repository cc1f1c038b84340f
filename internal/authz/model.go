package authz

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when the looked-up row does not exist.
var ErrNotFound = errors.New("not found")

type GroupRole string

const (
	RoleOwner   GroupRole = "OWNER"
	RoleManager GroupRole = "MANAGER"
	RoleMember  GroupRole = "MEMBER"
)

func ParseGroupRole(value string) (GroupRole, bool) {
	switch GroupRole(value) {
	case RoleOwner, RoleManager, RoleMember:
		return GroupRole(value), true
	default:
		return "", false
	}
}

// Rank orders roles for listing, owners first.
func (r GroupRole) Rank() int {
	switch r {
	case RoleOwner:
		return 0
	case RoleManager:
		return 1
	case RoleMember:
		return 2
	default:
		return 3
	}
}

type GroupStatus string

const (
	GroupActive   GroupStatus = "ACTIVE"
	GroupArchived GroupStatus = "ARCHIVED"
)

type Group struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	OwnerID        string      `json:"ownerId"`
	InvitationCode string      `json:"invitationCode,omitempty"`
	Status         GroupStatus `json:"status"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

type Membership struct {
	ID          string    `json:"membershipId"`
	GroupID     string    `json:"groupId"`
	PrincipalID string    `json:"userId"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	Role        GroupRole `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
}

type Action int

const (
	ActionView Action = iota
	ActionUpdateSettings
	ActionManageMembers
	ActionRegenerateInvitation
)

func (a Action) String() string {
	switch a {
	case ActionView:
		return "view"
	case ActionUpdateSettings:
		return "update_settings"
	case ActionManageMembers:
		return "manage_members"
	case ActionRegenerateInvitation:
		return "regenerate_invitation"
	default:
		return "unknown"
	}
}
