package group

import (
	"time"

	"github.com/nadajinny/GROO/internal/authz"
)

const (
	maxNameLength        = 40
	maxDescriptionLength = 200
	invitationCodeLength = 16
)

type Summary struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Status      authz.GroupStatus `json:"status"`
	MyRole      authz.GroupRole   `json:"myRole"`
	MemberCount int64             `json:"memberCount"`
	CreatedAt   time.Time         `json:"createdAt"`
}

type Detail struct {
	authz.Group
	MyRole      authz.GroupRole    `json:"myRole"`
	MemberCount int64              `json:"memberCount"`
	Members     []authz.Membership `json:"members"`
}

type CreateInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type UpdateInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Archived    bool   `json:"archived"`
}

type AddMemberInput struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type JoinInput struct {
	InvitationCode string `json:"invitationCode"`
}
