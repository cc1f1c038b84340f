package group

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nadajinny/GROO/internal/authz"
)

var ErrMembershipExists = errors.New("membership already exists")

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

const groupColumns = `id, name, description, owner_id, invitation_code, status, created_at, updated_at`

func scanGroup(row interface{ Scan(...any) error }) (authz.Group, error) {
	var g authz.Group
	var description sql.NullString
	err := row.Scan(&g.ID, &g.Name, &description, &g.OwnerID, &g.InvitationCode, &g.Status, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return authz.Group{}, err
	}
	g.Description = description.String
	return g, nil
}

// CreateWithOwner inserts the group and the creator's OWNER membership in one
// transaction.
func (r *Repository) CreateWithOwner(ctx context.Context, g authz.Group) (authz.Group, error) {
	groupID, err := uuid.NewV7()
	if err != nil {
		return authz.Group{}, fmt.Errorf("generate uuid v7: %w", err)
	}
	membershipID, err := uuid.NewV7()
	if err != nil {
		return authz.Group{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := r.now().UTC()
	g.ID = groupID.String()
	g.Status = authz.GroupActive
	g.CreatedAt = now
	g.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return authz.Group{}, fmt.Errorf("begin create group tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO groups (id, name, description, owner_id, invitation_code, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, g.ID, g.Name, g.Description, g.OwnerID, g.InvitationCode, string(g.Status), now); err != nil {
		return authz.Group{}, fmt.Errorf("insert group: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO group_memberships (id, group_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, membershipID.String(), g.ID, g.OwnerID, string(authz.RoleOwner), now); err != nil {
		return authz.Group{}, fmt.Errorf("insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return authz.Group{}, fmt.Errorf("commit create group tx: %w", err)
	}
	return g, nil
}

func (r *Repository) FindGroup(ctx context.Context, id string) (authz.Group, error) {
	g, err := scanGroup(r.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authz.Group{}, authz.ErrNotFound
		}
		return authz.Group{}, fmt.Errorf("query group: %w", err)
	}
	return g, nil
}

func (r *Repository) FindGroupByInvitationCode(ctx context.Context, code string) (authz.Group, error) {
	g, err := scanGroup(r.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups WHERE invitation_code = $1`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authz.Group{}, authz.ErrNotFound
		}
		return authz.Group{}, fmt.Errorf("query group by invitation code: %w", err)
	}
	return g, nil
}

func (r *Repository) InvitationCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM groups WHERE invitation_code = $1)`, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("check invitation code: %w", err)
	}
	return exists, nil
}

func (r *Repository) UpdateGroup(ctx context.Context, id string, input UpdateInput) (authz.Group, error) {
	status := authz.GroupActive
	if input.Archived {
		status = authz.GroupArchived
	}

	g, err := scanGroup(r.db.QueryRowContext(ctx, `
		UPDATE groups
		SET name = $2, description = $3, status = $4, updated_at = $5
		WHERE id = $1
		RETURNING `+groupColumns, id, input.Name, input.Description, string(status), r.now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authz.Group{}, authz.ErrNotFound
		}
		return authz.Group{}, fmt.Errorf("update group: %w", err)
	}
	return g, nil
}

func (r *Repository) SetInvitationCode(ctx context.Context, id, code string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE groups SET invitation_code = $2, updated_at = $3 WHERE id = $1
	`, id, code, r.now().UTC())
	if err != nil {
		return fmt.Errorf("update invitation code: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return authz.ErrNotFound
	}
	return nil
}

const membershipSelect = `
	SELECT m.id, m.group_id, m.user_id, u.email, u.display_name, m.role, m.joined_at
	FROM group_memberships m
	JOIN users u ON u.id = m.user_id
`

func scanMembership(row interface{ Scan(...any) error }) (authz.Membership, error) {
	var m authz.Membership
	err := row.Scan(&m.ID, &m.GroupID, &m.PrincipalID, &m.Email, &m.DisplayName, &m.Role, &m.JoinedAt)
	return m, err
}

func (r *Repository) FindMembership(ctx context.Context, groupID, principalID string) (authz.Membership, error) {
	m, err := scanMembership(r.db.QueryRowContext(ctx, membershipSelect+`WHERE m.group_id = $1 AND m.user_id = $2`, groupID, principalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authz.Membership{}, authz.ErrNotFound
		}
		return authz.Membership{}, fmt.Errorf("query membership: %w", err)
	}
	return m, nil
}

func (r *Repository) FindMembershipByID(ctx context.Context, id string) (authz.Membership, error) {
	m, err := scanMembership(r.db.QueryRowContext(ctx, membershipSelect+`WHERE m.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authz.Membership{}, authz.ErrNotFound
		}
		return authz.Membership{}, fmt.Errorf("query membership by id: %w", err)
	}
	return m, nil
}

// ListMembers returns owners first, then managers, then members, each by
// join time.
func (r *Repository) ListMembers(ctx context.Context, groupID string) ([]authz.Membership, error) {
	rows, err := r.db.QueryContext(ctx, membershipSelect+`
		WHERE m.group_id = $1
		ORDER BY CASE m.role WHEN 'OWNER' THEN 0 WHEN 'MANAGER' THEN 1 ELSE 2 END, m.joined_at ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	members := make([]authz.Membership, 0)
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

func (r *Repository) AddMembership(ctx context.Context, groupID, principalID string, role authz.GroupRole) (authz.Membership, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return authz.Membership{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	m := authz.Membership{ID: id.String(), GroupID: groupID, PrincipalID: principalID, Role: role, JoinedAt: r.now().UTC()}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO group_memberships (id, group_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.GroupID, m.PrincipalID, string(m.Role), m.JoinedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return authz.Membership{}, ErrMembershipExists
		}
		return authz.Membership{}, fmt.Errorf("insert membership: %w", err)
	}
	return m, nil
}

func (r *Repository) DeleteMembership(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM group_memberships WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return authz.ErrNotFound
	}
	return nil
}

func (r *Repository) CountMembers(ctx context.Context, groupID string) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM group_memberships WHERE group_id = $1`, groupID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return count, nil
}

func (r *Repository) ListForPrincipal(ctx context.Context, principalID string) ([]Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.description, g.status, m.role, g.created_at,
			(SELECT COUNT(*) FROM group_memberships c WHERE c.group_id = g.id)
		FROM group_memberships m
		JOIN groups g ON g.id = m.group_id
		WHERE m.user_id = $1
		ORDER BY g.created_at DESC
	`, principalID)
	if err != nil {
		return nil, fmt.Errorf("query groups for user: %w", err)
	}
	defer rows.Close()

	groups := make([]Summary, 0)
	for rows.Next() {
		var s Summary
		var description sql.NullString
		if err := rows.Scan(&s.ID, &s.Name, &description, &s.Status, &s.MyRole, &s.CreatedAt, &s.MemberCount); err != nil {
			return nil, fmt.Errorf("scan group summary: %w", err)
		}
		s.Description = description.String
		groups = append(groups, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group summaries: %w", err)
	}
	return groups, nil
}
