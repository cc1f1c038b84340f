package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

var (
	ErrPrincipalMissing    = errors.New("principal not found")
	ErrEmailTaken          = errors.New("email already taken")
	ErrRefreshTokenMissing = errors.New("refresh token not found")
)

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

const principalColumns = `id, email, password_hash, display_name, role, status, provider, provider_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (Principal, error) {
	var p Principal
	var providerID sql.NullString
	err := row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.DisplayName, &p.Role, &p.Status, &p.Provider, &providerID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Principal{}, err
	}
	p.ProviderID = providerID.String
	return p, nil
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (Principal, error) {
	p, err := scanPrincipal(r.db.QueryRowContext(ctx, `
		SELECT `+principalColumns+`
		FROM users
		WHERE email = $1
	`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Principal{}, ErrPrincipalMissing
		}
		return Principal{}, fmt.Errorf("query user by email: %w", err)
	}
	return p, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (Principal, error) {
	p, err := scanPrincipal(r.db.QueryRowContext(ctx, `
		SELECT `+principalColumns+`
		FROM users
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Principal{}, ErrPrincipalMissing
		}
		return Principal{}, fmt.Errorf("query user by id: %w", err)
	}
	return p, nil
}

// CreatePrincipal inserts p, filling ID and timestamps. A concurrent insert
// of the same email surfaces as ErrEmailTaken.
func (r *Repository) CreatePrincipal(ctx context.Context, p Principal) (Principal, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Principal{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := r.now().UTC()
	p.ID = id.String()
	p.CreatedAt = now
	p.UpdatedAt = now

	var providerID any
	if p.ProviderID != "" {
		providerID = p.ProviderID
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, display_name, role, status, provider, provider_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, p.ID, p.Email, p.PasswordHash, p.DisplayName, string(p.Role), string(p.Status), string(p.Provider), providerID, now)
	if err != nil {
		if isUniqueViolation(err) {
			return Principal{}, ErrEmailTaken
		}
		return Principal{}, fmt.Errorf("insert user: %w", err)
	}

	return p, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status) (Principal, error) {
	p, err := scanPrincipal(r.db.QueryRowContext(ctx, `
		UPDATE users
		SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+principalColumns, id, string(status), r.now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Principal{}, ErrPrincipalMissing
		}
		return Principal{}, fmt.Errorf("update user status: %w", err)
	}
	return p, nil
}

func (r *Repository) UpdateRole(ctx context.Context, id string, role Role) (Principal, error) {
	p, err := scanPrincipal(r.db.QueryRowContext(ctx, `
		UPDATE users
		SET role = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+principalColumns, id, string(role), r.now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Principal{}, ErrPrincipalMissing
		}
		return Principal{}, fmt.Errorf("update user role: %w", err)
	}
	return p, nil
}

const upsertAdminSQL = `
	INSERT INTO users (id, email, password_hash, display_name, role, status, provider, created_at, updated_at)
	VALUES ($1, $2, $3, 'admin', 'ADMIN', 'ACTIVE', 'LOCAL', $4, $4)
	ON CONFLICT (email)
	DO UPDATE SET
		password_hash = EXCLUDED.password_hash,
		role = 'ADMIN',
		updated_at = EXCLUDED.updated_at
`

// UpsertAdmin creates an ADMIN principal for email or promotes and
// re-passwords the existing one. An existing principal keeps its status, so a
// deactivated admin stays deactivated across restarts.
func (r *Repository) UpsertAdmin(ctx context.Context, email, passwordHash string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate uuid v7: %w", err)
	}

	_, err = r.db.ExecContext(ctx, upsertAdminSQL, id.String(), email, passwordHash, r.now().UTC())
	if err != nil {
		return fmt.Errorf("upsert admin user: %w", err)
	}
	return nil
}

func (r *Repository) Stats(ctx context.Context) (UserStats, error) {
	var stats UserStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'ACTIVE'),
			COUNT(*) FILTER (WHERE status = 'DEACTIVATED'),
			COUNT(*) FILTER (WHERE role = 'ADMIN')
		FROM users
	`).Scan(&stats.Total, &stats.Active, &stats.Deactivated, &stats.Admins)
	if err != nil {
		return UserStats{}, fmt.Errorf("query user stats: %w", err)
	}
	return stats, nil
}

const userFilterClause = `
	WHERE ($1 = '' OR email ILIKE '%' || $1 || '%' OR display_name ILIKE '%' || $1 || '%')
		AND ($2 = '' OR role = $2)
		AND ($3 = '' OR status = $3)`

// ListUsers returns one page of users, newest first.
func (r *Repository) ListUsers(ctx context.Context, filter UserFilter) (UserPage, error) {
	args := []any{filter.Keyword, string(filter.Role), string(filter.Status)}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+userFilterClause, args...).Scan(&total); err != nil {
		return UserPage{}, fmt.Errorf("count users: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+principalColumns+`
		FROM users`+userFilterClause+`
		ORDER BY created_at DESC, id DESC
		LIMIT $4 OFFSET $5
	`, append(args, filter.Size, filter.Page*filter.Size)...)
	if err != nil {
		return UserPage{}, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := make([]Principal, 0, filter.Size)
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return UserPage{}, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return UserPage{}, fmt.Errorf("iterate users: %w", err)
	}

	totalPages := 0
	if filter.Size > 0 {
		totalPages = int((total + int64(filter.Size) - 1) / int64(filter.Size))
	}
	return UserPage{
		Items:         items,
		Page:          filter.Page,
		Size:          filter.Size,
		TotalElements: total,
		TotalPages:    totalPages,
	}, nil
}

func (r *Repository) CreateRefreshToken(ctx context.Context, principalID, rawToken string, expiresAt time.Time) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate refresh token id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id.String(), principalID, hashToken(rawToken), expiresAt.UTC(), r.now().UTC())
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// FindRefreshToken loads the ledger row for rawToken with its principal.
func (r *Repository) FindRefreshToken(ctx context.Context, rawToken string) (RefreshToken, error) {
	var token RefreshToken
	var revokedAt sql.NullTime
	var providerID sql.NullString
	p := &token.Principal

	err := r.db.QueryRowContext(ctx, `
		SELECT t.id, t.user_id, t.expires_at, t.revoked_at, t.created_at,
			u.id, u.email, u.password_hash, u.display_name, u.role, u.status, u.provider, u.provider_id, u.created_at, u.updated_at
		FROM refresh_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1
	`, hashToken(rawToken)).Scan(
		&token.ID, &token.PrincipalID, &token.ExpiresAt, &revokedAt, &token.CreatedAt,
		&p.ID, &p.Email, &p.PasswordHash, &p.DisplayName, &p.Role, &p.Status, &p.Provider, &providerID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RefreshToken{}, ErrRefreshTokenMissing
		}
		return RefreshToken{}, fmt.Errorf("query refresh token: %w", err)
	}

	if revokedAt.Valid {
		value := revokedAt.Time.UTC()
		token.RevokedAt = &value
	}
	p.ProviderID = providerID.String
	return token, nil
}

// RevokeRefreshToken marks the row revoked. Revoking twice keeps the first
// timestamp.
func (r *Repository) RevokeRefreshToken(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE id = $1
	`, id, r.now().UTC())
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}

func hashToken(rawToken string) string {
	hash := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(hash[:])
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
