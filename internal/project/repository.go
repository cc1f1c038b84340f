package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nadajinny/GROO/internal/authz"
)

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) ProjectGroupID(ctx context.Context, projectID string) (string, error) {
	var groupID string
	err := r.db.QueryRowContext(ctx, `SELECT group_id FROM projects WHERE id = $1`, projectID).Scan(&groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", authz.ErrNotFound
		}
		return "", fmt.Errorf("query project group: %w", err)
	}
	return groupID, nil
}

func (r *Repository) TaskGroupID(ctx context.Context, taskID string) (string, error) {
	var groupID string
	err := r.db.QueryRowContext(ctx, `
		SELECT p.group_id
		FROM tasks t
		JOIN projects p ON p.id = t.project_id
		WHERE t.id = $1
	`, taskID).Scan(&groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", authz.ErrNotFound
		}
		return "", fmt.Errorf("query task group: %w", err)
	}
	return groupID, nil
}

func (r *Repository) CreateProject(ctx context.Context, p Project) (Project, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Project{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := r.now().UTC()
	p.ID = id.String()
	p.Status = StatusActive
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO projects (id, group_id, name, description, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, p.ID, p.GroupID, p.Name, p.Description, string(p.Status), p.CreatedBy, now)
	if err != nil {
		return Project{}, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

func (r *Repository) ListProjects(ctx context.Context, groupID string) ([]Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, group_id, name, description, status, created_by, created_at, updated_at
		FROM projects
		WHERE group_id = $1
		ORDER BY created_at DESC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	projects := make([]Project, 0)
	for rows.Next() {
		var p Project
		var description sql.NullString
		if err := rows.Scan(&p.ID, &p.GroupID, &p.Name, &description, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.Description = description.String
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

const taskColumns = `id, project_id, title, description, assignee_id, status, priority, due_date, created_by, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var t Task
	var description, assignee sql.NullString
	var due sql.NullTime
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &description, &assignee, &t.Status, &t.Priority, &due, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Task{}, err
	}
	t.Description = description.String
	t.AssigneeID = assignee.String
	if due.Valid {
		t.DueDate = &due.Time
	}
	return t, nil
}

func (r *Repository) CreateTask(ctx context.Context, t Task) (Task, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Task{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := r.now().UTC()
	t.ID = id.String()
	t.CreatedAt = now
	t.UpdatedAt = now

	var assignee sql.NullString
	if t.AssigneeID != "" {
		assignee = sql.NullString{String: t.AssigneeID, Valid: true}
	}
	var due sql.NullTime
	if t.DueDate != nil {
		due = sql.NullTime{Time: t.DueDate.UTC(), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, t.ID, t.ProjectID, t.Title, t.Description, assignee, string(t.Status), string(t.Priority), due, t.CreatedBy, now)
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

// ListTasks orders by due date, undated tasks last.
func (r *Repository) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE project_id = $1
		ORDER BY due_date ASC NULLS LAST, created_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func (r *Repository) FindTask(ctx context.Context, id string) (Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, authz.ErrNotFound
		}
		return Task{}, fmt.Errorf("query task: %w", err)
	}
	return t, nil
}
