package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nadajinny/GROO/internal/apperror"
	"github.com/nadajinny/GROO/internal/authz"
	"github.com/nadajinny/GROO/internal/observability"
)

type Store interface {
	authz.ResourceResolver
	CreateProject(ctx context.Context, p Project) (Project, error)
	ListProjects(ctx context.Context, groupID string) ([]Project, error)
	CreateTask(ctx context.Context, t Task) (Task, error)
	ListTasks(ctx context.Context, projectID string) ([]Task, error)
	FindTask(ctx context.Context, id string) (Task, error)
}

type GroupFinder interface {
	FindGroup(ctx context.Context, id string) (authz.Group, error)
}

type Service struct {
	store  Store
	groups GroupFinder
	gate   *authz.Gate
	logger *observability.Logger
}

func NewService(store Store, groups GroupFinder, gate *authz.Gate, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.Discard()
	}
	return &Service{store: store, groups: groups, gate: gate, logger: logger}
}

func (s *Service) ListProjects(ctx context.Context, groupID, principalID string) ([]Project, error) {
	if _, err := s.gate.RequireGroupProjectAccess(ctx, groupID, principalID); err != nil {
		return nil, err
	}

	projects, err := s.store.ListProjects(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func (s *Service) CreateProject(ctx context.Context, principalID string, input CreateProjectInput) (Project, error) {
	groupID := strings.TrimSpace(input.GroupID)
	if groupID == "" {
		return Project{}, apperror.Validation("groupId is required")
	}
	if _, err := s.groups.FindGroup(ctx, groupID); err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			return Project{}, apperror.ErrGroupNotFound
		}
		return Project{}, fmt.Errorf("find group: %w", err)
	}
	if _, err := s.gate.RequireGroupProjectAccess(ctx, groupID, principalID); err != nil {
		return Project{}, err
	}

	name := strings.TrimSpace(input.Name)
	description := strings.TrimSpace(input.Description)
	switch {
	case name == "":
		return Project{}, apperror.Validation("name is required")
	case utf8.RuneCountInString(name) > maxProjectNameLength:
		return Project{}, apperror.Validation(fmt.Sprintf("name must be at most %d characters", maxProjectNameLength))
	case utf8.RuneCountInString(description) > maxProjectDescriptionLength:
		return Project{}, apperror.Validation(fmt.Sprintf("description must be at most %d characters", maxProjectDescriptionLength))
	}

	p, err := s.store.CreateProject(ctx, Project{GroupID: groupID, Name: name, Description: description, CreatedBy: principalID})
	if err != nil {
		return Project{}, fmt.Errorf("create project: %w", err)
	}

	s.logger.Info("project created", map[string]any{"project_id": p.ID, "group_id": groupID})
	return p, nil
}

func (s *Service) ListTasks(ctx context.Context, projectID, principalID string) ([]Task, error) {
	if _, err := s.gate.RequireProjectAccess(ctx, projectID, principalID); err != nil {
		return nil, err
	}

	tasks, err := s.store.ListTasks(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (s *Service) CreateTask(ctx context.Context, principalID string, input CreateTaskInput) (Task, error) {
	projectID := strings.TrimSpace(input.ProjectID)
	if projectID == "" {
		return Task{}, apperror.Validation("projectId is required")
	}
	if _, err := s.gate.RequireProjectAccess(ctx, projectID, principalID); err != nil {
		return Task{}, err
	}

	task, err := buildTask(projectID, principalID, input)
	if err != nil {
		return Task{}, err
	}

	created, err := s.store.CreateTask(ctx, task)
	if err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}

	s.logger.Info("task created", map[string]any{"task_id": created.ID, "project_id": projectID})
	return created, nil
}

func (s *Service) GetTask(ctx context.Context, taskID, principalID string) (Task, error) {
	if _, err := s.gate.RequireTaskAccess(ctx, taskID, principalID); err != nil {
		return Task{}, err
	}

	t, err := s.store.FindTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			return Task{}, apperror.ErrTaskNotFound
		}
		return Task{}, fmt.Errorf("find task: %w", err)
	}
	return t, nil
}

func buildTask(projectID, principalID string, input CreateTaskInput) (Task, error) {
	t := Task{
		ProjectID:   projectID,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		AssigneeID:  strings.TrimSpace(input.AssigneeID),
		Status:      TaskTodo,
		Priority:    PriorityMedium,
		DueDate:     input.DueDate,
		CreatedBy:   principalID,
	}

	switch {
	case t.Title == "":
		return Task{}, apperror.Validation("title is required")
	case utf8.RuneCountInString(t.Title) > maxTaskTitleLength:
		return Task{}, apperror.Validation(fmt.Sprintf("title must be at most %d characters", maxTaskTitleLength))
	case utf8.RuneCountInString(t.Description) > maxTaskDescriptionLength:
		return Task{}, apperror.Validation(fmt.Sprintf("description must be at most %d characters", maxTaskDescriptionLength))
	case utf8.RuneCountInString(t.AssigneeID) > maxAssigneeLength:
		return Task{}, apperror.Validation(fmt.Sprintf("assigneeId must be at most %d characters", maxAssigneeLength))
	}

	if input.Status != "" {
		status, ok := ParseTaskStatus(strings.ToUpper(input.Status))
		if !ok {
			return Task{}, apperror.Validation("status must be TODO, DOING or DONE")
		}
		t.Status = status
	}
	if input.Priority != "" {
		priority, ok := ParseTaskPriority(strings.ToUpper(input.Priority))
		if !ok {
			return Task{}, apperror.Validation("priority must be LOW, MEDIUM or HIGH")
		}
		t.Priority = priority
	}
	return t, nil
}
