package project

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadajinny/GROO/internal/apperror"
	"github.com/nadajinny/GROO/internal/authz"
)

type memoryStore struct {
	groups      map[string]authz.Group
	memberships map[string]authz.GroupRole
	projects    map[string]Project
	tasks       map[string]Task
	seq         int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		groups:      make(map[string]authz.Group),
		memberships: make(map[string]authz.GroupRole),
		projects:    make(map[string]Project),
		tasks:       make(map[string]Task),
	}
}

func (m *memoryStore) FindGroup(_ context.Context, id string) (authz.Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return authz.Group{}, authz.ErrNotFound
	}
	return g, nil
}

func (m *memoryStore) FindMembership(_ context.Context, groupID, principalID string) (authz.Membership, error) {
	role, ok := m.memberships[groupID+"/"+principalID]
	if !ok {
		return authz.Membership{}, authz.ErrNotFound
	}
	return authz.Membership{GroupID: groupID, PrincipalID: principalID, Role: role}, nil
}

func (m *memoryStore) FindGroupByInvitationCode(context.Context, string) (authz.Group, error) {
	return authz.Group{}, authz.ErrNotFound
}

func (m *memoryStore) ProjectGroupID(_ context.Context, projectID string) (string, error) {
	p, ok := m.projects[projectID]
	if !ok {
		return "", authz.ErrNotFound
	}
	return p.GroupID, nil
}

func (m *memoryStore) TaskGroupID(ctx context.Context, taskID string) (string, error) {
	t, ok := m.tasks[taskID]
	if !ok {
		return "", authz.ErrNotFound
	}
	return m.ProjectGroupID(ctx, t.ProjectID)
}

func (m *memoryStore) CreateProject(_ context.Context, p Project) (Project, error) {
	m.seq++
	p.ID = fmt.Sprintf("p-%d", m.seq)
	p.Status = StatusActive
	m.projects[p.ID] = p
	return p, nil
}

func (m *memoryStore) ListProjects(_ context.Context, groupID string) ([]Project, error) {
	out := make([]Project, 0)
	for _, p := range m.projects {
		if p.GroupID == groupID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) CreateTask(_ context.Context, t Task) (Task, error) {
	m.seq++
	t.ID = fmt.Sprintf("t-%d", m.seq)
	m.tasks[t.ID] = t
	return t, nil
}

func (m *memoryStore) ListTasks(_ context.Context, projectID string) ([]Task, error) {
	out := make([]Task, 0)
	for _, t := range m.tasks {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryStore) FindTask(_ context.Context, id string) (Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, authz.ErrNotFound
	}
	return t, nil
}

func newServiceFixture() (*Service, *memoryStore) {
	store := newMemoryStore()
	store.groups["g1"] = authz.Group{ID: "g1", Status: authz.GroupActive}
	store.memberships["g1/alice"] = authz.RoleOwner
	store.memberships["g1/bob"] = authz.RoleMember
	gate := authz.NewGate(store, store)
	return NewService(store, store, gate, nil), store
}

func TestCreateProjectChecks(t *testing.T) {
	service, _ := newServiceFixture()
	ctx := context.Background()

	_, err := service.CreateProject(ctx, "alice", CreateProjectInput{GroupID: "missing", Name: "Launch"})
	assert.ErrorIs(t, err, apperror.ErrGroupNotFound)

	_, err = service.CreateProject(ctx, "mallory", CreateProjectInput{GroupID: "g1", Name: "Launch"})
	assert.ErrorIs(t, err, apperror.ErrProjectAccessDenied)

	_, err = service.CreateProject(ctx, "bob", CreateProjectInput{GroupID: "g1", Name: "   "})
	assert.ErrorIs(t, err, apperror.ErrValidationFailed)

	_, err = service.CreateProject(ctx, "bob", CreateProjectInput{GroupID: "g1", Name: strings.Repeat("a", maxProjectNameLength+1)})
	assert.ErrorIs(t, err, apperror.ErrValidationFailed)

	p, err := service.CreateProject(ctx, "bob", CreateProjectInput{GroupID: "g1", Name: " Launch "})
	require.NoError(t, err)
	assert.Equal(t, "Launch", p.Name)
	assert.Equal(t, "bob", p.CreatedBy)
	assert.Equal(t, StatusActive, p.Status)
}

func TestListProjectsRequiresMembership(t *testing.T) {
	service, _ := newServiceFixture()
	ctx := context.Background()

	_, err := service.CreateProject(ctx, "alice", CreateProjectInput{GroupID: "g1", Name: "Launch"})
	require.NoError(t, err)

	projects, err := service.ListProjects(ctx, "g1", "bob")
	require.NoError(t, err)
	assert.Len(t, projects, 1)

	_, err = service.ListProjects(ctx, "g1", "mallory")
	assert.ErrorIs(t, err, apperror.ErrProjectAccessDenied)
}

func TestTaskAccessFollowsGroup(t *testing.T) {
	service, store := newServiceFixture()
	ctx := context.Background()

	p, err := service.CreateProject(ctx, "alice", CreateProjectInput{GroupID: "g1", Name: "Launch"})
	require.NoError(t, err)

	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	task, err := service.CreateTask(ctx, "bob", CreateTaskInput{ProjectID: p.ID, Title: "Write copy", DueDate: &due, Priority: "high"})
	require.NoError(t, err)
	assert.Equal(t, TaskTodo, task.Status)
	assert.Equal(t, PriorityHigh, task.Priority)

	got, err := service.GetTask(ctx, task.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Write copy", got.Title)

	_, err = service.GetTask(ctx, task.ID, "mallory")
	assert.ErrorIs(t, err, apperror.ErrProjectAccessDenied)

	_, err = service.GetTask(ctx, "t-404", "alice")
	assert.ErrorIs(t, err, apperror.ErrTaskNotFound)

	_, err = service.ListTasks(ctx, "p-404", "alice")
	assert.ErrorIs(t, err, apperror.ErrProjectNotFound)

	tasks, err := service.ListTasks(ctx, p.ID, "bob")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	// membership removal takes effect immediately
	delete(store.memberships, "g1/bob")
	_, err = service.ListTasks(ctx, p.ID, "bob")
	assert.ErrorIs(t, err, apperror.ErrProjectAccessDenied)
}

func TestCreateTaskValidation(t *testing.T) {
	service, _ := newServiceFixture()
	ctx := context.Background()

	p, err := service.CreateProject(ctx, "alice", CreateProjectInput{GroupID: "g1", Name: "Launch"})
	require.NoError(t, err)

	cases := []CreateTaskInput{
		{ProjectID: p.ID, Title: "  "},
		{ProjectID: p.ID, Title: "ok", Status: "BLOCKED"},
		{ProjectID: p.ID, Title: "ok", Priority: "URGENT"},
		{ProjectID: p.ID, Title: strings.Repeat("t", maxTaskTitleLength+1)},
		{Title: "no project"},
	}
	for _, input := range cases {
		_, err := service.CreateTask(ctx, "alice", input)
		assert.ErrorIs(t, err, apperror.ErrValidationFailed, "input %+v", input)
	}

	_, err = service.CreateTask(ctx, "mallory", CreateTaskInput{ProjectID: p.ID, Title: "ok"})
	assert.ErrorIs(t, err, apperror.ErrProjectAccessDenied)
}
