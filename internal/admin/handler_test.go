package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadajinny/GROO/internal/auth"
)

type fakeUsers struct {
	users      map[string]auth.Principal
	err        error
	lastFilter auth.UserFilter
}

func (f *fakeUsers) ListUsers(_ context.Context, filter auth.UserFilter) (auth.UserPage, error) {
	f.lastFilter = filter
	if f.err != nil {
		return auth.UserPage{}, f.err
	}
	ids := make([]string, 0, len(f.users))
	for id := range f.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]auth.Principal, 0)
	for _, id := range ids {
		p := f.users[id]
		if filter.Role != "" && p.Role != filter.Role {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		items = append(items, p)
	}
	return auth.UserPage{Items: items, Page: filter.Page, Size: filter.Size, TotalElements: int64(len(items)), TotalPages: 1}, nil
}

func (f *fakeUsers) Stats(context.Context) (auth.UserStats, error) {
	if f.err != nil {
		return auth.UserStats{}, f.err
	}
	var stats auth.UserStats
	for _, p := range f.users {
		stats.Total++
		if p.Active() {
			stats.Active++
		} else {
			stats.Deactivated++
		}
		if p.Role == auth.RoleAdmin {
			stats.Admins++
		}
	}
	return stats, nil
}

func (f *fakeUsers) UpdateRole(_ context.Context, id string, role auth.Role) (auth.Principal, error) {
	p, ok := f.users[id]
	if !ok {
		return auth.Principal{}, auth.ErrPrincipalMissing
	}
	p.Role = role
	f.users[id] = p
	return p, nil
}

func (f *fakeUsers) UpdateStatus(_ context.Context, id string, status auth.Status) (auth.Principal, error) {
	p, ok := f.users[id]
	if !ok {
		return auth.Principal{}, auth.ErrPrincipalMissing
	}
	p.Status = status
	f.users[id] = p
	return p, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    *string         `json:"code"`
}

func newTestMux() (*http.ServeMux, *fakeUsers) {
	users := &fakeUsers{users: map[string]auth.Principal{
		"u-1": {ID: "u-1", Email: "alice@example.com", Role: auth.RoleUser, Status: auth.StatusActive},
		"u-2": {ID: "u-2", Email: "root@example.com", Role: auth.RoleAdmin, Status: auth.StatusActive},
	}}
	h := NewHandler(users, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/admin/users", h.ListUsers)
	mux.HandleFunc("GET /api/admin/users/stats", h.UserStats)
	mux.HandleFunc("PATCH /api/admin/users/{id}/role", h.UpdateRole)
	mux.HandleFunc("POST /api/admin/users/{id}/deactivate", h.Deactivate)
	return mux, users
}

func do(t *testing.T, mux http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestUserStats(t *testing.T) {
	mux, _ := newTestMux()

	rec, env := do(t, mux, http.MethodGet, "/api/admin/users/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats auth.UserStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Admins)
}

func TestListUsers(t *testing.T) {
	mux, users := newTestMux()

	rec, env := do(t, mux, http.MethodGet, "/api/admin/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page auth.UserPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, "u-1", page.Items[0].ID)
	assert.Equal(t, auth.UserFilter{Size: 20}, users.lastFilter)
	assert.NotContains(t, rec.Body.String(), "password")

	rec, env = do(t, mux, http.MethodGet, "/api/admin/users?keyword=%20ali%20&role=admin&status=active&page=2&size=500", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "u-2", page.Items[0].ID)
	assert.Equal(t, auth.UserFilter{Keyword: "ali", Role: auth.RoleAdmin, Status: auth.StatusActive, Page: 2, Size: 100}, users.lastFilter)

	do(t, mux, http.MethodGet, "/api/admin/users?page=-3&size=1", "")
	assert.Equal(t, 0, users.lastFilter.Page)
	assert.Equal(t, 5, users.lastFilter.Size)
}

func TestListUsersRejectsBadFilters(t *testing.T) {
	mux, _ := newTestMux()

	for _, query := range []string{"role=OWNER", "status=BANNED", "page=first", "size=big"} {
		rec, env := do(t, mux, http.MethodGet, "/api/admin/users?"+query, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
		require.NotNil(t, env.Code, query)
		assert.Equal(t, "VALIDATION_FAILED", *env.Code, query)
	}
}

func TestUpdateRole(t *testing.T) {
	mux, users := newTestMux()

	rec, env := do(t, mux, http.MethodPatch, "/api/admin/users/u-1/role", `{"role":"admin"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "role updated", env.Message)
	assert.Equal(t, auth.RoleAdmin, users.users["u-1"].Role)

	rec, env = do(t, mux, http.MethodPatch, "/api/admin/users/u-1/role", `{"role":"OWNER"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", *env.Code)

	rec, env = do(t, mux, http.MethodPatch, "/api/admin/users/u-9/role", `{"role":"USER"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "USER_NOT_FOUND", *env.Code)
}

func TestDeactivate(t *testing.T) {
	mux, users := newTestMux()

	rec, _ := do(t, mux, http.MethodPost, "/api/admin/users/u-1/deactivate", `{"reason":"spam"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.StatusDeactivated, users.users["u-1"].Status)

	rec, _ = do(t, mux, http.MethodPost, "/api/admin/users/u-2/deactivate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, users.users["u-2"].Active())
}

func TestStoreFailureIsInternal(t *testing.T) {
	mux, users := newTestMux()
	users.err = errors.New("connection reset")

	rec, env := do(t, mux, http.MethodGet, "/api/admin/users/stats", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", *env.Code)
}
