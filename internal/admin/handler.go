package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/nadajinny/GROO/internal/apperror"
	"github.com/nadajinny/GROO/internal/auth"
	"github.com/nadajinny/GROO/internal/httpx"
	"github.com/nadajinny/GROO/internal/observability"
)

// UserStore is the slice of the credential store that admin endpoints touch.
type UserStore interface {
	ListUsers(ctx context.Context, filter auth.UserFilter) (auth.UserPage, error)
	Stats(ctx context.Context) (auth.UserStats, error)
	UpdateRole(ctx context.Context, id string, role auth.Role) (auth.Principal, error)
	UpdateStatus(ctx context.Context, id string, status auth.Status) (auth.Principal, error)
}

const (
	defaultPageSize = 20
	minPageSize     = 5
	maxPageSize     = 100
)

type Handler struct {
	users  UserStore
	logger *observability.Logger
}

func NewHandler(users UserStore, logger *observability.Logger) *Handler {
	if logger == nil {
		logger = observability.Discard()
	}
	return &Handler{users: users, logger: logger}
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

type deactivateRequest struct {
	Reason string `json:"reason"`
}

// ListUsers serves ?keyword=&role=&status=&page=&size=. Page is zero based and
// size is clamped to [5, 100].
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	filter, err := parseUserFilter(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	page, err := h.users.ListUsers(r.Context(), filter)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, page)
}

func parseUserFilter(r *http.Request) (auth.UserFilter, error) {
	query := r.URL.Query()
	filter := auth.UserFilter{
		Keyword: strings.TrimSpace(query.Get("keyword")),
		Size:    defaultPageSize,
	}

	if value := strings.TrimSpace(query.Get("role")); value != "" {
		role, ok := auth.ParseRole(strings.ToUpper(value))
		if !ok {
			return auth.UserFilter{}, apperror.Validation("role must be USER or ADMIN")
		}
		filter.Role = role
	}
	if value := strings.TrimSpace(query.Get("status")); value != "" {
		status, ok := auth.ParseStatus(strings.ToUpper(value))
		if !ok {
			return auth.UserFilter{}, apperror.Validation("status must be ACTIVE or DEACTIVATED")
		}
		filter.Status = status
	}

	if value := strings.TrimSpace(query.Get("page")); value != "" {
		page, err := strconv.Atoi(value)
		if err != nil {
			return auth.UserFilter{}, apperror.Validation("page must be a number")
		}
		filter.Page = max(page, 0)
	}
	if value := strings.TrimSpace(query.Get("size")); value != "" {
		size, err := strconv.Atoi(value)
		if err != nil {
			return auth.UserFilter{}, apperror.Validation("size must be a number")
		}
		filter.Size = min(max(size, minPageSize), maxPageSize)
	}

	return filter, nil
}

func (h *Handler) UserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.Stats(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, stats)
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var body updateRoleRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, err)
		return
	}
	role, ok := auth.ParseRole(strings.ToUpper(strings.TrimSpace(body.Role)))
	if !ok {
		httpx.WriteError(w, apperror.Validation("role must be USER or ADMIN"))
		return
	}

	id := r.PathValue("id")
	p, err := h.users.UpdateRole(r.Context(), id, role)
	if err != nil {
		httpx.WriteError(w, mapUserError(err))
		return
	}

	h.logger.Info("admin_role_updated", map[string]any{"user_id": id, "role": string(role), "actor_id": actorID(r)})
	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{Success: true, Data: p, Message: "role updated"})
}

// Deactivate blocks future logins. Tokens already issued stay valid until
// they expire.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	var body deactivateRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &body); err != nil {
			httpx.WriteError(w, err)
			return
		}
	}

	id := r.PathValue("id")
	p, err := h.users.UpdateStatus(r.Context(), id, auth.StatusDeactivated)
	if err != nil {
		httpx.WriteError(w, mapUserError(err))
		return
	}

	h.logger.Info("admin_user_deactivated", map[string]any{
		"user_id":  id,
		"actor_id": actorID(r),
		"reason":   strings.TrimSpace(body.Reason),
	})
	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{Success: true, Data: p, Message: "user deactivated"})
}

func mapUserError(err error) error {
	if errors.Is(err, auth.ErrPrincipalMissing) {
		return apperror.ErrUserNotFound
	}
	return err
}

func actorID(r *http.Request) string {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		return p.ID
	}
	return ""
}
