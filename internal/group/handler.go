package group

import (
	"net/http"

	"github.com/nadajinny/GROO/internal/apperror"
	"github.com/nadajinny/GROO/internal/auth"
	"github.com/nadajinny/GROO/internal/httpx"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, apperror.ErrUnauthorized)
		return
	}

	groups, err := h.service.ListMine(r.Context(), principal.ID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, groups)
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, apperror.ErrUnauthorized)
		return
	}

	var body CreateInput
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, err)
		return
	}

	detail, err := h.service.Create(r.Context(), principal.ID, body)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusCreated, detail)
}

func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, apperror.ErrUnauthorized)
		return
	}

	detail, err := h.service.Get(r.Context(), r.PathValue("groupId"), principal.ID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, detail)
}

func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, apperror.ErrUnauthorized)
		return
	}

	var body UpdateInput
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, err)
		return
	}

	detail, err := h.service.Update(r.Context(), r.PathValue("groupId"), principal.ID, body)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, detail)
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, apperror.ErrUnauthorized)
		return
	}

	members, err := h.service.Members(r.Context(), r.PathValue("groupId"), principal.ID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, members)
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, apperror.ErrUnauthorized)
		return
	}

	var body AddMemberInput
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, err)
		return
	}

	member, err := h.service.AddMember(r.Context(), r.PathValue("groupId"), principal.ID, body)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusCreated, member)
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, apperror.ErrUnauthorized)
		return
	}

	err := h.service.RemoveMember(r.Context(), r.PathValue("groupId"), r.PathValue("membershipId"), principal.ID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, nil)
}

func (h *Handler) RegenerateInvitation(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, apperror.ErrUnauthorized)
		return
	}

	detail, err := h.service.RegenerateInvitation(r.Context(), r.PathValue("groupId"), principal.ID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, detail)
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, apperror.ErrUnauthorized)
		return
	}

	var body JoinInput
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, err)
		return
	}

	detail, err := h.service.Join(r.Context(), principal.ID, body)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, detail)
}
