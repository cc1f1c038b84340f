package auth

import (
	"net/http"
	"strings"

	"github.com/nadajinny/GROO/internal/apperror"
	"github.com/nadajinny/GROO/internal/httpx"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type socialLoginRequest struct {
	IDToken string `json:"idToken"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, err)
		return
	}

	tokens, err := h.service.Register(r.Context(), RegisterInput{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusCreated, tokens)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if strings.TrimSpace(body.Email) == "" || body.Password == "" {
		httpx.WriteError(w, apperror.Validation("email and password are required"))
		return
	}

	tokens, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, tokens)
}

func (h *Handler) LoginWithGoogle(w http.ResponseWriter, r *http.Request) {
	h.socialLogin(w, r, ProviderGoogle)
}

func (h *Handler) LoginWithFirebase(w http.ResponseWriter, r *http.Request) {
	h.socialLogin(w, r, ProviderFirebase)
}

func (h *Handler) socialLogin(w http.ResponseWriter, r *http.Request, provider Provider) {
	var body socialLoginRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if strings.TrimSpace(body.IDToken) == "" {
		httpx.WriteError(w, apperror.Validation("idToken is required"))
		return
	}

	tokens, err := h.service.LoginWithSocial(r.Context(), provider, body.IDToken)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, tokens)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if strings.TrimSpace(body.RefreshToken) == "" {
		httpx.WriteError(w, apperror.Validation("refreshToken is required"))
		return
	}

	tokens, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, tokens)
}

// Logout accepts an optional bearer header naming the access token to
// blacklist alongside the refresh token revocation.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if strings.TrimSpace(body.RefreshToken) == "" {
		httpx.WriteError(w, apperror.Validation("refreshToken is required"))
		return
	}

	accessToken, _ := httpx.BearerToken(r)
	if err := h.service.Logout(r.Context(), body.RefreshToken, accessToken); err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, nil)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, apperror.ErrUnauthorized)
		return
	}

	httpx.WriteData(w, http.StatusOK, principal)
}
