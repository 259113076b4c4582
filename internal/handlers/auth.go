package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalamitra/api/internal/platform/httpx"
	"github.com/kalamitra/api/internal/services"
)

const maxAuthBodySize = 8 * 1024

// AuthHandlers exposes account registration and token verification.
type AuthHandlers struct {
	profiles services.ProfileService
}

// NewAuthHandlers constructs auth handlers.
func NewAuthHandlers(profiles services.ProfileService) *AuthHandlers {
	return &AuthHandlers{profiles: profiles}
}

// Routes registers the /auth endpoints. Both are public.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/register", h.register)
	r.Post("/verify-token", h.verifyToken)
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6,max=128"`
	DisplayName string `json:"display_name" validate:"max=100"`
	Role        string `json:"role" validate:"omitempty,oneof=buyer artisan artist user"`
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.profiles == nil {
		serviceUnavailable(ctx, w, "profile")
		return
	}
	var req registerRequest
	if !decodeJSONBody(w, r, maxAuthBodySize, &req) {
		return
	}
	profile, err := h.profiles.Register(ctx, services.RegisterCommand{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Role:        req.Role,
	})
	if err != nil {
		writeProfileError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildProfilePayload(profile))
}

type verifyTokenRequest struct {
	Token string `json:"token"`
}

type verifyTokenResponse struct {
	UID     string          `json:"uid"`
	Email   string          `json:"email,omitempty"`
	Role    string          `json:"role"`
	Profile *profilePayload `json:"profile,omitempty"`
}

// verifyToken takes the ID token from the token query parameter, a JSON body or the Authorization header.
func (h *AuthHandlers) verifyToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.profiles == nil {
		serviceUnavailable(ctx, w, "profile")
		return
	}

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		if scheme, value, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " "); ok && strings.EqualFold(scheme, "Bearer") {
			token = strings.TrimSpace(value)
		}
	}
	if token == "" && r.ContentLength != 0 {
		var req verifyTokenRequest
		if !decodeJSONBody(w, r, maxAuthBodySize, &req) {
			return
		}
		token = strings.TrimSpace(req.Token)
	}
	if token == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "token is required", http.StatusBadRequest))
		return
	}

	verified, err := h.profiles.VerifyToken(ctx, token)
	if err != nil {
		writeProfileError(ctx, w, err)
		return
	}
	resp := verifyTokenResponse{UID: verified.UID, Email: verified.Email, Role: verified.Role}
	if verified.Profile != nil {
		profile := buildProfilePayload(*verified.Profile)
		resp.Profile = &profile
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func writeProfileError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrProfileInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProfileUnauthenticated):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "firebase id token invalid", http.StatusUnauthorized))
	case errors.Is(err, services.ErrProfileForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "artisan role required", http.StatusForbidden))
	case errors.Is(err, services.ErrProfileNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("profile_not_found", "profile not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProfileConflict):
		httpx.WriteError(ctx, w, httpx.NewError("email_exists", "an account with this email already exists", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("profile_error", "failed to process profile request", http.StatusInternalServerError))
	}
}
