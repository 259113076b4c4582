package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalamitra/api/internal/services"
)

const maxProfileBodySize = 64 * 1024

// UserHandlers exposes the caller's own profile.
type UserHandlers struct {
	guard    *Guard
	profiles services.ProfileService
}

// NewUserHandlers constructs handlers enforcing Firebase authentication before invoking the profile service.
func NewUserHandlers(guard *Guard, profiles services.ProfileService) *UserHandlers {
	return &UserHandlers{guard: guard, profiles: profiles}
}

// Routes wires the /users endpoints onto the provided router.
func (h *UserHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(me chi.Router) {
		me.Use(h.guard.Require()...)
		me.Get("/me", h.getProfile)
		me.Put("/me", h.updateProfile)
		me.Delete("/me", h.deleteAccount)
	})
}

type updateProfileRequest struct {
	DisplayName    *string `json:"display_name" validate:"omitempty,max=100"`
	PhoneNumber    *string `json:"phone_number" validate:"omitempty,max=32"`
	Address        *string `json:"address" validate:"omitempty,max=500"`
	ProfilePicture *string `json:"profile_picture" validate:"omitempty,max=2048"`
}

func (h *UserHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.profiles == nil {
		serviceUnavailable(ctx, w, "profile")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	profile, err := h.profiles.GetMe(ctx, identity.UID)
	if err != nil {
		writeProfileError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProfilePayload(profile))
}

func (h *UserHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.profiles == nil {
		serviceUnavailable(ctx, w, "profile")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if !decodeJSONBody(w, r, maxProfileBodySize, &req) {
		return
	}
	profile, err := h.profiles.UpdateMe(ctx, services.UpdateProfileCommand{
		UserID:         identity.UID,
		DisplayName:    req.DisplayName,
		PhoneNumber:    req.PhoneNumber,
		Address:        req.Address,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		writeProfileError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProfilePayload(profile))
}

func (h *UserHandlers) deleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.profiles == nil {
		serviceUnavailable(ctx, w, "profile")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.profiles.DeleteMe(ctx, identity.UID); err != nil {
		writeProfileError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, messagePayload{Message: "User account successfully deleted"})
}
