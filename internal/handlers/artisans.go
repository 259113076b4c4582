package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalamitra/api/internal/platform/auth"
	"github.com/kalamitra/api/internal/platform/httpx"
	"github.com/kalamitra/api/internal/platform/pagination"
	"github.com/kalamitra/api/internal/services"
)

// ArtisanHandlers serves the artisan dashboard and public artisan pages.
type ArtisanHandlers struct {
	guard    *Guard
	profiles services.ProfileService
	listings services.ListingService
	orders   services.OrderService
}

// NewArtisanHandlers constructs artisan handlers.
func NewArtisanHandlers(guard *Guard, profiles services.ProfileService, listings services.ListingService, orders services.OrderService) *ArtisanHandlers {
	return &ArtisanHandlers{
		guard:    guard,
		profiles: profiles,
		listings: listings,
		orders:   orders,
	}
}

// Routes registers the /artisans endpoints.
func (h *ArtisanHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/public/{artistId}", h.publicProfile)
	r.Group(func(me chi.Router) {
		me.Use(h.guard.Require(auth.RoleArtisan)...)
		me.Get("/me", h.getProfile)
		me.Put("/me", h.updateProfile)
		me.Get("/me/listings", h.myListings)
		me.Get("/me/orders", h.myOrders)
	})
}

// artisanProfilePayload is the flat artisan card the dashboard edits.
type artisanProfilePayload struct {
	ID                string  `json:"id"`
	DisplayName       string  `json:"display_name"`
	Email             string  `json:"email,omitempty"`
	PhoneNumber       string  `json:"phone_number,omitempty"`
	Address           string  `json:"address,omitempty"`
	Bio               string  `json:"bio"`
	Specialization    string  `json:"specialization"`
	PortfolioURL      string  `json:"portfolio_url"`
	ProfilePicture    string  `json:"profile_picture"`
	YearsOfExperience int     `json:"years_of_experience"`
	Rating            float64 `json:"rating"`
}

func buildArtisanProfilePayload(p services.UserProfile, public bool) artisanProfilePayload {
	payload := artisanProfilePayload{
		ID:             p.ID,
		DisplayName:    p.DisplayName,
		Address:        p.Address,
		ProfilePicture: p.ProfilePicture,
	}
	if !public {
		payload.Email = p.Email
		payload.PhoneNumber = p.PhoneNumber
	}
	if d := p.Artisan; d != nil {
		payload.Bio = d.Bio
		payload.Specialization = d.Specialization
		payload.PortfolioURL = d.PortfolioURL
		payload.YearsOfExperience = d.YearsOfExperience
		payload.Rating = d.Rating
	}
	return payload
}

type updateArtisanRequest struct {
	DisplayName       *string `json:"display_name" validate:"omitempty,max=100"`
	PhoneNumber       *string `json:"phone_number" validate:"omitempty,max=32"`
	ProfilePicture    *string `json:"profile_picture" validate:"omitempty,max=2048"`
	Bio               *string `json:"bio" validate:"omitempty,max=2000"`
	Specialization    *string `json:"specialization" validate:"omitempty,max=500"`
	PortfolioURL      *string `json:"portfolio_url" validate:"omitempty,max=2048"`
	YearsOfExperience *int    `json:"years_of_experience" validate:"omitempty,min=0,max=100"`
}

func (r updateArtisanRequest) touchesProfile() bool {
	return r.DisplayName != nil || r.PhoneNumber != nil || r.ProfilePicture != nil
}

func (h *ArtisanHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.profiles == nil {
		serviceUnavailable(ctx, w, "profile")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	profile, err := h.profiles.GetArtisan(ctx, identity.UID)
	if err != nil {
		writeProfileError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildArtisanProfilePayload(profile, false))
}

// updateProfile applies the shared profile fields first, then the artisan section.
func (h *ArtisanHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.profiles == nil {
		serviceUnavailable(ctx, w, "profile")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req updateArtisanRequest
	if !decodeJSONBody(w, r, maxProfileBodySize, &req) {
		return
	}

	if _, err := h.profiles.GetArtisan(ctx, identity.UID); err != nil {
		writeProfileError(ctx, w, err)
		return
	}
	if req.touchesProfile() {
		if _, err := h.profiles.UpdateMe(ctx, services.UpdateProfileCommand{
			UserID:         identity.UID,
			DisplayName:    req.DisplayName,
			PhoneNumber:    req.PhoneNumber,
			ProfilePicture: req.ProfilePicture,
		}); err != nil {
			writeProfileError(ctx, w, err)
			return
		}
	}
	profile, err := h.profiles.UpdateArtisan(ctx, services.UpdateArtisanCommand{
		UserID:            identity.UID,
		Bio:               req.Bio,
		Specialization:    req.Specialization,
		PortfolioURL:      req.PortfolioURL,
		YearsOfExperience: req.YearsOfExperience,
	})
	if err != nil {
		writeProfileError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildArtisanProfilePayload(profile, false))
}

func (h *ArtisanHandlers) publicProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.profiles == nil {
		serviceUnavailable(ctx, w, "profile")
		return
	}
	profile, err := h.profiles.GetPublicArtisan(ctx, chi.URLParam(r, "artistId"))
	if err != nil {
		writeProfileError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildArtisanProfilePayload(profile, true))
}

func (h *ArtisanHandlers) myListings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.listings == nil {
		serviceUnavailable(ctx, w, "listing")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_query", err.Error(), http.StatusBadRequest))
		return
	}
	page, err := h.listings.ListByArtist(ctx, identity.UID, params.Skip, params.Limit)
	if err != nil {
		writeListingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildListingPagePayload(page))
}

func (h *ArtisanHandlers) myOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	views, err := h.orders.ListForArtisan(ctx, identity.UID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrdersPayload(views))
}
