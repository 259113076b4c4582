package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalamitra/api/internal/platform/auth"
	"github.com/kalamitra/api/internal/services"
)

func artisanProfileFixture() services.UserProfile {
	return services.UserProfile{
		ID:          "artist-1",
		DisplayName: "Meera",
		Email:       "meera@example.com",
		PhoneNumber: "+91 98765 43210",
		Role:        "artisan",
		IsActive:    true,
		Artisan: &services.ArtisanDetails{
			Bio:               "Potter",
			Specialization:    "Blue pottery",
			YearsOfExperience: 5,
			Rating:            4.5,
		},
	}
}

func newArtisanRouter(h *ArtisanHandlers) http.Handler {
	return NewRouter(WithArtisanRoutes(h.Routes))
}

func TestArtisanHandlersPublicProfileHidesContact(t *testing.T) {
	profiles := &stubProfileService{
		publicFunc: func(_ context.Context, id string) (services.UserProfile, error) {
			if id != "artist-1" {
				return services.UserProfile{}, services.ErrProfileNotFound
			}
			return artisanProfileFixture(), nil
		},
	}
	router := newArtisanRouter(NewArtisanHandlers(nil, profiles, nil, nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/artisans/public/artist-1", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["display_name"] != "Meera" || payload["bio"] != "Potter" || payload["rating"] != 4.5 {
		t.Fatalf("unexpected payload %v", payload)
	}
	if _, present := payload["email"]; present {
		t.Fatalf("expected email hidden on public profile")
	}
	if _, present := payload["phone_number"]; present {
		t.Fatalf("expected phone hidden on public profile")
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/artisans/public/nobody", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestArtisanHandlersGetProfile(t *testing.T) {
	profiles := &stubProfileService{
		getArtisanFunc: func(_ context.Context, uid string) (services.UserProfile, error) {
			if uid != "artist-1" {
				return services.UserProfile{}, services.ErrProfileForbidden
			}
			return artisanProfileFixture(), nil
		},
	}
	router := newArtisanRouter(NewArtisanHandlers(nil, profiles, nil, nil))

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/artisans/me", nil), &auth.Identity{UID: "artist-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["email"] != "meera@example.com" {
		t.Fatalf("expected own email visible, got %v", payload["email"])
	}

	req = withIdentity(httptest.NewRequest(http.MethodGet, "/api/artisans/me", nil), &auth.Identity{UID: "buyer-1"})
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for non-artisan, got %d", rr.Code)
	}
}

func TestArtisanHandlersUpdateProfile(t *testing.T) {
	var (
		profileCmd *services.UpdateProfileCommand
		artisanCmd services.UpdateArtisanCommand
	)
	profiles := &stubProfileService{
		getArtisanFunc: func(context.Context, string) (services.UserProfile, error) {
			return artisanProfileFixture(), nil
		},
		updateMeFunc: func(_ context.Context, cmd services.UpdateProfileCommand) (services.UserProfile, error) {
			profileCmd = &cmd
			return artisanProfileFixture(), nil
		},
		updateArtisanFunc: func(_ context.Context, cmd services.UpdateArtisanCommand) (services.UserProfile, error) {
			artisanCmd = cmd
			profile := artisanProfileFixture()
			profile.Artisan.Bio = *cmd.Bio
			return profile, nil
		},
	}
	router := newArtisanRouter(NewArtisanHandlers(nil, profiles, nil, nil))

	t.Run("artisan fields only", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/artisans/me", strings.NewReader(`{"bio":"Third generation potter","years_of_experience":12}`))
		req = withIdentity(req, &auth.Identity{UID: "artist-1"})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if profileCmd != nil {
			t.Fatalf("expected shared profile untouched, got %+v", profileCmd)
		}
		if artisanCmd.UserID != "artist-1" || artisanCmd.YearsOfExperience == nil || *artisanCmd.YearsOfExperience != 12 {
			t.Fatalf("unexpected artisan command %+v", artisanCmd)
		}
		var payload map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if payload["bio"] != "Third generation potter" {
			t.Fatalf("unexpected bio %v", payload["bio"])
		}
	})

	t.Run("shared fields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/artisans/me", strings.NewReader(`{"display_name":"Meera D","bio":"Potter"}`))
		req = withIdentity(req, &auth.Identity{UID: "artist-1"})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if profileCmd == nil || profileCmd.DisplayName == nil || *profileCmd.DisplayName != "Meera D" {
			t.Fatalf("expected display name forwarded, got %+v", profileCmd)
		}
	})

	t.Run("negative experience", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/artisans/me", strings.NewReader(`{"years_of_experience":-1}`))
		req = withIdentity(req, &auth.Identity{UID: "artist-1"})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestArtisanHandlersMyListings(t *testing.T) {
	var gotArtist string
	var gotSkip, gotLimit int
	listings := &stubListingService{
		byArtistFunc: func(_ context.Context, artistID string, skip, limit int) (services.ListingPage, error) {
			gotArtist, gotSkip, gotLimit = artistID, skip, limit
			return services.ListingPage{Items: []services.Listing{{ID: "l1"}}, Total: 1, Skip: skip, Limit: 1}, nil
		},
	}
	router := newArtisanRouter(NewArtisanHandlers(nil, &stubProfileService{}, listings, nil))

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/artisans/me/listings?skip=2", nil), &auth.Identity{UID: "artist-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotArtist != "artist-1" || gotSkip != 2 || gotLimit != 100 {
		t.Fatalf("unexpected arguments artist=%s skip=%d limit=%d", gotArtist, gotSkip, gotLimit)
	}
}

func TestArtisanHandlersMyOrders(t *testing.T) {
	orders := &stubOrderService{
		artisanFunc: func(_ context.Context, artistID string) ([]services.OrderView, error) {
			return []services.OrderView{{ID: "o1", ProductTitle: "Vase", Buyer: "Asha", Amount: "₹450.00", Status: "confirmed", Quantity: 1}}, nil
		},
	}
	router := newArtisanRouter(NewArtisanHandlers(nil, &stubProfileService{}, nil, orders))

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/artisans/me/orders", nil), &auth.Identity{UID: "artist-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload ordersPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(payload.Orders) != 1 || payload.Orders[0].Amount != "₹450.00" {
		t.Fatalf("unexpected orders %+v", payload.Orders)
	}
}
