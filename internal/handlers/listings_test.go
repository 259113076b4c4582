package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/kalamitra/api/internal/platform/auth"
	"github.com/kalamitra/api/internal/services"
)

func newListingRouter(listings services.ListingService) http.Handler {
	handler := NewListingHandlers(nil, listings)
	return NewRouter(WithListingRoutes(handler.Routes))
}

func TestListingHandlersListPassesFilters(t *testing.T) {
	var captured services.ListingFilter
	svc := &stubListingService{
		listFunc: func(_ context.Context, filter services.ListingFilter) (services.ListingPage, error) {
			captured = filter
			return services.ListingPage{
				Items: []services.Listing{{ID: "l1", Title: "Vase", Status: "active"}},
				Total: 7,
				Skip:  filter.Skip,
				Limit: 1,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/listings?skip=5&limit=10&category=Pottery&artist_id=a1", nil)
	rr := httptest.NewRecorder()
	newListingRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Skip != 5 || captured.Limit != 10 {
		t.Fatalf("expected skip 5 limit 10, got %+v", captured)
	}
	if captured.Category != "Pottery" || captured.ArtistID != "a1" {
		t.Fatalf("expected filters forwarded, got %+v", captured)
	}

	var body struct {
		Listings []map[string]any `json:"listings"`
		Total    int64            `json:"total"`
		Skip     int              `json:"skip"`
		Limit    int              `json:"limit"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Total != 7 || body.Skip != 5 || body.Limit != 1 {
		t.Fatalf("unexpected page metadata %+v", body)
	}
	if len(body.Listings) != 1 || body.Listings[0]["id"] != "l1" {
		t.Fatalf("unexpected listings %v", body.Listings)
	}
	if tags, ok := body.Listings[0]["tags"].([]any); !ok || len(tags) != 0 {
		t.Fatalf("expected empty tags array, got %v", body.Listings[0]["tags"])
	}
}

func TestListingHandlersListRejectsBadLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/listings?limit=abc", nil)
	rr := httptest.NewRecorder()
	newListingRouter(&stubListingService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestListingHandlersGetIncludesArtisan(t *testing.T) {
	artist := "artist-1"
	svc := &stubListingService{
		getFunc: func(_ context.Context, id string) (services.ListingDetail, error) {
			if id != "l1" {
				t.Fatalf("expected listing id l1, got %s", id)
			}
			return services.ListingDetail{
				Listing: services.Listing{ID: "l1", Title: "Vase", ArtistID: &artist, Price: 450},
				Artisan: services.ArtisanSummary{Name: "Meera", Location: "N/A", Experience: "5 years", Rating: 4.5, Bio: "Potter", Avatar: "/placeholder.svg"},
			}, nil
		},
	}

	rr := httptest.NewRecorder()
	newListingRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/listings/l1", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body struct {
		Listing map[string]any `json:"listing"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Listing["id"] != "l1" || body.Listing["artist_id"] != artist {
		t.Fatalf("unexpected listing %v", body.Listing)
	}
	artisan, ok := body.Listing["artisan"].(map[string]any)
	if !ok || artisan["name"] != "Meera" {
		t.Fatalf("expected artisan card, got %v", body.Listing["artisan"])
	}
}

func TestListingHandlersGetNotFound(t *testing.T) {
	rr := httptest.NewRecorder()
	newListingRouter(&stubListingService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/listings/missing", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["error"] != "listing_not_found" {
		t.Fatalf("expected listing_not_found, got %v", body["error"])
	}
}

func newListingUpload(t *testing.T, transcription string, images map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	if transcription != "" {
		if err := writer.WriteField("transcription", transcription); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for name, contentType := range images {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="images"; filename="`+name+`"`)
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write([]byte("\x89PNG\r\n\x1a\nfake")); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return buf, writer.FormDataContentType()
}

func TestListingHandlersCreate(t *testing.T) {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	var captured services.CreateListingCommand
	svc := &stubListingService{
		createFunc: func(_ context.Context, cmd services.CreateListingCommand) (services.Listing, error) {
			captured = cmd
			return services.Listing{
				ID:             "l9",
				Title:          "Blue Vase",
				Tags:           []string{"Handmade"},
				Category:       "Pottery",
				SuggestedPrice: "₹450",
				Price:          450,
				ImageIDs:       []string{"img1"},
				Status:         "active",
				CreatedAt:      created,
			}, nil
		},
	}

	body, contentType := newListingUpload(t, " A blue vase ", map[string]string{"vase.png": "image/png"})
	req := httptest.NewRequest(http.MethodPost, "/api/listings", body)
	req.Header.Set("Content-Type", contentType)
	req = withIdentity(req, &auth.Identity{UID: "artist-1", Roles: []string{auth.RoleArtisan}})
	rr := httptest.NewRecorder()
	newListingRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ArtistID != "artist-1" {
		t.Fatalf("expected artist id from identity, got %s", captured.ArtistID)
	}
	if captured.Transcription != "A blue vase" {
		t.Fatalf("expected trimmed transcription, got %q", captured.Transcription)
	}
	if len(captured.Images) != 1 || captured.Images[0].ContentType != "image/png" || captured.Images[0].Filename != "vase.png" {
		t.Fatalf("unexpected uploads %+v", captured.Images)
	}

	var resp struct {
		ListingID string         `json:"listing_id"`
		ImageIDs  []string       `json:"image_ids"`
		Status    string         `json:"status"`
		CreatedAt string         `json:"created_at"`
		AIListing map[string]any `json:"ai_listing"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ListingID != "l9" || resp.Status != "success" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.CreatedAt != "2024-05-01T08:00:00Z" {
		t.Fatalf("expected created_at RFC3339, got %s", resp.CreatedAt)
	}
	if resp.AIListing["suggestedPrice"] != "₹450" || resp.AIListing["title"] != "Blue Vase" {
		t.Fatalf("unexpected ai_listing %v", resp.AIListing)
	}
}

func TestListingHandlersCreateValidation(t *testing.T) {
	tests := []struct {
		name          string
		transcription string
		images        map[string]string
		identity      *auth.Identity
		want          int
	}{
		{name: "unauthenticated", transcription: "vase", images: map[string]string{"a.png": "image/png"}, want: http.StatusUnauthorized},
		{name: "missing transcription", images: map[string]string{"a.png": "image/png"}, identity: &auth.Identity{UID: "a1"}, want: http.StatusBadRequest},
		{name: "missing images", transcription: "vase", identity: &auth.Identity{UID: "a1"}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &stubListingService{
				createFunc: func(context.Context, services.CreateListingCommand) (services.Listing, error) {
					called = true
					return services.Listing{}, nil
				},
			}
			body, contentType := newListingUpload(t, tt.transcription, tt.images)
			req := httptest.NewRequest(http.MethodPost, "/api/listings", body)
			req.Header.Set("Content-Type", contentType)
			if tt.identity != nil {
				req = withIdentity(req, tt.identity)
			}
			rr := httptest.NewRecorder()
			newListingRouter(svc).ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rr.Code)
			}
			if called {
				t.Fatalf("expected service not to be called")
			}
		})
	}
}

func TestListingHandlersCreateRejectsNonMultipart(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/listings", strings.NewReader(`{"transcription":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req = withIdentity(req, &auth.Identity{UID: "a1"})
	rr := httptest.NewRecorder()
	newListingRouter(&stubListingService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestListingHandlersCreateEnforcesUploadLimit(t *testing.T) {
	called := false
	svc := &stubListingService{
		createFunc: func(context.Context, services.CreateListingCommand) (services.Listing, error) {
			called = true
			return services.Listing{}, nil
		},
	}
	router := NewRouter(WithListingRoutes(NewListingHandlers(nil, svc, WithUploadLimit(64)).Routes))

	body, contentType := newListingUpload(t, strings.Repeat("long story ", 20), map[string]string{"vase.png": "image/png"})
	req := httptest.NewRequest(http.MethodPost, "/api/listings", body)
	req.Header.Set("Content-Type", contentType)
	req = withIdentity(req, &auth.Identity{UID: "a1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d", rr.Code)
	}
	if called {
		t.Fatalf("expected service not to be called")
	}
}

func TestListingHandlersCreateMapsServiceError(t *testing.T) {
	svc := &stubListingService{
		createFunc: func(context.Context, services.CreateListingCommand) (services.Listing, error) {
			return services.Listing{}, services.ErrListingInvalidInput
		},
	}
	body, contentType := newListingUpload(t, "vase", map[string]string{"notes.txt": "text/plain"})
	req := httptest.NewRequest(http.MethodPost, "/api/listings", body)
	req.Header.Set("Content-Type", contentType)
	req = withIdentity(req, &auth.Identity{UID: "a1"})
	rr := httptest.NewRecorder()
	newListingRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestListingHandlersUpdateStatus(t *testing.T) {
	var captured services.UpdateListingStatusCommand
	svc := &stubListingService{
		updateStatusFunc: func(_ context.Context, cmd services.UpdateListingStatusCommand) (services.Listing, error) {
			captured = cmd
			return services.Listing{ID: cmd.ListingID, Status: cmd.Status}, nil
		},
	}

	t.Run("query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/api/listings/l1/status?status=inactive", nil)
		req = withIdentity(req, &auth.Identity{UID: "artist-1", Roles: []string{auth.RoleArtisan}})
		rr := httptest.NewRecorder()
		newListingRouter(svc).ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if captured.ListingID != "l1" || captured.ActorID != "artist-1" || captured.Status != "inactive" || captured.IsAdmin {
			t.Fatalf("unexpected command %+v", captured)
		}
	})

	t.Run("json body from admin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/api/listings/l2/status", strings.NewReader(`{"status":"published"}`))
		req = withIdentity(req, &auth.Identity{UID: "root", Roles: []string{auth.RoleAdmin}})
		rr := httptest.NewRecorder()
		newListingRouter(svc).ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if !captured.IsAdmin || captured.Status != "published" {
			t.Fatalf("unexpected command %+v", captured)
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/api/listings/l1/status?status=sold", nil)
		req = withIdentity(req, &auth.Identity{UID: "artist-1"})
		rr := httptest.NewRecorder()
		newListingRouter(svc).ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("other artisan", func(t *testing.T) {
		forbidden := &stubListingService{
			updateStatusFunc: func(context.Context, services.UpdateListingStatusCommand) (services.Listing, error) {
				return services.Listing{}, services.ErrListingForbidden
			},
		}
		req := httptest.NewRequest(http.MethodPatch, "/api/listings/l1/status?status=draft", nil)
		req = withIdentity(req, &auth.Identity{UID: "intruder"})
		rr := httptest.NewRecorder()
		newListingRouter(forbidden).ServeHTTP(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected status 403, got %d", rr.Code)
		}
	})
}

func TestListingHandlersVerify(t *testing.T) {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	svc := &stubListingService{
		verifyFunc: func(_ context.Context, id string) (services.ListingVerification, error) {
			return services.ListingVerification{ListingID: id, Title: "Vase", Status: "active", CreatedAt: created, Exists: true}, nil
		},
	}

	rr := httptest.NewRecorder()
	newListingRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/listings/l1/verify", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["exists"] != true || body["listing_id"] != "l1" {
		t.Fatalf("unexpected body %v", body)
	}
	if v, present := body["artist_id"]; !present || v != nil {
		t.Fatalf("expected artist_id null, got %v", v)
	}
}

func TestListingHandlersImage(t *testing.T) {
	svc := &stubListingService{
		imageFunc: func(_ context.Context, listingID, imageID string) (services.Image, error) {
			if listingID != "l1" || imageID != "img1" {
				return services.Image{}, services.ErrListingNotFound
			}
			return services.Image{Data: []byte("jpegbytes"), ContentType: "image/jpeg"}, nil
		},
	}

	rr := httptest.NewRecorder()
	newListingRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/listings/l1/images/img1", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("expected image/jpeg, got %s", ct)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "public, max-age=86400" {
		t.Fatalf("unexpected cache-control %s", cc)
	}
	if rr.Body.String() != "jpegbytes" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	newListingRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/listings/l2/images/img1", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for foreign image, got %d", rr.Code)
	}
}

func TestListingHandlersDelete(t *testing.T) {
	var captured services.DeleteListingCommand
	svc := &stubListingService{
		deleteFunc: func(_ context.Context, cmd services.DeleteListingCommand) error {
			captured = cmd
			return nil
		},
	}

	req := withIdentity(httptest.NewRequest(http.MethodDelete, "/api/listings/l1", nil), &auth.Identity{UID: "artist-1"})
	rr := httptest.NewRecorder()
	newListingRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.ListingID != "l1" || captured.ActorID != "artist-1" {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestListingHandlersUnavailableStore(t *testing.T) {
	svc := &stubListingService{
		listFunc: func(context.Context, services.ListingFilter) (services.ListingPage, error) {
			return services.ListingPage{}, services.ErrListingUnavailable
		},
	}
	rr := httptest.NewRecorder()
	newListingRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/listings", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
