package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalamitra/api/internal/platform/auth"
	"github.com/kalamitra/api/internal/platform/httpx"
	"github.com/kalamitra/api/internal/platform/pagination"
	"github.com/kalamitra/api/internal/services"
)

const (
	maxListingUploadBytes = 64 << 20
	maxListingFormMemory  = 32 << 20
	maxListingStatusBody  = 1024
	listingImageCacheTTL  = 86400
)

var listingFilters = []string{"category", "artist_id", "status"}

// ListingHandlers serves the marketplace catalogue and the artisan upload flow.
type ListingHandlers struct {
	guard       *Guard
	listings    services.ListingService
	uploadLimit int64
}

// ListingOption customises listing handlers.
type ListingOption func(*ListingHandlers)

// WithUploadLimit caps the size of a multipart listing upload.
func WithUploadLimit(bytes int64) ListingOption {
	return func(h *ListingHandlers) {
		if bytes > 0 {
			h.uploadLimit = bytes
		}
	}
}

// NewListingHandlers constructs listing handlers.
func NewListingHandlers(guard *Guard, listings services.ListingService, opts ...ListingOption) *ListingHandlers {
	h := &ListingHandlers{guard: guard, listings: listings, uploadLimit: maxListingUploadBytes}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /listings endpoints.
func (h *ListingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.list)
	r.With(h.guard.Require(auth.RoleArtisan, auth.RoleAdmin)...).Post("/", h.create)
	r.Get("/{listingId}", h.get)
	r.With(h.guard.Require(auth.RoleArtisan, auth.RoleAdmin)...).Delete("/{listingId}", h.delete)
	r.With(h.guard.Require(auth.RoleArtisan, auth.RoleAdmin)...).Patch("/{listingId}/status", h.updateStatus)
	r.Get("/{listingId}/verify", h.verify)
	r.Get("/{listingId}/images/{imageId}", h.image)
}

func (h *ListingHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.listings == nil {
		serviceUnavailable(ctx, w, "listing")
		return
	}
	params, err := pagination.FromRequest(r, pagination.Options{AllowedFilters: listingFilters})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_query", err.Error(), http.StatusBadRequest))
		return
	}
	page, err := h.listings.List(ctx, services.ListingFilter{
		Skip:     params.Skip,
		Limit:    params.Limit,
		Category: params.Filters["category"],
		ArtistID: params.Filters["artist_id"],
		Status:   params.Filters["status"],
	})
	if err != nil {
		writeListingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildListingPagePayload(page))
}

type listingResponse struct {
	Listing listingDetailPayload `json:"listing"`
}

func (h *ListingHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.listings == nil {
		serviceUnavailable(ctx, w, "listing")
		return
	}
	detail, err := h.listings.Get(ctx, chi.URLParam(r, "listingId"))
	if err != nil {
		writeListingError(ctx, w, err)
		return
	}
	a := detail.Artisan
	writeJSONResponse(w, http.StatusOK, listingResponse{Listing: listingDetailPayload{
		listingPayload: buildListingPayload(detail.Listing),
		Artisan: artisanSummaryPayload{
			Name:       a.Name,
			Location:   a.Location,
			Experience: a.Experience,
			Rating:     a.Rating,
			Bio:        a.Bio,
			Avatar:     a.Avatar,
		},
	}})
}

type generatedContentPayload struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Tags           []string `json:"tags"`
	Category       string   `json:"category"`
	SuggestedPrice string   `json:"suggestedPrice"`
	Story          string   `json:"story"`
}

type createListingResponse struct {
	Message   string                  `json:"message"`
	ListingID string                  `json:"listing_id"`
	ImageIDs  []string                `json:"image_ids"`
	AIListing generatedContentPayload `json:"ai_listing"`
	CreatedAt string                  `json:"created_at"`
	Status    string                  `json:"status"`
	Listing   listingPayload          `json:"listing"`
}

func (h *ListingHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.listings == nil {
		serviceUnavailable(ctx, w, "listing")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.uploadLimit)
	if err := r.ParseMultipartForm(maxListingFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "upload exceeds allowed size", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "multipart form data is required", http.StatusBadRequest))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	transcription := strings.TrimSpace(r.FormValue("transcription"))
	if transcription == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "transcription is required", http.StatusBadRequest))
		return
	}
	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "at least one image is required", http.StatusBadRequest))
		return
	}
	uploads := make([]services.ImageUpload, 0, len(files))
	for _, fh := range files {
		upload, err := readImageUpload(fh)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		uploads = append(uploads, upload)
	}

	listing, err := h.listings.Create(ctx, services.CreateListingCommand{
		ArtistID:      identity.UID,
		Transcription: transcription,
		Images:        uploads,
	})
	if err != nil {
		writeListingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, createListingResponse{
		Message:   "Listing created successfully",
		ListingID: listing.ID,
		ImageIDs:  nonNilStrings(listing.ImageIDs),
		AIListing: generatedContentPayload{
			Title:          listing.Title,
			Description:    listing.Description,
			Tags:           nonNilStrings(listing.Tags),
			Category:       listing.Category,
			SuggestedPrice: listing.SuggestedPrice,
			Story:          listing.Story,
		},
		CreatedAt: formatTime(listing.CreatedAt),
		Status:    "success",
		Listing:   buildListingPayload(listing),
	})
}

func readImageUpload(fh *multipart.FileHeader) (services.ImageUpload, error) {
	file, err := fh.Open()
	if err != nil {
		return services.ImageUpload{}, fmt.Errorf("file %s could not be read", fh.Filename)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return services.ImageUpload{}, fmt.Errorf("file %s could not be read", fh.Filename)
	}
	contentType := strings.TrimSpace(fh.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return services.ImageUpload{
		Filename:    fh.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive draft published"`
}

type updateStatusResponse struct {
	Message string         `json:"message"`
	Listing listingPayload `json:"listing"`
}

// updateStatus accepts the new status as a query parameter or a JSON body.
func (h *ListingHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.listings == nil {
		serviceUnavailable(ctx, w, "listing")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	req := updateStatusRequest{Status: strings.TrimSpace(r.URL.Query().Get("status"))}
	if req.Status == "" {
		if !decodeJSONBody(w, r, maxListingStatusBody, &req) {
			return
		}
	} else if err := validate.Struct(req); err != nil {
		writeValidationError(ctx, w, err)
		return
	}

	listing, err := h.listings.UpdateStatus(ctx, services.UpdateListingStatusCommand{
		ListingID: chi.URLParam(r, "listingId"),
		ActorID:   identity.UID,
		IsAdmin:   identity.IsAdmin(),
		Status:    services.ListingStatus(req.Status),
	})
	if err != nil {
		writeListingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, updateStatusResponse{
		Message: "Listing status updated to " + string(listing.Status),
		Listing: buildListingPayload(listing),
	})
}

type verifyListingResponse struct {
	ListingID string  `json:"listing_id"`
	Title     string  `json:"title"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
	ArtistID  *string `json:"artist_id"`
	Exists    bool    `json:"exists"`
}

func (h *ListingHandlers) verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.listings == nil {
		serviceUnavailable(ctx, w, "listing")
		return
	}
	v, err := h.listings.Verify(ctx, chi.URLParam(r, "listingId"))
	if err != nil {
		writeListingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, verifyListingResponse{
		ListingID: v.ListingID,
		Title:     v.Title,
		Status:    string(v.Status),
		CreatedAt: formatTime(v.CreatedAt),
		ArtistID:  v.ArtistID,
		Exists:    v.Exists,
	})
}

func (h *ListingHandlers) image(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.listings == nil {
		serviceUnavailable(ctx, w, "listing")
		return
	}
	img, err := h.listings.GetImage(ctx, chi.URLParam(r, "listingId"), chi.URLParam(r, "imageId"))
	if err != nil {
		writeListingError(ctx, w, err)
		return
	}
	header := w.Header()
	header.Set("Content-Type", img.ContentType)
	header.Set("Content-Length", strconv.Itoa(len(img.Data)))
	header.Set("Cache-Control", "public, max-age="+strconv.Itoa(listingImageCacheTTL))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

func (h *ListingHandlers) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.listings == nil {
		serviceUnavailable(ctx, w, "listing")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	err := h.listings.Delete(ctx, services.DeleteListingCommand{
		ListingID: chi.URLParam(r, "listingId"),
		ActorID:   identity.UID,
		IsAdmin:   identity.IsAdmin(),
	})
	if err != nil {
		writeListingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, messagePayload{Message: "Listing deleted successfully"})
}

func writeListingError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrListingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrListingNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("listing_not_found", "listing not found", http.StatusNotFound))
	case errors.Is(err, services.ErrListingForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "listing belongs to another artisan", http.StatusForbidden))
	case errors.Is(err, services.ErrListingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("listing_unavailable", "listing store unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("listing_error", "failed to process listing request", http.StatusInternalServerError))
	}
}
