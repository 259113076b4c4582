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

const maxReviewBodySize = 32 * 1024

// ReviewHandlers exposes listing reviews.
type ReviewHandlers struct {
	guard   *Guard
	reviews services.ReviewService
}

// NewReviewHandlers constructs a new ReviewHandlers instance.
func NewReviewHandlers(guard *Guard, reviews services.ReviewService) *ReviewHandlers {
	return &ReviewHandlers{guard: guard, reviews: reviews}
}

// Routes registers the review endpoints below a listing. Mount it on the /listings group.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{listingId}/reviews", h.listReviews)
	r.With(h.guard.Require()...).Post("/{listingId}/reviews", h.createReview)
}

type createReviewRequest struct {
	Rating    int    `json:"rating" validate:"required,min=1,max=5"`
	Comment   string `json:"comment" validate:"required,max=5000"`
	UserName  string `json:"userName" validate:"omitempty,max=200"`
	UserEmail string `json:"userEmail" validate:"omitempty,email"`
}

type reviewResponse struct {
	Message string        `json:"message"`
	Review  reviewPayload `json:"review"`
}

type reviewsResponse struct {
	Reviews []reviewPayload `json:"reviews"`
}

func (h *ReviewHandlers) createReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createReviewRequest
	if !decodeJSONBody(w, r, maxReviewBodySize, &req) {
		return
	}

	userName := firstNonBlank(req.UserName, identity.DisplayName, identity.Email)
	userEmail := firstNonBlank(identity.Email, req.UserEmail)

	review, err := h.reviews.Create(ctx, services.CreateReviewCommand{
		ListingID: chi.URLParam(r, "listingId"),
		UserID:    identity.UID,
		UserName:  userName,
		UserEmail: userEmail,
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, reviewResponse{
		Message: "Review added successfully",
		Review:  buildReviewPayload(review),
	})
}

func (h *ReviewHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	reviews, err := h.reviews.List(ctx, chi.URLParam(r, "listingId"))
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	payload := reviewsResponse{Reviews: make([]reviewPayload, 0, len(reviews))}
	for _, review := range reviews {
		payload.Reviews = append(payload.Reviews, buildReviewPayload(review))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func writeReviewError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrReviewInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_review", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrReviewNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("listing_not_found", "listing not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("review_error", "failed to process review request", http.StatusInternalServerError))
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
