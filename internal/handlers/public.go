package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalamitra/api/internal/domain"
)

// CategorySource supplies the marketplace category tree.
type CategorySource interface {
	Categories() []domain.Category
}

// PublicHandlers serves unauthenticated reference data.
type PublicHandlers struct {
	categories CategorySource
}

// NewPublicHandlers constructs public handlers.
func NewPublicHandlers(categories CategorySource) *PublicHandlers {
	return &PublicHandlers{categories: categories}
}

// Routes registers the /public endpoints.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/categories", h.listCategories)
}

type categoryPayload struct {
	Name          string   `json:"name"`
	Subcategories []string `json:"subcategories"`
}

type categoriesResponse struct {
	Categories []categoryPayload `json:"categories"`
}

func (h *PublicHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	if h.categories == nil {
		serviceUnavailable(r.Context(), w, "taxonomy")
		return
	}
	categories := h.categories.Categories()
	resp := categoriesResponse{Categories: make([]categoryPayload, 0, len(categories))}
	for _, c := range categories {
		resp.Categories = append(resp.Categories, categoryPayload{
			Name:          c.Name,
			Subcategories: nonNilStrings(c.Subcategories),
		})
	}
	writeJSONResponse(w, http.StatusOK, resp)
}
