package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalamitra/api/internal/platform/httpx"
	"github.com/kalamitra/api/internal/platform/requestctx"
	"github.com/kalamitra/api/internal/services"
)

// OrderHandlers exposes the buyer's order history.
type OrderHandlers struct {
	guard  *Guard
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(guard *Guard, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{guard: guard, orders: orders}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(h.guard.Require()...).Get("/", h.listOrders)
}

// listOrders returns the caller's orders. Admins may look up another buyer with ?email=.
func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	email := strings.TrimSpace(identity.Email)
	if requested := strings.TrimSpace(r.URL.Query().Get("email")); requested != "" && !strings.EqualFold(requested, email) {
		if !identity.IsAdmin() {
			httpx.WriteError(ctx, w, httpx.NewError("forbidden", "orders of other buyers are not visible", http.StatusForbidden))
			return
		}
		email = requested
		requestctx.Annotate(ctx, "email", email)
	}
	if email == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "account has no email address", http.StatusBadRequest))
		return
	}

	views, err := h.orders.ListForBuyer(ctx, strings.ToLower(email))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrdersPayload(views))
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to fetch orders", http.StatusInternalServerError))
	}
}
