package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalamitra/api/internal/platform/auth"
	"github.com/kalamitra/api/internal/services"
)

func TestOrderHandlersListForCaller(t *testing.T) {
	tracking := "TRK123"
	var gotEmail string
	orders := &stubOrderService{
		buyerFunc: func(_ context.Context, email string) ([]services.OrderView, error) {
			gotEmail = email
			return []services.OrderView{{
				ID:              "o1",
				ProductTitle:    "Vase",
				ProductImage:    "/placeholder.svg",
				Buyer:           "Asha",
				Amount:          "₹450.00",
				Status:          "pending",
				Date:            "2024-05-01T08:00:00Z",
				Quantity:        1,
				ShippingAddress: "N/A",
				PaymentMethod:   "N/A",
				TrackingNumber:  &tracking,
			}}, nil
		},
	}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(nil, orders).Routes))

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/orders", nil), &auth.Identity{UID: "u1", Email: "Asha@Example.com"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotEmail != "asha@example.com" {
		t.Fatalf("expected lower-cased caller email, got %q", gotEmail)
	}
	var payload struct {
		Orders []map[string]any `json:"orders"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(payload.Orders) != 1 {
		t.Fatalf("expected one order, got %d", len(payload.Orders))
	}
	order := payload.Orders[0]
	if order["productTitle"] != "Vase" || order["trackingNumber"] != "TRK123" || order["quantity"] != float64(1) {
		t.Fatalf("unexpected order %v", order)
	}
	if _, present := order["deliveredDate"]; present {
		t.Fatalf("expected deliveredDate omitted")
	}
}

func TestOrderHandlersEmailOverride(t *testing.T) {
	var gotEmail string
	orders := &stubOrderService{
		buyerFunc: func(_ context.Context, email string) ([]services.OrderView, error) {
			gotEmail = email
			return nil, nil
		},
	}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(nil, orders).Routes))

	tests := []struct {
		name      string
		identity  *auth.Identity
		want      int
		wantEmail string
	}{
		{name: "buyer asking for another buyer", identity: &auth.Identity{UID: "u1", Email: "a@example.com"}, want: http.StatusForbidden},
		{name: "buyer asking for self", identity: &auth.Identity{UID: "u1", Email: "other@example.com"}, want: http.StatusOK, wantEmail: "other@example.com"},
		{name: "admin", identity: &auth.Identity{UID: "root", Email: "ops@example.com", Roles: []string{auth.RoleAdmin}}, want: http.StatusOK, wantEmail: "other@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotEmail = ""
			req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/orders?email=Other@example.com", nil), tt.identity)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rr.Code)
			}
			if gotEmail != tt.wantEmail {
				t.Fatalf("expected email %q, got %q", tt.wantEmail, gotEmail)
			}
		})
	}
}

func TestOrderHandlersErrors(t *testing.T) {
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(nil, &stubOrderService{
		buyerFunc: func(context.Context, string) ([]services.OrderView, error) {
			return nil, errors.New("mongo down")
		},
	}).Routes))

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/orders", nil), &auth.Identity{UID: "u1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 without email, got %d", rr.Code)
	}

	req = withIdentity(httptest.NewRequest(http.MethodGet, "/api/orders", nil), &auth.Identity{UID: "u1", Email: "a@example.com"})
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}
