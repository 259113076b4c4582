package repositories

import (
	"context"
	"time"

	"github.com/kalamitra/api/internal/catalog"
	domain "github.com/kalamitra/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ListingQuery selects a page of stored listings. Empty string fields do not filter.
type ListingQuery struct {
	Skip     int
	Limit    int
	Category string
	ArtistID string
	Status   string
}

// ListingRepository stores raw listing documents. Documents are returned exactly as decoded so that
// normalization happens in one place.
type ListingRepository interface {
	Find(ctx context.Context, query ListingQuery) ([]catalog.Document, error)
	Count(ctx context.Context, query ListingQuery) (int64, error)
	FindByID(ctx context.Context, listingID string) (catalog.Document, error)
	FindByIDs(ctx context.Context, listingIDs []string) (map[string]catalog.Document, error)
	Insert(ctx context.Context, doc catalog.Document) (string, error)
	UpdateStatus(ctx context.Context, listingID string, status domain.ListingStatus, updatedAt time.Time) error
	AppendReview(ctx context.Context, listingID string, review map[string]any, updatedAt time.Time) error
	AdjustStock(ctx context.Context, listingID string, delta int) error
	Delete(ctx context.Context, listingID string) error
}

// ImageStore persists listing image bytes.
type ImageStore interface {
	Put(ctx context.Context, upload domain.ImageUpload) (string, error)
	Get(ctx context.Context, imageID string) (domain.Image, error)
	Delete(ctx context.Context, imageID string) error
}

// OrderPaymentUpdate records the outcome of a completed checkout.
type OrderPaymentUpdate struct {
	Status          domain.OrderStatus
	PaymentMethod   string
	PaymentIntentID string
	PaidAt          time.Time
}

// OrderRepository persists marketplace orders.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByBuyerEmail(ctx context.Context, email string) ([]domain.Order, error)
	FindByArtist(ctx context.Context, artistID string) ([]domain.Order, error)
	FindByCheckoutSession(ctx context.Context, sessionID string) (domain.Order, error)
	AttachCheckoutSession(ctx context.Context, orderID, sessionID string) error
	// MarkPaid moves a pending order to update.Status. The bool is false when the order had already
	// left pending, in which case the stored order is returned untouched.
	MarkPaid(ctx context.Context, orderID string, update OrderPaymentUpdate) (domain.Order, bool, error)
}

// UserRepository persists user profiles keyed by Firebase UID.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
	Create(ctx context.Context, profile domain.UserProfile) error
	Update(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
	UpdateArtisan(ctx context.Context, userID string, mutate func(*domain.UserProfile) error) (domain.UserProfile, error)
	Delete(ctx context.Context, userID string) error
}

// HealthRepository aggregates dependency probes for readiness.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
