package domain

import (
	"time"
)

// ListingStatus describes the publication state of a marketplace listing.
type ListingStatus string

const (
	// ListingStatusActive marks a listing visible in the marketplace.
	ListingStatusActive ListingStatus = "active"
	// ListingStatusInactive hides a listing without removing it.
	ListingStatusInactive ListingStatus = "inactive"
	// ListingStatusDraft marks a listing still being prepared by the artisan.
	ListingStatusDraft ListingStatus = "draft"
	// ListingStatusPublished is the legacy alias of active used by older clients.
	ListingStatusPublished ListingStatus = "published"
)

// Valid reports whether the status is one of the accepted listing states.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusActive, ListingStatusInactive, ListingStatusDraft, ListingStatusPublished:
		return true
	default:
		return false
	}
}

// Listing is the canonical, fully-defaulted projection of a stored listing document.
type Listing struct {
	ID             string
	Title          string
	Description    string
	Tags           []string
	Category       string
	SuggestedPrice string
	Price          float64
	OriginalPrice  float64
	Story          string
	ImageIDs       []string
	Images         []string
	ArtistID       *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Status         ListingStatus
	AIGenerated    bool
	AIMetadata     map[string]any
	InStock        bool
	StockCount     int
	Features       []string
	Specifications map[string]string
	Reviews        []Review
	ShippingInfo   map[string]string
	Transcription  string
}

// Review captures buyer feedback embedded in a listing.
type Review struct {
	ID        string
	UserID    string
	UserName  string
	UserEmail *string
	Rating    int
	Comment   string
	Date      string
	Verified  bool
}

// ArtisanSummary is the public card shown next to a listing.
type ArtisanSummary struct {
	Name       string
	Location   string
	Experience string
	Rating     float64
	Bio        string
	Avatar     string
}

// ListingDetail bundles a listing with the artisan who made it.
type ListingDetail struct {
	Listing Listing
	Artisan ArtisanSummary
}

// ListingVerification is the light-weight existence probe used after uploads.
type ListingVerification struct {
	ListingID string
	Title     string
	Status    ListingStatus
	CreatedAt time.Time
	ArtistID  *string
	Exists    bool
}

// ListingPage packages an offset-paginated slice of listings.
type ListingPage = OffsetPage[Listing]

// OffsetPage packages list results paged by skip/limit. Limit reports the number of items actually returned.
type OffsetPage[T any] struct {
	Items []T
	Total int64
	Skip  int
	Limit int
}

// Image holds the bytes of a stored listing image.
type Image struct {
	ID          string
	Data        []byte
	ContentType string
	Filename    string
}

// ImageUpload is an incoming image attached to a new listing.
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// GeneratedListing is the structured content produced for a new listing from the artisan's voice note and photos.
type GeneratedListing struct {
	Title          string
	Description    string
	Tags           []string
	Category       string
	SuggestedPrice string
	Story          string
	Features       []string
	Specifications map[string]string
	InStock        bool
	StockCount     int
	ShippingInfo   map[string]string
	FallbackUsed   bool
	Model          string
	GeneratedAt    time.Time
}

// Role names carried in the Firebase custom claim.
const (
	RoleBuyer   = "buyer"
	RoleArtisan = "artisan"
	RoleAdmin   = "admin"
)

// UserProfile captures the stored profile for a Firebase Auth user.
type UserProfile struct {
	ID             string
	DisplayName    string
	Email          string
	PhoneNumber    string
	Address        string
	ProfilePicture string
	Role           string
	IsActive       bool
	Artisan        *ArtisanDetails
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ArtisanDetails extends a profile with the fields artisans publish.
type ArtisanDetails struct {
	Bio               string
	Specialization    string
	PortfolioURL      string
	YearsOfExperience int
	Rating            float64
}

// OrderStatus enumerates order lifecycle states.
type OrderStatus string

const (
	// OrderStatusPending is the state before payment completes.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed follows a completed checkout.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped marks a handed-over parcel.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered marks a received parcel.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCanceled marks an abandoned or refunded order.
	OrderStatusCanceled OrderStatus = "canceled"
)

// Order is a purchase of one listing.
type Order struct {
	ID                string
	ProductID         string
	ArtistID          string
	BuyerID           string
	BuyerEmail        string
	TotalAmount       float64
	Quantity          int
	Status            OrderStatus
	OrderDate         time.Time
	ShippingAddress   string
	PaymentMethod     string
	TrackingNumber    *string
	EstimatedDelivery *string
	DeliveredDate     *string
	CheckoutSessionID string
	PaymentIntentID   string
}

// OrderView is the display projection of an order.
type OrderView struct {
	ID                string
	ProductTitle      string
	ProductImage      string
	Buyer             string
	Amount            string
	Status            string
	Date              string
	Quantity          int
	ShippingAddress   string
	PaymentMethod     string
	TrackingNumber    *string
	EstimatedDelivery *string
	DeliveredDate     *string
}

// CheckoutSession is returned to clients to continue payment on the PSP hosted page.
type CheckoutSession struct {
	SessionID string
	URL       string
	OrderID   string
	ExpiresAt time.Time
}

// Category is one node of the marketplace taxonomy.
type Category struct {
	Name          string
	Subcategories []string
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// Event is a domain event emitted after a successful state change.
type Event struct {
	ID          string
	Type        string
	AggregateID string
	OccurredAt  time.Time
	Payload     map[string]any
}

// Event types published by the marketplace.
const (
	EventListingCreated       = "listing.created"
	EventListingStatusChanged = "listing.status_changed"
	EventListingDeleted       = "listing.deleted"
	EventReviewCreated        = "review.created"
	EventOrderCreated         = "order.created"
	EventOrderPaid            = "order.paid"
	EventUserRegistered       = "user.registered"
)
