package services

import (
	"context"
	"time"

	domain "github.com/kalamitra/api/internal/domain"
	"github.com/kalamitra/api/internal/platform/auth"
	"github.com/kalamitra/api/internal/platform/mail"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Listing             = domain.Listing
	ListingDetail       = domain.ListingDetail
	ListingPage         = domain.ListingPage
	ListingVerification = domain.ListingVerification
	ListingStatus       = domain.ListingStatus
	GeneratedListing    = domain.GeneratedListing
	Image               = domain.Image
	ImageUpload         = domain.ImageUpload
	Review              = domain.Review
	Order               = domain.Order
	OrderView           = domain.OrderView
	CheckoutSession     = domain.CheckoutSession
	UserProfile         = domain.UserProfile
	ArtisanDetails      = domain.ArtisanDetails
	ArtisanSummary      = domain.ArtisanSummary
	SystemHealthReport  = domain.SystemHealthReport
)

// ListingService exposes marketplace listings to buyers and artisans.
type ListingService interface {
	List(ctx context.Context, filter ListingFilter) (ListingPage, error)
	Get(ctx context.Context, listingID string) (ListingDetail, error)
	Create(ctx context.Context, cmd CreateListingCommand) (Listing, error)
	UpdateStatus(ctx context.Context, cmd UpdateListingStatusCommand) (Listing, error)
	Verify(ctx context.Context, listingID string) (ListingVerification, error)
	GetImage(ctx context.Context, listingID, imageID string) (Image, error)
	Delete(ctx context.Context, cmd DeleteListingCommand) error
	ListByArtist(ctx context.Context, artistID string, skip, limit int) (ListingPage, error)
}

// ListingGenerator drafts listing content from an artisan's voice note and photos.
type ListingGenerator interface {
	Generate(ctx context.Context, cmd GenerateListingCommand) (GeneratedListing, error)
}

// ReviewService records buyer reviews on listings.
type ReviewService interface {
	Create(ctx context.Context, cmd CreateReviewCommand) (Review, error)
	List(ctx context.Context, listingID string) ([]Review, error)
}

// OrderService renders order history and settles paid orders.
type OrderService interface {
	ListForBuyer(ctx context.Context, email string) ([]OrderView, error)
	ListForArtisan(ctx context.Context, artistID string) ([]OrderView, error)
	MarkPaid(ctx context.Context, cmd MarkOrderPaidCommand) (Order, error)
}

// CheckoutService starts hosted payment sessions and consumes PSP webhooks.
type CheckoutService interface {
	CreateSession(ctx context.Context, cmd CheckoutCommand) (CheckoutSession, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// ProfileService manages accounts and the profiles stored next to them.
type ProfileService interface {
	Register(ctx context.Context, cmd RegisterCommand) (UserProfile, error)
	VerifyToken(ctx context.Context, idToken string) (VerifiedUser, error)
	GetMe(ctx context.Context, userID string) (UserProfile, error)
	UpdateMe(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error)
	DeleteMe(ctx context.Context, userID string) error
	GetArtisan(ctx context.Context, userID string) (UserProfile, error)
	UpdateArtisan(ctx context.Context, cmd UpdateArtisanCommand) (UserProfile, error)
	GetPublicArtisan(ctx context.Context, artistID string) (UserProfile, error)
}

// SystemService exposes operational metadata such as health.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// EventPublisher emits domain events after successful state changes.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Mailer delivers transactional email.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// ProfileLookup resolves stored profiles for display purposes.
type ProfileLookup interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
}

// IdentityAdmin manages Firebase accounts.
type IdentityAdmin interface {
	CreateUser(ctx context.Context, user auth.NewUser) (string, error)
	SetRole(ctx context.Context, uid, role string) error
	UpdateUser(ctx context.Context, uid string, update auth.UserUpdate) error
	DeleteUser(ctx context.Context, uid string) error
}

// TokenAuthenticator verifies ID tokens into identities.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, idToken string) (*auth.Identity, error)
}

// ListingFilter narrows a listing page. Zero values mean no filter and the default page size.
type ListingFilter struct {
	Skip     int
	Limit    int
	Category string
	ArtistID string
	Status   string
}

// CreateListingCommand carries an artisan's upload.
type CreateListingCommand struct {
	ArtistID      string
	Transcription string
	Images        []ImageUpload
}

// GenerateListingCommand is the input to content generation.
type GenerateListingCommand struct {
	Transcription string
	Images        []ImageUpload
}

// UpdateListingStatusCommand changes the publication state of a listing.
type UpdateListingStatusCommand struct {
	ListingID string
	ActorID   string
	IsAdmin   bool
	Status    ListingStatus
}

// DeleteListingCommand removes a listing and its images.
type DeleteListingCommand struct {
	ListingID string
	ActorID   string
	IsAdmin   bool
}

// CreateReviewCommand captures a buyer's review submission.
type CreateReviewCommand struct {
	ListingID string
	UserID    string
	UserName  string
	UserEmail string
	Rating    int
	Comment   string
}

// MarkOrderPaidCommand records a completed checkout.
type MarkOrderPaidCommand struct {
	SessionID       string
	PaymentIntentID string
	PaidAt          time.Time
}

// CheckoutCommand starts a purchase of one listing.
type CheckoutCommand struct {
	ListingID       string
	Quantity        int
	BuyerID         string
	BuyerEmail      string
	ShippingAddress string
	IdempotencyKey  string
}

// RegisterCommand creates an account with a role.
type RegisterCommand struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
}

// VerifiedUser pairs a verified identity with its stored profile.
type VerifiedUser struct {
	UID     string
	Email   string
	Role    string
	Profile *UserProfile
}

// UpdateProfileCommand edits the caller's own profile. Nil fields are left unchanged.
type UpdateProfileCommand struct {
	UserID         string
	DisplayName    *string
	PhoneNumber    *string
	Address        *string
	ProfilePicture *string
}

// UpdateArtisanCommand edits the artisan section of a profile. Nil fields are left unchanged.
type UpdateArtisanCommand struct {
	UserID            string
	Bio               *string
	Specialization    *string
	PortfolioURL      *string
	YearsOfExperience *int
}
