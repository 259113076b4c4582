package handlers

import (
	"context"
	"net/http"

	"github.com/kalamitra/api/internal/platform/auth"
	"github.com/kalamitra/api/internal/services"
)

type stubListingService struct {
	listFunc         func(context.Context, services.ListingFilter) (services.ListingPage, error)
	getFunc          func(context.Context, string) (services.ListingDetail, error)
	createFunc       func(context.Context, services.CreateListingCommand) (services.Listing, error)
	updateStatusFunc func(context.Context, services.UpdateListingStatusCommand) (services.Listing, error)
	verifyFunc       func(context.Context, string) (services.ListingVerification, error)
	imageFunc        func(context.Context, string, string) (services.Image, error)
	deleteFunc       func(context.Context, services.DeleteListingCommand) error
	byArtistFunc     func(context.Context, string, int, int) (services.ListingPage, error)
}

var _ services.ListingService = (*stubListingService)(nil)

func (s *stubListingService) List(ctx context.Context, filter services.ListingFilter) (services.ListingPage, error) {
	if s.listFunc == nil {
		return services.ListingPage{}, nil
	}
	return s.listFunc(ctx, filter)
}

func (s *stubListingService) Get(ctx context.Context, id string) (services.ListingDetail, error) {
	if s.getFunc == nil {
		return services.ListingDetail{}, services.ErrListingNotFound
	}
	return s.getFunc(ctx, id)
}

func (s *stubListingService) Create(ctx context.Context, cmd services.CreateListingCommand) (services.Listing, error) {
	if s.createFunc == nil {
		return services.Listing{}, nil
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubListingService) UpdateStatus(ctx context.Context, cmd services.UpdateListingStatusCommand) (services.Listing, error) {
	if s.updateStatusFunc == nil {
		return services.Listing{}, nil
	}
	return s.updateStatusFunc(ctx, cmd)
}

func (s *stubListingService) Verify(ctx context.Context, id string) (services.ListingVerification, error) {
	if s.verifyFunc == nil {
		return services.ListingVerification{}, services.ErrListingNotFound
	}
	return s.verifyFunc(ctx, id)
}

func (s *stubListingService) GetImage(ctx context.Context, listingID, imageID string) (services.Image, error) {
	if s.imageFunc == nil {
		return services.Image{}, services.ErrListingNotFound
	}
	return s.imageFunc(ctx, listingID, imageID)
}

func (s *stubListingService) Delete(ctx context.Context, cmd services.DeleteListingCommand) error {
	if s.deleteFunc == nil {
		return nil
	}
	return s.deleteFunc(ctx, cmd)
}

func (s *stubListingService) ListByArtist(ctx context.Context, artistID string, skip, limit int) (services.ListingPage, error) {
	if s.byArtistFunc == nil {
		return services.ListingPage{}, nil
	}
	return s.byArtistFunc(ctx, artistID, skip, limit)
}

type stubReviewService struct {
	createFunc func(context.Context, services.CreateReviewCommand) (services.Review, error)
	listFunc   func(context.Context, string) ([]services.Review, error)
}

var _ services.ReviewService = (*stubReviewService)(nil)

func (s *stubReviewService) Create(ctx context.Context, cmd services.CreateReviewCommand) (services.Review, error) {
	if s.createFunc == nil {
		return services.Review{}, nil
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubReviewService) List(ctx context.Context, listingID string) ([]services.Review, error) {
	if s.listFunc == nil {
		return nil, nil
	}
	return s.listFunc(ctx, listingID)
}

type stubOrderService struct {
	buyerFunc   func(context.Context, string) ([]services.OrderView, error)
	artisanFunc func(context.Context, string) ([]services.OrderView, error)
}

var _ services.OrderService = (*stubOrderService)(nil)

func (s *stubOrderService) ListForBuyer(ctx context.Context, email string) ([]services.OrderView, error) {
	if s.buyerFunc == nil {
		return nil, nil
	}
	return s.buyerFunc(ctx, email)
}

func (s *stubOrderService) ListForArtisan(ctx context.Context, artistID string) ([]services.OrderView, error) {
	if s.artisanFunc == nil {
		return nil, nil
	}
	return s.artisanFunc(ctx, artistID)
}

func (s *stubOrderService) MarkPaid(context.Context, services.MarkOrderPaidCommand) (services.Order, error) {
	return services.Order{}, nil
}

type stubCheckoutService struct {
	createFunc  func(context.Context, services.CheckoutCommand) (services.CheckoutSession, error)
	webhookFunc func(context.Context, []byte, string) error
}

var _ services.CheckoutService = (*stubCheckoutService)(nil)

func (s *stubCheckoutService) CreateSession(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutSession, error) {
	if s.createFunc == nil {
		return services.CheckoutSession{}, nil
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubCheckoutService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.webhookFunc == nil {
		return nil
	}
	return s.webhookFunc(ctx, payload, signature)
}

type stubProfileService struct {
	registerFunc      func(context.Context, services.RegisterCommand) (services.UserProfile, error)
	verifyFunc        func(context.Context, string) (services.VerifiedUser, error)
	getMeFunc         func(context.Context, string) (services.UserProfile, error)
	updateMeFunc      func(context.Context, services.UpdateProfileCommand) (services.UserProfile, error)
	deleteMeFunc      func(context.Context, string) error
	getArtisanFunc    func(context.Context, string) (services.UserProfile, error)
	updateArtisanFunc func(context.Context, services.UpdateArtisanCommand) (services.UserProfile, error)
	publicFunc        func(context.Context, string) (services.UserProfile, error)
}

var _ services.ProfileService = (*stubProfileService)(nil)

func (s *stubProfileService) Register(ctx context.Context, cmd services.RegisterCommand) (services.UserProfile, error) {
	if s.registerFunc == nil {
		return services.UserProfile{}, nil
	}
	return s.registerFunc(ctx, cmd)
}

func (s *stubProfileService) VerifyToken(ctx context.Context, token string) (services.VerifiedUser, error) {
	if s.verifyFunc == nil {
		return services.VerifiedUser{}, services.ErrProfileUnauthenticated
	}
	return s.verifyFunc(ctx, token)
}

func (s *stubProfileService) GetMe(ctx context.Context, userID string) (services.UserProfile, error) {
	if s.getMeFunc == nil {
		return services.UserProfile{}, services.ErrProfileNotFound
	}
	return s.getMeFunc(ctx, userID)
}

func (s *stubProfileService) UpdateMe(ctx context.Context, cmd services.UpdateProfileCommand) (services.UserProfile, error) {
	if s.updateMeFunc == nil {
		return services.UserProfile{}, nil
	}
	return s.updateMeFunc(ctx, cmd)
}

func (s *stubProfileService) DeleteMe(ctx context.Context, userID string) error {
	if s.deleteMeFunc == nil {
		return nil
	}
	return s.deleteMeFunc(ctx, userID)
}

func (s *stubProfileService) GetArtisan(ctx context.Context, userID string) (services.UserProfile, error) {
	if s.getArtisanFunc == nil {
		return services.UserProfile{}, services.ErrProfileNotFound
	}
	return s.getArtisanFunc(ctx, userID)
}

func (s *stubProfileService) UpdateArtisan(ctx context.Context, cmd services.UpdateArtisanCommand) (services.UserProfile, error) {
	if s.updateArtisanFunc == nil {
		return services.UserProfile{}, nil
	}
	return s.updateArtisanFunc(ctx, cmd)
}

func (s *stubProfileService) GetPublicArtisan(ctx context.Context, artistID string) (services.UserProfile, error) {
	if s.publicFunc == nil {
		return services.UserProfile{}, services.ErrProfileNotFound
	}
	return s.publicFunc(ctx, artistID)
}

func withIdentity(req *http.Request, identity *auth.Identity) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}
