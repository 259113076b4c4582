package handlers

import (
	domain "github.com/kalamitra/api/internal/domain"
	"github.com/kalamitra/api/internal/services"
)

// Field names follow the wire format the web client already consumes: listing documents keep their stored
// snake_case keys next to the camelCase commerce fields.
type listingPayload struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Tags           []string          `json:"tags"`
	Category       string            `json:"category"`
	SuggestedPrice string            `json:"suggested_price"`
	Price          float64           `json:"price"`
	OriginalPrice  float64           `json:"originalPrice"`
	Story          string            `json:"story"`
	ImageIDs       []string          `json:"image_ids"`
	Images         []string          `json:"images"`
	ArtistID       *string           `json:"artist_id"`
	CreatedAt      string            `json:"created_at"`
	UpdatedAt      string            `json:"updated_at"`
	Status         string            `json:"status"`
	AIGenerated    bool              `json:"ai_generated"`
	AIMetadata     map[string]any    `json:"ai_metadata"`
	InStock        bool              `json:"inStock"`
	StockCount     int               `json:"stockCount"`
	Features       []string          `json:"features"`
	Specifications map[string]string `json:"specifications"`
	Reviews        []reviewPayload   `json:"reviews"`
	ShippingInfo   map[string]string `json:"shippingInfo"`
	Transcription  string            `json:"transcription,omitempty"`
}

type reviewPayload struct {
	ID        string  `json:"id"`
	UserID    string  `json:"userId"`
	UserName  string  `json:"userName"`
	UserEmail *string `json:"userEmail,omitempty"`
	Rating    int     `json:"rating"`
	Comment   string  `json:"comment"`
	Date      string  `json:"date"`
	Verified  bool    `json:"verified"`
}

type artisanSummaryPayload struct {
	Name       string  `json:"name"`
	Location   string  `json:"location"`
	Experience string  `json:"experience"`
	Rating     float64 `json:"rating"`
	Bio        string  `json:"bio"`
	Avatar     string  `json:"avatar"`
}

type listingDetailPayload struct {
	listingPayload
	Artisan artisanSummaryPayload `json:"artisan"`
}

type listingPagePayload struct {
	Listings []listingPayload `json:"listings"`
	Total    int64            `json:"total"`
	Skip     int              `json:"skip"`
	Limit    int              `json:"limit"`
}

type profilePayload struct {
	ID             string                 `json:"id"`
	DisplayName    string                 `json:"display_name"`
	Email          string                 `json:"email"`
	PhoneNumber    string                 `json:"phone_number,omitempty"`
	Address        string                 `json:"address,omitempty"`
	ProfilePicture string                 `json:"profile_picture,omitempty"`
	Role           string                 `json:"role"`
	IsActive       bool                   `json:"is_active"`
	Artisan        *artisanDetailsPayload `json:"artisan,omitempty"`
	CreatedAt      string                 `json:"created_at,omitempty"`
	UpdatedAt      string                 `json:"updated_at,omitempty"`
}

type artisanDetailsPayload struct {
	Bio               string  `json:"bio"`
	Specialization    string  `json:"specialization"`
	PortfolioURL      string  `json:"portfolio_url"`
	YearsOfExperience int     `json:"years_of_experience"`
	Rating            float64 `json:"rating"`
}

type orderViewPayload struct {
	ID                string  `json:"id"`
	ProductTitle      string  `json:"productTitle"`
	ProductImage      string  `json:"productImage"`
	Buyer             string  `json:"buyer"`
	Amount            string  `json:"amount"`
	Status            string  `json:"status"`
	Date              string  `json:"date"`
	Quantity          int     `json:"quantity"`
	ShippingAddress   string  `json:"shippingAddress"`
	PaymentMethod     string  `json:"paymentMethod"`
	TrackingNumber    *string `json:"trackingNumber,omitempty"`
	EstimatedDelivery *string `json:"estimatedDelivery,omitempty"`
	DeliveredDate     *string `json:"deliveredDate,omitempty"`
}

type ordersPayload struct {
	Orders []orderViewPayload `json:"orders"`
}

type messagePayload struct {
	Message string `json:"message"`
}

func buildListingPayload(l services.Listing) listingPayload {
	reviews := make([]reviewPayload, 0, len(l.Reviews))
	for _, r := range l.Reviews {
		reviews = append(reviews, buildReviewPayload(r))
	}
	return listingPayload{
		ID:             l.ID,
		Title:          l.Title,
		Description:    l.Description,
		Tags:           nonNilStrings(l.Tags),
		Category:       l.Category,
		SuggestedPrice: l.SuggestedPrice,
		Price:          l.Price,
		OriginalPrice:  l.OriginalPrice,
		Story:          l.Story,
		ImageIDs:       nonNilStrings(l.ImageIDs),
		Images:         nonNilStrings(l.Images),
		ArtistID:       l.ArtistID,
		CreatedAt:      formatTime(l.CreatedAt),
		UpdatedAt:      formatTime(l.UpdatedAt),
		Status:         string(l.Status),
		AIGenerated:    l.AIGenerated,
		AIMetadata:     nonNilMap(l.AIMetadata),
		InStock:        l.InStock,
		StockCount:     l.StockCount,
		Features:       nonNilStrings(l.Features),
		Specifications: nonNilStringMap(l.Specifications),
		Reviews:        reviews,
		ShippingInfo:   nonNilStringMap(l.ShippingInfo),
		Transcription:  l.Transcription,
	}
}

func buildListingPagePayload(page services.ListingPage) listingPagePayload {
	listings := make([]listingPayload, 0, len(page.Items))
	for _, l := range page.Items {
		listings = append(listings, buildListingPayload(l))
	}
	return listingPagePayload{
		Listings: listings,
		Total:    page.Total,
		Skip:     page.Skip,
		Limit:    page.Limit,
	}
}

func buildReviewPayload(r services.Review) reviewPayload {
	return reviewPayload{
		ID:        r.ID,
		UserID:    r.UserID,
		UserName:  r.UserName,
		UserEmail: r.UserEmail,
		Rating:    r.Rating,
		Comment:   r.Comment,
		Date:      r.Date,
		Verified:  r.Verified,
	}
}

func buildProfilePayload(p services.UserProfile) profilePayload {
	payload := profilePayload{
		ID:             p.ID,
		DisplayName:    p.DisplayName,
		Email:          p.Email,
		PhoneNumber:    p.PhoneNumber,
		Address:        p.Address,
		ProfilePicture: p.ProfilePicture,
		Role:           p.Role,
		IsActive:       p.IsActive,
		CreatedAt:      formatTime(p.CreatedAt),
		UpdatedAt:      formatTime(p.UpdatedAt),
	}
	if p.Artisan != nil {
		payload.Artisan = buildArtisanDetailsPayload(*p.Artisan)
	}
	return payload
}

func buildArtisanDetailsPayload(d domain.ArtisanDetails) *artisanDetailsPayload {
	return &artisanDetailsPayload{
		Bio:               d.Bio,
		Specialization:    d.Specialization,
		PortfolioURL:      d.PortfolioURL,
		YearsOfExperience: d.YearsOfExperience,
		Rating:            d.Rating,
	}
}

func buildOrdersPayload(views []services.OrderView) ordersPayload {
	orders := make([]orderViewPayload, 0, len(views))
	for _, v := range views {
		orders = append(orders, orderViewPayload{
			ID:                v.ID,
			ProductTitle:      v.ProductTitle,
			ProductImage:      v.ProductImage,
			Buyer:             v.Buyer,
			Amount:            v.Amount,
			Status:            v.Status,
			Date:              v.Date,
			Quantity:          v.Quantity,
			ShippingAddress:   v.ShippingAddress,
			PaymentMethod:     v.PaymentMethod,
			TrackingNumber:    v.TrackingNumber,
			EstimatedDelivery: v.EstimatedDelivery,
			DeliveredDate:     v.DeliveredDate,
		})
	}
	return ordersPayload{Orders: orders}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nonNilStringMap(values map[string]string) map[string]string {
	if values == nil {
		return map[string]string{}
	}
	return values
}

func nonNilMap(values map[string]any) map[string]any {
	if values == nil {
		return map[string]any{}
	}
	return values
}
