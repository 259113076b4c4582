package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kalamitra/api/internal/catalog"
	domain "github.com/kalamitra/api/internal/domain"
	"github.com/kalamitra/api/internal/platform/pagination"
	"github.com/kalamitra/api/internal/platform/storage"
	"github.com/kalamitra/api/internal/repositories"
)

const (
	maxListingImages      = 10
	unknownArtisanName    = "Unknown Artisan"
	unknownArtisanField   = "N/A"
	defaultArtisanBio     = "No bio available."
	listingImagePrefix    = "image/"
	listingEventAggregate = "listing"
)

var (
	// ErrListingInvalidInput indicates the request failed validation.
	ErrListingInvalidInput = errors.New("listing: invalid input")
	// ErrListingNotFound indicates the listing or image does not exist or cannot be shown.
	ErrListingNotFound = errors.New("listing: not found")
	// ErrListingForbidden indicates the actor does not own the listing.
	ErrListingForbidden = errors.New("listing: forbidden")
	// ErrListingUnavailable indicates a backing store could not be reached.
	ErrListingUnavailable = errors.New("listing: unavailable")
)

// ListingServiceDeps bundles collaborators required to construct a ListingService.
type ListingServiceDeps struct {
	Listings  repositories.ListingRepository
	Images    repositories.ImageStore
	Profiles  ProfileLookup
	Generator ListingGenerator
	Assembler *catalog.Assembler
	Events    EventPublisher
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type listingService struct {
	listings  repositories.ListingRepository
	images    repositories.ImageStore
	profiles  ProfileLookup
	generator ListingGenerator
	assembler *catalog.Assembler
	events    EventPublisher
	clock     func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

var _ ListingService = (*listingService)(nil)

// NewListingService wires dependencies into a concrete ListingService implementation.
func NewListingService(deps ListingServiceDeps) (ListingService, error) {
	if deps.Listings == nil {
		return nil, errors.New("listing service: listing repository is required")
	}
	if deps.Images == nil {
		return nil, errors.New("listing service: image store is required")
	}
	if deps.Generator == nil {
		return nil, errors.New("listing service: generator is required")
	}
	assembler := deps.Assembler
	if assembler == nil {
		assembler = catalog.NewAssembler(catalog.AssemblerConfig{})
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &listingService{
		listings:  deps.Listings,
		images:    deps.Images,
		profiles:  deps.Profiles,
		generator: deps.Generator,
		assembler: assembler,
		events:    deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *listingService) List(ctx context.Context, filter ListingFilter) (ListingPage, error) {
	query, err := listingQuery(filter)
	if err != nil {
		return ListingPage{}, err
	}
	raws, err := s.listings.Find(ctx, query)
	if err != nil {
		return ListingPage{}, s.mapRepoError(err)
	}
	total, err := s.listings.Count(ctx, query)
	if err != nil {
		return ListingPage{}, s.mapRepoError(err)
	}
	return s.assembler.AssemblePage(raws, total, query.Limit, query.Skip), nil
}

func (s *listingService) ListByArtist(ctx context.Context, artistID string, skip, limit int) (ListingPage, error) {
	artistID = strings.TrimSpace(artistID)
	if artistID == "" {
		return ListingPage{}, fmt.Errorf("%w: artist id is required", ErrListingInvalidInput)
	}
	return s.List(ctx, ListingFilter{ArtistID: artistID, Skip: skip, Limit: limit})
}

func (s *listingService) Get(ctx context.Context, listingID string) (ListingDetail, error) {
	listing, err := s.load(ctx, listingID)
	if err != nil {
		return ListingDetail{}, err
	}
	return ListingDetail{
		Listing: listing,
		Artisan: s.artisanSummary(ctx, listing.ArtistID),
	}, nil
}

func (s *listingService) Create(ctx context.Context, cmd CreateListingCommand) (Listing, error) {
	artistID := strings.TrimSpace(cmd.ArtistID)
	if artistID == "" {
		return Listing{}, fmt.Errorf("%w: artist id is required", ErrListingInvalidInput)
	}
	transcription := strings.TrimSpace(cmd.Transcription)
	if transcription == "" {
		return Listing{}, fmt.Errorf("%w: transcription is required", ErrListingInvalidInput)
	}
	if len(cmd.Images) == 0 {
		return Listing{}, fmt.Errorf("%w: at least one image is required", ErrListingInvalidInput)
	}
	if len(cmd.Images) > maxListingImages {
		return Listing{}, fmt.Errorf("%w: at most %d images are allowed", ErrListingInvalidInput, maxListingImages)
	}
	for i, img := range cmd.Images {
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(img.ContentType)), listingImagePrefix) {
			return Listing{}, fmt.Errorf("%w: file %d is not an image", ErrListingInvalidInput, i)
		}
		if len(img.Data) == 0 {
			return Listing{}, fmt.Errorf("%w: file %d is empty", ErrListingInvalidInput, i)
		}
	}

	imageIDs := make([]string, 0, len(cmd.Images))
	for _, img := range cmd.Images {
		id, err := s.images.Put(ctx, img)
		if err != nil {
			s.removeImages(ctx, imageIDs)
			return Listing{}, s.mapRepoError(err)
		}
		imageIDs = append(imageIDs, id)
	}

	generated, err := s.generator.Generate(ctx, GenerateListingCommand{Transcription: transcription, Images: cmd.Images})
	if err != nil {
		s.removeImages(ctx, imageIDs)
		return Listing{}, err
	}

	now := s.clock()
	doc := newListingDocument(artistID, transcription, imageIDs, generated, now)
	id, err := s.listings.Insert(ctx, doc)
	if err != nil {
		s.removeImages(ctx, imageIDs)
		return Listing{}, s.mapRepoError(err)
	}
	doc[catalog.FieldID] = id

	listing, err := s.assembler.Assemble(doc)
	if err != nil {
		return Listing{}, err
	}
	s.logger(ctx, "listing.created", map[string]any{
		"listingId":    id,
		"artistId":     artistID,
		"images":       len(imageIDs),
		"fallbackUsed": generated.FallbackUsed,
	})
	s.publish(ctx, domain.EventListingCreated, id, map[string]any{
		"artistId":     artistID,
		"category":     listing.Category,
		"fallbackUsed": generated.FallbackUsed,
	})
	return listing, nil
}

func (s *listingService) UpdateStatus(ctx context.Context, cmd UpdateListingStatusCommand) (Listing, error) {
	status := domain.ListingStatus(strings.ToLower(strings.TrimSpace(string(cmd.Status))))
	if !status.Valid() {
		return Listing{}, fmt.Errorf("%w: status must be one of active, inactive, draft, published", ErrListingInvalidInput)
	}
	listing, err := s.load(ctx, cmd.ListingID)
	if err != nil {
		return Listing{}, err
	}
	if err := authorizeListingActor(listing, cmd.ActorID, cmd.IsAdmin); err != nil {
		return Listing{}, err
	}

	now := s.clock()
	if err := s.listings.UpdateStatus(ctx, listing.ID, status, now); err != nil {
		return Listing{}, s.mapRepoError(err)
	}
	previous := listing.Status
	listing.Status = status
	listing.UpdatedAt = now

	s.publish(ctx, domain.EventListingStatusChanged, listing.ID, map[string]any{
		"from":    string(previous),
		"to":      string(status),
		"actorId": cmd.ActorID,
	})
	return listing, nil
}

func (s *listingService) Verify(ctx context.Context, listingID string) (ListingVerification, error) {
	listing, err := s.load(ctx, listingID)
	if err != nil {
		return ListingVerification{}, err
	}
	return ListingVerification{
		ListingID: listing.ID,
		Title:     listing.Title,
		Status:    listing.Status,
		CreatedAt: listing.CreatedAt,
		ArtistID:  listing.ArtistID,
		Exists:    true,
	}, nil
}

func (s *listingService) GetImage(ctx context.Context, listingID, imageID string) (Image, error) {
	imageID = strings.TrimSpace(imageID)
	if imageID == "" {
		return Image{}, fmt.Errorf("%w: image id is required", ErrListingInvalidInput)
	}
	listing, err := s.load(ctx, listingID)
	if err != nil {
		return Image{}, err
	}
	owned := false
	for _, id := range listing.ImageIDs {
		if id == imageID {
			owned = true
			break
		}
	}
	if !owned {
		return Image{}, fmt.Errorf("%w: image does not belong to listing", ErrListingNotFound)
	}

	img, err := s.images.Get(ctx, imageID)
	if err != nil {
		return Image{}, s.mapRepoError(err)
	}
	if strings.TrimSpace(img.ContentType) == "" {
		img.ContentType = storage.DefaultImageContentType
	}
	return img, nil
}

func (s *listingService) Delete(ctx context.Context, cmd DeleteListingCommand) error {
	listing, err := s.load(ctx, cmd.ListingID)
	if err != nil {
		return err
	}
	if err := authorizeListingActor(listing, cmd.ActorID, cmd.IsAdmin); err != nil {
		return err
	}
	s.removeImages(ctx, listing.ImageIDs)
	if err := s.listings.Delete(ctx, listing.ID); err != nil {
		return s.mapRepoError(err)
	}
	s.publish(ctx, domain.EventListingDeleted, listing.ID, map[string]any{"actorId": cmd.ActorID})
	return nil
}

// load fetches and assembles one listing. Documents that cannot be shaped are reported as not found.
func (s *listingService) load(ctx context.Context, listingID string) (Listing, error) {
	listingID = strings.TrimSpace(listingID)
	if listingID == "" {
		return Listing{}, fmt.Errorf("%w: listing id is required", ErrListingInvalidInput)
	}
	raw, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return Listing{}, s.mapRepoError(err)
	}
	listing, err := s.assembler.Assemble(raw)
	if err != nil {
		s.logger(ctx, "listing.assemble.failed", map[string]any{"listingId": listingID, "error": err.Error()})
		return Listing{}, fmt.Errorf("%w: %w", ErrListingNotFound, err)
	}
	return listing, nil
}

func (s *listingService) artisanSummary(ctx context.Context, artistID *string) ArtisanSummary {
	summary := ArtisanSummary{
		Name:       unknownArtisanName,
		Location:   unknownArtisanField,
		Experience: unknownArtisanField,
		Bio:        defaultArtisanBio,
		Avatar:     catalog.PlaceholderImage,
	}
	if artistID == nil || s.profiles == nil {
		return summary
	}
	profile, err := s.profiles.FindByID(ctx, *artistID)
	if err != nil {
		s.logger(ctx, "listing.artisan_lookup.failed", map[string]any{"artistId": *artistID, "error": err.Error()})
		return summary
	}
	if name := strings.TrimSpace(profile.DisplayName); name != "" {
		summary.Name = name
	}
	if location := strings.TrimSpace(profile.Address); location != "" {
		summary.Location = location
	}
	if avatar := strings.TrimSpace(profile.ProfilePicture); avatar != "" {
		summary.Avatar = avatar
	}
	if details := profile.Artisan; details != nil {
		if details.YearsOfExperience > 0 {
			summary.Experience = fmt.Sprintf("%d years", details.YearsOfExperience)
		}
		if bio := strings.TrimSpace(details.Bio); bio != "" {
			summary.Bio = bio
		}
		summary.Rating = details.Rating
	}
	return summary
}

func (s *listingService) removeImages(ctx context.Context, imageIDs []string) {
	for _, id := range imageIDs {
		if err := s.images.Delete(ctx, id); err != nil {
			s.logger(ctx, "listing.image_delete.failed", map[string]any{"imageId": id, "error": err.Error()})
		}
	}
}

func (s *listingService) publish(ctx context.Context, eventType, listingID string, payload map[string]any) {
	publishEvent(ctx, s.events, s.logger, domain.Event{
		ID:          ulid.Make().String(),
		Type:        eventType,
		AggregateID: listingEventAggregate + "/" + listingID,
		OccurredAt:  s.clock(),
		Payload:     payload,
	})
}

func (s *listingService) mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrListingNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrListingUnavailable, err)
		}
	}
	return err
}

func listingQuery(filter ListingFilter) (repositories.ListingQuery, error) {
	params, err := pagination.Normalize(filter.Skip, filter.Limit, pagination.Options{})
	if err != nil {
		return repositories.ListingQuery{}, fmt.Errorf("%w: %v", ErrListingInvalidInput, err)
	}
	status := strings.ToLower(strings.TrimSpace(filter.Status))
	if status != "" && !domain.ListingStatus(status).Valid() {
		return repositories.ListingQuery{}, fmt.Errorf("%w: unknown status %q", ErrListingInvalidInput, status)
	}
	return repositories.ListingQuery{
		Skip:     params.Skip,
		Limit:    params.Limit,
		Category: strings.TrimSpace(filter.Category),
		ArtistID: strings.TrimSpace(filter.ArtistID),
		Status:   status,
	}, nil
}

func authorizeListingActor(listing Listing, actorID string, isAdmin bool) error {
	if isAdmin {
		return nil
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" || listing.ArtistID == nil || *listing.ArtistID != actorID {
		return ErrListingForbidden
	}
	return nil
}

func newListingDocument(artistID, transcription string, imageIDs []string, generated GeneratedListing, now time.Time) catalog.Document {
	price, _ := catalog.ParsePrice(generated.SuggestedPrice, 0)
	generatedAt := generated.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = now
	}
	ids := make([]any, len(imageIDs))
	for i, id := range imageIDs {
		ids[i] = id
	}
	tags := make([]any, len(generated.Tags))
	for i, tag := range generated.Tags {
		tags[i] = tag
	}
	features := make([]any, len(generated.Features))
	for i, feature := range generated.Features {
		features[i] = feature
	}
	specs := make(map[string]any, len(generated.Specifications))
	for k, v := range generated.Specifications {
		specs[k] = v
	}
	return catalog.Document{
		catalog.FieldArtistID:       artistID,
		catalog.FieldTitle:          generated.Title,
		catalog.FieldDescription:    generated.Description,
		catalog.FieldTags:           tags,
		catalog.FieldCategory:       generated.Category,
		catalog.FieldSuggestedPrice: generated.SuggestedPrice,
		catalog.FieldStory:          generated.Story,
		catalog.FieldTranscription:  transcription,
		catalog.FieldImageIDs:       ids,
		catalog.FieldCreatedAt:      now,
		catalog.FieldUpdatedAt:      now,
		catalog.FieldStatus:         string(domain.ListingStatusActive),
		catalog.FieldAIGenerated:    true,
		catalog.FieldAIMetadata: map[string]any{
			"model":         generated.Model,
			"generated_at":  generatedAt,
			"fallback_used": generated.FallbackUsed,
		},
		catalog.FieldPrice:          price,
		catalog.FieldOriginalPrice:  price,
		catalog.FieldInStock:        true,
		catalog.FieldStockCount:     defaultStockCount,
		catalog.FieldFeatures:       features,
		catalog.FieldSpecifications: specs,
		catalog.FieldReviews:        []any{},
		catalog.FieldShippingInfo: map[string]any{
			shippingEstimateKey: defaultShipping[shippingEstimateKey],
			shippingReturnsKey:  defaultShipping[shippingReturnsKey],
		},
	}
}

// publishEvent is best effort; failures are logged and never fail the calling operation.
func publishEvent(ctx context.Context, events EventPublisher, logger func(context.Context, string, map[string]any), event domain.Event) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, event); err != nil {
		logger(ctx, "event.publish.failed", map[string]any{
			"eventType": event.Type,
			"aggregate": event.AggregateID,
			"error":     err.Error(),
		})
	}
}
