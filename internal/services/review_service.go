package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kalamitra/api/internal/catalog"
	domain "github.com/kalamitra/api/internal/domain"
	"github.com/kalamitra/api/internal/platform/textutil"
	"github.com/kalamitra/api/internal/repositories"
)

const maxReviewCommentRunes = 2000

var (
	// ErrReviewInvalidInput indicates validation failures for review operations.
	ErrReviewInvalidInput = errors.New("review: invalid input")
	// ErrReviewNotFound indicates the reviewed listing could not be located.
	ErrReviewNotFound = errors.New("review: not found")
)

// ReviewServiceDeps bundles collaborators required to construct a ReviewService.
type ReviewServiceDeps struct {
	Listings         repositories.ListingRepository
	Assembler        *catalog.Assembler
	Events           EventPublisher
	Clock            func() time.Time
	IDGenerator      func() string
	Sanitizer        func(string) string
	ProfanityChecker func(string) bool
	Logger           func(ctx context.Context, event string, fields map[string]any)
}

type reviewService struct {
	listings  repositories.ListingRepository
	assembler *catalog.Assembler
	events    EventPublisher
	clock     func() time.Time
	newID     func() string
	sanitize  func(string) string
	isProfane func(string) bool
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewReviewService wires dependencies into a concrete ReviewService implementation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Listings == nil {
		return nil, errors.New("review service: listing repository is required")
	}

	assembler := deps.Assembler
	if assembler == nil {
		assembler = catalog.NewAssembler(catalog.AssemblerConfig{})
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return primitive.NewObjectID().Hex()
		}
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = sanitizeReviewText
	}
	profanity := deps.ProfanityChecker
	if profanity == nil {
		profanity = basicProfanityChecker
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &reviewService{
		listings:  deps.Listings,
		assembler: assembler,
		events:    deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		sanitize:  sanitize,
		isProfane: profanity,
		logger:    logger,
	}, nil
}

func (s *reviewService) Create(ctx context.Context, cmd CreateReviewCommand) (Review, error) {
	comment, err := s.validateCreateCommand(cmd)
	if err != nil {
		return Review{}, err
	}

	now := s.clock()
	review := domain.Review{
		ID:       s.newID(),
		UserID:   strings.TrimSpace(cmd.UserID),
		UserName: textutil.StripTags(cmd.UserName),
		Rating:   cmd.Rating,
		Comment:  comment,
		Date:     now.Format(domain.ReviewDateLayout),
		Verified: true,
	}
	if email := strings.ToLower(strings.TrimSpace(cmd.UserEmail)); email != "" {
		review.UserEmail = &email
	}

	listingID := strings.TrimSpace(cmd.ListingID)
	if err := s.listings.AppendReview(ctx, listingID, catalog.ReviewDocument(review), now); err != nil {
		return Review{}, s.mapReviewError(err)
	}

	publishEvent(ctx, s.events, s.logger, domain.Event{
		ID:          ulid.Make().String(),
		Type:        domain.EventReviewCreated,
		AggregateID: listingEventAggregate + "/" + listingID,
		OccurredAt:  now,
		Payload: map[string]any{
			"reviewId": review.ID,
			"userId":   review.UserID,
			"rating":   review.Rating,
		},
	})
	return review, nil
}

func (s *reviewService) List(ctx context.Context, listingID string) ([]Review, error) {
	listingID = strings.TrimSpace(listingID)
	if listingID == "" {
		return nil, fmt.Errorf("%w: listing id is required", ErrReviewInvalidInput)
	}
	raw, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, s.mapReviewError(err)
	}
	listing, err := s.assembler.Assemble(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReviewNotFound, err)
	}
	return listing.Reviews, nil
}

// validateCreateCommand returns the sanitized comment when the command is acceptable.
func (s *reviewService) validateCreateCommand(cmd CreateReviewCommand) (string, error) {
	if strings.TrimSpace(cmd.ListingID) == "" {
		return "", fmt.Errorf("%w: listing id is required", ErrReviewInvalidInput)
	}
	if strings.TrimSpace(cmd.UserID) == "" {
		return "", fmt.Errorf("%w: user id is required", ErrReviewInvalidInput)
	}
	if textutil.StripTags(cmd.UserName) == "" {
		return "", fmt.Errorf("%w: user name is required", ErrReviewInvalidInput)
	}

	comment := s.sanitize(cmd.Comment)
	if err := domain.ValidateReview(cmd.Rating, comment); err != nil {
		return "", fmt.Errorf("%w: %v", ErrReviewInvalidInput, err)
	}
	if s.isProfane(comment) {
		return "", fmt.Errorf("%w: comment contains profanity", ErrReviewInvalidInput)
	}
	return textutil.Truncate(comment, maxReviewCommentRunes), nil
}

func (s *reviewService) mapReviewError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrReviewNotFound
	}
	return err
}

var defaultProfanityTerms = map[string]struct{}{
	"asshole": {},
	"bastard": {},
	"bitch":   {},
	"fuck":    {},
	"fucker":  {},
	"fucking": {},
	"shit":    {},
	"shitty":  {},
	"slut":    {},
	"whore":   {},
}

func basicProfanityChecker(input string) bool {
	if input == "" {
		return false
	}
	words := strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsNumber(r))
	})
	for _, word := range words {
		if _, ok := defaultProfanityTerms[word]; ok {
			return true
		}
	}
	return false
}

// sanitizeReviewText strips markup and control characters while keeping paragraph breaks.
func sanitizeReviewText(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, input)
	return textutil.StripTagsMultiline(cleaned)
}
