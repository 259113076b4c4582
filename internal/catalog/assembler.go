package catalog

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kalamitra/api/internal/domain"
)

// AssemblerConfig wires the collaborators of an Assembler.
type AssemblerConfig struct {
	// BaseURL is the public origin image URLs are built from. Empty disables image URLs.
	BaseURL    string
	Normalizer *Normalizer
	Logger     *zap.Logger
	// OnSkip is notified for each document dropped from a page.
	OnSkip func(index int, err error)
}

// Assembler turns raw listing documents into client-ready listings.
type Assembler struct {
	baseURL    string
	normalizer *Normalizer
	logger     *zap.Logger
	onSkip     func(index int, err error)
}

// NewAssembler constructs an assembler. The base URL is fixed for the assembler's lifetime.
func NewAssembler(cfg AssemblerConfig) *Assembler {
	normalizer := cfg.Normalizer
	if normalizer == nil {
		normalizer = NewNormalizer()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		baseURL:    strings.TrimSpace(cfg.BaseURL),
		normalizer: normalizer,
		logger:     logger.Named("catalog"),
		onSkip:     cfg.OnSkip,
	}
}

// BaseURL reports the origin used for image URLs.
func (a *Assembler) BaseURL() string {
	return a.baseURL
}

// Assemble normalizes a single document and resolves its image URLs. Any failure matches ErrListingNotFound.
func (a *Assembler) Assemble(raw Document) (domain.Listing, error) {
	listing, err := a.normalizer.Normalize(raw)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("%w: %w", ErrListingNotFound, err)
	}
	listing.Images = ResolveImageURLs(listing.ID, listing.ImageIDs, a.baseURL)
	return listing, nil
}

// AssemblePage assembles every document it can, in input order. Documents that fail are logged and skipped.
// The returned Limit is the number of listings actually assembled and Total is passed through unchanged.
func (a *Assembler) AssemblePage(raws []Document, total int64, limit, skip int) domain.ListingPage {
	items := make([]domain.Listing, 0, len(raws))
	for i, raw := range raws {
		listing, err := a.Assemble(raw)
		if err != nil {
			a.logger.Warn("skipping listing document",
				zap.Int("index", i),
				zap.Int("skip", skip),
				zap.Int("requested_limit", limit),
				zap.Error(err),
			)
			if a.onSkip != nil {
				a.onSkip(i, err)
			}
			continue
		}
		items = append(items, listing)
	}
	return domain.ListingPage{
		Items: items,
		Total: total,
		Skip:  skip,
		Limit: len(items),
	}
}

// FirstImageURL resolves the cover image of a listing given its raw identifiers.
func (a *Assembler) FirstImageURL(listingID string, imageIDs []string) string {
	return FirstImageURL(listingID, imageIDs, a.baseURL)
}
