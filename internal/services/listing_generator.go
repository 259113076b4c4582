package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kalamitra/api/internal/platform/genai"
	"github.com/kalamitra/api/internal/platform/taxonomy"
	"github.com/kalamitra/api/internal/platform/textutil"
)

const (
	maxGeneratedTags      = 10
	defaultListingTitle   = "Unique Handmade Item"
	defaultListingDesc    = "Beautiful handcrafted item with attention to detail"
	defaultListingStory   = "This piece represents the creator's passion for handmade craftsmanship"
	defaultCategory       = "Crafts"
	defaultSuggestedPrice = "₹299"
	defaultStockCount     = 10
	shippingEstimateKey   = "estimatedDays"
	shippingReturnsKey    = "returnPolicy"
	fallbackModelName     = "fallback"
	storyExcerptRunes     = 100
)

var (
	defaultTags     = []string{"Handmade", "Unique"}
	fallbackTags    = []string{"Handmade", "Unique", "Creative", "Artisan", "Custom"}
	defaultShipping = map[string]string{shippingEstimateKey: "3-5 business days", shippingReturnsKey: "30-day returns"}
)

// ErrGeneratedContentInvalid marks model output that could not be decoded into a listing.
var ErrGeneratedContentInvalid = errors.New("listing generator: model returned invalid content")

const listingPrompt = `You are helping an Indian artisan sell a handmade product on an online marketplace.
The artisan described the product in a voice note (transcribed below) and attached photos of it.

Transcription:
%s

Answer with one JSON object and nothing else, using these keys:
- "title": a short product title
- "description": two or three sentences for buyers
- "tags": up to %d short keywords
- "category": one of %s
- "suggestedPrice": a fair price in rupees written like "₹450"
- "story": the story behind the piece in the artisan's voice
- "features": a list of notable features
- "specifications": an object of material, size and similar details, values as strings
- "inStock": true or false
- "stockCount": an integer
- "shippingInfo": an object with "estimatedDays" and "returnPolicy"`

type contentModel interface {
	Generate(ctx context.Context, req genai.Request) (genai.Response, error)
	Model() string
}

// ListingGeneratorDeps bundles collaborators required to construct a ListingGenerator.
type ListingGeneratorDeps struct {
	// Model may be nil, in which case every listing uses the fallback content.
	Model    contentModel
	Taxonomy *taxonomy.Taxonomy
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type listingGenerator struct {
	model    contentModel
	taxonomy *taxonomy.Taxonomy
	clock    func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewListingGenerator constructs a generator. A missing taxonomy falls back to the embedded one.
func NewListingGenerator(deps ListingGeneratorDeps) (ListingGenerator, error) {
	tax := deps.Taxonomy
	if tax == nil {
		var err error
		tax, err = taxonomy.Default()
		if err != nil {
			return nil, fmt.Errorf("listing generator: load taxonomy: %w", err)
		}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &listingGenerator{
		model:    deps.Model,
		taxonomy: tax,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Generate asks the model for listing content. Any model or decoding failure yields the fallback listing,
// so the returned error is always nil unless the context was cancelled.
func (g *listingGenerator) Generate(ctx context.Context, cmd GenerateListingCommand) (GeneratedListing, error) {
	transcription := textutil.StripTagsMultiline(cmd.Transcription)
	if g.model == nil {
		g.logger(ctx, "listing.generate.fallback", map[string]any{"reason": "model not configured"})
		return g.fallback(transcription), nil
	}

	images := make([]genai.Image, 0, len(cmd.Images))
	for _, img := range cmd.Images {
		images = append(images, genai.Image{MimeType: img.ContentType, Data: img.Data})
	}
	resp, err := g.model.Generate(ctx, genai.Request{
		Prompt: g.prompt(transcription),
		Images: images,
		JSON:   true,
	})
	if err == nil {
		var raw map[string]any
		raw, err = decodeGenerated(resp.Text)
		if err == nil {
			listing := g.clean(raw)
			listing.Model = g.model.Model()
			listing.GeneratedAt = g.clock()
			return listing, nil
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return GeneratedListing{}, ctxErr
	}

	g.logger(ctx, "listing.generate.failed", map[string]any{
		"error":  err.Error(),
		"model":  g.model.Model(),
		"images": len(images),
	})
	listing := g.fallback(transcription)
	listing.Model = g.model.Model()
	return listing, nil
}

func (g *listingGenerator) prompt(transcription string) string {
	if transcription == "" {
		transcription = "(no transcription provided)"
	}
	names := make([]string, 0, 8)
	for _, category := range g.taxonomy.Categories() {
		names = append(names, strconv.Quote(category.Name))
	}
	return fmt.Sprintf(listingPrompt, transcription, maxGeneratedTags, strings.Join(names, ", "))
}

func decodeGenerated(text string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(genai.StripFences(text)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneratedContentInvalid, err)
	}
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case []any:
		if len(v) > 0 {
			if m, ok := v[0].(map[string]any); ok {
				return m, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: expected a json object", ErrGeneratedContentInvalid)
}

// clean defaults missing fields and coerces loosely typed model output into a listing.
func (g *listingGenerator) clean(raw map[string]any) GeneratedListing {
	listing := GeneratedListing{
		Title:          textOr(raw["title"], defaultListingTitle, false),
		Description:    textOr(raw["description"], defaultListingDesc, true),
		Tags:           cleanTags(raw["tags"]),
		Category:       defaultCategory,
		SuggestedPrice: cleanSuggestedPrice(raw["suggestedPrice"]),
		Story:          textOr(raw["story"], defaultListingStory, true),
		Features:       cleanFeatures(raw["features"]),
		Specifications: map[string]string{},
		InStock:        boolOr(raw["inStock"], true),
		StockCount:     intOr(raw["stockCount"], defaultStockCount),
		ShippingInfo:   cleanShipping(raw["shippingInfo"]),
	}
	if category := textOr(raw["category"], "", false); category != "" {
		listing.Category = g.taxonomy.Canonical(category)
	}
	if specs, ok := raw["specifications"].(map[string]any); ok {
		listing.Specifications = textutil.StringifyMap(specs)
	}
	return listing
}

func (g *listingGenerator) fallback(transcription string) GeneratedListing {
	description := "Beautiful handcrafted item created with care and attention to detail."
	story := defaultListingStory + "."
	if transcription != "" {
		description += " " + transcription
		story = defaultListingStory + ". " + textutil.Truncate(transcription, storyExcerptRunes) + "..."
	}
	return GeneratedListing{
		Title:          defaultListingTitle,
		Description:    description,
		Tags:           append([]string(nil), fallbackTags...),
		Category:       defaultCategory,
		SuggestedPrice: defaultSuggestedPrice,
		Story:          story,
		Features:       []string{},
		Specifications: map[string]string{},
		InStock:        true,
		StockCount:     defaultStockCount,
		ShippingInfo:   copyShipping(defaultShipping),
		FallbackUsed:   true,
		Model:          fallbackModelName,
		GeneratedAt:    g.clock(),
	}
}

func textOr(v any, def string, multiline bool) string {
	s, ok := textutil.Scalar(v)
	if !ok {
		return def
	}
	if multiline {
		s = textutil.StripTagsMultiline(s)
	} else {
		s = textutil.StripTags(s)
	}
	if s == "" {
		return def
	}
	return s
}

func cleanTags(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return append([]string(nil), defaultTags...)
	}
	tags := make([]string, 0, maxGeneratedTags)
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		s, ok := textutil.Scalar(item)
		if !ok {
			continue
		}
		tag := textutil.TitleCase(textutil.StripTags(s))
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == maxGeneratedTags {
			break
		}
	}
	if len(tags) == 0 {
		return append([]string(nil), defaultTags...)
	}
	return tags
}

func cleanFeatures(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	features := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := textutil.Scalar(item)
		if !ok {
			continue
		}
		if s = textutil.StripTags(s); s != "" {
			features = append(features, s)
		}
	}
	return features
}

// cleanSuggestedPrice keeps the model's text when it parses as a price and renders bare numbers in rupees.
func cleanSuggestedPrice(v any) string {
	switch v.(type) {
	case json.Number, float64, int, int64:
		s, _ := textutil.Scalar(v)
		if amount, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(amount) && !math.IsInf(amount, 0) {
			return "₹" + strconv.FormatFloat(amount, 'f', -1, 64)
		}
		return defaultSuggestedPrice
	}
	s := textOr(v, "", false)
	if s == "" {
		return defaultSuggestedPrice
	}
	return s
}

func boolOr(v any, def bool) bool {
	switch value := v.(type) {
	case bool:
		return value
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return def
}

func intOr(v any, def int) int {
	s, ok := textutil.Scalar(v)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	if f < 0 {
		return 0
	}
	return int(f)
}

func cleanShipping(v any) map[string]string {
	if v == nil {
		return copyShipping(defaultShipping)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return map[string]string{shippingEstimateKey: "N/A", shippingReturnsKey: "N/A"}
	}
	info := textutil.StringifyMap(m)
	for key, value := range defaultShipping {
		if strings.TrimSpace(info[key]) == "" {
			info[key] = value
		}
	}
	return info
}

func copyShipping(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
