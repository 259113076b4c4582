package catalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kalamitra/api/internal/domain"
)

// Document is a raw listing document as decoded from the document store.
type Document map[string]any

// Storage field names of a listing document.
const (
	FieldID             = "_id"
	FieldTitle          = "title"
	FieldDescription    = "description"
	FieldTags           = "tags"
	FieldCategory       = "category"
	FieldSuggestedPrice = "suggested_price"
	FieldPrice          = "price"
	FieldOriginalPrice  = "originalPrice"
	FieldStory          = "story"
	FieldImageIDs       = "image_ids"
	FieldArtistID       = "artist_id"
	FieldCreatedAt      = "created_at"
	FieldUpdatedAt      = "updated_at"
	FieldStatus         = "status"
	FieldAIGenerated    = "ai_generated"
	FieldAIMetadata     = "ai_metadata"
	FieldInStock        = "inStock"
	FieldStockCount     = "stockCount"
	FieldFeatures       = "features"
	FieldSpecifications = "specifications"
	FieldReviews        = "reviews"
	FieldShippingInfo   = "shippingInfo"
	FieldTranscription  = "transcription"

	legacySuggestedPrice = "suggestedPrice"
	legacyOriginalPrice  = "original_price"
	legacyArtistUID      = "firebase_uid"
)

// Storage field names of an embedded review.
const (
	ReviewFieldID        = "id"
	ReviewFieldUserID    = "userId"
	ReviewFieldUserName  = "userName"
	ReviewFieldUserEmail = "userEmail"
	ReviewFieldRating    = "rating"
	ReviewFieldComment   = "comment"
	ReviewFieldDate      = "date"
	ReviewFieldVerified  = "verified"
)

// NormalizerOption customises a Normalizer.
type NormalizerOption func(*Normalizer)

// WithClock overrides the time source used for missing timestamps.
func WithClock(clock func() time.Time) NormalizerOption {
	return func(n *Normalizer) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithPriceParser overrides the currency symbol handling.
func WithPriceParser(parser PriceParser) NormalizerOption {
	return func(n *Normalizer) {
		n.prices = parser
	}
}

// WithReviewIDGenerator overrides how ids are minted for reviews stored without one.
func WithReviewIDGenerator(gen func() string) NormalizerOption {
	return func(n *Normalizer) {
		if gen != nil {
			n.newReviewID = gen
		}
	}
}

// WithPriceFallbackHook registers a callback invoked whenever a price field falls back.
func WithPriceFallbackHook(hook func(field string, raw any)) NormalizerOption {
	return func(n *Normalizer) {
		n.onPriceFallback = hook
	}
}

// Normalizer shapes raw listing documents into fully-defaulted listings.
type Normalizer struct {
	clock           func() time.Time
	prices          PriceParser
	newReviewID     func() string
	onPriceFallback func(field string, raw any)
}

// NewNormalizer constructs a normalizer with the default currency symbol and a UTC wall clock.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		clock:       time.Now,
		prices:      defaultPriceParser,
		newReviewID: func() string { return primitive.NewObjectID().Hex() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// Normalize converts raw into a listing. The raw document is never modified. Only a missing identifier or a
// malformed element inside a container field produces an error; every other defect is defaulted.
func (n *Normalizer) Normalize(raw Document) (domain.Listing, error) {
	doc, _ := NormalizeIDsDeep(map[string]any(raw)).(map[string]any)

	id, _ := doc[FieldID].(string)
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Listing{}, &DocumentError{Field: FieldID, Err: ErrMissingIdentifier}
	}

	now := n.now()
	r := &fieldReader{doc: doc}
	listing := domain.Listing{
		ID:             id,
		Title:          r.str("", FieldTitle),
		Description:    r.str("", FieldDescription),
		Tags:           r.stringList(FieldTags),
		Category:       r.str("", FieldCategory),
		SuggestedPrice: r.str("", FieldSuggestedPrice, legacySuggestedPrice),
		Story:          r.str("", FieldStory),
		ImageIDs:       r.imageIDs(FieldImageIDs),
		ArtistID:       r.optionalString(FieldArtistID, legacyArtistUID),
		CreatedAt:      r.timestamp(now, FieldCreatedAt),
		UpdatedAt:      r.timestamp(now, FieldUpdatedAt),
		Status:         domain.ListingStatus(r.str(string(domain.ListingStatusActive), FieldStatus)),
		AIGenerated:    r.boolean(false, FieldAIGenerated),
		AIMetadata:     r.anyMap(FieldAIMetadata),
		InStock:        r.boolean(true, FieldInStock),
		StockCount:     r.integer(0, FieldStockCount),
		Features:       r.stringList(FieldFeatures),
		Specifications: r.stringMap(FieldSpecifications),
		ShippingInfo:   r.stringMap(FieldShippingInfo),
		Transcription:  r.str("", FieldTranscription),
	}
	if listing.Status == "" {
		listing.Status = domain.ListingStatusActive
	}

	listing.Price, listing.OriginalPrice = n.resolvePrices(r)
	listing.Reviews = n.reviews(r, now)

	if r.err != nil {
		return domain.Listing{}, r.err
	}
	return listing, nil
}

func (n *Normalizer) resolvePrices(r *fieldReader) (float64, float64) {
	var price float64
	if raw, key, ok := r.lookup(FieldPrice); ok {
		price = n.parsePrice(key, raw, 0)
	} else if raw, key, ok := r.lookup(FieldSuggestedPrice, legacySuggestedPrice); ok {
		price = n.parsePrice(key, raw, 0)
	}
	original := price
	if raw, key, ok := r.lookup(FieldOriginalPrice, legacyOriginalPrice); ok {
		original = n.parsePrice(key, raw, price)
	}
	return price, original
}

func (n *Normalizer) parsePrice(field string, raw any, fallback float64) float64 {
	value, ok := n.prices.Parse(raw, fallback)
	if !ok && n.onPriceFallback != nil {
		n.onPriceFallback(field, raw)
	}
	return value
}

func (n *Normalizer) reviews(r *fieldReader, now time.Time) []domain.Review {
	raw, _, ok := r.lookup(FieldReviews)
	if !ok {
		return []domain.Review{}
	}
	items, ok := raw.([]any)
	if !ok {
		return []domain.Review{}
	}
	reviews := make([]domain.Review, 0, len(items))
	for i, item := range items {
		path := fmt.Sprintf("%s[%d]", FieldReviews, i)
		m, ok := item.(map[string]any)
		if !ok {
			r.fail(schemaError(path, "expected a mapping"))
			return []domain.Review{}
		}
		review, err := n.review(m, path, now)
		if err != nil {
			r.fail(err)
			return []domain.Review{}
		}
		reviews = append(reviews, review)
	}
	return reviews
}

func (n *Normalizer) review(m map[string]any, path string, now time.Time) (domain.Review, error) {
	rr := &fieldReader{doc: m, prefix: path + "."}

	userID, hasUser := m[ReviewFieldUserID].(string)
	if !hasUser {
		return domain.Review{}, schemaError(path+"."+ReviewFieldUserID, "required")
	}
	userName, hasName := m[ReviewFieldUserName].(string)
	if !hasName {
		return domain.Review{}, schemaError(path+"."+ReviewFieldUserName, "required")
	}

	rating, ok := wholeNumber(m[ReviewFieldRating])
	if !ok {
		return domain.Review{}, schemaError(path+"."+ReviewFieldRating, "expected an integer")
	}
	comment, _ := m[ReviewFieldComment].(string)
	if err := domain.ValidateReview(rating, comment); err != nil {
		return domain.Review{}, &DocumentError{Field: path, Reason: err.Error(), Err: ErrSchemaValidation}
	}

	review := domain.Review{
		ID:        rr.str("", ReviewFieldID),
		UserID:    userID,
		UserName:  userName,
		UserEmail: rr.optionalString(ReviewFieldUserEmail),
		Rating:    rating,
		Comment:   comment,
		Verified:  rr.boolean(true, ReviewFieldVerified),
	}
	if review.ID == "" {
		review.ID = n.newReviewID()
	}
	switch d := m[ReviewFieldDate].(type) {
	case string:
		review.Date = d
	case time.Time:
		review.Date = d.Format(domain.ReviewDateLayout)
	default:
		review.Date = now.Format(domain.ReviewDateLayout)
	}
	if rr.err != nil {
		return domain.Review{}, rr.err
	}
	return review, nil
}

func (n *Normalizer) now() time.Time {
	return n.clock().UTC()
}

// ListingDocument serialises a listing back into its storage shape.
func ListingDocument(listing domain.Listing) Document {
	doc := Document{
		FieldID:             listing.ID,
		FieldTitle:          listing.Title,
		FieldDescription:    listing.Description,
		FieldTags:           stringsToAny(listing.Tags),
		FieldCategory:       listing.Category,
		FieldSuggestedPrice: listing.SuggestedPrice,
		FieldPrice:          listing.Price,
		FieldOriginalPrice:  listing.OriginalPrice,
		FieldStory:          listing.Story,
		FieldImageIDs:       stringsToAny(listing.ImageIDs),
		FieldCreatedAt:      listing.CreatedAt.UTC(),
		FieldUpdatedAt:      listing.UpdatedAt.UTC(),
		FieldStatus:         string(listing.Status),
		FieldAIGenerated:    listing.AIGenerated,
		FieldAIMetadata:     copyAnyMap(listing.AIMetadata),
		FieldInStock:        listing.InStock,
		FieldStockCount:     listing.StockCount,
		FieldFeatures:       stringsToAny(listing.Features),
		FieldSpecifications: stringMapToAny(listing.Specifications),
		FieldReviews:        reviewsToAny(listing.Reviews),
		FieldShippingInfo:   stringMapToAny(listing.ShippingInfo),
	}
	if listing.ArtistID != nil {
		doc[FieldArtistID] = *listing.ArtistID
	}
	if listing.Transcription != "" {
		doc[FieldTranscription] = listing.Transcription
	}
	return doc
}

// ReviewDocument serialises a review into its embedded storage shape.
func ReviewDocument(review domain.Review) map[string]any {
	doc := map[string]any{
		ReviewFieldID:       review.ID,
		ReviewFieldUserID:   review.UserID,
		ReviewFieldUserName: review.UserName,
		ReviewFieldRating:   review.Rating,
		ReviewFieldComment:  review.Comment,
		ReviewFieldDate:     review.Date,
		ReviewFieldVerified: review.Verified,
	}
	if review.UserEmail != nil {
		doc[ReviewFieldUserEmail] = *review.UserEmail
	}
	return doc
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func stringMapToAny(values map[string]string) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func copyAnyMap(values map[string]any) map[string]any {
	copied, ok := NormalizeIDsDeep(values).(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return copied
}

func reviewsToAny(reviews []domain.Review) []any {
	out := make([]any, len(reviews))
	for i, review := range reviews {
		out[i] = ReviewDocument(review)
	}
	return out
}

// fieldReader reads typed fields from a normalized document, remembering the first schema violation.
type fieldReader struct {
	doc    map[string]any
	prefix string
	err    error
}

func (r *fieldReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// lookup returns the first non-null value among keys.
func (r *fieldReader) lookup(keys ...string) (any, string, bool) {
	for _, key := range keys {
		if v, ok := r.doc[key]; ok && v != nil {
			return v, key, true
		}
	}
	return nil, "", false
}

func (r *fieldReader) str(def string, keys ...string) string {
	v, key, ok := r.lookup(keys...)
	if !ok {
		return def
	}
	if isContainer(v) {
		r.fail(schemaError(r.prefix+key, "expected a string"))
		return def
	}
	if s, ok := scalarString(v); ok {
		return s
	}
	return def
}

func (r *fieldReader) optionalString(keys ...string) *string {
	s := strings.TrimSpace(r.str("", keys...))
	if s == "" {
		return nil
	}
	return &s
}

func (r *fieldReader) boolean(def bool, key string) bool {
	v, _, ok := r.lookup(key)
	if !ok {
		return def
	}
	if isContainer(v) {
		r.fail(schemaError(r.prefix+key, "expected a boolean"))
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
		return def
	}
	if f, ok := numberValue(v); ok {
		switch f {
		case 0:
			return false
		case 1:
			return true
		}
	}
	return def
}

func (r *fieldReader) integer(def int, key string) int {
	v, _, ok := r.lookup(key)
	if !ok {
		return def
	}
	if isContainer(v) {
		r.fail(schemaError(r.prefix+key, "expected an integer"))
		return def
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return def
		}
		v = f
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	}
	f, ok := numberValue(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	f = math.Trunc(f)
	// float64(math.MaxInt) rounds up to 2^63, which int cannot hold.
	if f < float64(math.MinInt) || f >= float64(math.MaxInt) {
		return def
	}
	return int(f)
}

func (r *fieldReader) timestamp(def time.Time, key string) time.Time {
	v, _, ok := r.lookup(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(t)); err == nil {
			return parsed.UTC()
		}
	}
	return def
}

func (r *fieldReader) stringList(key string) []string {
	v, _, ok := r.lookup(key)
	if !ok {
		return []string{}
	}
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		if item == nil || isContainer(item) {
			r.fail(schemaError(fmt.Sprintf("%s%s[%d]", r.prefix, key, i), "expected a string"))
			return []string{}
		}
		s, ok := scalarString(item)
		if !ok {
			r.fail(schemaError(fmt.Sprintf("%s%s[%d]", r.prefix, key, i), "expected a string"))
			return []string{}
		}
		out = append(out, s)
	}
	return out
}

// imageIDs keeps positions of unusable ids as empty strings so that resolved URLs stay aligned.
func (r *fieldReader) imageIDs(key string) []string {
	v, _, ok := r.lookup(key)
	if !ok {
		return []string{}
	}
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, len(items))
	for i, item := range items {
		if s, ok := item.(string); ok {
			out[i] = strings.TrimSpace(s)
		}
	}
	return out
}

func (r *fieldReader) stringMap(key string) map[string]string {
	v, _, ok := r.lookup(key)
	if !ok {
		return map[string]string{}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, item := range m {
		if item == nil {
			out[k] = ""
			continue
		}
		if isContainer(item) {
			r.fail(schemaError(r.prefix+key+"."+k, "expected a string"))
			return map[string]string{}
		}
		s, ok := scalarString(item)
		if !ok {
			r.fail(schemaError(r.prefix+key+"."+k, "expected a string"))
			return map[string]string{}
		}
		out[k] = s
	}
	return out
}

func (r *fieldReader) anyMap(key string) map[string]any {
	v, _, ok := r.lookup(key)
	if !ok {
		return map[string]any{}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case time.Time:
		return t.UTC().Format(time.RFC3339), true
	}
	if f, ok := numberValue(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

func numberValue(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func wholeNumber(v any) (int, bool) {
	if s, ok := v.(string); ok {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		return n, err == nil
	}
	f, ok := numberValue(v)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}
