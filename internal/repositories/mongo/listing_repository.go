package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kalamitra/api/internal/catalog"
	domain "github.com/kalamitra/api/internal/domain"
	pmongo "github.com/kalamitra/api/internal/platform/mongodb"
	"github.com/kalamitra/api/internal/repositories"
)

const listingCollection = "listings"

// ListingRepository stores listing documents in MongoDB.
type ListingRepository struct {
	provider *pmongo.Provider
}

var _ repositories.ListingRepository = (*ListingRepository)(nil)

// NewListingRepository constructs a Mongo-backed listing repository.
func NewListingRepository(provider *pmongo.Provider) (*ListingRepository, error) {
	if provider == nil {
		return nil, errors.New("listing repository requires mongodb provider")
	}
	return &ListingRepository{provider: provider}, nil
}

func (r *ListingRepository) collection(ctx context.Context) (*mongo.Collection, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("listing repository not initialised")
	}
	return r.provider.Collection(ctx, listingCollection)
}

// Find returns raw listing documents newest first.
func (r *ListingRepository) Find(ctx context.Context, query repositories.ListingQuery) ([]catalog.Document, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if query.Skip > 0 {
		opts.SetSkip(int64(query.Skip))
	}
	if query.Limit > 0 {
		opts.SetLimit(int64(query.Limit))
	}

	cursor, err := coll.Find(ctx, listingFilter(query), opts)
	if err != nil {
		return nil, pmongo.WrapError("listings.find", err)
	}
	defer cursor.Close(ctx)

	docs := make([]catalog.Document, 0, query.Limit)
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, pmongo.WrapError("listings.decode", err)
		}
		docs = append(docs, catalog.Document(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, pmongo.WrapError("listings.find", err)
	}
	return docs, nil
}

// Count reports how many listings match the query filters, ignoring skip and limit.
func (r *ListingRepository) Count(ctx context.Context, query repositories.ListingQuery) (int64, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return 0, err
	}
	total, err := coll.CountDocuments(ctx, listingFilter(query))
	if err != nil {
		return 0, pmongo.WrapError("listings.count", err)
	}
	return total, nil
}

// FindByID loads a listing stored under either an ObjectID or a plain string key.
func (r *ListingRepository) FindByID(ctx context.Context, listingID string) (catalog.Document, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}
	filter, ok := idFilter(listingID)
	if !ok {
		return nil, pmongo.NotFound("listings.get")
	}

	var doc bson.M
	if err := coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, pmongo.WrapError("listings.get", err)
	}
	return catalog.Document(doc), nil
}

// FindByIDs loads several listings keyed by their normalized id. Missing ids are absent from the map.
func (r *ListingRepository) FindByIDs(ctx context.Context, listingIDs []string) (map[string]catalog.Document, error) {
	keys := idValues(listingIDs)
	if len(keys) == 0 {
		return map[string]catalog.Document{}, nil
	}
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}

	cursor, err := coll.Find(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return nil, pmongo.WrapError("listings.find_many", err)
	}
	defer cursor.Close(ctx)

	out := make(map[string]catalog.Document, len(listingIDs))
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, pmongo.WrapError("listings.decode", err)
		}
		if id, ok := catalog.NormalizeID(doc["_id"]); ok {
			out[id] = catalog.Document(doc)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, pmongo.WrapError("listings.find_many", err)
	}
	return out, nil
}

// Insert stores a new listing and returns its generated id.
func (r *ListingRepository) Insert(ctx context.Context, doc catalog.Document) (string, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return "", err
	}
	record := bson.M(doc)
	if _, ok := record["_id"]; !ok {
		record = make(bson.M, len(doc)+1)
		for k, v := range doc {
			record[k] = v
		}
		record["_id"] = primitive.NewObjectID()
	}

	res, err := coll.InsertOne(ctx, record)
	if err != nil {
		return "", pmongo.WrapError("listings.insert", err)
	}
	id, ok := catalog.NormalizeID(res.InsertedID)
	if !ok {
		return "", errors.New("listings.insert: unexpected inserted id type")
	}
	return id, nil
}

// UpdateStatus sets the listing status and bumps updated_at.
func (r *ListingRepository) UpdateStatus(ctx context.Context, listingID string, status domain.ListingStatus, updatedAt time.Time) error {
	return r.updateOne(ctx, "listings.update_status", listingID, bson.M{
		"$set": bson.M{"status": string(status), "updated_at": updatedAt},
	})
}

// AppendReview pushes a review onto the embedded reviews array.
func (r *ListingRepository) AppendReview(ctx context.Context, listingID string, review map[string]any, updatedAt time.Time) error {
	return r.updateOne(ctx, "listings.append_review", listingID, bson.M{
		"$push": bson.M{"reviews": bson.M(review)},
		"$set":  bson.M{"updated_at": updatedAt},
	})
}

// AdjustStock changes stockCount by delta and clears inStock once nothing is left.
func (r *ListingRepository) AdjustStock(ctx context.Context, listingID string, delta int) error {
	if delta == 0 {
		return nil
	}
	if err := r.updateOne(ctx, "listings.adjust_stock", listingID, bson.M{
		"$inc": bson.M{"stockCount": delta},
	}); err != nil {
		return err
	}
	if delta > 0 {
		return nil
	}

	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	filter, _ := idFilter(listingID)
	_, err = coll.UpdateOne(ctx, bson.M{"$and": bson.A{filter, bson.M{"stockCount": bson.M{"$lte": 0}}}}, bson.M{
		"$set": bson.M{"inStock": false, "stockCount": 0},
	})
	return pmongo.WrapError("listings.adjust_stock", err)
}

// Delete removes the listing document.
func (r *ListingRepository) Delete(ctx context.Context, listingID string) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	filter, ok := idFilter(listingID)
	if !ok {
		return pmongo.NotFound("listings.delete")
	}
	res, err := coll.DeleteOne(ctx, filter)
	if err != nil {
		return pmongo.WrapError("listings.delete", err)
	}
	if res.DeletedCount == 0 {
		return pmongo.NotFound("listings.delete")
	}
	return nil
}

func (r *ListingRepository) updateOne(ctx context.Context, op, listingID string, update bson.M) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	filter, ok := idFilter(listingID)
	if !ok {
		return pmongo.NotFound(op)
	}
	res, err := coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return pmongo.WrapError(op, err)
	}
	if res.MatchedCount == 0 {
		return pmongo.NotFound(op)
	}
	return nil
}

func listingFilter(query repositories.ListingQuery) bson.M {
	filter := bson.M{}
	if v := strings.TrimSpace(query.Category); v != "" {
		filter["category"] = v
	}
	if v := strings.TrimSpace(query.ArtistID); v != "" {
		filter["artist_id"] = v
	}
	if v := strings.TrimSpace(query.Status); v != "" {
		filter["status"] = v
	}
	return filter
}

// idFilter matches documents keyed by the ObjectID form of id or by the raw string.
func idFilter(id string) (bson.M, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false
	}
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"$or": bson.A{bson.M{"_id": oid}, bson.M{"_id": id}}}, true
	}
	return bson.M{"_id": id}, true
}

func idValues(ids []string) bson.A {
	out := make(bson.A, 0, len(ids)*2)
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			out = append(out, oid)
		}
		out = append(out, id)
	}
	return out
}
