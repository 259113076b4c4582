package mongo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/kalamitra/api/internal/domain"
	pmongo "github.com/kalamitra/api/internal/platform/mongodb"
	"github.com/kalamitra/api/internal/platform/storage"
	"github.com/kalamitra/api/internal/repositories"
)

const defaultImageBucket = "fs"

// GridFSImageStore keeps listing images in a GridFS bucket. Image ids are the file ObjectID in hex.
type GridFSImageStore struct {
	provider   *pmongo.Provider
	bucketName string
	clock      func() time.Time
	newName    func(original string) string
}

var _ repositories.ImageStore = (*GridFSImageStore)(nil)

// GridFSOption customises the image store.
type GridFSOption func(*GridFSImageStore)

// WithBucketName overrides the GridFS bucket prefix.
func WithBucketName(name string) GridFSOption {
	return func(s *GridFSImageStore) {
		if name = strings.TrimSpace(name); name != "" {
			s.bucketName = name
		}
	}
}

// WithGridFSClock injects the clock used for the uploaded_at metadata.
func WithGridFSClock(clock func() time.Time) GridFSOption {
	return func(s *GridFSImageStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewGridFSImageStore constructs the store on top of the shared Mongo provider.
func NewGridFSImageStore(provider *pmongo.Provider, opts ...GridFSOption) (*GridFSImageStore, error) {
	if provider == nil {
		return nil, errors.New("gridfs image store requires mongodb provider")
	}
	store := &GridFSImageStore{
		provider:   provider,
		bucketName: defaultImageBucket,
		clock:      time.Now,
		newName: func(original string) string {
			return uuid.NewString() + "_" + storage.SafeFilename(original)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *GridFSImageStore) bucket(ctx context.Context) (*gridfs.Bucket, error) {
	db, err := s.provider.Database(ctx)
	if err != nil {
		return nil, err
	}
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(s.bucketName))
	if err != nil {
		return nil, pmongo.WrapError("images.bucket", err)
	}
	return bucket, nil
}

// Put uploads the image with its content type, original filename and upload time as metadata.
func (s *GridFSImageStore) Put(ctx context.Context, upload domain.ImageUpload) (string, error) {
	bucket, err := s.bucket(ctx)
	if err != nil {
		return "", err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = bucket.SetWriteDeadline(deadline)
	}

	contentType := strings.TrimSpace(upload.ContentType)
	if contentType == "" {
		contentType = storage.DefaultImageContentType
	}
	metadata := bson.D{
		{Key: storage.MetaContentType, Value: contentType},
		{Key: storage.MetaOriginalFilename, Value: upload.Filename},
		{Key: storage.MetaUploadedAt, Value: s.clock().UTC()},
	}

	id, err := bucket.UploadFromStream(s.newName(upload.Filename), bytes.NewReader(upload.Data),
		options.GridFSUpload().SetMetadata(metadata))
	if err != nil {
		return "", pmongo.WrapError("images.put", err)
	}
	return id.Hex(), nil
}

// Get reads the image bytes. Content type falls back to image/jpeg when the metadata lacks one.
func (s *GridFSImageStore) Get(ctx context.Context, imageID string) (domain.Image, error) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(imageID))
	if err != nil {
		return domain.Image{}, pmongo.NotFound("images.get")
	}
	bucket, err := s.bucket(ctx)
	if err != nil {
		return domain.Image{}, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = bucket.SetReadDeadline(deadline)
	}

	stream, err := bucket.OpenDownloadStream(oid)
	if err != nil {
		return domain.Image{}, pmongo.WrapError("images.get", err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return domain.Image{}, pmongo.WrapError("images.get", fmt.Errorf("read stream: %w", err))
	}

	image := domain.Image{ID: oid.Hex(), Data: data, ContentType: storage.DefaultImageContentType}
	if file := stream.GetFile(); file != nil {
		image.Filename = file.Name
		if v, ok := metadataString(file.Metadata, storage.MetaContentType); ok && v != "" {
			image.ContentType = v
		}
		if v, ok := metadataString(file.Metadata, storage.MetaOriginalFilename); ok && v != "" {
			image.Filename = v
		}
	}
	return image, nil
}

// Delete removes the file and its chunks. Unknown ids are ignored.
func (s *GridFSImageStore) Delete(ctx context.Context, imageID string) error {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(imageID))
	if err != nil {
		return nil
	}
	bucket, err := s.bucket(ctx)
	if err != nil {
		return err
	}
	if err := bucket.DeleteContext(ctx, oid); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
		return pmongo.WrapError("images.delete", err)
	}
	return nil
}

func metadataString(raw bson.Raw, key string) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	value, err := raw.LookupErr(key)
	if err != nil {
		return "", false
	}
	return value.StringValueOK()
}
