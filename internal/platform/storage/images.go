package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"

	"github.com/kalamitra/api/internal/domain"
)

// Metadata keys written alongside every stored image.
const (
	MetaContentType      = "content_type"
	MetaOriginalFilename = "original_filename"
	MetaUploadedAt       = "uploaded_at"
)

// DefaultImageContentType is reported for objects stored without a content type.
const DefaultImageContentType = "image/jpeg"

// ErrImageNotFound is wrapped by Error when the object does not exist.
var ErrImageNotFound = errors.New("storage: image not found")

// Error implements repositories.RepositoryError for object storage.
type Error struct {
	op       string
	err      error
	notFound bool
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.op, e.err) }

func (e *Error) Unwrap() error { return e.err }

// IsNotFound reports whether the object was missing.
func (e *Error) IsNotFound() bool { return e != nil && e.notFound }

// IsConflict is always false for object storage.
func (e *Error) IsConflict() bool { return false }

// IsUnavailable reports backend failures other than a missing object.
func (e *Error) IsUnavailable() bool { return e != nil && !e.notFound }

func wrapObjectError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return &Error{op: op, err: fmt.Errorf("%w: %v", ErrImageNotFound, err), notFound: true}
	}
	return &Error{op: op, err: err}
}

// GCSImageStore keeps listing image bytes in a Cloud Storage bucket under listings/images/{id}.
type GCSImageStore struct {
	bucket *gcs.BucketHandle
	clock  func() time.Time
	newID  func() string
}

// GCSImageStoreOption customises the store.
type GCSImageStoreOption func(*GCSImageStore)

// WithImageClock overrides the upload timestamp source.
func WithImageClock(clock func() time.Time) GCSImageStoreOption {
	return func(s *GCSImageStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewGCSImageStore binds the store to bucket using an existing client.
func NewGCSImageStore(client *gcs.Client, bucket string, opts ...GCSImageStoreOption) (*GCSImageStore, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	store := &GCSImageStore{
		bucket: client.Bucket(bucket),
		clock:  time.Now,
		newID:  func() string { return strings.ToLower(ulid.Make().String()) },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// Put uploads the image and returns its generated id.
func (s *GCSImageStore) Put(ctx context.Context, upload domain.ImageUpload) (string, error) {
	id := s.newID()
	path, err := ListingImagePath(id)
	if err != nil {
		return "", err
	}

	writer := s.bucket.Object(path).NewWriter(ctx)
	writer.ContentType = upload.ContentType
	writer.Metadata = map[string]string{
		MetaContentType:      upload.ContentType,
		MetaOriginalFilename: SafeFilename(upload.Filename),
		MetaUploadedAt:       s.clock().UTC().Format(time.RFC3339),
	}
	if _, err := writer.Write(upload.Data); err != nil {
		_ = writer.Close()
		return "", wrapObjectError("images.put", err)
	}
	if err := writer.Close(); err != nil {
		return "", wrapObjectError("images.put", err)
	}
	return id, nil
}

// Get downloads the image bytes with their stored content type.
func (s *GCSImageStore) Get(ctx context.Context, imageID string) (domain.Image, error) {
	path, err := ListingImagePath(imageID)
	if err != nil {
		return domain.Image{}, &Error{op: "images.get", err: fmt.Errorf("%w: %v", ErrImageNotFound, err), notFound: true}
	}
	obj := s.bucket.Object(path)

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return domain.Image{}, wrapObjectError("images.get", err)
	}
	reader, err := obj.NewReader(ctx)
	if err != nil {
		return domain.Image{}, wrapObjectError("images.get", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return domain.Image{}, wrapObjectError("images.get", err)
	}

	contentType := attrs.ContentType
	if contentType == "" {
		contentType = attrs.Metadata[MetaContentType]
	}
	if contentType == "" {
		contentType = DefaultImageContentType
	}
	return domain.Image{
		ID:          imageID,
		Data:        data,
		ContentType: contentType,
		Filename:    attrs.Metadata[MetaOriginalFilename],
	}, nil
}

// Delete removes the image object.
func (s *GCSImageStore) Delete(ctx context.Context, imageID string) error {
	path, err := ListingImagePath(imageID)
	if err != nil {
		return nil
	}
	return wrapObjectError("images.delete", s.bucket.Object(path).Delete(ctx))
}
