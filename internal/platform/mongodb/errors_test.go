package mongodb

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"

	"github.com/kalamitra/api/internal/platform/config"
)

func TestWrapErrorClassifies(t *testing.T) {
	notFound := WrapError("listings.find", mongo.ErrNoDocuments)
	var repoErr *Error
	if !errors.As(notFound, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not-found error, got %v", notFound)
	}

	fileMissing := WrapError("images.open", fmt.Errorf("open: %w", gridfs.ErrFileNotFound))
	if !errors.As(fileMissing, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected gridfs miss to be not found, got %v", fileMissing)
	}

	dup := WrapError("orders.insert", mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "dup"}}})
	if !errors.As(dup, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected duplicate key conflict, got %v", dup)
	}

	disconnected := WrapError("listings.find", mongo.ErrClientDisconnected)
	if !errors.As(disconnected, &repoErr) || !repoErr.IsUnavailable() {
		t.Fatalf("expected unavailable, got %v", disconnected)
	}
}

func TestWrapErrorPassThrough(t *testing.T) {
	if WrapError("op", nil) != nil {
		t.Fatalf("expected nil")
	}
	if err := WrapError("op", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation passthrough, got %v", err)
	}
	first := NotFound("listings.get")
	if again := WrapError("other", first); again != first {
		t.Fatalf("expected existing repository error to be returned as-is")
	}
}

func TestProviderRequiresURI(t *testing.T) {
	p := NewProvider(configWithURI(""))
	if _, err := p.Client(context.Background()); err == nil {
		t.Fatalf("expected error for empty uri")
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := p.Client(context.Background()); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}

func configWithURI(uri string) config.MongoConfig {
	return config.MongoConfig{URI: uri, Database: "kalamitra"}
}
