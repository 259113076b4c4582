package catalog

import (
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestAssembler(t *testing.T, onSkip func(int, error)) (*Assembler, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.WarnLevel)
	return NewAssembler(AssemblerConfig{
		BaseURL:    "https://api.example.com",
		Normalizer: newTestNormalizer(),
		Logger:     zap.New(core),
		OnSkip:     onSkip,
	}), logs
}

func TestAssembleResolvesImages(t *testing.T) {
	assembler, _ := newTestAssembler(t, nil)
	listing, err := assembler.Assemble(Document{"_id": "L1", "image_ids": []any{"a", "b"}})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	want := []string{
		"https://api.example.com/api/listings/L1/images/a",
		"https://api.example.com/api/listings/L1/images/b",
	}
	if !reflect.DeepEqual(listing.Images, want) {
		t.Fatalf("expected %v, got %v", want, listing.Images)
	}
}

func TestAssembleDefaultsImagesToPlaceholder(t *testing.T) {
	assembler, _ := newTestAssembler(t, nil)
	listing, err := assembler.Assemble(Document{"_id": "x", "title": "t"})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !reflect.DeepEqual(listing.Images, []string{PlaceholderImage}) {
		t.Fatalf("expected placeholder images, got %v", listing.Images)
	}
	if len(listing.Tags) != 0 || !listing.InStock || listing.StockCount != 0 || len(listing.Reviews) != 0 {
		t.Fatalf("expected documented defaults, got %#v", listing)
	}
}

func TestAssembleFailuresAreNotFound(t *testing.T) {
	assembler, _ := newTestAssembler(t, nil)

	_, err := assembler.Assemble(Document{"title": "orphan"})
	if !errors.Is(err, ErrListingNotFound) || !errors.Is(err, ErrMissingIdentifier) {
		t.Fatalf("expected not found wrapping missing identifier, got %v", err)
	}

	_, err = assembler.Assemble(Document{"_id": "a", "reviews": []any{validReview(0)}})
	if !errors.Is(err, ErrListingNotFound) || !errors.Is(err, ErrSchemaValidation) {
		t.Fatalf("expected not found wrapping schema validation, got %v", err)
	}
}

func TestAssemblePageSkipsBadDocuments(t *testing.T) {
	var skipped []int
	assembler, logs := newTestAssembler(t, func(index int, _ error) {
		skipped = append(skipped, index)
	})

	page := assembler.AssemblePage([]Document{
		{"_id": "one", "title": "first"},
		{"title": "no identifier"},
		{"_id": "three", "title": "third"},
	}, 42, 20, 10)

	if len(page.Items) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(page.Items))
	}
	if page.Items[0].ID != "one" || page.Items[1].ID != "three" {
		t.Fatalf("expected order one, three; got %s, %s", page.Items[0].ID, page.Items[1].ID)
	}
	if page.Limit != 2 {
		t.Fatalf("expected limit to be the assembled count 2, got %d", page.Limit)
	}
	if page.Total != 42 {
		t.Fatalf("expected caller total 42, got %d", page.Total)
	}
	if page.Skip != 10 {
		t.Fatalf("expected skip 10, got %d", page.Skip)
	}
	if !reflect.DeepEqual(skipped, []int{1}) {
		t.Fatalf("expected skip callback for index 1, got %v", skipped)
	}
	if logs.FilterMessage("skipping listing document").Len() != 1 {
		t.Fatalf("expected one skip log entry, got %d", logs.Len())
	}
}

func TestAssemblePageEmpty(t *testing.T) {
	assembler, _ := newTestAssembler(t, nil)
	page := assembler.AssemblePage(nil, 0, 100, 0)
	if page.Items == nil || len(page.Items) != 0 || page.Limit != 0 {
		t.Fatalf("expected empty non-nil page, got %#v", page)
	}
}
