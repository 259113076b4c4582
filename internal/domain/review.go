package domain

import (
	"errors"
	"strings"
)

const (
	// ReviewRatingMin is the lowest accepted star rating.
	ReviewRatingMin = 1
	// ReviewRatingMax is the highest accepted star rating.
	ReviewRatingMax = 5
	// ReviewDateLayout formats the human readable review date.
	ReviewDateLayout = "January 02, 2006"
)

var (
	// ErrReviewRatingOutOfRange is returned for ratings outside 1..5.
	ErrReviewRatingOutOfRange = errors.New("review: rating must be between 1 and 5")
	// ErrReviewCommentEmpty is returned for blank comments.
	ErrReviewCommentEmpty = errors.New("review: comment must not be empty")
)

// ValidateReview checks the invariants every stored review satisfies.
func ValidateReview(rating int, comment string) error {
	if rating < ReviewRatingMin || rating > ReviewRatingMax {
		return ErrReviewRatingOutOfRange
	}
	if strings.TrimSpace(comment) == "" {
		return ErrReviewCommentEmpty
	}
	return nil
}
