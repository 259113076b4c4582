package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultLimit is the number of items returned when the client omits limit.
	DefaultLimit = 100
	// DefaultMaxLimit caps limit to prevent unbounded queries.
	DefaultMaxLimit = 100

	maxFilterValueLength = 256
)

var (
	ErrInvalidSkip   = errors.New("pagination: invalid skip")
	ErrInvalidLimit  = errors.New("pagination: invalid limit")
	ErrInvalidFilter = errors.New("pagination: invalid filter")
)

// Params bundles offset pagination and equality filters extracted from a request.
type Params struct {
	Skip    int
	Limit   int
	Filters map[string]string
}

// Options control how Parse behaves for a given handler.
type Options struct {
	DefaultLimit int
	MaxLimit     int
	// AllowedFilters lists query parameters accepted as equality filters.
	AllowedFilters []string
}

// FromRequest parses the supported query parameters from the supplied request.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse consumes the provided query values and returns the normalised Params representation.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}

	skip, err := parseSkip(values.Get("skip"))
	if err != nil {
		return Params{}, err
	}
	limit, err := parseLimit(values.Get("limit"), opts)
	if err != nil {
		return Params{}, err
	}
	params := Params{Skip: skip, Limit: limit}

	for _, field := range opts.AllowedFilters {
		raw, present := values[field]
		if !present || len(raw) == 0 {
			continue
		}
		value := sanitizeFilterValue(raw[0])
		if value == "" {
			return Params{}, fmt.Errorf("%w: empty value for %q", ErrInvalidFilter, field)
		}
		if params.Filters == nil {
			params.Filters = make(map[string]string, len(opts.AllowedFilters))
		}
		params.Filters[field] = value
	}
	return params, nil
}

// Normalize applies the skip and limit rules to already parsed integers. A zero limit selects the default.
func Normalize(skip, limit int, opts Options) (Params, error) {
	if skip < 0 {
		return Params{}, fmt.Errorf("%w: must not be negative", ErrInvalidSkip)
	}
	maxLimit, defaultLimit := limits(opts)
	switch {
	case limit == 0:
		limit = defaultLimit
	case limit < 0:
		return Params{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidLimit)
	case limit > maxLimit:
		limit = maxLimit
	}
	return Params{Skip: skip, Limit: limit}, nil
}

func parseSkip(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidSkip)
	}
	if value < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidSkip)
	}
	return value, nil
}

func parseLimit(raw string, opts Options) (int, error) {
	maxLimit, defaultLimit := limits(opts)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultLimit, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidLimit)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidLimit)
	}
	if value > maxLimit {
		value = maxLimit
	}
	return value, nil
}

func limits(opts Options) (int, int) {
	maxLimit := opts.MaxLimit
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	defaultLimit := opts.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return maxLimit, defaultLimit
}

func sanitizeFilterValue(value string) string {
	value = strings.Trim(strings.TrimSpace(value), "\"'")
	value = strings.NewReplacer("\n", " ", "\r", " ").Replace(value)
	value = strings.TrimSpace(value)
	if len(value) > maxFilterValueLength {
		value = value[:maxFilterValueLength]
	}
	return value
}
