package catalog

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultCurrencySymbol is the currency glyph stored in legacy price strings.
const DefaultCurrencySymbol = "₹"

var defaultPriceParser = PriceParser{Symbol: DefaultCurrencySymbol}

// ParsePrice converts a stored price into a number using the default currency symbol.
// The boolean is false when the fallback was used.
func ParsePrice(raw any, fallback float64) (float64, bool) {
	return defaultPriceParser.Parse(raw, fallback)
}

// PriceParser converts loosely typed price values into floats.
type PriceParser struct {
	Symbol string
}

// Parse returns the numeric value of raw, or fallback with ok=false when raw is not a usable price.
func (p PriceParser) Parse(raw any, fallback float64) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return finiteOr(v, fallback)
	case float32:
		return finiteOr(float64(v), fallback)
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		return p.parseString(v.String(), fallback)
	case primitive.Decimal128:
		return p.parseString(v.String(), fallback)
	case string:
		return p.parseString(v, fallback)
	default:
		return fallback, false
	}
}

func (p PriceParser) parseString(raw string, fallback float64) (float64, bool) {
	cleaned := strings.TrimSpace(raw)
	if p.Symbol != "" {
		cleaned = strings.ReplaceAll(cleaned, p.Symbol, "")
	}
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return fallback, false
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return fallback, false
	}
	return finiteOr(value, fallback)
}

func finiteOr(value, fallback float64) (float64, bool) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fallback, false
	}
	return value, true
}

// FormatRupees renders an amount the way order summaries display it.
func FormatRupees(amount float64) string {
	return DefaultCurrencySymbol + strconv.FormatFloat(amount, 'f', 2, 64)
}
