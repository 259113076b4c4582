package textutil

import (
	"encoding/json"
	"strconv"
)

// Scalar renders a string, bool or number as display text. Nil and containers report false.
func Scalar(v any) (string, bool) {
	switch value := v.(type) {
	case string:
		return value, true
	case bool:
		return strconv.FormatBool(value), true
	case json.Number:
		return value.String(), true
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(value), 'f', -1, 32), true
	case int:
		return strconv.Itoa(value), true
	case int32:
		return strconv.FormatInt(int64(value), 10), true
	case int64:
		return strconv.FormatInt(value, 10), true
	default:
		return "", false
	}
}

// StringifyMap converts a loosely typed map into plain-text values. Keys and values lose any markup;
// entries with an empty key or a non-scalar value are dropped. The result is never nil.
func StringifyMap(values map[string]any) map[string]string {
	result := make(map[string]string, len(values))
	for key, raw := range values {
		trimmedKey := StripTags(key)
		if trimmedKey == "" {
			continue
		}
		value, ok := Scalar(raw)
		if !ok {
			continue
		}
		result[trimmedKey] = StripTags(value)
	}
	return result
}
