package observability

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	defaultStringLimit = 256
	annotationLimit    = 128
)

// sanitizeString drops control characters (log line injection) and caps the result at limit runes.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, value)
	if utf8.RuneCountInString(cleaned) <= limit {
		return cleaned
	}
	return string([]rune(cleaned)[:limit])
}

// SanitizeRoute cleans a chi route pattern for logs and span attributes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod cleans an HTTP method.
func SanitizeMethod(method string) string {
	return strings.ToUpper(sanitizeString(method, 10))
}

// SanitizeUserID caps Firebase uids, which are at most 128 characters, well below that.
func SanitizeUserID(uid string) string {
	return sanitizeString(uid, 64)
}

// MaskEmail keeps the first character of the local part and the domain ("a***@example.com").
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	first, _ := utf8.DecodeRuneInString(local)
	return sanitizeString(string(first)+"***@"+domain, 96)
}

// annotationFields turns request annotations into zap fields in a stable order.
func annotationFields(values map[string]string) []zap.Field {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	fields := make([]zap.Field, 0, len(keys))
	for _, key := range keys {
		value := values[key]
		switch key {
		case "user_id":
			value = SanitizeUserID(value)
		case "email":
			value = MaskEmail(value)
		default:
			value = sanitizeString(value, annotationLimit)
		}
		fields = append(fields, zap.String(sanitizeString(key, 32), value))
	}
	return fields
}
