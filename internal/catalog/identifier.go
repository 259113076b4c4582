package catalog

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IdentifierKind tags the representation an identifier arrived in.
type IdentifierKind int

const (
	// IdentifierInvalid marks a value that cannot be used as an identifier.
	IdentifierInvalid IdentifierKind = iota
	// IdentifierObjectID is a native store identifier.
	IdentifierObjectID
	// IdentifierTagged is the extended-JSON form {"$oid": "..."}.
	IdentifierTagged
	// IdentifierString is an identifier already in canonical string form.
	IdentifierString
)

const oidKey = "$oid"

// Identifier is an identifier classified by its original representation.
type Identifier struct {
	Kind  IdentifierKind
	Value string
}

// Valid reports whether the identifier has a canonical string form.
func (id Identifier) Valid() bool {
	return id.Kind != IdentifierInvalid
}

// ClassifyIdentifier maps any identifier representation onto its canonical string.
func ClassifyIdentifier(v any) Identifier {
	switch t := v.(type) {
	case primitive.ObjectID:
		return Identifier{Kind: IdentifierObjectID, Value: t.Hex()}
	case *primitive.ObjectID:
		if t == nil {
			return Identifier{}
		}
		return Identifier{Kind: IdentifierObjectID, Value: t.Hex()}
	case string:
		return Identifier{Kind: IdentifierString, Value: t}
	case map[string]any:
		return taggedIdentifier(t)
	case primitive.M:
		return taggedIdentifier(map[string]any(t))
	case primitive.D:
		if len(t) != 1 || t[0].Key != oidKey {
			return Identifier{}
		}
		if s, ok := t[0].Value.(string); ok {
			return Identifier{Kind: IdentifierTagged, Value: s}
		}
		return Identifier{}
	default:
		return Identifier{}
	}
}

func taggedIdentifier(m map[string]any) Identifier {
	if len(m) != 1 {
		return Identifier{}
	}
	s, ok := m[oidKey].(string)
	if !ok {
		return Identifier{}
	}
	return Identifier{Kind: IdentifierTagged, Value: s}
}

// NormalizeID returns the canonical string of an identifier. ok is false when v is not an identifier.
func NormalizeID(v any) (string, bool) {
	id := ClassifyIdentifier(v)
	if !id.Valid() {
		return "", false
	}
	return id.Value, true
}

// NormalizeIDsDeep returns a copy of v in which every native or tagged identifier has been replaced by its
// canonical string. Mappings are returned as map[string]any, sequences as []any and store timestamps as
// UTC time.Time. The input is never modified.
func NormalizeIDsDeep(v any) any {
	switch t := v.(type) {
	case primitive.ObjectID, *primitive.ObjectID:
		if s, ok := NormalizeID(t); ok {
			return s
		}
		return nil
	case map[string]any:
		return normalizeMap(t)
	case primitive.M:
		return normalizeMap(map[string]any(t))
	case primitive.D:
		if id := ClassifyIdentifier(t); id.Valid() {
			return id.Value
		}
		out := make(map[string]any, len(t))
		for _, elem := range t {
			out[elem.Key] = NormalizeIDsDeep(elem.Value)
		}
		return out
	case []any:
		return normalizeSlice(t)
	case primitive.A:
		return normalizeSlice([]any(t))
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = normalizeMap(m)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	default:
		return v
	}
}

func normalizeMap(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	if id := taggedIdentifier(m); id.Valid() {
		return id.Value
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = NormalizeIDsDeep(v)
	}
	return out
}

func normalizeSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = NormalizeIDsDeep(v)
	}
	return out
}
