package recordstore

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// Record type names stored by this service. These are part of the wire
// contract: independent processes must use identical names.
const (
	TypePage        = "WebPage"
	TypeComment     = "Comment"
	TypePageLike    = "WebPageLike"
	TypePageSave    = "WebPageSave"
	TypeCommentLike = "CommentLike"
	TypeCommentSave = "CommentSave"
	TypeFollow      = "UserFollow"
)

// Record is a schemaless entity: a type name plus a flat bag of primitive
// attributes keyed by field name. Entities map to and from records through
// per-entity mapping functions; all missing-field fallback policy lives in
// those mappings and in the typed getters below, not at call sites.
//
// Attribute values survive a JSON round trip (the Postgres and Redis
// backends store the bag as JSON), so the getters coerce the decoded
// representations: numbers may come back as float64 or json.Number, times
// as RFC 3339 strings, and binary data as base64 strings.
type Record struct {
	Key   string
	Type  string
	Attrs map[string]any
}

// New creates an empty record of the given type and key.
func New(recordType, key string) Record {
	return Record{
		Key:   key,
		Type:  recordType,
		Attrs: make(map[string]any),
	}
}

// Set stores an attribute value. Times and byte slices are converted to
// their wire representation so every backend stores the same bag.
func (r Record) Set(field string, value any) {
	switch v := value.(type) {
	case time.Time:
		r.Attrs[field] = v.UTC().Format(time.RFC3339Nano)
	case []byte:
		r.Attrs[field] = base64.StdEncoding.EncodeToString(v)
	default:
		r.Attrs[field] = value
	}
}

// String returns a string attribute, or "" when missing or mistyped.
func (r Record) String(field string) string {
	if v, ok := r.Attrs[field].(string); ok {
		return v
	}
	return ""
}

// Int returns an integer attribute, or 0 when missing or mistyped.
func (r Record) Int(field string) int {
	switch v := r.Attrs[field].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	default:
		return 0
	}
}

// Bool returns a boolean-as-integer attribute; any nonzero value is true.
func (r Record) Bool(field string) bool {
	return r.Int(field) != 0
}

// Time returns a timestamp attribute, or the zero time when missing or
// unparseable.
func (r Record) Time(field string) time.Time {
	switch v := r.Attrs[field].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}

// Bytes returns a binary attribute, or nil when missing or undecodable.
func (r Record) Bytes(field string) []byte {
	switch v := r.Attrs[field].(type) {
	case []byte:
		return v
	case string:
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil
		}
		return b
	default:
		return nil
	}
}

// Has reports whether the attribute is present at all. Callers that need
// to distinguish "absent" from a zero value branch on this.
func (r Record) Has(field string) bool {
	_, ok := r.Attrs[field]
	return ok
}

// Clone returns a deep copy of the record so stores can hand out records
// without sharing the attribute map with callers.
func (r Record) Clone() Record {
	attrs := make(map[string]any, len(r.Attrs))
	for k, v := range r.Attrs {
		attrs[k] = v
	}
	return Record{Key: r.Key, Type: r.Type, Attrs: attrs}
}
