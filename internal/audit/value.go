package audit

import "strings"

// Value is a restricted JSON-like payload value: nil, bool, string, a
// numeric type, []Value, or Object. Constraining payloads to this shape
// gives the redaction routine a well-defined contract instead of relying
// on reflective traversal of arbitrary structs.
type Value = any

// Object is a string-keyed payload object.
type Object = map[string]Value

// RedactionMarker replaces the value of any sensitive field.
const RedactionMarker = "[REDACTED]"

// DefaultSensitiveFields lists field-name fragments whose values are never
// stored in the audit trail.
var DefaultSensitiveFields = []string{
	"password",
	"token",
	"secret",
	"key",
	"ssn",
	"social",
	"credit_card",
	"bank_account",
	"passport",
	"driver_license",
}

// Redact returns a copy of v with every field whose lowercased key contains
// one of the sensitive fragments replaced by RedactionMarker. Nested objects
// and arrays are traversed recursively; scalar values and unrecognized types
// pass through unchanged.
func Redact(v Value, sensitive []string) Value {
	switch t := v.(type) {
	case Object:
		out := make(Object, len(t))
		for k, inner := range t {
			if isSensitiveKey(k, sensitive) {
				out[k] = RedactionMarker
				continue
			}
			out[k] = Redact(inner, sensitive)
		}
		return out
	case []Value:
		out := make([]Value, len(t))
		for i, inner := range t {
			out[i] = Redact(inner, sensitive)
		}
		return out
	default:
		return v
	}
}

// isSensitiveKey reports whether a field name matches the sensitive list.
// Matching is case-insensitive and substring-based so that keys like
// "apiToken" or "user_password_hash" are caught.
func isSensitiveKey(key string, sensitive []string) bool {
	lower := strings.ToLower(key)
	for _, frag := range sensitive {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
