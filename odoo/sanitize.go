package odoo

import (
	"fmt"
	"strings"
)

// Sanitizer shapes raw Odoo records for a downstream LLM consumer: it drops
// fields that are useless or enormous in a text context (binary payloads,
// images) and caps record counts and per-field string sizes.
type Sanitizer struct {
	// MaxRecords caps how many records survive sanitization.
	MaxRecords int
	// MaxFieldChars caps string field lengths; longer values are truncated
	// with a marker suffix.
	MaxFieldChars int
}

// Sanitizer defaults.
const (
	DefaultMaxRecords    = 100
	DefaultMaxFieldChars = 5000
)

const truncationMarker = "... [truncated]"

// NewSanitizer builds a Sanitizer with the default limits.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		MaxRecords:    DefaultMaxRecords,
		MaxFieldChars: DefaultMaxFieldChars,
	}
}

// Records sanitizes a record list, returning the shaped copy and whether the
// list was cut at MaxRecords.
func (s *Sanitizer) Records(recs []map[string]any) ([]map[string]any, bool) {
	truncated := false
	if s.MaxRecords > 0 && len(recs) > s.MaxRecords {
		recs = recs[:s.MaxRecords]
		truncated = true
	}
	out := make([]map[string]any, len(recs))
	for i, r := range recs {
		out[i] = s.Record(r)
	}
	return out, truncated
}

// Record returns a sanitized copy of one record.
func (s *Sanitizer) Record(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for key, val := range rec {
		if dropField(key, val) {
			continue
		}
		if str, ok := val.(string); ok && s.MaxFieldChars > 0 && len(str) > s.MaxFieldChars {
			val = str[:s.MaxFieldChars] + truncationMarker
		}
		out[key] = val
	}
	return out
}

// dropField decides whether a field is noise for an LLM: binary/image fields
// by name, or string values that look like base64 blobs.
func dropField(key string, val any) bool {
	lower := strings.ToLower(key)
	for _, marker := range []string{"image", "avatar", "signature", "logo", "thumbnail"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	if strings.HasSuffix(lower, "_binary") || lower == "datas" || lower == "raw" {
		return true
	}
	if str, ok := val.(string); ok && looksLikeBase64Blob(str) {
		return true
	}
	return false
}

// looksLikeBase64Blob flags long strings made purely of base64 characters
// with no whitespace. Odoo serves binary columns this way.
func looksLikeBase64Blob(s string) bool {
	if len(s) < 512 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '+', r == '/', r == '=':
		default:
			return false
		}
	}
	return true
}

// summarize renders a short trailing note for truncated result sets.
func summarize(shown int, truncated bool) string {
	if !truncated {
		return ""
	}
	return fmt.Sprintf("\n\n(showing first %d records; refine the query for more)", shown)
}
