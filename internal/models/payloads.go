package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// These structs define the JSON payloads exchanged with the form layer.

// GenerateRequest is the body of POST /documents/{docType}.
type GenerateRequest struct {
	FormData         FormData `json:"formData"`
	UserID           *int64   `json:"userId,omitempty"`
	IncludeSecondary bool     `json:"includeSecondary,omitempty"`
	// IncludePernyataan is the older name of IncludeSecondary used by the marriage forms.
	IncludePernyataan bool `json:"includePernyataan,omitempty"`
}

// WantsSecondary reports whether either secondary flag was set.
func (r *GenerateRequest) WantsSecondary() bool {
	return r.IncludeSecondary || r.IncludePernyataan
}

// BundleResponse is returned when a request produced more than one document.
type BundleResponse struct {
	Success   bool             `json:"success"`
	Documents []BundleDocument `json:"documents"`
}

// BundleDocument is one base64-encoded binary inside a BundleResponse.
type BundleDocument struct {
	Name string `json:"name"`
	Data string `json:"data"`
	Type string `json:"type"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// DocumentTypeInfo describes one entry of GET /document-types.
type DocumentTypeInfo struct {
	Key           string `json:"key"`
	Label         string `json:"label"`
	Category      string `json:"category"`
	HasSecondary  bool   `json:"hasSecondary"`
	StrictArchive bool   `json:"strictArchive"`
}

// FormData is the field-value map submitted by the form layer after its own validation.
// Values are whatever encoding/json produced: strings, float64, bool, []any or map[string]any.
type FormData map[string]any

// String returns the value at key as a trimmed string. Missing or null values yield "".
func (f FormData) String(key string) string {
	v, ok := f[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// StringOr returns the value at key, or def when it is empty.
func (f FormData) StringOr(key, def string) string {
	if s := f.String(key); s != "" {
		return s
	}
	return def
}

// Records returns the list-of-records field at key, skipping entries that are not objects.
func (f FormData) Records(key string) []map[string]any {
	raw, ok := f[key].([]any)
	if !ok {
		if typed, ok := f[key].([]map[string]any); ok {
			return typed
		}
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if rec, ok := item.(map[string]any); ok {
			out = append(out, rec)
		}
	}
	return out
}

// Int64 parses the value at key as an integer id. Non-numeric values return nil.
func (f FormData) Int64(key string) *int64 {
	s := f.String(key)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// Keys returns the sorted keys of the form, used for debug logging without values.
func (f FormData) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
