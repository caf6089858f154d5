package render

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Values maps placeholder names to field values.
type Values map[string]any

// Flatten turns a field value into the flat string substituted into a template.
// nil becomes "", lists are joined with newlines, and each record of a record list
// becomes one line of its values in key order, separated by ", ".
func Flatten(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case []string:
		return strings.Join(t, "\n")
	case []map[string]any:
		lines := make([]string, 0, len(t))
		for _, rec := range t {
			lines = append(lines, flattenRecord(rec))
		}
		return strings.Join(lines, "\n")
	case map[string]any:
		return flattenRecord(t)
	case []any:
		lines := make([]string, 0, len(t))
		for _, item := range t {
			lines = append(lines, Flatten(item))
		}
		return strings.Join(lines, "\n")
	default:
		return fmt.Sprint(t)
	}
}

func flattenRecord(rec map[string]any) string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if s := Flatten(rec[k]); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
