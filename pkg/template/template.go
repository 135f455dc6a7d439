// Package template implements the placeholder mini-language used by node
// configurations. Exactly two forms exist: {{input}} for the whole upstream
// value and {{input.field.path}} (dot or bracket segments) for a part of it.
// Resolution is pure substitution, not a general template engine.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var placeholder = regexp.MustCompile(`\{\{\s*input((?:\.|\[)[^{}\s]*)?\s*\}\}`)

// HasPlaceholder reports whether the string contains at least one
// {{input...}} form.
func HasPlaceholder(s string) bool {
	return placeholder.MatchString(s)
}

// Resolve substitutes every placeholder in s with the stringified value it
// addresses in input. Paths that do not exist become the empty string.
func Resolve(s string, input any) string {
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		path := extractPath(match)

		value, ok := Lookup(path, input)
		if !ok {
			return ""
		}

		return Stringify(value)
	})
}

// ResolveValue behaves like Resolve, except that a string consisting of a
// single placeholder yields the raw addressed value with its type intact.
// This is what lets a node pass an upstream object or list through a config
// field without flattening it to text.
func ResolveValue(s string, input any) any {
	trimmed := strings.TrimSpace(s)
	if match := placeholder.FindString(trimmed); match == trimmed && match != "" {
		value, ok := Lookup(extractPath(trimmed), input)
		if !ok {
			return nil
		}

		return value
	}

	return Resolve(s, input)
}

// ResolveDeep walks maps and slices, applying ResolveValue to every string
// leaf. Non-string leaves pass through untouched.
func ResolveDeep(v any, input any) any {
	switch t := v.(type) {
	case string:
		return ResolveValue(t, input)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = ResolveDeep(item, input)
		}

		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = ResolveDeep(item, input)
		}

		return out
	default:
		return v
	}
}

// Lookup resolves a dot/bracket path against a value. The empty path names
// the value itself. Paths are evaluated over the value's JSON form, so only
// serializable structure is addressable.
func Lookup(path string, v any) (any, bool) {
	if path == "" {
		return v, true
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}

	result := gjson.GetBytes(data, path)
	if !result.Exists() {
		return nil, false
	}

	return result.Value(), true
}

// Stringify renders a value for embedding into text. Strings pass through
// verbatim, scalars use their canonical form, structured values render as
// compact JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}

		return string(data)
	}
}

// extractPath pulls the gjson path out of a matched placeholder:
// "{{input.a[0].b}}" becomes "a.0.b".
func extractPath(match string) string {
	sub := placeholder.FindStringSubmatch(match)
	if len(sub) < 2 {
		return ""
	}

	var b strings.Builder

	for i := range len(sub[1]) {
		switch sub[1][i] {
		case '[':
			b.WriteByte('.')
		case ']':
		default:
			b.WriteByte(sub[1][i])
		}
	}

	return strings.Trim(b.String(), ".")
}
