// Package variable resolves input placeholders in task descriptions and
// extracts values from structured task results.
package variable

import (
	"fmt"
	"regexp"

	"github.com/tidwall/gjson"
)

// placeholderPattern matches {name} and dotted {task.field} placeholders.
var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z0-9_]+)*)\}`)

// Set holds the values available for interpolation: workflow inputs merged
// with the structured results of context ancestors.
type Set map[string]any

// Merge returns a new set with values from other layered over s. Keys in
// other win on collision.
func (s Set) Merge(other Set) Set {
	out := make(Set, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Interpolate replaces {name} placeholders with values from the set.
// Dotted placeholders like {research.summary} index into map values.
// Placeholders without a value are left as written so a missing input is
// visible in the rendered text rather than silently erased.
func Interpolate(s string, vars Set) string {
	if s == "" || len(vars) == 0 {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[1 : len(match)-1]
		if value, ok := resolve(vars, name); ok {
			return stringify(value)
		}
		return match
	})
}

// Placeholders returns the distinct placeholder names referenced in s, in
// first-appearance order.
func Placeholders(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// resolve walks dotted names through nested maps.
func resolve(vars Set, name string) (any, bool) {
	if v, ok := vars[name]; ok {
		return v, true
	}

	var cur any = map[string]any(vars)
	rest := name
	for rest != "" {
		key := rest
		if i := indexDot(rest); i >= 0 {
			key, rest = rest[:i], rest[i+1:]
		} else {
			rest = ""
		}
		m, ok := cur.(map[string]any)
		if !ok {
			if s, ok := asSet(cur); ok {
				m = s
			} else {
				return nil, false
			}
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asSet(v any) (map[string]any, bool) {
	if s, ok := v.(Set); ok {
		return s, true
	}
	return nil, false
}

func indexDot(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ExtractPath extracts a value from a JSON document using gjson path syntax.
//
// An empty path returns the document unchanged; a path that does not resolve
// returns the empty string. Array and object results keep their JSON form,
// scalars are rendered as plain strings.
func ExtractPath(doc, path string) string {
	if path == "" {
		return doc
	}
	result := gjson.Get(doc, path)
	if !result.Exists() {
		return ""
	}
	if result.IsArray() || result.IsObject() {
		return result.Raw
	}
	return result.String()
}
