package template

import (
	"github.com/starthub-run/runtime/pkg/value"
)

const maxJSONInStringIterations = 32

// NormalizeJSONInString applies the "JSON-in-string" heuristic (spec.md
// §4.4): any string is recursively parsed, and if it is itself a valid
// JSON document it is replaced by the parsed value; this repeats to a
// fixed point. Applies only to values coming out of a leaf's stdio
// channel, never to general interpolation results.
func NormalizeJSONInString(v value.Value) value.Value {
	switch v.Kind {
	case value.KindString:
		return normalizeString(v.Str)
	case value.KindArray:
		out := make([]value.Value, len(v.Arr))
		for i, el := range v.Arr {
			out[i] = NormalizeJSONInString(el)
		}
		return value.NewArray(out)
	case value.KindObject:
		obj := make(map[string]value.Value, len(v.Obj))
		for _, k := range v.Keys {
			obj[k] = NormalizeJSONInString(v.Obj[k])
		}
		return value.NewObject(append([]string(nil), v.Keys...), obj)
	default:
		return v
	}
}

func normalizeString(s string) value.Value {
	cur := value.NewString(s)
	for i := 0; i < maxJSONInStringIterations; i++ {
		if cur.Kind != value.KindString {
			return NormalizeJSONInString(cur)
		}
		if !looksLikeJSON(cur.Str) {
			return cur
		}
		parsed, err := value.ParseJSON([]byte(cur.Str))
		if err != nil {
			return cur
		}
		if parsed.Kind == value.KindString && parsed.Str == cur.Str {
			return cur // fixed point reached
		}
		cur = parsed
	}
	return cur
}

// looksLikeJSON is a cheap pre-check on the first non-space byte before
// paying for a full ParseJSON, since most interpolated strings are plain
// text and never parse as JSON at all.
func looksLikeJSON(s string) bool {
	trimmed := trimSpace(s)
	if trimmed == "" {
		return false
	}
	switch trimmed[0] {
	case '{', '[', '"', 't', 'f', 'n', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return true
	default:
		return false
	}
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
