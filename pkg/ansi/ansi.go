// Package ansi strips terminal control sequences from captured text.
package ansi

import "regexp"

// escape matches ESC, a 7-bit C1 introducer, parameter bytes, intermediate
// bytes and one final byte.
var escape = regexp.MustCompile(`\x1b[@-_][0-?]*[ -/]*[@-~]`)

// Strip removes every control sequence from s. Removal is repeated until
// nothing matches, so sequences exposed by an earlier removal are stripped
// too and Strip(Strip(s)) == Strip(s).
func Strip(s string) string {
	for containsEsc(s) {
		out := escape.ReplaceAllString(s, "")
		if out == s {
			break
		}
		s = out
	}
	return s
}

// StripAll applies Strip to every line and returns a new slice.
func StripAll(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = Strip(l)
	}
	return out
}

// StripValue walks a decoded JSON/YAML value and strips every string leaf.
// Maps and slices are copied; other values are returned as is.
func StripValue(v any) any {
	switch val := v.(type) {
	case string:
		return Strip(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = StripValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = StripValue(item)
		}
		return out
	default:
		return v
	}
}

func containsEsc(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b {
			return true
		}
	}
	return false
}
