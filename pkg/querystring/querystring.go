// Package querystring splits raw query strings into ordered key/value
// pairs. net/url parses queries into a map, which drops the submission
// order the search compiler depends on.
package querystring

import (
	"net/url"
	"strings"
)

// Pair is one key=value component of a query string.
type Pair struct {
	Key   string
	Value string
}

// Parse splits raw into pairs, preserving order and duplicates. Components
// are percent-decoded; a component that fails to decode keeps its raw form
// so the caller can report it instead of dropping it silently.
func Parse(raw string) []Pair {
	if raw == "" {
		return nil
	}
	var pairs []Pair
	for _, segment := range strings.Split(raw, "&") {
		if segment == "" {
			continue
		}
		key, value := segment, ""
		if i := strings.Index(segment, "="); i >= 0 {
			key, value = segment[:i], segment[i+1:]
		}
		pairs = append(pairs, Pair{Key: unescape(key), Value: unescape(value)})
	}
	return pairs
}

func unescape(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}
