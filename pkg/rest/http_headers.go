package rest

import (
	"fmt"
	"net/http"
	"strings"
)

// Prefer holds preferences from the Prefer header (RFC 7240).
type Prefer struct {
	Return string // "minimal", "representation"
	Count  string // "exact"
}

// parsePrefer parses the Prefer header according to RFC 7240.
// It returns nil if the header is not present.
func parsePrefer(r *http.Request) *Prefer {
	values := r.Header.Values("Prefer")
	if len(values) == 0 {
		return nil
	}

	p := &Prefer{}
	for _, header := range values {
		parseKeyValPairs(header, func(key, value string) {
			value = strings.ToLower(value)
			switch key {
			case "return":
				if value == "minimal" || value == "representation" {
					p.Return = value
				}
			case "count":
				if value == "exact" {
					p.Count = value
				}
			}
		})
	}
	return p
}

// parseKeyValPairs parses comma-separated preference directives.
// For each key=value pair found, it calls fn with the key and value.
func parseKeyValPairs(header string, fn func(key, value string)) {
	for pref := range strings.SplitSeq(header, ",") {
		pref = strings.TrimSpace(pref)
		if key, value, found := strings.Cut(pref, "="); found {
			key = strings.TrimSpace(strings.ToLower(key))       // normalize case
			value = strings.Trim(strings.TrimSpace(value), `"`) // remove quotes
			fn(key, value)
		}
	}
}

// WantsMinimal reports whether the client asked for no body on a successful
// update.
func (p *Prefer) WantsMinimal() bool {
	return p != nil && p.Return == "minimal"
}

// WantsCountExact reports whether the client wants an exact count in the response.
func (p *Prefer) WantsCountExact() bool {
	return p != nil && p.Count == "exact"
}

// contentRange formats the Content-Range of n objects starting at offset out
// of total, e.g. "0-24/3573" or "*/0" for an empty page.
func contentRange(offset, n int, total int64) string {
	if n == 0 {
		return fmt.Sprintf("*/%d", total)
	}
	return fmt.Sprintf("%d-%d/%d", offset, offset+n-1, total)
}
