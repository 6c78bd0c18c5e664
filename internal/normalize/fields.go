package normalize

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// yearRE extracts a 4-digit year from YYYY, YYYY-MM, YYYY-MM-DD, or
// free-form publication-date strings (spec §4.2).
var yearRE = regexp.MustCompile(`\b(\d{4})\b`)

// ExtractYear pulls the first plausible 4-digit year out of a free-form
// date string, or 0 if none is found.
func ExtractYear(dateStr string) int {
	m := yearRE.FindStringSubmatch(dateStr)
	if m == nil {
		return 0
	}
	y, err := strconv.Atoi(m[1])
	if err != nil || y < 1000 || y > 9999 {
		return 0
	}
	return y
}

// stripTags removes all HTML markup from provider-supplied descriptions,
// mirroring the teacher's bluemonday.StrictPolicy() use in gr.go.
var stripTags = bluemonday.StrictPolicy()

// SanitizeDescription strips HTML from a provider description field so it
// never leaks markup into Work.description.
func SanitizeDescription(raw string) string {
	return strings.TrimSpace(stripTags.Sanitize(raw))
}

// UpgradeCoverURL upgrades http to https and, when the provider supports a
// "zoom" query parameter, requests a higher-resolution variant
// deterministically (spec §4.2).
func UpgradeCoverURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	if q := u.Query(); q.Has("zoom") {
		q.Set("zoom", "3")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// CoverResolution buckets a cover URL into the hi-res/standard/low-res
// tiers the quality score (spec §4.5) rewards, based on the "zoom"
// parameter or a size hint in the path.
func CoverResolution(raw string) string {
	if raw == "" {
		return "none"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "standard"
	}
	if zoom := u.Query().Get("zoom"); zoom != "" {
		switch zoom {
		case "3", "4", "5":
			return "hi-res"
		case "1", "2":
			return "low-res"
		}
	}
	switch {
	case strings.Contains(raw, "-L.") || strings.Contains(raw, "large"):
		return "hi-res"
	case strings.Contains(raw, "-S.") || strings.Contains(raw, "small") || strings.Contains(raw, "thumb"):
		return "low-res"
	default:
		return "standard"
	}
}

// CoalesceTitle returns title, or "Unknown" if empty -- normalizers never
// fail on a missing required field, they fall back (spec §4.2).
func CoalesceTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "Unknown"
	}
	return title
}
