// Package cache implements the three-tier hierarchical cache: an in-process
// edge tier (ristretto via eko/gocache), a warm durable tier (Postgres), and
// a cold object-store tier (S3), with lazy single-key rehydration on a cold
// hit. The key grammar and TTL-fuzzing technique are adapted from the
// teacher's flat key-per-resource cache.
package cache

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// Key grammar (spec §4.3): "<endpoint>:<sorted k=v joined by '&'>" -- keys
// lowercased and sorted, string values trimmed and lowercased, empty
// optional params omitted so an unset field doesn't expand the key space.
// Deterministic so identical logical requests always collide on the same
// key regardless of request or param ordering, and so every
// response-affecting parameter (maxResults, limit, offset, sortBy, ...)
// partitions the cache instead of silently colliding across it.

// buildKey assembles a key from an endpoint and its params per the grammar
// above.
func buildKey(endpoint string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sortStrings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, strings.ToLower(k)+"="+normalize(params[k]))
	}
	return endpoint + ":" + strings.Join(parts, "&")
}

// TitleSearchKey builds the key for a title/author free-text search,
// e.g. "search:title:maxresults=20&title=the hobbit".
func TitleSearchKey(title, author string, maxResults int) string {
	return buildKey("search:title", map[string]string{
		"title":      title,
		"author":     author,
		"maxresults": strconv.Itoa(maxResults),
	})
}

// AuthorSearchKey builds the key for an author-bibliography search,
// e.g. "search:author:author=harper lee&limit=100&offset=0&sortby=publicationyear".
func AuthorSearchKey(author string, limit, offset int, sortBy string) string {
	return buildKey("search:author", map[string]string{
		"author": author,
		"limit":  strconv.Itoa(limit),
		"offset": strconv.Itoa(offset),
		"sortby": sortBy,
	})
}

// ISBNSearchKey builds the key for an ISBN lookup, e.g. "book:isbn:9780345391803".
// ISBNs are already a canonical identifier so no param encoding is needed,
// just normalization (hyphens stripped, lowercased, trimmed).
func ISBNSearchKey(isbn string) string {
	return fmt.Sprintf("book:isbn:%s", strings.ReplaceAll(normalize(isbn), "-", ""))
}

// AdvancedSearchKey builds the key for a multi-field advanced search.
func AdvancedSearchKey(fields map[string]string, maxResults int) string {
	params := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		params[k] = v
	}
	params["maxresults"] = strconv.Itoa(maxResults)
	return buildKey("search:advanced", params)
}

// EnrichmentKey builds the key for a single enrichment lookup keyed by
// source identifier (ISBN, ASIN, or provider-specific ID).
func EnrichmentKey(sourceID string) string {
	return fmt.Sprintf("enrich:%s", strings.ToLower(strings.TrimSpace(sourceID)))
}

// ColdIndexKey is the warm-tier marker key recording that key has an object
// in the cold tier; Hierarchy.Get only reads the cold tier when it exists.
func ColdIndexKey(key string) string {
	return "cold-index:" + key
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Fuzz jitters a TTL by up to factor/10 of its length (factor 1.0 gives
// +/-10%) so cache entries don't expire in lockstep and stampede the
// providers all at once.
func Fuzz(d time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return d
	}
	jitter := 1 + (rand.Float64()*2-1)*factor/10
	return time.Duration(float64(d) * jitter)
}
