package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// CatalogABook mirrors catalog-A's wire shape for a single book result.
// Field names follow the upstream's own casing; normalization into the
// canonical domain.Work/domain.Edition happens in internal/normalize.
type CatalogABook struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Publisher     string   `json:"publisher"`
	PublishedDate string   `json:"publishedDate"`
	PageCount     int      `json:"pageCount"`
	Description   string   `json:"description"`
	Categories    []string `json:"categories"`
	ISBN10        string   `json:"isbn10"`
	ISBN13        string   `json:"isbn13"`
	Language      string   `json:"language"`
	ImageURL      string   `json:"imageUrl"`
}

// CatalogASearchResult is catalog-A's search response envelope.
type CatalogASearchResult struct {
	TotalItems int            `json:"totalItems"`
	Items      []CatalogABook `json:"items"`
}

// CatalogA is a client for the primary title/ISBN/id-lookup catalog (spec
// §4.1). It is the default primary provider in every fallback chain (§4.5).
type CatalogA struct {
	baseURL string
	http    *http.Client
	secrets Source
}

const catalogAName = "catalog_a"

// NewCatalogA builds a client against baseURL using httpClient for
// transport (normally one built by NewUpstream so outbound calls are
// throttled independent of the caller's own deadline).
func NewCatalogA(baseURL string, httpClient *http.Client, secrets Source) *CatalogA {
	return &CatalogA{baseURL: baseURL, http: httpClient, secrets: secrets}
}

// SearchByTitle looks up books matching q, capped at maxResults.
func (c *CatalogA) SearchByTitle(ctx context.Context, q string, maxResults int) (*CatalogASearchResult, error) {
	key, err := RequireSecret(ctx, c.secrets, catalogAName, "CATALOG_A_API_KEY")
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/v1/volumes?q=%s&maxResults=%d&key=%s", c.baseURL, url.QueryEscape(q), maxResults, key)
	var out CatalogASearchResult
	if err := c.doGet(ctx, u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetById fetches a single book by catalog-A's internal id.
func (c *CatalogA) GetById(ctx context.Context, id string) (*CatalogABook, error) {
	key, err := RequireSecret(ctx, c.secrets, catalogAName, "CATALOG_A_API_KEY")
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/v1/volumes/%s?key=%s", c.baseURL, url.PathEscape(id), key)
	var out CatalogABook
	if err := c.doGet(ctx, u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchByISBN looks up the book with the given (already normalized) ISBN.
func (c *CatalogA) SearchByISBN(ctx context.Context, isbn string) (*CatalogABook, error) {
	res, err := c.SearchByTitle(ctx, "isbn:"+isbn, 1)
	if err != nil {
		return nil, err
	}
	if len(res.Items) == 0 {
		return nil, newError(catalogAName, KindNotFound, fmt.Errorf("no match for isbn %s", isbn))
	}
	return &res.Items[0], nil
}

func (c *CatalogA) doGet(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return newError(catalogAName, KindTransport, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return newError(catalogAName, KindTimeout, ctx.Err())
		}
		return newError(catalogAName, KindTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		kind, ra := classifyStatus(resp.StatusCode, retryAfter)
		e := newError(catalogAName, kind, fmt.Errorf("status %d", resp.StatusCode))
		e.RetryAfter = ra
		return e
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newError(catalogAName, KindInvalidResponse, err)
	}
	return nil
}

func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

