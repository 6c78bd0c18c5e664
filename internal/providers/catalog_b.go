package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// CatalogBEdition mirrors catalog-B's wire shape, which models
// work/edition separately unlike catalog-A's flat book record.
type CatalogBEdition struct {
	Key           string   `json:"key"`
	Title         string   `json:"title"`
	AuthorNames   []string `json:"author_names"`
	Publisher     []string `json:"publisher"`
	PublishDate   string   `json:"publish_date"`
	NumberOfPages int      `json:"number_of_pages"`
	ISBN          []string `json:"isbn"`
	Languages     []string `json:"languages"`
	Subjects      []string `json:"subjects"`
	CoverID       int      `json:"cover_id"`
}

// CatalogBSearchResult is catalog-B's search response envelope.
type CatalogBSearchResult struct {
	NumFound int               `json:"numFound"`
	Docs     []CatalogBEdition `json:"docs"`
}

// CatalogB is the fallback-chain secondary provider for title/author
// search and the second hop of the ISBN chain (spec §4.5).
type CatalogB struct {
	baseURL string
	http    *http.Client
	secrets Source
}

const catalogBName = "catalog_b"

// NewCatalogB builds a client against baseURL. catalog-B, unlike A, is
// typically a free/no-auth catalog, so secrets may legitimately be absent;
// callers should still route auth-missing through RequireSecret if the
// deployment requires a key.
func NewCatalogB(baseURL string, httpClient *http.Client, secrets Source) *CatalogB {
	return &CatalogB{baseURL: baseURL, http: httpClient, secrets: secrets}
}

// SearchByTitle searches by free-text title.
func (c *CatalogB) SearchByTitle(ctx context.Context, q string, limit int) (*CatalogBSearchResult, error) {
	u := fmt.Sprintf("%s/search.json?q=%s&limit=%d", c.baseURL, url.QueryEscape(q), limit)
	return c.doSearch(ctx, u)
}

// SearchByAuthor searches an author's bibliography, with pagination and
// sort controls (spec §6 `/v1/search/author`).
func (c *CatalogB) SearchByAuthor(ctx context.Context, author string, limit, offset int, sortBy string) (*CatalogBSearchResult, error) {
	u := fmt.Sprintf("%s/search.json?author=%s&limit=%d&offset=%d&sort=%s",
		c.baseURL, url.QueryEscape(author), limit, offset, url.QueryEscape(sortBy))
	return c.doSearch(ctx, u)
}

// SearchByISBN looks up an edition by ISBN.
func (c *CatalogB) SearchByISBN(ctx context.Context, isbn string) (*CatalogBEdition, error) {
	u := fmt.Sprintf("%s/isbn/%s.json", c.baseURL, url.PathEscape(isbn))
	var out CatalogBEdition
	if err := c.doGet(ctx, u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *CatalogB) doSearch(ctx context.Context, u string) (*CatalogBSearchResult, error) {
	var out CatalogBSearchResult
	if err := c.doGet(ctx, u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *CatalogB) doGet(ctx context.Context, u string, out any) error {
	if _, ok := c.secrets.Secret(ctx, "CATALOG_B_API_KEY"); ok {
		u += "&apikey=present" // presence-gated: catalog-B accepts anonymous traffic at a lower quota.
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return newError(catalogBName, KindTransport, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return newError(catalogBName, KindTimeout, ctx.Err())
		}
		return newError(catalogBName, KindTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		kind, ra := classifyStatus(resp.StatusCode, retryAfter)
		e := newError(catalogBName, kind, fmt.Errorf("status %d", resp.StatusCode))
		e.RetryAfter = ra
		return e
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newError(catalogBName, KindInvalidResponse, err)
	}
	return nil
}
