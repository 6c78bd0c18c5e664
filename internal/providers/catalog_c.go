package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// CatalogCRecord mirrors catalog-C's loosely-typed ISBN record. catalog-C's
// schema is known to be inconsistent across editions (some omit
// "dimensions", nest "binding" differently, etc.), so the client pulls the
// handful of fields we need with JSON-path queries via ojg before falling
// back to a strict struct decode, rather than failing the whole record on
// one unexpected field.
type CatalogCRecord struct {
	ISBN13    string `json:"isbn13"`
	ISBN10    string `json:"isbn10"`
	Title     string `json:"title"`
	Publisher string `json:"publisher"`
	DatePub   string `json:"date_published"`
	Binding   string `json:"binding"`
	Pages     string `json:"pages"`
	Image     string `json:"image"`
}

// CatalogC is the last hop in the ISBN fallback chain, and the sole source
// of cover metadata lookups (spec §4.1, §4.5).
type CatalogC struct {
	baseURL string
	http    *http.Client
	secrets Source
}

const catalogCName = "catalog_c"

// NewCatalogC builds a client against baseURL.
func NewCatalogC(baseURL string, httpClient *http.Client, secrets Source) *CatalogC {
	return &CatalogC{baseURL: baseURL, http: httpClient, secrets: secrets}
}

// SearchByISBN looks up catalog-C's record for isbn.
func (c *CatalogC) SearchByISBN(ctx context.Context, isbn string) (*CatalogCRecord, error) {
	key, err := RequireSecret(ctx, c.secrets, catalogCName, "CATALOG_C_API_KEY")
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/books/%s?key=%s", c.baseURL, url.PathEscape(isbn), key)

	body, err := c.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	return decodeLoosely(body)
}

// CoverURL resolves the cover image URL for isbn. It fetches the full
// record through SearchByISBN and returns its image field.
func (c *CatalogC) CoverURL(ctx context.Context, isbn string) (string, error) {
	rec, err := c.SearchByISBN(ctx, isbn)
	if err != nil {
		return "", err
	}
	return rec.Image, nil
}

func (c *CatalogC) fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, newError(catalogCName, KindTransport, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(catalogCName, KindTimeout, ctx.Err())
		}
		return nil, newError(catalogCName, KindTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		kind, ra := classifyStatus(resp.StatusCode, retryAfter)
		e := newError(catalogCName, kind, fmt.Errorf("status %d", resp.StatusCode))
		e.RetryAfter = ra
		return nil, e
	}

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if rerr != nil {
			break
		}
	}
	return buf, nil
}

// decodeLoosely first tries a JSON-path extraction of the handful of known
// field variants, falling back to a plain struct decode. This is what
// tolerates catalog-C's schema drift without a hard failure per spec §4.1's
// InvalidResponse classification being reserved for genuinely unparsable
// payloads.
func decodeLoosely(body []byte) (*CatalogCRecord, error) {
	parsed, err := oj.Parse(body)
	if err != nil {
		return nil, newError(catalogCName, KindInvalidResponse, err)
	}

	rec := &CatalogCRecord{}
	strField(parsed, "$.isbn13", &rec.ISBN13)
	strField(parsed, "$.isbn10", &rec.ISBN10)
	strField(parsed, "$.title", &rec.Title)
	strField(parsed, "$.publisher", &rec.Publisher)
	if !strField(parsed, "$.date_published", &rec.DatePub) {
		strField(parsed, "$.date_pub", &rec.DatePub)
	}
	if !strField(parsed, "$.binding", &rec.Binding) {
		strField(parsed, "$.format.binding", &rec.Binding)
	}
	strField(parsed, "$.pages", &rec.Pages)
	if !strField(parsed, "$.image", &rec.Image) {
		strField(parsed, "$.image_original", &rec.Image)
	}

	if rec.ISBN13 == "" && rec.ISBN10 == "" && rec.Title == "" {
		var strict CatalogCRecord
		if err := json.Unmarshal(body, &strict); err != nil {
			return nil, newError(catalogCName, KindInvalidResponse, err)
		}
		return &strict, nil
	}
	return rec, nil
}

func strField(doc any, path string, out *string) bool {
	expr, err := jp.ParseString(path)
	if err != nil {
		return false
	}
	vals := expr.Get(doc)
	if len(vals) == 0 {
		return false
	}
	s, ok := vals[0].(string)
	if !ok || s == "" {
		return false
	}
	*out = s
	return true
}
