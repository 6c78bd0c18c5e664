package providers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogC_SearchByISBN_StrictShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"isbn13":"9780441172719","title":"Dune","publisher":"Ace","binding":"Paperback","pages":"412","image":"http://x/cover.jpg"}`)
	}))
	defer srv.Close()

	c := NewCatalogC(srv.URL, http.DefaultClient, EnvSource{"CATALOG_C_API_KEY": "k"})
	rec, err := c.SearchByISBN(t.Context(), "9780441172719")
	require.NoError(t, err)
	assert.Equal(t, "Dune", rec.Title)
	assert.Equal(t, "Paperback", rec.Binding)
}

func TestCatalogC_SearchByISBN_DriftedFieldNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"isbn13":"9780441172719","title":"Dune","date_pub":"1965","format":{"binding":"Hardcover"},"image_original":"http://x/alt.jpg"}`)
	}))
	defer srv.Close()

	c := NewCatalogC(srv.URL, http.DefaultClient, EnvSource{"CATALOG_C_API_KEY": "k"})
	rec, err := c.SearchByISBN(t.Context(), "9780441172719")
	require.NoError(t, err)
	assert.Equal(t, "1965", rec.DatePub)
	assert.Equal(t, "Hardcover", rec.Binding)
	assert.Equal(t, "http://x/alt.jpg", rec.Image)
}

func TestCatalogC_CoverURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"isbn13":"9780441172719","image":"http://x/cover.jpg"}`)
	}))
	defer srv.Close()

	c := NewCatalogC(srv.URL, http.DefaultClient, EnvSource{"CATALOG_C_API_KEY": "k"})
	url, err := c.CoverURL(t.Context(), "9780441172719")
	require.NoError(t, err)
	assert.Equal(t, "http://x/cover.jpg", url)
}

func TestCatalogC_MissingSecret(t *testing.T) {
	c := NewCatalogC("http://unused", http.DefaultClient, EnvSource{})
	_, err := c.SearchByISBN(t.Context(), "x")
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindAuthMissing, pe.Kind)
}
