package providers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogA_SearchByTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "present", r.URL.Query().Get("key"))
		_ = json.NewEncoder(w).Encode(CatalogASearchResult{
			TotalItems: 1,
			Items:      []CatalogABook{{ID: "1", Title: "Dune"}},
		})
	}))
	defer srv.Close()

	c := NewCatalogA(srv.URL, http.DefaultClient, EnvSource{"CATALOG_A_API_KEY": "present"})
	res, err := c.SearchByTitle(t.Context(), "dune", 10)
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
	assert.Equal(t, "Dune", res.Items[0].Title)
}

func TestCatalogA_SearchByTitle_MissingSecret(t *testing.T) {
	c := NewCatalogA("http://unused", http.DefaultClient, EnvSource{})
	_, err := c.SearchByTitle(t.Context(), "dune", 10)
	require.Error(t, err)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindAuthMissing, pe.Kind)
}

func TestCatalogA_SearchByISBN_NotFoundWhenEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(CatalogASearchResult{})
	}))
	defer srv.Close()

	c := NewCatalogA(srv.URL, http.DefaultClient, EnvSource{"CATALOG_A_API_KEY": "k"})
	_, err := c.SearchByISBN(t.Context(), "9780441172719")
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindNotFound, pe.Kind)
}

func TestCatalogA_ClassifiesUpstreamStatus(t *testing.T) {
	cases := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusNotFound, KindNotFound},
		{http.StatusInternalServerError, KindUnavailable},
		{http.StatusBadRequest, KindTransport},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		c := NewCatalogA(srv.URL, http.DefaultClient, EnvSource{"CATALOG_A_API_KEY": "k"})
		_, err := c.SearchByTitle(t.Context(), "x", 1)
		var pe *Error
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, tc.kind, pe.Kind, "status %d", tc.status)
		srv.Close()
	}
}
