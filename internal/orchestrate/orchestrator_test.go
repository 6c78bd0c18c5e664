package orchestrate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookwyrm/core/internal/apierrors"
	"github.com/bookwyrm/core/internal/cache"
	"github.com/bookwyrm/core/internal/domain"
	"github.com/bookwyrm/core/internal/metrics"
	"github.com/bookwyrm/core/internal/providers"
)

// newTestOrchestrator wires an Orchestrator against three httptest servers
// standing in for catalog-A/B/C, with a generous upstream-call budget. cache
// is left nil; tests exercising the exported (cached) entry points build
// their own Hierarchy instead.
func newTestOrchestrator(t *testing.T, aHandler, bHandler, cHandler http.HandlerFunc) *Orchestrator {
	t.Helper()
	var a *providers.CatalogA
	var b *providers.CatalogB
	var c *providers.CatalogC

	if aHandler != nil {
		srv := httptest.NewServer(aHandler)
		t.Cleanup(srv.Close)
		a = providers.NewCatalogA(srv.URL, http.DefaultClient, providers.EnvSource{"CATALOG_A_API_KEY": "k"})
	} else {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }))
		t.Cleanup(srv.Close)
		a = providers.NewCatalogA(srv.URL, http.DefaultClient, providers.EnvSource{"CATALOG_A_API_KEY": "k"})
	}
	if bHandler != nil {
		srv := httptest.NewServer(bHandler)
		t.Cleanup(srv.Close)
		b = providers.NewCatalogB(srv.URL, http.DefaultClient, providers.EnvSource{})
	} else {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }))
		t.Cleanup(srv.Close)
		b = providers.NewCatalogB(srv.URL, http.DefaultClient, providers.EnvSource{})
	}
	if cHandler != nil {
		srv := httptest.NewServer(cHandler)
		t.Cleanup(srv.Close)
		c = providers.NewCatalogC(srv.URL, http.DefaultClient, providers.EnvSource{"CATALOG_C_API_KEY": "k"})
	} else {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }))
		t.Cleanup(srv.Close)
		c = providers.NewCatalogC(srv.URL, http.DefaultClient, providers.EnvSource{"CATALOG_C_API_KEY": "k"})
	}

	return New(a, b, c, nil, DefaultTTLs(), 10)
}

func jsonHandler(v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}

func TestSearchTitleUncached_CatalogAPrimaryWins(t *testing.T) {
	o := newTestOrchestrator(t,
		jsonHandler(providers.CatalogASearchResult{Items: []providers.CatalogABook{{ID: "1", Title: "Dune"}}}),
		nil, nil)

	res, err := o.searchTitleUncached(t.Context(), newBudget(10), "dune", 10)
	require.NoError(t, err)
	require.Len(t, res.Works, 1)
	assert.Equal(t, domain.ProviderCatalogA, res.Source)
}

func TestSearchTitleUncached_FallsBackToCatalogBWhenAEmpty(t *testing.T) {
	o := newTestOrchestrator(t,
		jsonHandler(providers.CatalogASearchResult{}),
		jsonHandler(providers.CatalogBSearchResult{Docs: []providers.CatalogBEdition{{Key: "/works/1", Title: "Dune"}}}),
		nil)

	res, err := o.searchTitleUncached(t.Context(), newBudget(10), "dune", 10)
	require.NoError(t, err)
	require.Len(t, res.Works, 1)
	assert.Equal(t, domain.ProviderCatalogB, res.Source)
}

func TestSearchTitleUncached_AllEmptyReturnsNotFound(t *testing.T) {
	o := newTestOrchestrator(t,
		jsonHandler(providers.CatalogASearchResult{}),
		jsonHandler(providers.CatalogBSearchResult{}),
		nil)

	_, err := o.searchTitleUncached(t.Context(), newBudget(10), "nonexistent", 10)
	require.Error(t, err)
	var pe *apierrors.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, apierrors.KindNotFound, pe.Kind)
}

func TestSearchISBNUncached_FallsThroughAllThreeHops(t *testing.T) {
	o := newTestOrchestrator(t, notFoundHandler, notFoundHandler,
		jsonHandler(providers.CatalogCRecord{ISBN13: "9780345391803", Title: "Hitchhiker's Guide"}))

	res, err := o.searchISBNUncached(t.Context(), newBudget(10), "9780345391803")
	require.NoError(t, err)
	require.Len(t, res.Works, 1)
	assert.Equal(t, domain.ProviderCatalogC, res.Works[0].PrimaryProvider)
}

func TestSearchISBNUncached_AllNotFoundSurfacesNotFound(t *testing.T) {
	o := newTestOrchestrator(t, notFoundHandler, notFoundHandler, notFoundHandler)

	_, err := o.searchISBNUncached(t.Context(), newBudget(10), "9780345391803")
	var pe *apierrors.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, apierrors.KindNotFound, pe.Kind)
}

func TestSearchISBNUncached_NonNotFoundFailureSurfacesUnavailable(t *testing.T) {
	o := newTestOrchestrator(t,
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }),
		notFoundHandler, notFoundHandler)

	_, err := o.searchISBNUncached(t.Context(), newBudget(10), "9780345391803")
	var pe *apierrors.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, apierrors.KindUnavailable, pe.Kind)
}

// TestEnrichISBN_CatalogBFillsHolesInCatalogA covers spec §4.5 item 3:
// catalog-A succeeding must not short-circuit catalog-B -- catalog-B's
// fields should still fill any gaps catalog-A left empty.
func TestEnrichISBN_CatalogBFillsHolesInCatalogA(t *testing.T) {
	o := newTestOrchestrator(t,
		jsonHandler(providers.CatalogASearchResult{Items: []providers.CatalogABook{{ID: "1", Title: "Dune", ISBN13: "9780441172719"}}}), // no publisher/pageCount
		jsonHandler(providers.CatalogBEdition{
			Key: "/books/1", Title: "Dune", Publisher: []string{"Ace Books"}, NumberOfPages: 412,
			ISBN: []string{"9780441172719"},
		}),
		nil)

	res, err := o.enrichISBN(t.Context(), newBudget(10), "9780441172719")
	require.NoError(t, err)
	require.Len(t, res.Works, 1)
	require.Len(t, res.Works[0].Editions, 1)

	edition := res.Works[0].Editions[0]
	assert.Equal(t, "Ace Books", edition.Publisher, "catalog-B should fill the empty publisher hole")
	assert.Equal(t, 412, edition.PageCount, "catalog-B should fill the empty pageCount hole")
	assert.Contains(t, edition.Contributors, domain.ProviderCatalogA)
	assert.Contains(t, edition.Contributors, domain.ProviderCatalogB)
}

func TestEnrichISBN_CatalogANonEmptyFieldNeverOverwritten(t *testing.T) {
	o := newTestOrchestrator(t,
		jsonHandler(providers.CatalogASearchResult{Items: []providers.CatalogABook{{ID: "1", Title: "Dune", Publisher: "Chilton Books", ISBN13: "9780441172719"}}}),
		jsonHandler(providers.CatalogBEdition{Key: "/books/1", Title: "Dune", Publisher: []string{"Ace Books"}, ISBN: []string{"9780441172719"}}),
		nil)

	res, err := o.enrichISBN(t.Context(), newBudget(10), "9780441172719")
	require.NoError(t, err)
	assert.Equal(t, "Chilton Books", res.Works[0].Editions[0].Publisher)
}

func TestEnrichISBN_CatalogAFailureFallsBackToCatalogB(t *testing.T) {
	o := newTestOrchestrator(t, notFoundHandler,
		jsonHandler(providers.CatalogBEdition{Key: "/books/1", Title: "Dune", ISBN: []string{"9780441172719"}}),
		nil)

	res, err := o.enrichISBN(t.Context(), newBudget(10), "9780441172719")
	require.NoError(t, err)
	require.Len(t, res.Works, 1)
	assert.Equal(t, domain.ProviderCatalogB, res.Works[0].Editions[0].PrimaryProvider)
}

func TestEnrichISBN_BothFailSurfacesPrimaryError(t *testing.T) {
	o := newTestOrchestrator(t, notFoundHandler, notFoundHandler, notFoundHandler)

	_, err := o.enrichISBN(t.Context(), newBudget(10), "9780441172719")
	require.Error(t, err)
}

// TestSearchTitle_CachesAcrossIdenticalCalls exercises the exported,
// cache-backed entry point end to end: a second identical call must not
// reach catalog-A again, and the cache key must incorporate maxResults so a
// differently-sized request is a genuine miss (spec §4.3, §4.5).
func TestSearchTitle_CachesAcrossIdenticalCalls(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(providers.CatalogASearchResult{Items: []providers.CatalogABook{{ID: "1", Title: "Dune"}}})
	}))
	t.Cleanup(srv.Close)
	a := providers.NewCatalogA(srv.URL, http.DefaultClient, providers.EnvSource{"CATALOG_A_API_KEY": "k"})
	b := providers.NewCatalogB("http://unused", http.DefaultClient, providers.EnvSource{})
	c := providers.NewCatalogC("http://unused", http.DefaultClient, providers.EnvSource{})

	db, err := pgxpool.New(t.Context(), "postgres://postgres@localhost:5432/test")
	require.NoError(t, err)
	t.Cleanup(db.Close)
	h, err := cache.NewHierarchy(cache.NewPGStore(db), nil, time.Minute, metrics.NewCacheMetrics(metrics.NewRegistry()))
	require.NoError(t, err)

	o := New(a, b, c, h, DefaultTTLs(), 10)

	res1, err := o.SearchTitle(t.Context(), "dune", 20)
	require.NoError(t, err)
	assert.False(t, res1.Cached)

	res2, err := o.SearchTitle(t.Context(), "dune", 20)
	require.NoError(t, err)
	assert.True(t, res2.Cached)
	assert.Equal(t, 1, calls, "second identical SearchTitle must be served from cache")

	_, err = o.SearchTitle(t.Context(), "dune", 40)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "a different maxResults must not collide with the cached key")
}
