package orchestrate

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/bookwyrm/core/internal/apierrors"
	"github.com/bookwyrm/core/internal/cache"
	"github.com/bookwyrm/core/internal/domain"
	"github.com/bookwyrm/core/internal/logging"
	"github.com/bookwyrm/core/internal/normalize"
	"github.com/bookwyrm/core/internal/providers"
)

// Result is the canonical response of any orchestrator operation: the
// merged Works (each carrying its own ranked Editions), which provider the
// data ultimately came from, and whether it was served from cache.
type Result struct {
	Works  []domain.Work
	Source domain.Provider
	Cached bool
}

// TTLs carries the per-endpoint cache TTLs (spec §6).
type TTLs struct {
	Title  time.Duration
	ISBN   time.Duration
	Author time.Duration
	Cover  time.Duration
}

// DefaultTTLs matches spec §6's authoritative TTLs.
func DefaultTTLs() TTLs {
	return TTLs{
		Title:  6 * time.Hour,
		ISBN:   365 * 24 * time.Hour,
		Author: 6 * time.Hour,
		Cover:  365 * 24 * time.Hour,
	}
}

// Orchestrator implements spec §4.5. One instance is shared across
// requests; per-request state (the upstream call budget) is allocated
// fresh by each exported method.
type Orchestrator struct {
	catalogA *providers.CatalogA
	catalogB *providers.CatalogB
	catalogC *providers.CatalogC

	cache *cache.Hierarchy
	ttls  TTLs

	maxUpstreamCalls int

	group singleflight.Group // coalesces concurrent identical cache-miss lookups
}

// New builds an Orchestrator.
func New(a *providers.CatalogA, b *providers.CatalogB, c *providers.CatalogC, ch *cache.Hierarchy, ttls TTLs, maxUpstreamCalls int) *Orchestrator {
	return &Orchestrator{catalogA: a, catalogB: b, catalogC: c, cache: ch, ttls: ttls, maxUpstreamCalls: maxUpstreamCalls}
}

// TTLs returns the per-endpoint cache TTLs this orchestrator was built with,
// for handlers that need to set Cache-Control independently of a cache hit.
func (o *Orchestrator) TTLs() TTLs { return o.ttls }

// SearchTitle implements the title fallback chain: catalog-A primary,
// catalog-B fallback on empty/failure (spec §4.5). catalog-B is queried
// only when catalog-A yields nothing, so its results never supplement
// catalog-A's; duplicates within the returned set are merged.
func (o *Orchestrator) SearchTitle(ctx context.Context, title string, maxResults int) (Result, error) {
	key := cache.TitleSearchKey(title, "", maxResults)
	return o.cachedSearch(ctx, key, o.ttls.Title, func(ctx context.Context) (Result, error) {
		b := newBudget(o.maxUpstreamCalls)
		return o.searchTitleUncached(ctx, b, title, maxResults)
	})
}

func (o *Orchestrator) searchTitleUncached(ctx context.Context, b *budget, title string, maxResults int) (Result, error) {
	var primary, secondary []domain.Work
	var primarySource domain.Provider

	if err := b.Spend(ctx); err == nil {
		cctx, cancel := providers.WithDeadline(ctx, providers.DefaultDeadlines().Catalog)
		res, perr := o.catalogA.SearchByTitle(cctx, title, maxResults)
		cancel()
		if perr == nil && len(res.Items) > 0 {
			primary = catalogAWorks(res.Items)
			primarySource = domain.ProviderCatalogA
		} else {
			logging.Log(ctx).Warn("catalog_a search failed or empty, falling back", "err", perr)
		}
	}

	if len(primary) == 0 {
		if err := b.Spend(ctx); err == nil {
			cctx, cancel := providers.WithDeadline(ctx, providers.DefaultDeadlines().Catalog)
			res, perr := o.catalogB.SearchByTitle(cctx, title, maxResults)
			cancel()
			if perr == nil && len(res.Docs) > 0 {
				secondary = catalogBWorks(res.Docs)
				if primarySource == "" {
					primarySource = domain.ProviderCatalogB
				}
			}
		}
	}

	merged := DedupeWorks(append(primary, secondary...))
	if len(merged) == 0 {
		return Result{}, apierrors.NewChainError(apierrors.KindNotFound)
	}
	if len(merged) > maxResults {
		merged = merged[:maxResults]
	}
	return Result{Works: merged, Source: primarySource}, nil
}

// SearchAuthor implements the author-bibliography search. catalog-A has no
// author-pagination endpoint in this spec's contract (spec §6), so only
// catalog-B is queried here; catalog-A is not consulted and supplements no
// fields.
func (o *Orchestrator) SearchAuthor(ctx context.Context, author string, limit, offset int, sortBy string) (Result, error) {
	key := cache.AuthorSearchKey(author, limit, offset, sortBy)
	return o.cachedSearch(ctx, key, o.ttls.Author, func(ctx context.Context) (Result, error) {
		b := newBudget(o.maxUpstreamCalls)
		if err := b.Spend(ctx); err != nil {
			return Result{}, err
		}
		cctx, cancel := providers.WithDeadline(ctx, providers.DefaultDeadlines().Catalog)
		defer cancel()
		res, err := o.catalogB.SearchByAuthor(cctx, author, limit, offset, sortBy)
		if err != nil {
			return Result{}, classifyChainFailure(err)
		}
		works := DedupeWorks(catalogBWorks(res.Docs))
		if len(works) == 0 {
			return Result{}, apierrors.NewChainError(apierrors.KindNotFound)
		}
		return Result{Works: works, Source: domain.ProviderCatalogB}, nil
	})
}

// SearchAdvanced implements the multi-field search of spec §6
// `/v1/search/advanced`: an isbn field routes straight to the ISBN chain;
// otherwise title (or q) drives the title chain, and an author field alone
// routes to SearchAuthor. When a title is present the author field does not
// narrow the results; it only becomes part of the cache key.
func (o *Orchestrator) SearchAdvanced(ctx context.Context, fields map[string]string, maxResults int) (Result, error) {
	if isbn := fields["isbn"]; isbn != "" {
		normalized, err := normalize.NormalizeISBN(isbn)
		if err != nil {
			return Result{}, apierrors.InvalidISBN()
		}
		return o.SearchISBN(ctx, normalized)
	}

	title := fields["title"]
	if title == "" {
		title = fields["q"]
	}
	if author := fields["author"]; author != "" && title == "" {
		return o.SearchAuthor(ctx, author, maxResults, 0, "")
	}
	if title == "" {
		return Result{}, apierrors.ErrInvalidRequest
	}

	key := cache.AdvancedSearchKey(fields, maxResults)
	return o.cachedSearch(ctx, key, o.ttls.Title, func(ctx context.Context) (Result, error) {
		b := newBudget(o.maxUpstreamCalls)
		return o.searchTitleUncached(ctx, b, title, maxResults)
	})
}

// SearchISBN implements the three-hop ISBN chain: catalog-A -> catalog-B ->
// catalog-C, where a NotFound from one hop doesn't end the chain -- only
// NotFound from every hop surfaces NotFound (spec §4.5).
func (o *Orchestrator) SearchISBN(ctx context.Context, isbn string) (Result, error) {
	key := cache.ISBNSearchKey(isbn)
	return o.cachedSearch(ctx, key, o.ttls.ISBN, func(ctx context.Context) (Result, error) {
		b := newBudget(o.maxUpstreamCalls)
		return o.searchISBNUncached(ctx, b, isbn)
	})
}

func (o *Orchestrator) searchISBNUncached(ctx context.Context, b *budget, isbn string) (Result, error) {
	allNotFound := true

	if err := b.Spend(ctx); err == nil {
		cctx, cancel := providers.WithDeadline(ctx, providers.DefaultDeadlines().Catalog)
		book, perr := o.catalogA.SearchByISBN(cctx, isbn)
		cancel()
		if perr == nil {
			return workFromEdition(normalize.CatalogAToWork(*book), normalize.CatalogAToEdition(*book)), nil
		}
		allNotFound = allNotFound && isNotFound(perr)
	}

	if err := b.Spend(ctx); err == nil {
		cctx, cancel := providers.WithDeadline(ctx, providers.DefaultDeadlines().Catalog)
		ed, perr := o.catalogB.SearchByISBN(cctx, isbn)
		cancel()
		if perr == nil {
			return workFromEdition(normalize.CatalogBToWork(*ed), normalize.CatalogBToEdition(*ed)), nil
		}
		allNotFound = allNotFound && isNotFound(perr)
	}

	if err := b.Spend(ctx); err == nil {
		cctx, cancel := providers.WithDeadline(ctx, providers.DefaultDeadlines().Catalog)
		rec, perr := o.catalogC.SearchByISBN(cctx, isbn)
		cancel()
		if perr == nil {
			edition := normalize.CatalogCToEdition(*rec)
			work := domain.Work{Title: edition.Title, Synthetic: true, PrimaryProvider: domain.ProviderCatalogC, Contributors: []domain.Provider{domain.ProviderCatalogC}}
			return workFromEdition(work, edition), nil
		}
		allNotFound = allNotFound && isNotFound(perr)
	}

	if allNotFound {
		return Result{}, apierrors.NewChainError(apierrors.KindNotFound)
	}
	return Result{}, apierrors.NewChainError(apierrors.KindUnavailable)
}

// EnrichBook implements per-book enrichment (spec §4.5). ref may be an ISBN
// or a free-form title. An ISBN ref goes through enrichISBN: catalog-A
// primary, catalog-B secondary fills holes in the primary, never
// overwriting non-empty primary fields. A title ref goes through the title
// chain, where catalog-B is queried only when catalog-A yields nothing.
func (o *Orchestrator) EnrichBook(ctx context.Context, ref string) (Result, error) {
	key := cache.EnrichmentKey(ref)
	return o.cachedSearch(ctx, key, o.ttls.Title, func(ctx context.Context) (Result, error) {
		b := newBudget(o.maxUpstreamCalls)

		if normalized, err := normalize.NormalizeISBN(ref); err == nil {
			return o.enrichISBN(ctx, b, normalized)
		}
		return o.searchTitleUncached(ctx, b, ref, 1)
	})
}

// enrichISBN queries catalog-A as primary and always also queries catalog-B
// (budget permitting) so its fields fill holes left by the primary via
// mergeWorks/mergeEditions -- the searchISBNUncached chain stops at the
// first hop to succeed and never reaches catalog-B once catalog-A answers,
// which is correct for a plain search but not for enrichment's documented
// "catalog-B secondary fills holes in primary" contract (spec §4.5 item 3).
func (o *Orchestrator) enrichISBN(ctx context.Context, b *budget, isbn string) (Result, error) {
	primary, primaryErr := o.searchISBNUncached(ctx, b, isbn)

	var secondary Result
	if err := b.Spend(ctx); err == nil {
		cctx, cancel := providers.WithDeadline(ctx, providers.DefaultDeadlines().Catalog)
		ed, perr := o.catalogB.SearchByISBN(cctx, isbn)
		cancel()
		if perr == nil {
			secondary = workFromEdition(normalize.CatalogBToWork(*ed), normalize.CatalogBToEdition(*ed))
		}
	}

	if primaryErr != nil {
		if len(secondary.Works) == 0 {
			return Result{}, primaryErr
		}
		return secondary, nil
	}
	if len(secondary.Works) == 0 {
		return primary, nil
	}

	mergedWork := mergeWorks(primary.Works[0], secondary.Works[0])
	mergedEdition := mergeEditions(primary.Works[0].Editions[0], secondary.Works[0].Editions[0])
	mergedEdition.QualityScore = ScoreEdition(mergedEdition)
	mergedWork.Editions = []domain.Edition{mergedEdition}
	return Result{Works: []domain.Work{mergedWork}, Source: primary.Source}, nil
}

// cachedSearch is the common read-through/write-through wrapper every
// search operation uses: consult the cache, on miss call fetch (coalesced
// per-key via singleflight to avoid a cache-miss stampede), then write
// through (spec §4.5 steps 1 and 5).
func (o *Orchestrator) cachedSearch(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (Result, error)) (Result, error) {
	if raw, _, ok := o.cache.Get(ctx, key); ok {
		var cached Result
		if err := sonic.Unmarshal(raw, &cached); err == nil {
			cached.Cached = true
			return cached, nil
		}
	}

	v, err, _ := o.group.Do(key, func() (any, error) {
		res, err := fetch(ctx)
		if err != nil {
			return Result{}, err
		}
		if raw, merr := sonic.Marshal(res); merr == nil {
			if serr := o.cache.Set(ctx, key, raw, cache.Fuzz(ttl, 0.1)); serr != nil {
				logging.Log(ctx).Warn("cache write failed", "key", key, "err", serr)
			}
		}
		return res, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func isNotFound(err error) bool {
	var pe *providers.Error
	for e := err; e != nil; {
		if p, ok := e.(*providers.Error); ok {
			pe = p
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return pe != nil && pe.Kind == providers.KindNotFound
}

func classifyChainFailure(err error) error {
	if isNotFound(err) {
		return apierrors.NewChainError(apierrors.KindNotFound)
	}
	return apierrors.NewChainError(apierrors.KindUnavailable)
}

func workFromEdition(w domain.Work, e domain.Edition) Result {
	e.QualityScore = ScoreEdition(e)
	w.Editions = []domain.Edition{e}
	return Result{Works: []domain.Work{w}, Source: e.PrimaryProvider}
}

func catalogAWorks(items []providers.CatalogABook) []domain.Work {
	out := make([]domain.Work, 0, len(items))
	for _, it := range items {
		w := normalize.CatalogAToWork(it)
		e := normalize.CatalogAToEdition(it)
		e.QualityScore = ScoreEdition(e)
		w.Editions = []domain.Edition{e}
		out = append(out, w)
	}
	return out
}

func catalogBWorks(docs []providers.CatalogBEdition) []domain.Work {
	out := make([]domain.Work, 0, len(docs))
	for _, d := range docs {
		w := normalize.CatalogBToWork(d)
		e := normalize.CatalogBToEdition(d)
		e.QualityScore = ScoreEdition(e)
		w.Editions = []domain.Edition{e}
		out = append(out, w)
	}
	return out
}

// RunBounded runs fns concurrently, at most limit at a time, via errgroup.
// The server's bulk-lookup endpoint uses it to run one EnrichBook per id;
// each of those calls reads the cache and, on a miss, calls the providers
// under its own upstream-call budget.
func RunBounded(ctx context.Context, limit int, fns []func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, fn := range fns {
		fn := fn
		g.Go(func() error { return fn(gctx) })
	}
	return g.Wait()
}
