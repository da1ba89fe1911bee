package websearch

import (
	"context"
	"fmt"

	"github.com/itsneelabh/fraudmind/core"
)

// GovernedSearch wraps a provider and enforces the governed-search
// contract: allowlist filtering (done by the provider), a bounded result
// count, and never propagating provider failures.
type GovernedSearch struct {
	provider   SearchProvider
	maxResults int
	logger     core.Logger
}

// NewGovernedSearch creates the governed search service.
func NewGovernedSearch(provider SearchProvider, maxResults int, logger core.Logger) *GovernedSearch {
	if maxResults <= 0 {
		maxResults = 3
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("engine/websearch")
	}

	return &GovernedSearch{
		provider:   provider,
		maxResults: maxResults,
		logger:     logger,
	}
}

// Search executes a governed web search and returns at most the
// configured number of allowed results.
func (g *GovernedSearch) Search(ctx context.Context, query string) []core.CitationExternal {
	results := g.provider.Search(ctx, query, g.maxResults)
	if len(results) > g.maxResults {
		results = results[:g.maxResults]
	}

	g.logger.DebugWithContext(ctx, "Governed search completed", map[string]interface{}{
		"query":   query,
		"results": len(results),
	})
	return results
}

// NewProviderFromConfig builds a search provider from configuration.
func NewProviderFromConfig(cfg *core.Config) (SearchProvider, error) {
	allowlist := NewAllowlist(cfg.AllowlistDomains, cfg.Logger())

	switch cfg.SearchProvider {
	case "mock":
		return NewMockSearchProvider(allowlist, cfg.Logger()), nil
	case "http":
		return NewHTTPSearchProvider(allowlist, cfg.SearchAPIURL, cfg.SearchAPIKey, cfg.SearchTimeout, cfg.Logger()), nil
	default:
		return nil, fmt.Errorf("%w: unknown search provider %q", core.ErrInvalidConfiguration, cfg.SearchProvider)
	}
}
