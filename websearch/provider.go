package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/itsneelabh/fraudmind/core"
	"github.com/itsneelabh/fraudmind/resilience"
)

// SearchProvider is a pluggable web search backend. Implementations must
// not return an error for provider failures; they degrade to an empty
// result list so the threat-intel stage never sees a throwing gateway.
type SearchProvider interface {
	Search(ctx context.Context, query string, maxResults int) []core.CitationExternal
}

// mockAlerts is the deterministic alert fixture set, keyed by merchant
// patterns matched against the query.
var mockAlerts = map[string][]core.CitationExternal{
	"M-FRAUD": {
		{
			URL:     "https://example.com/alerts/fraud-ring-2025",
			Summary: "Alerta de fraude reciente: red de fraude detectada operando con comercios similares. Múltiples reportes de transacciones no autorizadas.",
		},
		{
			URL:     "https://owasp.org/security-alert-2025-001",
			Summary: "Aviso de seguridad: Endpoints de comercios comprometidos detectados en la región de América Latina.",
		},
	},
	"M-SUSPICIOUS": {
		{
			URL:     "https://mitre.org/cve/2025/merchant-fraud",
			Summary: "CVE-2025-XXXX: Vulnerabilidad en sistemas de pago que permite transacciones fraudulentas.",
		},
	},
}

// MockSearchProvider returns deterministic results based on merchant
// patterns in the query. Used for local development and the rule-based
// test suite.
type MockSearchProvider struct {
	allowlist *Allowlist
	logger    core.Logger
}

// NewMockSearchProvider creates the deterministic provider.
func NewMockSearchProvider(allowlist *Allowlist, logger core.Logger) *MockSearchProvider {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &MockSearchProvider{allowlist: allowlist, logger: logger}
}

func (m *MockSearchProvider) Search(ctx context.Context, query string, maxResults int) []core.CitationExternal {
	var results []core.CitationExternal
	queryUpper := strings.ToUpper(query)

	for pattern, alerts := range mockAlerts {
		if !strings.Contains(queryUpper, pattern) {
			continue
		}
		for _, alert := range alerts {
			if m.allowlist.IsAllowed(alert.URL) {
				results = append(results, alert)
			}
		}
	}

	if len(results) > maxResults {
		results = results[:maxResults]
	}

	m.logger.Debug("Mock search executed", map[string]interface{}{
		"query":   query,
		"results": len(results),
	})
	return results
}

// HTTPSearchProvider queries an external search API with bearer-token
// auth. The HTTP transport is instrumented with otelhttp so provider
// latency shows up in traces, and a circuit breaker stops hammering a
// failing gateway. Failures always degrade to an empty result list.
type HTTPSearchProvider struct {
	allowlist  *Allowlist
	apiURL     string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	logger     core.Logger
}

// NewHTTPSearchProvider creates the HTTP provider. A zero timeout
// defaults to 10 seconds.
func NewHTTPSearchProvider(allowlist *Allowlist, apiURL, apiKey string, timeout time.Duration, logger core.Logger) *HTTPSearchProvider {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	breaker, _ := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:   "websearch",
		Logger: logger,
	})

	return &HTTPSearchProvider{
		allowlist: allowlist,
		apiURL:    apiURL,
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
		logger:  logger,
	}
}

func (p *HTTPSearchProvider) Search(ctx context.Context, query string, maxResults int) []core.CitationExternal {
	if p.apiURL == "" {
		p.logger.Warn("HTTP search provider has no API URL configured", nil)
		return nil
	}

	var body []byte
	err := p.breaker.Execute(ctx, func() error {
		fetched, err := p.fetch(ctx, query, maxResults)
		if err != nil {
			return err
		}
		body = fetched
		return nil
	})
	if err != nil {
		p.logger.Error("Search provider request failed", map[string]interface{}{
			"error": err.Error(),
			"state": p.breaker.GetState(),
		})
		return nil
	}

	var data struct {
		Results []struct {
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		p.logger.Error("Failed to parse search response", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	var results []core.CitationExternal
	for _, item := range data.Results {
		if p.allowlist.IsAllowed(item.URL) {
			results = append(results, core.CitationExternal{
				URL:     item.URL,
				Summary: item.Snippet,
			})
		}
	}

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// fetch performs one search API round-trip and returns the raw body.
func (p *HTTPSearchProvider) fetch(ctx context.Context, query string, maxResults int) ([]byte, error) {
	// Over-fetch so allowlist filtering can still fill the cap
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(maxResults*2))

	req, err := http.NewRequestWithContext(ctx, "GET", p.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}

	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: search API status %d", core.ErrProvider, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	return body, nil
}
