// Package websearch provides governed external search: pluggable
// providers whose results are filtered against a domain allowlist and
// capped in count.
package websearch

import (
	"net/url"
	"strings"

	"github.com/itsneelabh/fraudmind/core"
)

// Allowlist is the set of host suffixes permitted to appear in external
// citations.
type Allowlist struct {
	domains map[string]struct{}
}

// NewAllowlist normalizes and stores the allowed domains.
func NewAllowlist(domains []string, logger core.Logger) *Allowlist {
	set := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			set[d] = struct{}{}
		}
	}

	if logger != nil {
		logger.Info("Initialized search allowlist", map[string]interface{}{
			"domains": len(set),
		})
	}

	return &Allowlist{domains: set}
}

// IsAllowed reports whether the URL's host, stripped of any port, equals
// an allowlisted domain or is a sub-domain of one.
func (a *Allowlist) IsAllowed(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}

	if _, ok := a.domains[host]; ok {
		return true
	}

	for domain := range a.domains {
		if strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// FilterURLs returns only the URLs whose domains are allowed.
func (a *Allowlist) FilterURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if a.IsAllowed(u) {
			out = append(out, u)
		}
	}
	return out
}

// Len returns the number of allowlisted domains.
func (a *Allowlist) Len() int {
	return len(a.domains)
}
