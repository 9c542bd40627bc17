// Package validate rejects scrape targets that could reach internal
// infrastructure (SSRF defense).
package validate

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

// MaxURLLength bounds submitted target URLs.
const MaxURLLength = 2048

// localhostAliases are hostnames rejected textually, before any IP parsing.
var localhostAliases = map[string]struct{}{
	"localhost": {},
	"127.0.0.1": {},
	"0.0.0.0":   {},
	"::1":       {},
}

// CheckURL accepts or rejects a candidate scrape target. It rejects non-http
// schemes, absent hosts, localhost aliases, and literal IPs in loopback,
// private, or link-local ranges. Hostnames that are not literal IPs are
// accepted without DNS resolution, so rebinding after validation remains a
// known residual risk.
func CheckURL(raw string) error {
	if raw == "" {
		return scrape.NewValidationError("url is required", nil)
	}
	if len(raw) > MaxURLLength {
		return scrape.NewValidationError("url exceeds maximum length", map[string]any{"max": MaxURLLength})
	}

	u, err := url.Parse(raw)
	if err != nil {
		return scrape.NewValidationError("url is not parseable", nil)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return scrape.NewValidationError("url scheme must be http or https", map[string]any{"scheme": u.Scheme})
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return scrape.NewValidationError("url host is required", nil)
	}
	if _, alias := localhostAliases[host]; alias {
		return scrape.NewValidationError("url host resolves to a local address", map[string]any{"host": host})
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isForbiddenAddr(addr) {
			return scrape.NewValidationError("url host is in a private or reserved range", map[string]any{"host": host})
		}
	}
	return nil
}

func isForbiddenAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}
