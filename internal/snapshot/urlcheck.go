package snapshot

import (
	"net/url"
	"regexp"
	"strings"
)

// urlPattern accepts http(s) URLs with a registered name, localhost, or
// a dotted IPv4 host, an optional port, and an optional path or query.
// IPv4 octets are range-checked so 256.256.256.256 does not pass.
var urlPattern = regexp.MustCompile(`(?i)^(?:http|https)://` +
	`(?:(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,6}\.?|` +
	`localhost|` +
	`(?:25[0-5]|2[0-4][0-9]|1[0-9][0-9]|[1-9]?[0-9])(?:\.(?:25[0-5]|2[0-4][0-9]|1[0-9][0-9]|[1-9]?[0-9])){3})` +
	`(?::\d+)?` +
	`(?:/?|[/?]\S+)$`)

// NormalizeURL prepends https:// when the input carries no scheme.
// Already-normalized input passes through unchanged, so the function
// is idempotent.
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return trimmed
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return trimmed
	}
	return "https://" + trimmed
}

// ValidateURL reports whether raw looks like a fetchable web URL.
// Scheme-less input is checked as if it had been normalized first.
func ValidateURL(raw string) bool {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return false
	}
	return urlPattern.MatchString(NormalizeURL(candidate))
}

// ResolveReference resolves ref against base the way a browser would:
// absolute refs pass through, protocol-relative refs adopt the base
// scheme, and relative paths join against the base path. Unparseable
// input is returned untouched rather than erased.
func ResolveReference(base, ref string) string {
	trimmed := strings.TrimSpace(ref)
	b, err := url.Parse(base)
	if err != nil {
		return trimmed
	}
	r, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	return b.ResolveReference(r).String()
}

// ExtractDomain returns the hostname of raw without port or path.
// Anything unparseable yields the "unknown" sentinel so callers always
// have a usable label for filenames and metrics.
func ExtractDomain(raw string) string {
	u, err := url.Parse(NormalizeURL(raw))
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
