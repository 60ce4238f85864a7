// Package blocking decides whether a visited URL should be blocked for a user.
//
// Everything here is pure: callers load the user's rules and today's usage,
// then ask Evaluate or BuildSnapshot for an answer at a given instant.
package blocking

import (
	"net"
	"net/url"
	"strings"
)

const maxDomainLength = 253

// NormalizeDomain reduces a hostname, host:port or URL to the bare lowercase
// host used for matching, without a leading "www.".
func NormalizeDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}

	s = strings.TrimSuffix(s, ".")
	return strings.TrimPrefix(s, "www.")
}

// HostFromURL extracts the normalized host of a visited page. Only http and
// https pages can be blocked; browser-internal pages report false.
func HostFromURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}

	host := NormalizeDomain(u.Hostname())
	if host == "" {
		return "", false
	}
	return host, true
}

// DomainMatches reports whether host and entry name the same site. A parent
// domain catches its subdomains and a subdomain entry catches its parent.
func DomainMatches(host, entry string) bool {
	h := NormalizeDomain(host)
	b := NormalizeDomain(entry)
	if h == "" || b == "" {
		return false
	}
	return h == b || strings.HasSuffix(h, "."+b) || strings.HasSuffix(b, "."+h)
}

// MatchEntry returns the first entry of list that matches host.
func MatchEntry(host string, list []string) (string, bool) {
	for _, entry := range list {
		if DomainMatches(host, entry) {
			return entry, true
		}
	}
	return "", false
}

// IsDomainBlocked reports whether any entry of list matches host.
func IsDomainBlocked(host string, list []string) bool {
	_, ok := MatchEntry(host, list)
	return ok
}

// ValidDomain reports whether s is acceptable as a stored rule domain once
// normalized: dotted labels of [a-z0-9-], none empty, none hyphen-bounded.
func ValidDomain(s string) bool {
	d := NormalizeDomain(s)
	if d == "" || len(d) > maxDomainLength || !strings.Contains(d, ".") {
		return false
	}
	for _, label := range strings.Split(d, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, c := range label {
			switch {
			case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
			default:
				return false
			}
		}
	}
	return true
}
