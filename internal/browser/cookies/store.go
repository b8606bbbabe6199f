// internal/browser/cookies/store.go
package cookies

import (
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// Store holds the cookies of one conversation. It is safe for concurrent use,
// although a conversation only touches it from its own goroutine.
type Store struct {
	mu      sync.Mutex
	cookies []*Cookie
	seq     uint64
	now     func() time.Time
	logger  *zap.Logger
}

var _ http.CookieJar = (*Store)(nil)

// NewStore creates an empty cookie store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		now:    time.Now,
		logger: logger.Named("cookies"),
	}
}

// SetClock replaces the time source. Used by tests to step over expiries.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Update records every Set-Cookie header of a response received from u.
func (s *Store) Update(u *url.URL, header http.Header) {
	for _, value := range header.Values("Set-Cookie") {
		for _, c := range ParseSetCookie(value) {
			s.Add(u, c)
		}
	}
}

// Add stores a cookie received from u, filling in default domain and path and
// rejecting cookies whose domain the host is not allowed to set. It reports
// whether the cookie was accepted.
func (s *Store) Add(u *url.URL, c *Cookie) bool {
	host := canonicalHost(u)

	if c.hasDomain && c.Domain != "" {
		if !domainMatch(host, c.Domain) {
			s.logger.Debug("Rejecting cookie for foreign domain.",
				zap.String("name", c.Name), zap.String("domain", c.Domain), zap.String("host", host))
			return false
		}
		if isPublicSuffix(c.Domain) && c.Domain != host {
			s.logger.Debug("Rejecting cookie scoped to a public suffix.",
				zap.String("name", c.Name), zap.String("domain", c.Domain))
			return false
		}
	} else {
		c.Domain = host
		c.HostOnly = true
	}
	if !c.hasPath || !strings.HasPrefix(c.Path, "/") {
		c.Path = defaultPath(u)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if c.maxAge != nil {
		if *c.maxAge <= 0 {
			c.Expires = now.Add(-time.Second)
		} else {
			c.Expires = now.Add(time.Duration(*c.maxAge) * time.Second)
		}
		c.maxAge = nil
	}

	s.removeLocked(c.Name, c.Domain, c.Path)
	if c.Expired(now) {
		// An already expired cookie is how servers delete one.
		return true
	}
	s.seq++
	c.seq = s.seq
	s.cookies = append(s.cookies, c)
	return true
}

// Put stores a cookie as-is, bypassing host validation. Domain and Path must be set.
func (s *Store) Put(c *Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Domain = strings.ToLower(strings.TrimPrefix(c.Domain, "."))
	if c.Path == "" {
		c.Path = "/"
	}
	s.removeLocked(c.Name, c.Domain, c.Path)
	s.seq++
	c.seq = s.seq
	s.cookies = append(s.cookies, c)
}

func (s *Store) removeLocked(name, domain, path string) {
	kept := s.cookies[:0]
	for _, existing := range s.cookies {
		if existing.Name == name && existing.Domain == domain && existing.Path == path {
			continue
		}
		kept = append(kept, existing)
	}
	s.cookies = kept
}

// purgeLocked drops expired cookies.
func (s *Store) purgeLocked(now time.Time) {
	kept := s.cookies[:0]
	for _, c := range s.cookies {
		if !c.Expired(now) {
			kept = append(kept, c)
		}
	}
	s.cookies = kept
}

// Matching returns the effective cookies for a request to u: at most one per
// name, choosing the most path-specific and then the most recently set match.
// The result is ordered the same way.
func (s *Store) Matching(u *url.URL) []*Cookie {
	host := canonicalHost(u)
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	secure := strings.EqualFold(u.Scheme, "https")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.now())

	var candidates []*Cookie
	for _, c := range s.cookies {
		if c.Secure && !secure {
			continue
		}
		if c.HostOnly {
			if host != c.Domain {
				continue
			}
		} else if !domainMatch(host, c.Domain) {
			continue
		}
		if !strings.HasPrefix(path, c.Path) {
			continue
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if len(candidates[i].Path) != len(candidates[j].Path) {
			return len(candidates[i].Path) > len(candidates[j].Path)
		}
		return candidates[i].seq > candidates[j].seq
	})

	seen := make(map[string]bool, len(candidates))
	result := candidates[:0]
	for _, c := range candidates {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		result = append(result, c)
	}
	return result
}

// Header renders the Cookie request header for u, or "" when nothing matches.
func (s *Store) Header(u *url.URL) string {
	matches := s.Matching(u)
	if len(matches) == 0 {
		return ""
	}
	parts := make([]string, len(matches))
	for i, c := range matches {
		parts[i] = c.String()
	}
	return strings.Join(parts, "; ")
}

// Value returns the value of the most recently set unexpired cookie with the given name.
func (s *Store) Value(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.now())

	var found *Cookie
	for _, c := range s.cookies {
		if c.Name == name && (found == nil || c.seq > found.seq) {
			found = c
		}
	}
	if found == nil {
		return "", false
	}
	return found.Value, true
}

// All returns a snapshot of every unexpired cookie in insertion order.
func (s *Store) All() []*Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.now())
	out := make([]*Cookie, len(s.cookies))
	copy(out, s.cookies)
	return out
}

// Clear removes every cookie.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies = nil
}

// SetCookies implements http.CookieJar.
func (s *Store) SetCookies(u *url.URL, cookies []*http.Cookie) {
	for _, hc := range cookies {
		s.Add(u, fromHTTPCookie(hc))
	}
}

// Cookies implements http.CookieJar.
func (s *Store) Cookies(u *url.URL) []*http.Cookie {
	matches := s.Matching(u)
	out := make([]*http.Cookie, len(matches))
	for i, c := range matches {
		out[i] = &http.Cookie{Name: c.Name, Value: c.Value}
	}
	return out
}

func canonicalHost(u *url.URL) string {
	return strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
}

// domainMatch reports whether host equals domain or is a subdomain of it.
func domainMatch(host, domain string) bool {
	domain = strings.ToLower(strings.TrimPrefix(domain, "."))
	if host == domain {
		return true
	}
	if net.ParseIP(host) != nil {
		return false
	}
	return strings.HasSuffix(host, "."+domain)
}

func isPublicSuffix(domain string) bool {
	if net.ParseIP(domain) != nil {
		return false
	}
	suffix, _ := publicsuffix.PublicSuffix(domain)
	return suffix == domain
}

// defaultPath is the directory of the request path.
func defaultPath(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" || path[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(path, "/")
	if i == 0 {
		return "/"
	}
	return path[:i]
}
