// internal/browser/cookies/cookie.go
package cookies

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Cookie is a single stored cookie.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
	// Expires is the zero time for session cookies.
	Expires  time.Time
	Secure   bool
	HTTPOnly bool

	// HostOnly is set when the server did not send a domain attribute; such a
	// cookie only matches the exact host that set it.
	HostOnly bool

	// maxAge is kept until the cookie is stored so it can be resolved against the store clock.
	maxAge    *int
	hasDomain bool
	hasPath   bool
	seq       uint64
}

// IsSession reports whether the cookie expires with the conversation.
func (c *Cookie) IsSession() bool {
	return c.Expires.IsZero()
}

// Expired reports whether the cookie has an expiry at or before now.
func (c *Cookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// String renders the cookie as a name=value pair.
func (c *Cookie) String() string {
	return c.Name + "=" + c.Value
}

// HTTPCookie converts the cookie into its net/http form.
func (c *Cookie) HTTPCookie() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}
}

// fromHTTPCookie converts a net/http cookie. MaxAge follows net/http's convention
// (0 = unset, negative = delete now).
func fromHTTPCookie(hc *http.Cookie) *Cookie {
	c := &Cookie{
		Name:      hc.Name,
		Value:     hc.Value,
		Domain:    hc.Domain,
		Path:      hc.Path,
		Expires:   hc.Expires,
		Secure:    hc.Secure,
		HTTPOnly:  hc.HttpOnly,
		hasDomain: hc.Domain != "",
		hasPath:   hc.Path != "",
	}
	switch {
	case hc.MaxAge < 0:
		zero := 0
		c.maxAge = &zero
	case hc.MaxAge > 0:
		age := hc.MaxAge
		c.maxAge = &age
	}
	return c
}

// cookieAttributes are the tokens that attach to the preceding name=value pair
// instead of starting a new cookie.
var cookieAttributes = map[string]bool{
	"path":     true,
	"domain":   true,
	"expires":  true,
	"max-age":  true,
	"secure":   true,
	"httponly": true,
	"version":  true,
	"comment":  true,
	"samesite": true,
	"priority": true,
}

// trailingExpiresDay matches a segment that was cut right after the weekday of a
// legacy expires date, e.g. "expires=Wednesday" from "expires=Wednesday, 09-Nov-99 ...".
var trailingExpiresDay = regexp.MustCompile(`(?i)expires\s*=\s*"?[a-z]{3,9}$`)

// splitHeader breaks a Set-Cookie value into name=value and attribute tokens.
// Commas separate cookies, except the comma that follows the weekday of an expires date.
func splitHeader(header string) []string {
	var segments []string
	pieces := strings.Split(header, ",")
	for i := 0; i < len(pieces); i++ {
		segment := pieces[i]
		for trailingExpiresDay.MatchString(strings.TrimSpace(segment)) && i+1 < len(pieces) {
			i++
			segment += "," + pieces[i]
		}
		segments = append(segments, segment)
	}

	var tokens []string
	for _, segment := range segments {
		for _, token := range strings.Split(segment, ";") {
			if token = strings.TrimSpace(token); token != "" {
				tokens = append(tokens, token)
			}
		}
	}
	return tokens
}

// ParseSetCookie parses one Set-Cookie header value into the cookies it declares.
// Legacy servers pack several declarations into one header separated by plain commas.
func ParseSetCookie(header string) []*Cookie {
	var result []*Cookie
	var current *Cookie

	for _, token := range splitHeader(header) {
		key, value, hasValue := strings.Cut(token, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		lower := strings.ToLower(key)

		if cookieAttributes[lower] && current != nil {
			applyAttribute(current, lower, value)
			continue
		}
		if !hasValue || key == "" {
			// A bare token that is not a known flag carries no cookie.
			continue
		}
		current = &Cookie{Name: key, Value: unquote(value)}
		result = append(result, current)
	}
	return result
}

func applyAttribute(c *Cookie, name, value string) {
	switch name {
	case "path":
		if value != "" {
			c.Path = value
			c.hasPath = true
		}
	case "domain":
		if value != "" {
			c.Domain = strings.ToLower(strings.TrimPrefix(value, "."))
			c.hasDomain = true
		}
	case "expires":
		if t, ok := parseExpires(unquote(value)); ok {
			c.Expires = t
		}
	case "max-age":
		if secs, err := strconv.Atoi(value); err == nil {
			c.maxAge = &secs
		}
	case "secure":
		c.Secure = true
	case "httponly":
		c.HTTPOnly = true
	}
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// expiresLayouts covers RFC 1123, the Netscape/RFC 850 form with a two-digit
// year, and ANSI C asctime.
var expiresLayouts = []string{
	http.TimeFormat,
	"Mon, 02-Jan-2006 15:04:05 MST",
	"Monday, 02-Jan-06 15:04:05 MST",
	"Mon, 02-Jan-06 15:04:05 MST",
	"Mon, 02 Jan 06 15:04:05 MST",
	"Mon Jan _2 15:04:05 2006",
	time.RFC1123Z,
}

func parseExpires(value string) (time.Time, bool) {
	for _, layout := range expiresLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
