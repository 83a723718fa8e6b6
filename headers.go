package octosite

import (
	"net/http"
	"strings"
)

// HeaderName constants for type-safe header operations
const (
	HeaderContentType             = "Content-Type"
	HeaderCacheControl            = "Cache-Control"
	HeaderLocation                = "Location"
	HeaderAllow                   = "Allow"
	HeaderXForwardedFor           = "X-Forwarded-For"
	HeaderXForwardedProto         = "X-Forwarded-Proto"
	HeaderXRealIP                 = "X-Real-IP"
	HeaderXRequestID              = "X-Request-ID"
	HeaderContentSecurityPolicy   = "Content-Security-Policy"
	HeaderStrictTransportSecurity = "Strict-Transport-Security"
	HeaderXXSSProtection          = "X-Xss-Protection"
	HeaderXFrameOptions           = "X-Frame-Options"
	HeaderXContentTypeOptions     = "X-Content-Type-Options"
	HeaderReferrerPolicy          = "Referrer-Policy"
)

// ContentType constants
const (
	ContentTypeHTML  = "text/html; charset=utf-8"
	ContentTypePlain = "text/plain; charset=utf-8"
)

var contentSecurityPolicy = strings.Join([]string{
	"default-src 'none';",
	"script-src 'unsafe-inline' 'self' https://cdn.jsdelivr.net;",
	"object-src 'none';",
	"style-src 'unsafe-inline' 'self';",
	"img-src 'self' data:;",
	"media-src;",
	"frame-src;",
	"font-src 'self';",
	"connect-src 'self';",
	"manifest-src 'self';",
	"upgrade-insecure-requests;",
}, "")

type headerEntry struct {
	name  string
	value string
}

// SecurityHeaders is an ordered, read-only set of response headers. Build it
// once at startup and share it between requests.
type SecurityHeaders struct {
	entries []headerEntry
}

// NewSecurityHeaders builds a header set from name/value pairs. A repeated
// name keeps its first position and its last value.
func NewSecurityHeaders(pairs ...string) *SecurityHeaders {
	if len(pairs)%2 != 0 {
		panic("octosite: NewSecurityHeaders needs name/value pairs")
	}
	s := &SecurityHeaders{}
	index := make(map[string]int, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		name := http.CanonicalHeaderKey(pairs[i])
		if pos, ok := index[name]; ok {
			s.entries[pos].value = pairs[i+1]
			continue
		}
		index[name] = len(s.entries)
		s.entries = append(s.entries, headerEntry{name: name, value: pairs[i+1]})
	}
	return s
}

// DefaultSecurityHeaders returns the header set served with every asset.
// The Cache-Control value is part of the wire contract and kept as is.
func DefaultSecurityHeaders() *SecurityHeaders {
	return NewSecurityHeaders(
		HeaderContentSecurityPolicy, contentSecurityPolicy,
		HeaderStrictTransportSecurity, "max-age=1000",
		HeaderCacheControl, "public, max-age=31536000, immutabe",
		HeaderXXSSProtection, "1; mode=block",
		HeaderXFrameOptions, "DENY",
		HeaderXContentTypeOptions, "nosniff",
		HeaderReferrerPolicy, "strict-origin-when-cross-origin",
	)
}

// Apply overwrites every header of the set in h, one value per name.
func (s *SecurityHeaders) Apply(h http.Header) {
	if s == nil {
		return
	}
	for _, e := range s.entries {
		h.Set(e.name, e.value)
	}
}

// Names returns the header names in insertion order.
func (s *SecurityHeaders) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.name
	}
	return names
}
