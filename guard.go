package octosite

import (
	"net/http"
	"strings"
)

// GuardConfig controls the plain text to TLS redirect.
type GuardConfig struct {
	// TrustForwardedProto reads the scheme from X-Forwarded-Proto, for
	// deployments where TLS terminates in front of this process.
	TrustForwardedProto bool
	// PreserveQuery keeps the query string on the redirect target. Off by
	// default: the redirect carries only host and path.
	PreserveQuery bool
	// Metrics is optional; redirects are counted when set.
	Metrics *Metrics
}

// RequestScheme returns "http" or "https" for req.
func (g GuardConfig) RequestScheme(req *http.Request) string {
	if s := req.URL.Scheme; s != "" {
		return strings.ToLower(s)
	}
	if g.TrustForwardedProto {
		if proto := req.Header.Get(HeaderXForwardedProto); proto != "" {
			if idx := strings.IndexByte(proto, ','); idx >= 0 {
				proto = proto[:idx]
			}
			return strings.ToLower(strings.TrimSpace(proto))
		}
	}
	if req.TLS != nil {
		return "https"
	}
	return "http"
}

// UpgradeTarget returns the https URL a plain text request must be sent to,
// and false when req is already secure.
func (g GuardConfig) UpgradeTarget(req *http.Request) (string, bool) {
	if g.RequestScheme(req) != "http" {
		return "", false
	}

	host := req.URL.Host
	if host == "" {
		host = req.Host
	}
	target := "https://" + hostname(host) + req.URL.EscapedPath()
	if g.PreserveQuery && req.URL.RawQuery != "" {
		target += "?" + req.URL.RawQuery
	}
	return target, true
}

// UpgradeGuard answers plain text requests with a 301 to https before any
// asset work happens.
func UpgradeGuard[V any](g GuardConfig) MiddlewareFunc[V] {
	return func(next HandlerFunc[V]) HandlerFunc[V] {
		return func(ctx *Ctx[V]) error {
			target, insecure := g.UpgradeTarget(ctx.Request)
			if !insecure {
				return next(ctx)
			}
			if g.Metrics != nil {
				g.Metrics.RedirectsTotal.Inc()
			}
			ctx.Redirect(http.StatusMovedPermanently, target)
			return nil
		}
	}
}

// hostname strips the port from host, keeping IPv6 brackets.
func hostname(host string) string {
	if strings.HasPrefix(host, "[") {
		if end := strings.IndexByte(host, ']'); end >= 0 {
			return host[:end+1]
		}
		return host
	}
	if idx := strings.LastIndexByte(host, ':'); idx >= 0 {
		return host[:idx]
	}
	return host
}
