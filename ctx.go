package octosite

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// Ctx carries one in-flight request through middlewares and its handler.
type Ctx[V any] struct {
	ResponseWriter *ResponseWriterWrapper
	Request        *http.Request
	StartTime      int64 // UnixNano, set when the router accepts the request
	UUID           string
	Custom         V // Generic Custom Field
}

func (c *Ctx[V]) SetHeader(key, value string) {
	c.ResponseWriter.Header().Set(key, value)
}

func (c *Ctx[V]) GetHeader(key string) string {
	return c.Request.Header.Get(key)
}

func (c *Ctx[V]) SetStatus(code int) {
	c.ResponseWriter.WriteHeader(code)
}

func (c *Ctx[V]) Context() context.Context {
	return c.Request.Context()
}

// IsDone reports whether a status line has already been sent.
func (c *Ctx[V]) IsDone() bool {
	return c.ResponseWriter.WroteHeader()
}

// ClientIP returns the originating client address, preferring proxy headers.
func (c *Ctx[V]) ClientIP() string {
	if xff := c.GetHeader(HeaderXForwardedFor); xff != "" {
		first := xff
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			first = xff[:idx]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(c.GetHeader(HeaderXRealIP)); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}
