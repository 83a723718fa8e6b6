package octosite

import (
	"strings"
)

// maxRequestIDLen bounds client supplied request ids echoed back.
const maxRequestIDLen = 128

// RequestIDMiddleware echoes the request id in the X-Request-ID response
// header. Client ids that are empty, oversized or contain line breaks are
// replaced.
func RequestIDMiddleware[V any]() MiddlewareFunc[V] {
	return func(next HandlerFunc[V]) HandlerFunc[V] {
		return func(ctx *Ctx[V]) error {
			id := strings.TrimSpace(ctx.UUID)
			if id == "" || len(id) > maxRequestIDLen || strings.ContainsAny(id, "\r\n") {
				id = newRequestID()
				ctx.UUID = id
			}
			ctx.SetHeader(HeaderXRequestID, id)
			return next(ctx)
		}
	}
}
