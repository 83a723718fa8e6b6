package octosite

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/coffyg/octosite/kvasset"
)

const tracerName = "github.com/coffyg/octosite"

// DefaultFallbackPath is the single page application shell.
const DefaultFallbackPath = "/index.html"

// FallbackPolicy decides which primary lookup failures serve the fallback
// document.
type FallbackPolicy int

const (
	// FallbackOnAnyError serves the fallback document for every lookup
	// failure, store outages included. Those surface as the fallback's
	// status instead of an error status.
	FallbackOnAnyError FallbackPolicy = iota
	// FallbackOnNotFound serves it only for missing keys. Other client
	// errors keep their status and store failures reach the router as
	// unexpected errors.
	FallbackOnNotFound
)

func (p FallbackPolicy) String() string {
	switch p {
	case FallbackOnAnyError:
		return "any_error"
	case FallbackOnNotFound:
		return "not_found"
	}
	return fmt.Sprintf("FallbackPolicy(%d)", int(p))
}

// ParseFallbackPolicy accepts "any_error" (or "") and "not_found".
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any_error":
		return FallbackOnAnyError, nil
	case "not_found":
		return FallbackOnNotFound, nil
	}
	return 0, fmt.Errorf("unknown fallback policy %q", s)
}

// AssetFetcher resolves a request to a stored asset. *kvasset.Handler is
// the production implementation.
type AssetFetcher interface {
	GetAsset(ctx context.Context, req *http.Request, opts kvasset.Options) (*kvasset.Response, error)
}

// AssetConfig holds configuration for asset serving
type AssetConfig struct {
	// Headers are written over every asset response. Nil means
	// DefaultSecurityHeaders.
	Headers *SecurityHeaders
	// Debug bypasses the edge cache on lookups.
	Debug bool
	// FallbackPath is served when the primary lookup fails.
	FallbackPath string
	Policy       FallbackPolicy
	// MapRequestToAsset overrides the primary request to key mapping.
	MapRequestToAsset func(*http.Request) *http.Request
	// Metrics is optional.
	Metrics *Metrics
}

// shouldFallback reports whether a tagged lookup failure is answered with
// the fallback document.
func (c AssetConfig) shouldFallback(err error) bool {
	if !IsRecoverable(err) {
		return false
	}
	return c.Policy == FallbackOnAnyError || StatusOf(err) == http.StatusNotFound
}

// Assets creates a handler serving stored assets with security headers and
// a single document fallback.
func Assets[V any](fetcher AssetFetcher, config AssetConfig) HandlerFunc[V] {
	if config.Headers == nil {
		config.Headers = DefaultSecurityHeaders()
	}
	if config.FallbackPath == "" {
		config.FallbackPath = DefaultFallbackPath
	}
	fallbackMapper := kvasset.ServeSingleDocument(config.FallbackPath)
	tracer := otel.Tracer(tracerName)

	lookup := func(ctx *Ctx[V], name string, opts kvasset.Options) (*kvasset.Response, error) {
		spanCtx, span := tracer.Start(ctx.Context(), name)
		defer span.End()
		span.SetAttributes(
			attribute.String("http.path", ctx.Request.URL.Path),
			attribute.Bool("asset.bypass_cache", opts.BypassCache),
		)

		resp, err := fetcher.GetAsset(spanCtx, ctx.Request, opts)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		span.SetAttributes(
			attribute.String("asset.key", resp.Key),
			attribute.Int("http.status_code", resp.Status),
		)
		return resp, nil
	}

	return func(ctx *Ctx[V]) error {
		opts := kvasset.Options{
			BypassCache:       config.Debug,
			MapRequestToAsset: config.MapRequestToAsset,
		}

		resp, err := lookup(ctx, "asset.lookup", opts)
		if err == nil {
			return serveAsset(ctx, config.Headers, resp)
		}

		status := StatusOf(err)
		lookupErr := Wrap(err, ErrLookupFailed, "asset lookup failed")
		lookupErr.StatusCode = status
		if !config.shouldFallback(lookupErr) {
			if status >= http.StatusInternalServerError {
				return Wrap(lookupErr, ErrUnexpected, "asset store unavailable")
			}
			logger.Debug().
				Err(err).
				Str("path", ctx.Request.URL.Path).
				Int("status", status).
				Msg("[octosite] asset lookup rejected")
			sendLookupStatus(ctx, config.Headers, status)
			return nil
		}

		logger.Debug().
			Err(err).
			Str("path", ctx.Request.URL.Path).
			Str("request_id", ctx.UUID).
			Msg("[octosite] serving fallback document")
		if config.Metrics != nil {
			config.Metrics.FallbacksTotal.WithLabelValues(fallbackReason(lookupErr.StatusCode)).Inc()
		}

		opts.MapRequestToAsset = fallbackMapper
		resp, err = lookup(ctx, "asset.fallback", opts)
		if err != nil {
			status := StatusOf(err)
			if status >= http.StatusInternalServerError {
				return Wrap(err, ErrUnexpected, "fallback lookup failed")
			}
			LogErrorWithPath(logger, err, ctx.Request.URL.Path)
			sendLookupStatus(ctx, config.Headers, status)
			return nil
		}
		return serveAsset(ctx, config.Headers, resp)
	}
}

// serveAsset writes a fresh copy of resp with the security headers set.
func serveAsset[V any](ctx *Ctx[V], headers *SecurityHeaders, resp *kvasset.Response) error {
	header := resp.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	headers.Apply(header)
	return ctx.SendStream(resp.Status, header, resp.Body)
}

// sendLookupStatus answers a client side lookup failure with its own status.
func sendLookupStatus[V any](ctx *Ctx[V], headers *SecurityHeaders, status int) {
	headers.Apply(ctx.ResponseWriter.Header())
	if status == http.StatusMethodNotAllowed {
		ctx.SetHeader(HeaderAllow, "GET, HEAD")
	}
	ctx.SendString(status, http.StatusText(status))
}

func fallbackReason(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusBadRequest:
		return "invalid_key"
	}
	return "store_error"
}
