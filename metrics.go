package octosite

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the site.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	FallbacksTotal  *prometheus.CounterVec
	RedirectsTotal  prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "octosite",
				Name:      "requests_total",
				Help:      "Total number of requests by route and status code",
			},
			[]string{"route", "code"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "octosite",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		FallbacksTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "octosite",
				Name:      "fallbacks_total",
				Help:      "Asset lookups answered with the fallback document",
			},
			[]string{"reason"},
		),
		RedirectsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "octosite",
				Name:      "https_redirects_total",
				Help:      "Plain text requests redirected to https",
			},
		),
	}
}

// MetricsMiddleware records request count and duration since the router
// accepted the request, labelled by the route name returned by label once
// the handler has run.
func MetricsMiddleware[V any](metrics *Metrics, label func(*Ctx[V]) string) MiddlewareFunc[V] {
	return func(next HandlerFunc[V]) HandlerFunc[V] {
		return func(ctx *Ctx[V]) error {
			err := next(ctx)

			status := ctx.ResponseWriter.Status
			if err != nil && !ctx.IsDone() {
				status = StatusOf(err)
			}
			route := label(ctx)
			metrics.RequestDuration.WithLabelValues(route).Observe(time.Duration(time.Now().UnixNano() - ctx.StartTime).Seconds())
			metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
			return err
		}
	}
}
