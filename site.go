package octosite

import (
	"net/http"

	"github.com/coffyg/octosite/kvasset"
)

// FormPrefix is the path prefix owned by the form proxy.
const FormPrefix = "/ac/"

// Route labels used in metrics.
const (
	RouteAsset       = "asset"
	RouteForm        = "form"
	RouteFormOptions = "form_options"
)

// SiteState is the per-request value the site keeps in Ctx.Custom.
type SiteState struct {
	Route string
}

// FormHandler is the form proxy collaborator serving FormPrefix.
type FormHandler interface {
	HandleOptions(w http.ResponseWriter, r *http.Request) error
	HandleRequest(w http.ResponseWriter, r *http.Request) error
}

// SiteConfig configures NewSite.
type SiteConfig struct {
	Debug          bool
	Guard          GuardConfig
	Headers        *SecurityHeaders
	FallbackPath   string
	FallbackPolicy FallbackPolicy
	// AssetPrefix is stripped from request paths before the key lookup.
	AssetPrefix string
	Metrics     *Metrics
}

// NewSite builds the routing table: OPTIONS, GET, HEAD, POST and PUT under
// FormPrefix go to form, everything else passes the https guard and is
// served from assets. A nil form leaves FormPrefix to the asset handler.
func NewSite(cfg SiteConfig, assets AssetFetcher, form FormHandler) *Router[SiteState] {
	router := NewRouter[SiteState](WithDebug(cfg.Debug))
	router.Use(RequestIDMiddleware[SiteState]())
	router.Use(ErrorContextMiddleware[SiteState]())
	router.Use(LogErrorsMiddleware[SiteState]())
	if cfg.Metrics != nil {
		router.Use(MetricsMiddleware[SiteState](cfg.Metrics, func(ctx *Ctx[SiteState]) string {
			if ctx.Custom.Route == "" {
				return "unmatched"
			}
			return ctx.Custom.Route
		}))
		cfg.Guard.Metrics = cfg.Metrics
	}

	if form != nil {
		ac := router.Group(FormPrefix, routeLabel(RouteForm))
		ac.OPTIONS(httpHandler[SiteState](form.HandleOptions), routeLabel(RouteFormOptions))
		request := httpHandler[SiteState](form.HandleRequest)
		ac.GET(request)
		ac.HEAD(request)
		ac.POST(request)
		ac.PUT(request)
	}

	assetConfig := AssetConfig{
		Headers:      cfg.Headers,
		Debug:        cfg.Debug,
		FallbackPath: cfg.FallbackPath,
		Policy:       cfg.FallbackPolicy,
		Metrics:      cfg.Metrics,
	}
	if cfg.AssetPrefix != "" {
		assetConfig.MapRequestToAsset = kvasset.StripPrefixMapper(cfg.AssetPrefix)
	}
	router.Fallback(
		Assets[SiteState](assets, assetConfig),
		routeLabel(RouteAsset),
		UpgradeGuard[SiteState](cfg.Guard),
	)
	return router
}

func routeLabel(route string) MiddlewareFunc[SiteState] {
	return func(next HandlerFunc[SiteState]) HandlerFunc[SiteState] {
		return func(ctx *Ctx[SiteState]) error {
			ctx.Custom.Route = route
			return next(ctx)
		}
	}
}

// httpHandler adapts a plain net/http style handler.
func httpHandler[V any](fn func(http.ResponseWriter, *http.Request) error) HandlerFunc[V] {
	return func(ctx *Ctx[V]) error {
		return fn(ctx.ResponseWriter, ctx.Request)
	}
}
