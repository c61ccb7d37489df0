package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/popcatch-backend/api/controllers"
	popupcontrollers "github.com/angelmondragon/popcatch-backend/api/controllers/popups"
	storefrontcontrollers "github.com/angelmondragon/popcatch-backend/api/controllers/storefront"
	webhookcontrollers "github.com/angelmondragon/popcatch-backend/api/controllers/webhooks"
	"github.com/angelmondragon/popcatch-backend/api/middleware"
	"github.com/angelmondragon/popcatch-backend/internal/popups"
	"github.com/angelmondragon/popcatch-backend/internal/storefront"
	"github.com/angelmondragon/popcatch-backend/internal/stores"
	"github.com/angelmondragon/popcatch-backend/internal/webhooks"
	"github.com/angelmondragon/popcatch-backend/pkg/config"
	"github.com/angelmondragon/popcatch-backend/pkg/logger"
	"github.com/angelmondragon/popcatch-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/popcatch-backend/pkg/redis"
)

// Cache is the redis surface the HTTP layer needs for throttling and
// idempotent replays.
type Cache interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         controllers.Pinger
	Cache      Cache
	Stores     stores.Service
	Popups     popups.Service
	Storefront storefront.Service
	Webhooks   webhooks.Service
	// Gatherer backs /metrics; nil hides the endpoint.
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		d.HTTPMetrics.Middleware,
	)

	cache := d.Cache

	submitPolicy := middleware.NewRateLimitPolicy(
		"submit",
		cfg.Popup.SubmitWindow,
		cfg.Popup.SubmitLimit,
		cfg.Popup.SubmitLimit,
	)

	ready := map[string]controllers.Pinger{"db": d.DB}
	if cache != nil {
		ready["redis"] = cache
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, ready))
	})

	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/storefront/v1", func(r chi.Router) {
		r.Use(middleware.AppProxy(cfg.Shopify.APISecret, logg))
		r.Get("/popup", storefrontcontrollers.PopupLookup(d.Storefront, logg))
		r.Post("/popup/impressions", storefrontcontrollers.RecordImpression(d.Storefront, logg))
		r.With(
			middleware.RateLimit(submitPolicy, cache, logg),
			middleware.Idempotency(cache, logg),
		).Post("/submissions", storefrontcontrollers.Submit(d.Storefront, logg))
	})

	if d.Webhooks != nil {
		var guard webhookcontrollers.Guard
		if cache != nil {
			g, err := webhooks.NewGuard(cache, webhooks.DefaultGuardTTL)
			if err == nil {
				guard = g
			}
		}
		r.Post("/api/webhooks/shopify", webhookcontrollers.ShopifyWebhook(d.Webhooks, cfg.Shopify.APISecret, guard, logg))
	}

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.App.CORSOrigins))
		r.Use(middleware.Session(cfg.Shopify, logg))
		r.Post("/session", controllers.AdminSession(d.Stores, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.StoreContext(d.Stores, logg))
			r.Use(middleware.Idempotency(cache, logg))
			r.Route("/popups", func(r chi.Router) {
				r.Get("/", popupcontrollers.List(d.Popups, logg))
				r.Post("/", popupcontrollers.Create(d.Popups, logg))
				r.Get("/{popupId}", popupcontrollers.Get(d.Popups, logg))
				r.Patch("/{popupId}", popupcontrollers.Update(d.Popups, logg))
				r.Delete("/{popupId}", popupcontrollers.Delete(d.Popups, logg))
				r.Post("/{popupId}/activate", popupcontrollers.Activate(d.Popups, logg))
			})
		})
	})

	return r
}
