package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vitwit/storefront/events"
	"github.com/vitwit/storefront/logger"
	"github.com/vitwit/storefront/metrics"
	"github.com/vitwit/storefront/store"
)

// SellerHeader carries the authenticated seller id. Authentication itself
// happens in front of this service.
const SellerHeader = "X-Seller-ID"

// HealthChecker defines behaviour for readiness probes.
type HealthChecker interface {
	Probe(ctx context.Context) error
}

// Dependencies collects handler dependencies.
type Dependencies struct {
	Store     store.Store
	Verifier  PaymentVerifier
	Publisher events.Publisher
	Health    HealthChecker
	Logger    logger.Logger
	Metrics   metrics.Recorder
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	// PublicBaseURL prefixes share links, e.g. https://product.umify.xyz.
	PublicBaseURL string
}

// NewRouter wires the HTTP routes exposed by the storefront API.
func NewRouter(deps Dependencies) http.Handler {
	h := newHandlers(deps)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.observe)

	r.Get("/healthz", h.healthz)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Get("/p/{code}", h.productPage)

	r.Route("/products", func(r chi.Router) {
		r.Post("/", h.createProduct)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getProduct)
			r.Put("/", h.updateProduct)
			r.Delete("/", h.deleteProduct)
			r.Get("/reviews", h.listReviews)
			r.Post("/reviews", h.createReview)
			r.Post("/wishlist", h.addToWishlist)
		})
	})

	r.Route("/sellers/{sellerID}", func(r chi.Router) {
		r.Get("/products", h.sellerProducts)
		r.Get("/orders", h.sellerOrders)
		r.Get("/wishlists", h.sellerWishlists)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/verify", h.verifyOrder)
		r.Get("/{id}", h.getOrder)
		r.Patch("/{id}/status", h.updateOrderStatus)
	})

	return r
}

// observe logs every request and records its latency by route pattern.
func (h *handlers) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		h.metrics.IncCounter(metrics.HTTPRequest, map[string]string{
			"state": strconv.Itoa(status),
			"kind":  r.Method + " " + route,
		})
		h.metrics.ObserveLatency(metrics.HTTPRequest, elapsed, map[string]string{
			"outcome": strconv.Itoa(status/100) + "xx",
		})
		h.log.Info("request completed", map[string]any{
			"method":      r.Method,
			"route":       route,
			"status":      status,
			"duration_ms": elapsed.Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
	})
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	payload := map[string]any{"status": "ok"}
	if h.health != nil {
		if err := h.health.Probe(ctx); err != nil {
			h.log.Error("health probe failed", map[string]any{"err": err})
			status = http.StatusServiceUnavailable
			payload["status"] = "degraded"
			payload["error"] = err.Error()
		}
	}
	respondJSON(w, status, payload)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}
