package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/postify/drip-engine/internal/pkg/httputil"
)

// RouteOptions configures middleware that depends on deployment.
type RouteOptions struct {
	AllowedOrigins []string
	AdminToken     string
}

// SetupRoutes configures all routes. health and metrics may be nil.
func SetupRoutes(h *Handlers, health *HealthChecker, metrics http.Handler, opts RouteOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	}
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/events", h.TrackEvent)
			r.Post("/unsubscribe", h.Unsubscribe)
			r.Post("/resubscribe", h.Resubscribe)
			r.Get("/email-status", h.EmailStatus)
			r.Get("/abandonment-status", h.AbandonmentStatus)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireToken(opts.AdminToken))
			r.Post("/send", h.AdminSend)
			r.Post("/sweep", h.AdminSweep)
		})
	})

	return r
}

// requireToken checks "Authorization: Bearer <token>". An empty token
// disables the check.
func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			got := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				httputil.Unauthorized(w)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
