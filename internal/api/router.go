package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter assembles the public and admin routes. Plan listing is open,
// everything else requires a bearer token and the admin subtree requires the
// admin role on top.
func NewRouter(h *Handler, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/plans", h.listPlans)
	r.Get("/plans/{id}", h.getPlan)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(jwtSecret))

		r.Post("/subscriptions", h.subscribe)
		r.Get("/subscriptions/{id}", h.getSubscription)
		r.Post("/subscriptions/{id}/change-plan", h.changePlan)
		r.Post("/subscriptions/{id}/cancel", h.cancel)
		r.Post("/subscriptions/{id}/auto-renew", h.setAutoRenew)
		r.Get("/subscriptions/{id}/usage", h.subscriptionUsage)
		r.Get("/subscriptions/{id}/payments", h.subscriptionPayments)

		r.Post("/authorize", h.authorize)
		r.Get("/me/usage", h.myUsage)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Post("/plans", h.upsertPlan)
			r.Post("/plans/{id}/deactivate", h.deactivatePlan)
			r.Get("/subscriptions", h.adminListSubscriptions)
			r.Post("/subscriptions/{id}/reactivate", h.adminReactivate)
			r.Post("/subscriptions/{id}/status", h.adminOverrideStatus)
			r.Post("/payments/{id}/refund", h.adminRefund)
			r.Get("/reports/usage.xlsx", h.adminUsageReport)
		})
	})

	return r
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
