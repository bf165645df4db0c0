package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the pool and provisioning endpoints plus the operational
// surfaces (health, metrics).
func NewRouter(numbers *NumberHandler, provisioning *ProvisioningHandler) chi.Router {
	r := chi.NewRouter()
	r.Use(chi_middleware.RequestID)
	r.Use(chi_middleware.RealIP)
	r.Use(chi_middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/numbers", func(r chi.Router) {
		r.Post("/reservations", numbers.ReserveNumber)
		r.Delete("/reservations/{tenantID}", numbers.CancelReservation)
		r.Post("/assignments", numbers.AssignNumber)
		r.Post("/releases", numbers.ReleaseNumber)
		r.Get("/stats", numbers.GetStats)
	})

	r.Route("/provisioning", func(r chi.Router) {
		r.Post("/queue", provisioning.EnqueueProvisioning)
		r.Get("/queue/{id}", provisioning.GetQueueItem)
	})

	return r
}
