// Package api exposes the operational HTTP surface: the payment
// webhook, the manual payment fallback, read-only account views and
// Prometheus metrics. No sessions, no templates; the web product
// surface lives elsewhere.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"numledger-go/internal/payments"
	"numledger-go/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	store          store.Store
	reconciler     *payments.Reconciler
	metricsEnabled bool
}

func NewServer(s store.Store, reconciler *payments.Reconciler) *Server {
	return &Server{store: s, reconciler: reconciler}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/webhooks/payment", s.handlePaymentWebhook)
	r.Post("/payments/{reference}/verify", s.handleManualVerify)

	r.Route("/accounts/{accountId}", func(r chi.Router) {
		r.Get("/balance", s.handleBalance)
		r.Get("/history", s.handleHistory)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
