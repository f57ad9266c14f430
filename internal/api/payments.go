package api

import (
	"errors"
	"io"
	"net/http"

	"numledger-go/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Payment-Signature"

// maxWebhookBody bounds the webhook payload size.
const maxWebhookBody = 64 * 1024

var webhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "numledger_payment_webhooks_total",
	Help: "Payment webhook deliveries by outcome.",
}, []string{"outcome"})

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		webhooksTotal.WithLabelValues("read_error").Inc()
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	err = s.reconciler.HandleNotification(r.Context(), payload, r.Header.Get(SignatureHeader))
	switch {
	case err == nil:
		webhooksTotal.WithLabelValues("applied").Inc()
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, store.ErrInvalidSignature):
		webhooksTotal.WithLabelValues("invalid_signature").Inc()
		writeError(w, http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, store.ErrConversionUnavailable):
		// Claim stays PENDING; the provider retries delivery.
		webhooksTotal.WithLabelValues("conversion_unavailable").Inc()
		writeError(w, http.StatusServiceUnavailable, "currency conversion unavailable, retry later")
	case errors.Is(err, store.ErrReconciliationFailed):
		webhooksTotal.WithLabelValues("reconciliation_failed").Inc()
		writeError(w, http.StatusBadGateway, "payment could not be applied")
	default:
		webhooksTotal.WithLabelValues("bad_request").Inc()
		zap.L().Warn("Rejected payment webhook", zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) handleManualVerify(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	err := s.reconciler.ManualVerify(r.Context(), reference)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown payment reference")
	case errors.Is(err, store.ErrConversionUnavailable):
		writeError(w, http.StatusServiceUnavailable, "currency conversion unavailable, retry later")
	case errors.Is(err, store.ErrReconciliationFailed):
		writeError(w, http.StatusBadGateway, "payment could not be applied")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
