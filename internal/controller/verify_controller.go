package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/onramp/internal/infrastructure/observability"
	"github.com/cassiomorais/onramp/internal/service"
	"github.com/rs/zerolog/log"
)

// VerifyController proxies transaction verification to the on-ramp provider.
type VerifyController struct {
	verificationService *service.VerificationService
	metrics             *observability.Metrics
	providerName        string
}

// NewVerifyController creates a new VerifyController.
func NewVerifyController(
	verificationService *service.VerificationService,
	metrics *observability.Metrics,
	providerName string,
) *VerifyController {
	return &VerifyController{
		verificationService: verificationService,
		metrics:             metrics,
		providerName:        providerName,
	}
}

// verifyFailureBody is the fixed payload returned for every lookup failure.
// Callers get no detail about what went wrong upstream.
const verifyFailureBody = `{"status":"failed","error":"unable to verify transaction"}`

// Verify handles GET /api/v1/transactions/verify?transactionId=...
//
// On success the provider's response body is forwarded byte-for-byte. On any
// failure (timeout, auth error, unknown transaction, malformed response) the
// caller receives the same opaque failure payload with status 502.
func (h *VerifyController) Verify(w http.ResponseWriter, r *http.Request) {
	txID := r.URL.Query().Get("transactionId")
	if txID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "transactionId query parameter is required",
			Code:  "missing_transaction_id",
		})
		return
	}

	start := time.Now()
	result, err := h.verificationService.LookupTransaction(r.Context(), txID)
	if h.metrics != nil {
		h.metrics.VerificationDuration.WithLabelValues(h.providerName).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		log.Warn().Err(err).Str("transaction_id", txID).Msg("transaction verification failed")
		if h.metrics != nil {
			h.metrics.VerificationsTotal.WithLabelValues(h.providerName, "failure").Inc()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(verifyFailureBody))
		return
	}

	if h.metrics != nil {
		h.metrics.VerificationsTotal.WithLabelValues(h.providerName, "success").Inc()
	}

	// Forward the provider's body verbatim: no re-marshalling, no field
	// filtering, so the contract stays whatever the provider documents.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(result.Raw)
}
