package controller

import (
	"net/http"

	"github.com/cassiomorais/onramp/internal/service"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CallbackController handles the provider's redirect callbacks. These routes
// are hit by the user's browser after the hosted widget finishes, so they are
// public and tolerate replays.
type CallbackController struct {
	sessionService *service.SessionService
}

// NewCallbackController creates a new CallbackController.
func NewCallbackController(sessionService *service.SessionService) *CallbackController {
	return &CallbackController{sessionService: sessionService}
}

// Success handles GET /callbacks/onramp/success
//
// Query parameters: sessionId (required), transactionId (required),
// transactionStatus (informational).
func (h *CallbackController) Success(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	txID := r.URL.Query().Get("transactionId")
	if txID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "transactionId query parameter is required",
			Code:  "missing_transaction_id",
		})
		return
	}

	sess, err := h.sessionService.HandleSuccessRedirect(r.Context(), sessionID, txID)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Info().
		Str("session_id", sess.ID.String()).
		Str("transaction_id", txID).
		Msg("success redirect received, settlement queued")

	writeJSON(w, http.StatusOK, CallbackResponse{
		SessionID: sess.ID.String(),
		Status:    string(sess.Status),
	})
}

// Failure handles GET /callbacks/onramp/failure
func (h *CallbackController) Failure(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	txID := r.URL.Query().Get("transactionId")
	txStatus := r.URL.Query().Get("transactionStatus")

	sess, err := h.sessionService.HandleFailureRedirect(r.Context(), sessionID, txID, txStatus)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Info().
		Str("session_id", sess.ID.String()).
		Str("transaction_status", txStatus).
		Msg("failure redirect received")

	writeJSON(w, http.StatusOK, CallbackResponse{
		SessionID: sess.ID.String(),
		Status:    string(sess.Status),
	})
}

func parseSessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.URL.Query().Get("sessionId")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "sessionId query parameter is required",
			Code:  "missing_session_id",
		})
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid session id", Code: "invalid_id"})
		return uuid.Nil, false
	}
	return id, true
}
