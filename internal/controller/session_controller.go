package controller

import (
	"net/http"
	"strconv"

	"github.com/cassiomorais/onramp/internal/domain/session"
	"github.com/cassiomorais/onramp/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// SessionController handles session-related HTTP requests.
type SessionController struct {
	sessionService *service.SessionService
}

// NewSessionController creates a new SessionController.
func NewSessionController(sessionService *service.SessionService) *SessionController {
	return &SessionController{sessionService: sessionService}
}

// Create handles POST /api/v1/sessions
func (h *SessionController) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}

	resp, err := h.sessionService.CreateSession(r.Context(), service.CreateSessionRequest{
		IdempotencyKey: idempotencyKey,
		ContractID:     req.ContractID,
		WalletAddress:  req.WalletAddress,
		Amount:         floatToCents(req.Amount),
		Currency:       req.Currency,
		PaymentMethod:  session.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromSession(resp.Session, resp.WidgetURL))
}

// Get handles GET /api/v1/sessions/{id}
func (h *SessionController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid session id", Code: "invalid_id"})
		return
	}

	sess, err := h.sessionService.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromSession(sess, ""))
}

// List handles GET /api/v1/sessions
func (h *SessionController) List(w http.ResponseWriter, r *http.Request) {
	filter := session.ListFilter{}

	if s := r.URL.Query().Get("status"); s != "" {
		status := session.Status(s)
		filter.Status = &status
	}
	if s := r.URL.Query().Get("contract_id"); s != "" {
		filter.ContractID = &s
	}
	if s := r.URL.Query().Get("payment_method"); s != "" {
		method := session.PaymentMethod(s)
		filter.Method = &method
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	filter.SortBy = r.URL.Query().Get("sort_by")
	filter.SortOrder = r.URL.Query().Get("sort_order")

	sessions, err := h.sessionService.ListSessions(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, FromSession(s, ""))
	}
	writeJSON(w, http.StatusOK, resp)
}

// OpenWidget handles POST /api/v1/sessions/{id}/widget/open
func (h *SessionController) OpenWidget(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid session id", Code: "invalid_id"})
		return
	}

	resp, err := h.sessionService.OpenWidget(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromSession(resp.Session, resp.WidgetURL))
}

// CloseWidget handles POST /api/v1/sessions/{id}/widget/close
func (h *SessionController) CloseWidget(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid session id", Code: "invalid_id"})
		return
	}

	sess, err := h.sessionService.CloseWidget(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromSession(sess, ""))
}
