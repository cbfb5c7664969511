package controller

import (
	"time"

	"github.com/cassiomorais/onramp/internal/domain/session"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (float64 for money, string for IDs,
// validation tags). Controllers convert these to service layer DTOs before
// calling business logic.

// CreateSessionRequest holds the input for creating an on-ramp session.
type CreateSessionRequest struct {
	ContractID    string  `json:"contract_id" validate:"required"`
	WalletAddress string  `json:"wallet_address" validate:"required"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	Currency      string  `json:"currency" validate:"required,len=3"`
	PaymentMethod string  `json:"payment_method" validate:"required,oneof=card wallet_transfer"`
}

// --- Response DTOs ---

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID             string     `json:"id"`
	ContractID     string     `json:"contract_id"`
	WalletAddress  string     `json:"wallet_address"`
	Amount         float64    `json:"amount"`
	Currency       string     `json:"currency"`
	PaymentMethod  string     `json:"payment_method"`
	Status         string     `json:"status"`
	Provider       string     `json:"provider,omitempty"`
	ProviderTxID   *string    `json:"provider_transaction_id,omitempty"`
	WidgetAttached bool       `json:"widget_attached"`
	WidgetURL      string     `json:"widget_url,omitempty"`
	RetryCount     int        `json:"retry_count"`
	MaxRetries     int        `json:"max_retries"`
	LastError      *string    `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ExpiresAt      time.Time  `json:"expires_at"`
}

// CallbackResponse represents the outcome of a redirect callback.
type CallbackResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromSession converts a domain session to an API response. widgetURL may be
// empty; it is only populated on creation and widget open.
func FromSession(s *session.Session, widgetURL string) *SessionResponse {
	return &SessionResponse{
		ID:             s.ID.String(),
		ContractID:     s.ContractID,
		WalletAddress:  s.WalletAddress,
		Amount:         centsToFloat(s.Amount.ValueCents),
		Currency:       s.Amount.Currency,
		PaymentMethod:  string(s.PaymentMethod),
		Status:         string(s.Status),
		Provider:       string(s.Provider),
		ProviderTxID:   s.ProviderTxID,
		WidgetAttached: s.WidgetAttached,
		WidgetURL:      widgetURL,
		RetryCount:     s.RetryCount,
		MaxRetries:     s.MaxRetries,
		LastError:      s.LastError,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		CompletedAt:    s.CompletedAt,
		ExpiresAt:      s.ExpiresAt,
	}
}

// floatToCents converts a float fiat amount to cents.
func floatToCents(f float64) int64 {
	return int64(f*100 + 0.5)
}

// centsToFloat converts cents to a float fiat amount.
func centsToFloat(cents int64) float64 {
	return float64(cents) / 100.0
}
