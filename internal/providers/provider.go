package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// TxStatus is the provider-side status of an on-ramp transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxCompleted TxStatus = "completed"
	TxFailed    TxStatus = "failed"
)

// Transaction is the subset of the provider's transaction record the gateway
// cares about. The record is owned entirely by the provider; the gateway only
// ever reads it.
type Transaction struct {
	ID                 string   `json:"id"`
	Status             TxStatus `json:"status"`
	WalletAddress      string   `json:"walletAddress"`
	BaseCurrencyAmount string   `json:"baseCurrencyAmount"`
	CurrencyCode       string   `json:"currencyCode"`
	FailureReason      string   `json:"failureReason,omitempty"`
}

// Provider abstracts the external on-ramp provider.
type Provider interface {
	// Name returns the provider name.
	Name() string
	// WidgetURL builds the hosted-widget URL for a funding attempt.
	WidgetURL(req WidgetURLRequest) (string, error)
	// GetTransaction looks up a transaction by identifier. The raw response
	// body is returned alongside the parsed record so callers can forward it
	// verbatim.
	GetTransaction(ctx context.Context, txID string) (*Transaction, json.RawMessage, error)
}

// WidgetURLRequest holds the per-session parameters of a widget URL.
type WidgetURLRequest struct {
	WalletAddress      string
	BaseCurrencyAmount string
	CurrencyCode       string
	RedirectURL        string
	FailureRedirectURL string
}

// WidgetParams are the fixed query keys the provider's hosted page expects.
type WidgetParams struct {
	APIKey             string
	CurrencyCode       string
	WalletAddress      string
	BaseCurrencyAmount string
	RedirectURL        string
	FailureRedirectURL string
}

// BuildWidgetURL concatenates the widget base URL with the fixed query keys,
// URL-encoding every value. It is a pure function: no validation beyond URL
// parsing, no network access.
func BuildWidgetURL(baseURL string, p WidgetParams) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse widget base url: %w", err)
	}

	q := u.Query()
	q.Set("apiKey", p.APIKey)
	q.Set("currencyCode", p.CurrencyCode)
	q.Set("walletAddress", p.WalletAddress)
	q.Set("baseCurrencyAmount", p.BaseCurrencyAmount)
	q.Set("redirectURL", p.RedirectURL)
	q.Set("failureRedirectURL", p.FailureRedirectURL)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
