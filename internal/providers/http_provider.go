package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	domainErrors "github.com/cassiomorais/onramp/internal/domain/errors"
)

const maxResponseBody = 1 << 20

// HTTPProviderConfig configures an HTTPProvider.
type HTTPProviderConfig struct {
	Name           string
	APIBaseURL     string
	WidgetBaseURL  string
	PublishableKey string
	SecretKey      string
	RequestTimeout time.Duration
}

// HTTPProvider talks to a real on-ramp provider over HTTPS. Widget URLs carry
// the publishable key; transaction lookups authenticate with the secret key.
type HTTPProvider struct {
	cfg    HTTPProviderConfig
	client *http.Client
}

func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Name() string { return p.cfg.Name }

func (p *HTTPProvider) WidgetURL(req WidgetURLRequest) (string, error) {
	return BuildWidgetURL(p.cfg.WidgetBaseURL, WidgetParams{
		APIKey:             p.cfg.PublishableKey,
		CurrencyCode:       req.CurrencyCode,
		WalletAddress:      req.WalletAddress,
		BaseCurrencyAmount: req.BaseCurrencyAmount,
		RedirectURL:        req.RedirectURL,
		FailureRedirectURL: req.FailureRedirectURL,
	})
}

// GetTransaction issues a single authenticated GET against the provider's
// transaction-lookup endpoint. No retries here; retrying is the caller's
// decision.
func (p *HTTPProvider) GetTransaction(ctx context.Context, txID string) (*Transaction, json.RawMessage, error) {
	if txID == "" {
		return nil, nil, domainErrors.ErrInvalidInput
	}

	endpoint := fmt.Sprintf("%s/v1/transactions/%s", p.cfg.APIBaseURL, url.PathEscape(txID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build transaction lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Api-Key "+p.cfg.SecretKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, domainErrors.ErrProviderTimeout
		}
		return nil, nil, fmt.Errorf("%w: %v", domainErrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, nil, fmt.Errorf("read provider response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil, domainErrors.ErrTransactionNotFound
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, nil, fmt.Errorf("%w: status %d", domainErrors.ErrProviderRejected, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, nil, fmt.Errorf("%w: status %d", domainErrors.ErrProviderUnavailable, resp.StatusCode)
	}

	var tx Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, nil, fmt.Errorf("decode provider transaction: %w", err)
	}

	return &tx, json.RawMessage(body), nil
}
