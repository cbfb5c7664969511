package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/onramp/internal/domain/errors"
	"github.com/google/uuid"
)

// MockProvider simulates an on-ramp provider for tests and local runs.
type MockProvider struct {
	name        string
	failureRate float64 // 0.0 to 1.0
	latency     time.Duration
	timeoutRate float64 // 0.0 to 1.0

	mu           sync.Mutex
	transactions map[string]*Transaction
}

type MockProviderOption func(*MockProvider)

func WithFailureRate(rate float64) MockProviderOption {
	return func(p *MockProvider) { p.failureRate = rate }
}

func WithLatency(d time.Duration) MockProviderOption {
	return func(p *MockProvider) { p.latency = d }
}

func WithTimeoutRate(rate float64) MockProviderOption {
	return func(p *MockProvider) { p.timeoutRate = rate }
}

func NewMockProvider(name string, opts ...MockProviderOption) *MockProvider {
	p := &MockProvider{
		name:         name,
		failureRate:  0.0,
		latency:      0,
		timeoutRate:  0.0,
		transactions: make(map[string]*Transaction),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *MockProvider) Name() string { return p.name }

func (p *MockProvider) WidgetURL(req WidgetURLRequest) (string, error) {
	return BuildWidgetURL("https://buy."+p.name+".test", WidgetParams{
		APIKey:             "pk_mock_" + p.name,
		CurrencyCode:       req.CurrencyCode,
		WalletAddress:      req.WalletAddress,
		BaseCurrencyAmount: req.BaseCurrencyAmount,
		RedirectURL:        req.RedirectURL,
		FailureRedirectURL: req.FailureRedirectURL,
	})
}

// SeedTransaction registers a transaction for subsequent lookups.
func (p *MockProvider) SeedTransaction(tx *Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transactions[tx.ID] = tx
}

// SeedCompleted registers a completed transaction and returns its identifier.
func (p *MockProvider) SeedCompleted(walletAddress, amount, currency string) string {
	id := fmt.Sprintf("%s_txn_%s", p.name, uuid.New().String()[:8])
	p.SeedTransaction(&Transaction{
		ID:                 id,
		Status:             TxCompleted,
		WalletAddress:      walletAddress,
		BaseCurrencyAmount: amount,
		CurrencyCode:       currency,
	})
	return id
}

func (p *MockProvider) GetTransaction(ctx context.Context, txID string) (*Transaction, json.RawMessage, error) {
	// Simulate latency
	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	// Simulate timeout
	if rand.Float64() < p.timeoutRate {
		return nil, nil, domainErrors.ErrProviderTimeout
	}

	// Simulate failure
	if rand.Float64() < p.failureRate {
		return nil, nil, fmt.Errorf("%w: simulated lookup failure for %s", domainErrors.ErrProviderUnavailable, txID)
	}

	p.mu.Lock()
	tx, ok := p.transactions[txID]
	p.mu.Unlock()
	if !ok {
		return nil, nil, domainErrors.ErrTransactionNotFound
	}

	raw, err := json.Marshal(tx)
	if err != nil {
		return nil, nil, err
	}
	return tx, raw, nil
}
