package providers

import (
	"encoding/json"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/onramp/internal/domain/errors"
	"github.com/sony/gobreaker/v2"
)

// LookupResult pairs a parsed transaction with the provider's raw body.
type LookupResult struct {
	Tx  *Transaction
	Raw json.RawMessage
}

type Factory struct {
	providers       map[string]Provider
	circuitBreakers map[string]*gobreaker.CircuitBreaker[*LookupResult]
}

func NewFactory(providersList ...Provider) *Factory {
	f := &Factory{
		providers:       make(map[string]Provider),
		circuitBreakers: make(map[string]*gobreaker.CircuitBreaker[*LookupResult]),
	}

	if len(providersList) == 0 {
		f.Register(NewMockProvider("hostedpay",
			WithLatency(100*time.Millisecond),
			WithFailureRate(0.05),
		))
	} else {
		for _, p := range providersList {
			f.Register(p)
		}
	}

	return f
}

func (f *Factory) Register(p Provider) {
	f.providers[p.Name()] = p
	f.circuitBreakers[p.Name()] = gobreaker.NewCircuitBreaker[*LookupResult](gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
	})
}

func (f *Factory) Get(name string) (Provider, *gobreaker.CircuitBreaker[*LookupResult], error) {
	p, ok := f.providers[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown provider %q: %w", name, domainErrors.ErrProviderNotFound)
	}
	breaker := f.circuitBreakers[name]
	return p, breaker, nil
}
