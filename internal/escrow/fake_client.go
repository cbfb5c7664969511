package escrow

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeClient is an in-memory escrow stand-in for tests and local runs.
type FakeClient struct {
	mu     sync.Mutex
	funded map[string]string // contractID -> deposited amount in wei
	err    error
}

func NewFakeClient() *FakeClient {
	return &FakeClient{funded: make(map[string]string)}
}

// Fund marks a contract as funded with the given deposit.
func (c *FakeClient) Fund(contractID, depositedWei string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funded[contractID] = depositedWei
}

// FailWith makes every subsequent call return err.
func (c *FakeClient) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *FakeClient) CheckFunding(_ context.Context, contractID string) (FundingStatus, error) {
	if strings.TrimSpace(contractID) == "" {
		return FundingStatus{}, fmt.Errorf("contract reference required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return FundingStatus{}, c.err
	}

	wei, ok := c.funded[contractID]
	return FundingStatus{
		ContractID:   contractID,
		Funded:       ok,
		DepositedWei: wei,
	}, nil
}

func (c *FakeClient) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
