package escrow

import (
	"context"
)

// Client abstracts the external escrow platform. The gateway never executes
// escrow logic itself; it only asks whether a contract reflects the deposit.
type Client interface {
	// CheckFunding reports the funding state of the escrow contract referenced
	// by contractID.
	CheckFunding(ctx context.Context, contractID string) (FundingStatus, error)
	// Ping verifies connectivity to the escrow platform.
	Ping(ctx context.Context) error
}

// FundingStatus is the narrow view of an escrow contract the gateway reads.
type FundingStatus struct {
	ContractID string
	Funded     bool
	// DepositedWei is the on-chain deposit in the token's smallest unit,
	// as a decimal string. Empty when the backend cannot report it.
	DepositedWei string
}
