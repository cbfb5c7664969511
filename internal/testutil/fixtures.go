package testutil

import (
	"time"

	"github.com/cassiomorais/onramp/internal/domain/session"
	"github.com/google/uuid"
)

func NewTestSession(
	contractID string,
	walletAddress string,
	amountCents int64,
	currency string,
	method session.PaymentMethod,
) *session.Session {
	now := time.Now()
	return &session.Session{
		ID:             uuid.New(),
		IdempotencyKey: uuid.New().String(),
		ContractID:     contractID,
		WalletAddress:  walletAddress,
		Amount:         session.Amount{ValueCents: amountCents, Currency: currency},
		PaymentMethod:  method,
		Provider:       session.Provider("hostedpay"),
		Status:         session.StatusCreated,
		RetryCount:     0,
		MaxRetries:     3,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(30 * time.Minute),
	}
}

func NewCardSession() *session.Session {
	return NewTestSession(
		"escrow-42",
		"0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B",
		5000,
		"USD",
		session.MethodCard,
	)
}

// NewAwaitingSettlementSession returns a session that already completed the
// widget flow and carries a provider transaction identifier.
func NewAwaitingSettlementSession(providerTxID string) *session.Session {
	sess := NewCardSession()
	sess.Status = session.StatusAwaitingSettlement
	sess.ProviderTxID = &providerTxID
	return sess
}

func StrPtr(s string) *string {
	return &s
}

func UUIDPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
