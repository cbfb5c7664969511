package service

import (
	"context"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/onramp/internal/domain/errors"
	"github.com/cassiomorais/onramp/internal/domain/outbox"
	"github.com/cassiomorais/onramp/internal/domain/session"
	"github.com/cassiomorais/onramp/internal/escrow"
	"github.com/cassiomorais/onramp/internal/providers"
	"github.com/cassiomorais/onramp/internal/testutil"
	"github.com/cassiomorais/onramp/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2.0}
}

func setupVerificationService(escrowClient escrow.Client) (*VerificationService, *testutil.MockSessionRepository, *testutil.MockOutboxRepository, *providers.MockProvider) {
	sessionRepo := testutil.NewMockSessionRepository()
	outboxRepo := &testutil.MockOutboxRepository{}
	txManager := testutil.NewMockTransactionManager()

	mockProvider := providers.NewMockProvider("hostedpay")
	providerFactory := providers.NewFactory(mockProvider)

	if escrowClient == nil {
		escrowClient = &testutil.MockEscrowClient{}
	}

	svc := NewVerificationService(
		sessionRepo, outboxRepo, txManager, providerFactory,
		escrowClient, "hostedpay", fastRetry(),
	)
	return svc, sessionRepo, outboxRepo, mockProvider
}

// --- LookupTransaction Tests ---

func TestLookupTransaction_ReturnsRawBody(t *testing.T) {
	svc, _, _, mockProvider := setupVerificationService(nil)
	ctx := context.Background()

	txID := mockProvider.SeedCompleted("0xabc", "50.00", "USD")

	result, err := svc.LookupTransaction(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, txID, result.Tx.ID)
	assert.Equal(t, providers.TxCompleted, result.Tx.Status)
	assert.NotEmpty(t, result.Raw)
}

func TestLookupTransaction_NotFound(t *testing.T) {
	svc, _, _, _ := setupVerificationService(nil)
	ctx := context.Background()

	_, err := svc.LookupTransaction(ctx, "txn_missing")
	assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
}

func TestLookupTransaction_FailureMarkedUnverifiable(t *testing.T) {
	svc, _, _, _ := setupVerificationService(nil)
	ctx := context.Background()

	// Whatever the underlying cause, callers can always match on the
	// verification sentinel; the cause stays inspectable behind it.
	_, err := svc.LookupTransaction(ctx, "txn_missing")
	assert.ErrorIs(t, err, domainErrors.ErrVerificationFailed)
	assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
}

func TestLookupTransaction_UnknownProvider(t *testing.T) {
	sessionRepo := testutil.NewMockSessionRepository()
	outboxRepo := &testutil.MockOutboxRepository{}
	factory := providers.NewFactory(providers.NewMockProvider("hostedpay"))

	svc := NewVerificationService(
		sessionRepo, outboxRepo, testutil.NewMockTransactionManager(), factory,
		&testutil.MockEscrowClient{}, "nosuch", fastRetry(),
	)

	_, err := svc.LookupTransaction(context.Background(), "txn_1")
	assert.ErrorIs(t, err, domainErrors.ErrProviderNotFound)
}

// --- SettleSession Tests ---

func TestSettleSession_Funded(t *testing.T) {
	fake := escrow.NewFakeClient()
	svc, sessionRepo, outboxRepo, mockProvider := setupVerificationService(fake)
	ctx := context.Background()

	txID := mockProvider.SeedCompleted("0xabc", "50.00", "USD")
	sess := testutil.NewAwaitingSettlementSession(txID)
	sessionRepo.AddSession(sess)
	fake.Fund(sess.ContractID, "1000000000000000000")

	err := svc.SettleSession(ctx, sess.ID)
	require.NoError(t, err)

	stored := sessionRepo.GetSessionByID(sess.ID)
	assert.Equal(t, session.StatusFunded, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	entries := outboxRepo.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, outbox.EventFundingConfirmed, entries[0].EventType)
}

func TestSettleSession_ProviderReportsFailed_Permanent(t *testing.T) {
	svc, sessionRepo, outboxRepo, mockProvider := setupVerificationService(nil)
	ctx := context.Background()

	mockProvider.SeedTransaction(&providers.Transaction{
		ID:            "txn_declined",
		Status:        providers.TxFailed,
		FailureReason: "card declined",
	})
	sess := testutil.NewAwaitingSettlementSession("txn_declined")
	sessionRepo.AddSession(sess)

	err := svc.SettleSession(ctx, sess.ID)
	require.Error(t, err)

	stored := sessionRepo.GetSessionByID(sess.ID)
	assert.Equal(t, session.StatusFailed, stored.Status)

	entries := outboxRepo.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, outbox.EventSessionFailed, entries[0].EventType)
}

func TestSettleSession_PendingTransaction_Requeues(t *testing.T) {
	svc, sessionRepo, _, mockProvider := setupVerificationService(nil)
	ctx := context.Background()

	mockProvider.SeedTransaction(&providers.Transaction{
		ID:     "txn_pending",
		Status: providers.TxPending,
	})
	sess := testutil.NewAwaitingSettlementSession("txn_pending")
	sessionRepo.AddSession(sess)

	err := svc.SettleSession(ctx, sess.ID)
	require.Error(t, err)

	stored := sessionRepo.GetSessionByID(sess.ID)
	assert.Equal(t, session.StatusAwaitingSettlement, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
}

func TestSettleSession_EscrowNotFunded_Requeues(t *testing.T) {
	fake := escrow.NewFakeClient()
	svc, sessionRepo, _, mockProvider := setupVerificationService(fake)
	ctx := context.Background()

	txID := mockProvider.SeedCompleted("0xabc", "50.00", "USD")
	sess := testutil.NewAwaitingSettlementSession(txID)
	sessionRepo.AddSession(sess)
	// Contract intentionally left unfunded.

	err := svc.SettleSession(ctx, sess.ID)
	require.Error(t, err)

	stored := sessionRepo.GetSessionByID(sess.ID)
	assert.Equal(t, session.StatusAwaitingSettlement, stored.Status)
}

func TestSettleSession_RetriesExhausted_Fails(t *testing.T) {
	svc, sessionRepo, outboxRepo, mockProvider := setupVerificationService(nil)
	ctx := context.Background()

	mockProvider.SeedTransaction(&providers.Transaction{
		ID:     "txn_stuck",
		Status: providers.TxPending,
	})
	sess := testutil.NewAwaitingSettlementSession("txn_stuck")
	sess.RetryCount = sess.MaxRetries
	sessionRepo.AddSession(sess)

	err := svc.SettleSession(ctx, sess.ID)
	require.Error(t, err)

	stored := sessionRepo.GetSessionByID(sess.ID)
	assert.Equal(t, session.StatusFailed, stored.Status)

	entries := outboxRepo.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, outbox.EventSessionFailed, entries[0].EventType)
}

func TestSettleSession_TerminalSession_NoOp(t *testing.T) {
	svc, sessionRepo, outboxRepo, _ := setupVerificationService(nil)
	ctx := context.Background()

	sess := testutil.NewCardSession()
	sess.Status = session.StatusFunded
	sessionRepo.AddSession(sess)

	err := svc.SettleSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, outboxRepo.Entries())
}

func TestSettleSession_NotFound(t *testing.T) {
	svc, _, _, _ := setupVerificationService(nil)
	ctx := context.Background()

	err := svc.SettleSession(ctx, testutil.NewCardSession().ID)
	assert.ErrorIs(t, err, domainErrors.ErrSessionNotFound)
}
