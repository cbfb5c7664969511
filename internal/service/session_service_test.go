package service

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/onramp/internal/domain/errors"
	"github.com/cassiomorais/onramp/internal/domain/outbox"
	"github.com/cassiomorais/onramp/internal/domain/session"
	"github.com/cassiomorais/onramp/internal/infrastructure/config"
	"github.com/cassiomorais/onramp/internal/providers"
	"github.com/cassiomorais/onramp/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Helpers ---

func testProviderConfig() config.ProviderConfig {
	return config.ProviderConfig{
		Name:               "hostedpay",
		PublishableKey:     "pk_test_123",
		SecretKey:          "sk_test_456",
		APIBaseURL:         "https://api.hostedpay.test",
		WidgetBaseURL:      "https://buy.hostedpay.test",
		SuccessRedirectURL: "https://app.example.com/callbacks/onramp/success",
		FailureRedirectURL: "https://app.example.com/callbacks/onramp/failure",
		CurrencyCode:       "usdc",
	}
}

func setupSessionService() (*SessionService, *testutil.MockSessionRepository, *testutil.MockOutboxRepository, *providers.MockProvider) {
	sessionRepo := testutil.NewMockSessionRepository()
	outboxRepo := &testutil.MockOutboxRepository{}
	txManager := testutil.NewMockTransactionManager()

	mockProvider := providers.NewMockProvider("hostedpay")
	providerFactory := providers.NewFactory(mockProvider)

	svc := NewSessionService(sessionRepo, outboxRepo, txManager, providerFactory, testProviderConfig())
	return svc, sessionRepo, outboxRepo, mockProvider
}

func validCreateRequest() CreateSessionRequest {
	return CreateSessionRequest{
		IdempotencyKey: uuid.New().String(),
		ContractID:     "escrow-42",
		WalletAddress:  "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B",
		Amount:         5000,
		Currency:       "USD",
		PaymentMethod:  session.MethodCard,
	}
}

// --- CreateSession Tests ---

func TestCreateSession_Card_Success(t *testing.T) {
	svc, sessionRepo, _, _ := setupSessionService()
	ctx := context.Background()

	resp, err := svc.CreateSession(ctx, validCreateRequest())
	require.NoError(t, err)
	assert.Equal(t, session.StatusCreated, resp.Session.Status)
	assert.Equal(t, int64(5000), resp.Session.Amount.ValueCents)
	assert.NotEmpty(t, resp.WidgetURL)

	stored, _ := sessionRepo.GetByID(ctx, resp.Session.ID)
	require.NotNil(t, stored)
	assert.Equal(t, "escrow-42", stored.ContractID)
}

func TestCreateSession_WidgetURLCarriesSessionID(t *testing.T) {
	svc, _, _, _ := setupSessionService()
	ctx := context.Background()

	resp, err := svc.CreateSession(ctx, validCreateRequest())
	require.NoError(t, err)

	u, err := url.Parse(resp.WidgetURL)
	require.NoError(t, err)
	q := u.Query()

	redirect, err := url.Parse(q.Get("redirectURL"))
	require.NoError(t, err)
	assert.Equal(t, resp.Session.ID.String(), redirect.Query().Get("sessionId"))

	failure, err := url.Parse(q.Get("failureRedirectURL"))
	require.NoError(t, err)
	assert.Equal(t, resp.Session.ID.String(), failure.Query().Get("sessionId"))
}

func TestCreateSession_WalletTransfer_NoWidgetURL(t *testing.T) {
	svc, _, _, _ := setupSessionService()
	ctx := context.Background()

	req := validCreateRequest()
	req.PaymentMethod = session.MethodWalletTransfer

	resp, err := svc.CreateSession(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, resp.WidgetURL)
}

func TestCreateSession_Idempotent(t *testing.T) {
	svc, _, _, _ := setupSessionService()
	ctx := context.Background()

	req := validCreateRequest()
	first, err := svc.CreateSession(ctx, req)
	require.NoError(t, err)

	second, err := svc.CreateSession(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.Session.ID, second.Session.ID)
}

func TestCreateSession_InvalidAmount(t *testing.T) {
	svc, _, _, _ := setupSessionService()
	ctx := context.Background()

	req := validCreateRequest()
	req.Amount = 0

	_, err := svc.CreateSession(ctx, req)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidAmount)
}

func TestCreateSession_SecretKeyNeverInWidgetURL(t *testing.T) {
	svc, _, _, _ := setupSessionService()
	ctx := context.Background()

	resp, err := svc.CreateSession(ctx, validCreateRequest())
	require.NoError(t, err)
	assert.False(t, strings.Contains(resp.WidgetURL, "sk_test_456"))
}

// --- Widget Lifecycle Tests ---

func TestOpenWidget_Success(t *testing.T) {
	svc, sessionRepo, _, _ := setupSessionService()
	ctx := context.Background()

	sess := testutil.NewCardSession()
	sessionRepo.AddSession(sess)

	resp, err := svc.OpenWidget(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, resp.Session.WidgetAttached)
	assert.Equal(t, session.StatusWidgetOpen, resp.Session.Status)
	assert.NotEmpty(t, resp.WidgetURL)
}

func TestOpenWidget_SecondOpenRejected(t *testing.T) {
	svc, sessionRepo, _, _ := setupSessionService()
	ctx := context.Background()

	sess := testutil.NewCardSession()
	sessionRepo.AddSession(sess)

	_, err := svc.OpenWidget(ctx, sess.ID)
	require.NoError(t, err)

	_, err = svc.OpenWidget(ctx, sess.ID)
	assert.ErrorIs(t, err, domainErrors.ErrWidgetAlreadyOpen)
}

func TestCloseWidget_ThenReopen(t *testing.T) {
	svc, sessionRepo, _, _ := setupSessionService()
	ctx := context.Background()

	sess := testutil.NewCardSession()
	sessionRepo.AddSession(sess)

	_, err := svc.OpenWidget(ctx, sess.ID)
	require.NoError(t, err)

	closed, err := svc.CloseWidget(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, closed.WidgetAttached)

	// The session stays open for another attempt.
	reopened, err := svc.OpenWidget(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, reopened.Session.WidgetAttached)
}

func TestCloseWidget_NotOpen(t *testing.T) {
	svc, sessionRepo, _, _ := setupSessionService()
	ctx := context.Background()

	sess := testutil.NewCardSession()
	sessionRepo.AddSession(sess)

	_, err := svc.CloseWidget(ctx, sess.ID)
	assert.ErrorIs(t, err, domainErrors.ErrWidgetNotOpen)
}

func TestOpenWidget_ExpiredSessionRejected(t *testing.T) {
	svc, sessionRepo, _, _ := setupSessionService()
	ctx := context.Background()

	sess := testutil.NewCardSession()
	sess.ExpiresAt = time.Now().Add(-time.Hour)
	sessionRepo.AddSession(sess)

	_, err := svc.OpenWidget(ctx, sess.ID)
	assert.ErrorIs(t, err, domainErrors.ErrSessionExpired)

	// The request path expires the session, no sweeper run needed.
	stored := sessionRepo.GetSessionByID(sess.ID)
	assert.Equal(t, session.StatusExpired, stored.Status)
	assert.False(t, stored.WidgetAttached)
}

func TestOpenWidget_SessionNotFound(t *testing.T) {
	svc, _, _, _ := setupSessionService()
	ctx := context.Background()

	_, err := svc.OpenWidget(ctx, uuid.New())
	assert.ErrorIs(t, err, domainErrors.ErrSessionNotFound)
}

// --- Redirect Callback Tests ---

func TestHandleSuccessRedirect_QueuesSettlement(t *testing.T) {
	svc, sessionRepo, outboxRepo, _ := setupSessionService()
	ctx := context.Background()

	sess := testutil.NewCardSession()
	sessionRepo.AddSession(sess)
	_, err := svc.OpenWidget(ctx, sess.ID)
	require.NoError(t, err)

	updated, err := svc.HandleSuccessRedirect(ctx, sess.ID, "txn_abc123")
	require.NoError(t, err)
	assert.Equal(t, session.StatusAwaitingSettlement, updated.Status)
	require.NotNil(t, updated.ProviderTxID)
	assert.Equal(t, "txn_abc123", *updated.ProviderTxID)
	assert.False(t, updated.WidgetAttached)

	entries := outboxRepo.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, outbox.EventSettlementRequested, entries[0].EventType)
	assert.Equal(t, sess.ID, entries[0].AggregateID)
}

func TestHandleSuccessRedirect_PreservesTxIDVerbatim(t *testing.T) {
	svc, sessionRepo, _, _ := setupSessionService()
	ctx := context.Background()

	sess := testutil.NewCardSession()
	sessionRepo.AddSession(sess)
	_, err := svc.OpenWidget(ctx, sess.ID)
	require.NoError(t, err)

	// Identifiers are opaque, whatever the provider hands back is stored as-is.
	opaque := "txn_9f8e7d-ABC%20?&="
	updated, err := svc.HandleSuccessRedirect(ctx, sess.ID, opaque)
	require.NoError(t, err)
	assert.Equal(t, opaque, *updated.ProviderTxID)
}

func TestHandleSuccessRedirect_ReplayedIsNoOp(t *testing.T) {
	svc, sessionRepo, outboxRepo, _ := setupSessionService()
	ctx := context.Background()

	sess := testutil.NewCardSession()
	sessionRepo.AddSession(sess)
	_, err := svc.OpenWidget(ctx, sess.ID)
	require.NoError(t, err)

	_, err = svc.HandleSuccessRedirect(ctx, sess.ID, "txn_abc123")
	require.NoError(t, err)

	// Browser refresh on the redirect page replays the callback.
	updated, err := svc.HandleSuccessRedirect(ctx, sess.ID, "txn_abc123")
	require.NoError(t, err)
	assert.Equal(t, session.StatusAwaitingSettlement, updated.Status)
	assert.Len(t, outboxRepo.Entries(), 1)
}

func TestHandleSuccessRedirect_ExpiredSessionRejected(t *testing.T) {
	svc, sessionRepo, outboxRepo, _ := setupSessionService()
	ctx := context.Background()

	sess := testutil.NewCardSession()
	sess.Status = session.StatusWidgetOpen
	sess.WidgetAttached = true
	sess.ExpiresAt = time.Now().Add(-time.Hour)
	sessionRepo.AddSession(sess)

	_, err := svc.HandleSuccessRedirect(ctx, sess.ID, "txn_late")
	assert.ErrorIs(t, err, domainErrors.ErrSessionExpired)

	// An expired session must not slip into the settlement queue.
	stored := sessionRepo.GetSessionByID(sess.ID)
	assert.Equal(t, session.StatusExpired, stored.Status)
	assert.Empty(t, outboxRepo.Entries())
}

func TestHandleSuccessRedirect_TxIDBoundToOtherSession(t *testing.T) {
	svc, sessionRepo, outboxRepo, _ := setupSessionService()
	ctx := context.Background()

	other := testutil.NewAwaitingSettlementSession("txn_taken")
	sessionRepo.AddSession(other)

	sess := testutil.NewCardSession()
	sessionRepo.AddSession(sess)
	_, err := svc.OpenWidget(ctx, sess.ID)
	require.NoError(t, err)

	_, err = svc.HandleSuccessRedirect(ctx, sess.ID, "txn_taken")
	require.Error(t, err)

	var domainErr *domainErrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "duplicate_transaction", domainErr.Code)
	assert.Empty(t, outboxRepo.Entries())
}

func TestHandleFailureRedirect_MarksFailed(t *testing.T) {
	svc, sessionRepo, outboxRepo, _ := setupSessionService()
	ctx := context.Background()

	sess := testutil.NewCardSession()
	sessionRepo.AddSession(sess)
	_, err := svc.OpenWidget(ctx, sess.ID)
	require.NoError(t, err)

	updated, err := svc.HandleFailureRedirect(ctx, sess.ID, "txn_bad", "declined")
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, updated.Status)
	assert.False(t, updated.WidgetAttached)
	require.NotNil(t, updated.LastError)
	assert.Contains(t, *updated.LastError, "declined")

	entries := outboxRepo.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, outbox.EventSessionFailed, entries[0].EventType)
}

func TestHandleFailureRedirect_AlreadyFailedIsNoOp(t *testing.T) {
	svc, sessionRepo, outboxRepo, _ := setupSessionService()
	ctx := context.Background()

	sess := testutil.NewCardSession()
	sessionRepo.AddSession(sess)
	_, err := svc.OpenWidget(ctx, sess.ID)
	require.NoError(t, err)

	_, err = svc.HandleFailureRedirect(ctx, sess.ID, "txn_bad", "declined")
	require.NoError(t, err)

	updated, err := svc.HandleFailureRedirect(ctx, sess.ID, "txn_bad", "declined")
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, updated.Status)
	assert.Len(t, outboxRepo.Entries(), 1)
}

// --- ListSessions Tests ---

func TestListSessions_ClampsLimit(t *testing.T) {
	svc, sessionRepo, _, _ := setupSessionService()
	ctx := context.Background()

	var captured session.ListFilter
	sessionRepo.ListFunc = func(ctx context.Context, filter session.ListFilter) ([]*session.Session, error) {
		captured = filter
		return nil, nil
	}

	_, err := svc.ListSessions(ctx, session.ListFilter{Limit: 100000})
	require.NoError(t, err)
	assert.Equal(t, 50, captured.Limit)
}
