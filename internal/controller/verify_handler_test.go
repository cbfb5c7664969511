package controller

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cassiomorais/onramp/internal/providers"
	"github.com/cassiomorais/onramp/internal/service"
	"github.com/cassiomorais/onramp/internal/testutil"
	"github.com/cassiomorais/onramp/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVerifyHandler() (*VerifyController, *providers.MockProvider) {
	sessionRepo := testutil.NewMockSessionRepository()
	outboxRepo := &testutil.MockOutboxRepository{}
	txManager := testutil.NewMockTransactionManager()
	mockProvider := providers.NewMockProvider("hostedpay")
	providerFactory := providers.NewFactory(mockProvider)

	svc := service.NewVerificationService(
		sessionRepo, outboxRepo, txManager, providerFactory,
		&testutil.MockEscrowClient{}, "hostedpay",
		retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond},
	)
	return NewVerifyController(svc, nil, "hostedpay"), mockProvider
}

func TestVerify_MissingTransactionID(t *testing.T) {
	h, _ := newVerifyHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/verify", nil)
	rec := httptest.NewRecorder()

	h.Verify(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_transaction_id")
}

func TestVerify_Success_ForwardsRawBody(t *testing.T) {
	h, mockProvider := newVerifyHandler()

	txID := mockProvider.SeedCompleted("0xabc", "50.00", "USD")

	// Grab the exact bytes the provider returns for this transaction.
	_, raw, err := mockProvider.GetTransaction(httptest.NewRequest("GET", "/", nil).Context(), txID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/verify?transactionId="+txID, nil)
	rec := httptest.NewRecorder()

	h.Verify(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	// Byte-for-byte forward, no re-marshalling.
	assert.Equal(t, string(raw), rec.Body.String())
}

func TestVerify_UnknownTransaction_FixedFailureBody(t *testing.T) {
	h, _ := newVerifyHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/verify?transactionId=txn_missing", nil)
	rec := httptest.NewRecorder()

	h.Verify(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"status":"failed","error":"unable to verify transaction"}`, rec.Body.String())
}

func TestVerify_ProviderError_SameFailureBody(t *testing.T) {
	sessionRepo := testutil.NewMockSessionRepository()
	outboxRepo := &testutil.MockOutboxRepository{}
	txManager := testutil.NewMockTransactionManager()
	// Provider that always fails its lookups.
	mockProvider := providers.NewMockProvider("hostedpay", providers.WithFailureRate(1.0))
	providerFactory := providers.NewFactory(mockProvider)

	svc := service.NewVerificationService(
		sessionRepo, outboxRepo, txManager, providerFactory,
		&testutil.MockEscrowClient{}, "hostedpay",
		retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond},
	)
	h := NewVerifyController(svc, nil, "hostedpay")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/verify?transactionId=txn_any", nil)
	rec := httptest.NewRecorder()

	h.Verify(rec, req)

	// The caller cannot distinguish failure modes.
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"status":"failed","error":"unable to verify transaction"}`, rec.Body.String())
}
