package outbox

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntry(t *testing.T) {
	aggregateID := uuid.New()
	payload := map[string]any{
		"session_id":     "sess_123",
		"contract_id":    "escrow-0xabc",
		"provider_tx_id": "txn_456",
	}

	entry := NewEntry(AggregateSession, aggregateID, EventSettlementRequested, payload)

	require.NotNil(t, entry)
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, AggregateSession, entry.AggregateType)
	assert.Equal(t, aggregateID, entry.AggregateID)
	assert.Equal(t, EventSettlementRequested, entry.EventType)
	assert.Equal(t, payload, entry.Payload)
	assert.Equal(t, StatusPending, entry.Status)
	assert.Equal(t, 0, entry.RetryCount)
	assert.Equal(t, 5, entry.MaxRetries)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Nil(t, entry.PublishedAt)
}

func TestNewEntry_EmptyPayload(t *testing.T) {
	aggregateID := uuid.New()
	entry := NewEntry(AggregateSession, aggregateID, EventSessionFailed, nil)

	require.NotNil(t, entry)
	assert.Nil(t, entry.Payload)
	assert.Equal(t, StatusPending, entry.Status)
}

func TestNewEntry_DifferentEventTypes(t *testing.T) {
	aggregateID := uuid.New()

	tests := []struct {
		name      string
		eventType string
	}{
		{"settlement requested", EventSettlementRequested},
		{"funding confirmed", EventFundingConfirmed},
		{"session failed", EventSessionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := NewEntry(AggregateSession, aggregateID, tt.eventType, nil)
			require.NotNil(t, entry)
			assert.Equal(t, tt.eventType, entry.EventType)
		})
	}
}
