package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cassiomorais/onramp/internal/domain/outbox"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Stubs ---

type stubConsumer struct {
	acked      []string
	pendingIDs []string
	claimed    []redis.XMessage
	claimCalls int
}

func (c *stubConsumer) Read(ctx context.Context) ([]redis.XStream, error) {
	return nil, nil
}

func (c *stubConsumer) Ack(ctx context.Context, messageID string) error {
	c.acked = append(c.acked, messageID)
	return nil
}

func (c *stubConsumer) Pending(ctx context.Context, minIdleTime time.Duration, count int64) ([]string, error) {
	return c.pendingIDs, nil
}

func (c *stubConsumer) Claim(ctx context.Context, minIdleTime time.Duration, messageIDs []string) ([]redis.XMessage, error) {
	c.claimCalls++
	return c.claimed, nil
}

type stubProducer struct {
	republished  []string
	deadLettered []string
}

func (p *stubProducer) PublishSettlementEvent(ctx context.Context, sessionID string, eventType string, data map[string]any) error {
	p.republished = append(p.republished, sessionID)
	return nil
}

func (p *stubProducer) PublishToDLQ(ctx context.Context, sessionID string, reason string, originalData map[string]any) error {
	p.deadLettered = append(p.deadLettered, sessionID)
	return nil
}

type stubSettler struct {
	settled   []uuid.UUID
	settleErr error
	awaiting  bool
}

func (s *stubSettler) SettleSession(ctx context.Context, sessionID uuid.UUID) error {
	s.settled = append(s.settled, sessionID)
	return s.settleErr
}

func (s *stubSettler) AwaitingSettlement(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	return s.awaiting, nil
}

type stubLock struct {
	available bool
	released  bool
}

func (l *stubLock) Acquire(ctx context.Context) (bool, error) { return l.available, nil }
func (l *stubLock) Release(ctx context.Context) error         { l.released = true; return nil }

// --- Helpers ---

func newTestSettlement(consumer *stubConsumer, producer *stubProducer, settler *stubSettler, lock *stubLock) *Settlement {
	return NewSettlement(
		consumer, producer, settler,
		func(sessionID string) SessionLock { return lock },
		nil, zerolog.Nop(),
		SettlementConfig{ClaimMinIdle: time.Minute, ClaimInterval: time.Second, ClaimBatch: 10},
	)
}

func settlementMessage(sessionID uuid.UUID) map[string]any {
	return map[string]any{
		"session_id": sessionID.String(),
		"event_type": outbox.EventSettlementRequested,
		"payload":    "{}",
	}
}

// --- Tests ---

func TestProcessMessage_SettlesAndAcks(t *testing.T) {
	consumer := &stubConsumer{}
	settler := &stubSettler{}
	lock := &stubLock{available: true}
	w := newTestSettlement(consumer, &stubProducer{}, settler, lock)

	sessionID := uuid.New()
	w.ProcessMessage(context.Background(), "1-0", settlementMessage(sessionID))

	require.Len(t, settler.settled, 1)
	assert.Equal(t, sessionID, settler.settled[0])
	assert.Equal(t, []string{"1-0"}, consumer.acked)
	assert.True(t, lock.released)
}

func TestProcessMessage_LockContention_LeavesMessagePending(t *testing.T) {
	consumer := &stubConsumer{}
	settler := &stubSettler{}
	w := newTestSettlement(consumer, &stubProducer{}, settler, &stubLock{available: false})

	w.ProcessMessage(context.Background(), "1-0", settlementMessage(uuid.New()))

	// Not acked and not settled: the message stays in the pending entries
	// list for the reclaimer.
	assert.Empty(t, consumer.acked)
	assert.Empty(t, settler.settled)
}

func TestReclaimPending_RedeliversSkippedMessage(t *testing.T) {
	sessionID := uuid.New()
	consumer := &stubConsumer{
		pendingIDs: []string{"1-0"},
		claimed:    []redis.XMessage{{ID: "1-0", Values: settlementMessage(sessionID)}},
	}
	settler := &stubSettler{}
	w := newTestSettlement(consumer, &stubProducer{}, settler, &stubLock{available: true})

	require.NoError(t, w.ReclaimPending(context.Background()))

	require.Len(t, settler.settled, 1)
	assert.Equal(t, sessionID, settler.settled[0])
	assert.Equal(t, []string{"1-0"}, consumer.acked)
}

func TestReclaimPending_NothingToClaim(t *testing.T) {
	consumer := &stubConsumer{}
	w := newTestSettlement(consumer, &stubProducer{}, &stubSettler{}, &stubLock{available: true})

	require.NoError(t, w.ReclaimPending(context.Background()))
	assert.Zero(t, consumer.claimCalls)
}

func TestProcessMessage_InvalidSessionID_Acked(t *testing.T) {
	consumer := &stubConsumer{}
	settler := &stubSettler{}
	w := newTestSettlement(consumer, &stubProducer{}, settler, &stubLock{available: true})

	w.ProcessMessage(context.Background(), "1-0", map[string]any{
		"session_id": "not-a-uuid",
		"event_type": outbox.EventSettlementRequested,
	})

	assert.Equal(t, []string{"1-0"}, consumer.acked)
	assert.Empty(t, settler.settled)
}

func TestProcessMessage_OtherEventType_Acked(t *testing.T) {
	consumer := &stubConsumer{}
	settler := &stubSettler{}
	w := newTestSettlement(consumer, &stubProducer{}, settler, &stubLock{available: true})

	w.ProcessMessage(context.Background(), "1-0", map[string]any{
		"session_id": uuid.New().String(),
		"event_type": outbox.EventFundingConfirmed,
	})

	assert.Equal(t, []string{"1-0"}, consumer.acked)
	assert.Empty(t, settler.settled)
}

func TestProcessMessage_TransientFailure_Republishes(t *testing.T) {
	consumer := &stubConsumer{}
	producer := &stubProducer{}
	settler := &stubSettler{settleErr: errors.New("provider still pending"), awaiting: true}
	w := newTestSettlement(consumer, producer, settler, &stubLock{available: true})

	sessionID := uuid.New()
	w.ProcessMessage(context.Background(), "1-0", settlementMessage(sessionID))

	assert.Equal(t, []string{sessionID.String()}, producer.republished)
	assert.Empty(t, producer.deadLettered)
	assert.Equal(t, []string{"1-0"}, consumer.acked)
}

func TestProcessMessage_TerminalFailure_DeadLetters(t *testing.T) {
	consumer := &stubConsumer{}
	producer := &stubProducer{}
	settler := &stubSettler{settleErr: errors.New("retries exhausted"), awaiting: false}
	w := newTestSettlement(consumer, producer, settler, &stubLock{available: true})

	sessionID := uuid.New()
	w.ProcessMessage(context.Background(), "1-0", settlementMessage(sessionID))

	assert.Empty(t, producer.republished)
	assert.Equal(t, []string{sessionID.String()}, producer.deadLettered)
	assert.Equal(t, []string{"1-0"}, consumer.acked)
}
