package worker

import (
	"context"
	"time"

	"github.com/cassiomorais/onramp/internal/domain/outbox"
	"github.com/cassiomorais/onramp/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StreamConsumer is the slice of the stream consumer the settlement worker uses.
type StreamConsumer interface {
	Read(ctx context.Context) ([]redis.XStream, error)
	Ack(ctx context.Context, messageID string) error
	Pending(ctx context.Context, minIdleTime time.Duration, count int64) ([]string, error)
	Claim(ctx context.Context, minIdleTime time.Duration, messageIDs []string) ([]redis.XMessage, error)
}

// StreamProducer publishes settlement events and dead letters.
type StreamProducer interface {
	PublishSettlementEvent(ctx context.Context, sessionID string, eventType string, data map[string]any) error
	PublishToDLQ(ctx context.Context, sessionID string, reason string, originalData map[string]any) error
}

// Settler drives one settlement attempt and reports whether a session wants another.
type Settler interface {
	SettleSession(ctx context.Context, sessionID uuid.UUID) error
	AwaitingSettlement(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

// SessionLock serializes settlement of one session across worker instances.
type SessionLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// SettlementConfig tunes the settlement worker loops.
type SettlementConfig struct {
	// ClaimMinIdle is how long a delivered message must sit unacked before
	// another consumer may claim it.
	ClaimMinIdle time.Duration
	// ClaimInterval is how often the reclaimer scans for such messages.
	ClaimInterval time.Duration
	ClaimBatch    int64
}

// Settlement consumes settlement events from the stream and settles sessions.
// A message is acked only once its outcome is recorded; messages skipped under
// lock contention stay pending and are picked up by the reclaimer.
type Settlement struct {
	consumer StreamConsumer
	producer StreamProducer
	settler  Settler
	newLock  func(sessionID string) SessionLock
	metrics  *observability.Metrics
	logger   zerolog.Logger
	cfg      SettlementConfig
}

// NewSettlement creates a settlement worker. metrics may be nil.
func NewSettlement(
	consumer StreamConsumer,
	producer StreamProducer,
	settler Settler,
	newLock func(sessionID string) SessionLock,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	cfg SettlementConfig,
) *Settlement {
	return &Settlement{
		consumer: consumer,
		producer: producer,
		settler:  settler,
		newLock:  newLock,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// Run reads new messages from the stream until the context is canceled.
func (w *Settlement) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		streams, err := w.consumer.Read(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("Failed to read from stream")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(1 * time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				w.ProcessMessage(ctx, msg.ID, msg.Values)
			}
		}
	}
}

// RunReclaimer periodically claims messages left pending past the idle
// threshold and runs them through the normal processing path. Without this, a
// settlement skipped under lock contention or abandoned by a crashed worker
// would never be redelivered.
func (w *Settlement) RunReclaimer(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.ClaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := w.ReclaimPending(ctx); err != nil {
			w.logger.Error().Err(err).Msg("Failed to reclaim pending messages")
		}
	}
}

// ReclaimPending claims and processes one batch of stale pending messages.
func (w *Settlement) ReclaimPending(ctx context.Context) error {
	ids, err := w.consumer.Pending(ctx, w.cfg.ClaimMinIdle, w.cfg.ClaimBatch)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	msgs, err := w.consumer.Claim(ctx, w.cfg.ClaimMinIdle, ids)
	if err != nil {
		return err
	}

	w.logger.Info().Int("count", len(msgs)).Msg("Reclaimed pending settlement messages")
	for _, msg := range msgs {
		w.ProcessMessage(ctx, msg.ID, msg.Values)
	}
	return nil
}

// ProcessMessage handles a single settlement message. Unparseable messages are
// acked away; a message skipped because another worker holds the session lock
// is left pending for the reclaimer.
func (w *Settlement) ProcessMessage(ctx context.Context, msgID string, values map[string]any) {
	sessionIDStr, _ := values["session_id"].(string)
	eventType, _ := values["event_type"].(string)

	sessionID, err := uuid.Parse(sessionIDStr)
	if err != nil {
		w.logger.Error().Str("raw", sessionIDStr).Msg("Invalid session ID in stream message")
		w.consumer.Ack(ctx, msgID)
		return
	}

	if eventType != outbox.EventSettlementRequested {
		// Funding and failure events are for downstream consumers.
		w.consumer.Ack(ctx, msgID)
		return
	}

	lock := w.newLock(sessionID.String())
	acquired, err := lock.Acquire(ctx)
	if err != nil || !acquired {
		// Another worker is settling this session. Leave the message
		// pending; the reclaimer redelivers it once it goes idle.
		w.logger.Warn().Str("session_id", sessionID.String()).Msg("Could not acquire lock, leaving message pending")
		return
	}
	defer lock.Release(ctx)

	w.logger.Info().Str("session_id", sessionID.String()).Msg("Settling session")
	start := time.Now()

	err = w.settler.SettleSession(ctx, sessionID)
	if w.metrics != nil {
		w.metrics.WorkerProcessingDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		w.logger.Error().Err(err).Str("session_id", sessionID.String()).Msg("Settlement attempt failed")
		if w.metrics != nil {
			w.metrics.WorkerMessagesProcessed.WithLabelValues("error").Inc()
			w.metrics.SettlementRetries.WithLabelValues("settlement_error").Inc()
		}

		if w.requeue(ctx, sessionID) {
			w.consumer.Ack(ctx, msgID)
			return
		}

		// Nothing left to retry; keep the payload for inspection.
		w.producer.PublishToDLQ(ctx, sessionID.String(), err.Error(), values)
		w.consumer.Ack(ctx, msgID)
		return
	}

	if w.metrics != nil {
		w.metrics.WorkerMessagesProcessed.WithLabelValues("success").Inc()
	}
	w.consumer.Ack(ctx, msgID)
}

// requeue republishes a settlement event when the session went back to
// awaiting settlement. Returns false when the session reached a terminal state
// and must not be retried.
func (w *Settlement) requeue(ctx context.Context, sessionID uuid.UUID) bool {
	awaiting, err := w.settler.AwaitingSettlement(ctx, sessionID)
	if err != nil || !awaiting {
		return false
	}
	if err := w.producer.PublishSettlementEvent(ctx, sessionID.String(), outbox.EventSettlementRequested, map[string]any{
		"session_id": sessionID.String(),
		"requeued":   true,
	}); err != nil {
		w.logger.Error().Err(err).Str("session_id", sessionID.String()).Msg("Failed to requeue settlement")
		return false
	}
	return true
}
