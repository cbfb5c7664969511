package service

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/onramp/internal/domain/errors"
	"github.com/cassiomorais/onramp/internal/domain/outbox"
	"github.com/cassiomorais/onramp/internal/domain/session"
	"github.com/cassiomorais/onramp/internal/escrow"
	"github.com/cassiomorais/onramp/internal/providers"
	"github.com/cassiomorais/onramp/pkg/retry"
	"github.com/cassiomorais/onramp/pkg/saga"
	"github.com/google/uuid"
)

// VerificationService verifies provider transactions and settles sessions
// against the escrow platform.
type VerificationService struct {
	sessionRepo     session.Repository
	outboxRepo      outbox.Repository
	txManager       TransactionManager
	providerFactory *providers.Factory
	escrowClient    escrow.Client
	providerName    string
	retryCfg        retry.Config
}

// NewVerificationService creates a new VerificationService.
func NewVerificationService(
	sessionRepo session.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	providerFactory *providers.Factory,
	escrowClient escrow.Client,
	providerName string,
	retryCfg retry.Config,
) *VerificationService {
	return &VerificationService{
		sessionRepo:     sessionRepo,
		outboxRepo:      outboxRepo,
		txManager:       txManager,
		providerFactory: providerFactory,
		escrowClient:    escrowClient,
		providerName:    providerName,
		retryCfg:        retryCfg,
	}
}

// LookupTransaction performs a single authenticated lookup against the
// provider and returns the parsed transaction together with the provider's raw
// response body. Exactly one attempt is made; callers that want retries layer
// them on top.
func (s *VerificationService) LookupTransaction(ctx context.Context, txID string) (*providers.LookupResult, error) {
	provider, breaker, err := s.providerFactory.Get(s.providerName)
	if err != nil {
		return nil, err
	}

	result, err := breaker.Execute(func() (*providers.LookupResult, error) {
		tx, raw, err := provider.GetTransaction(ctx, txID)
		if err != nil {
			return nil, err
		}
		return &providers.LookupResult{Tx: tx, Raw: raw}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domainErrors.ErrVerificationFailed, err)
	}
	return result, nil
}

// AwaitingSettlement reports whether the session is back in the settlement
// queue and should be redelivered to a worker.
func (s *VerificationService) AwaitingSettlement(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, domainErrors.ErrSessionNotFound
	}
	return sess.Status == session.StatusAwaitingSettlement, nil
}

// SettleSession drives one settlement attempt for a session awaiting
// settlement: verify the provider transaction completed, confirm the escrow
// contract received the funds, then mark the session funded. Transient
// failures requeue the session until its retry budget runs out.
func (s *VerificationService) SettleSession(ctx context.Context, sessionID uuid.UUID) error {
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return domainErrors.ErrSessionNotFound
	}

	switch sess.Status {
	case session.StatusAwaitingSettlement:
		if err := sess.MarkSettling(); err != nil {
			return err
		}
		if err := s.sessionRepo.Update(ctx, sess); err != nil {
			return err
		}
	case session.StatusSettling:
		// Resume an attempt a previous worker abandoned mid-flight.
	default:
		// Terminal or not yet completed at the provider, nothing to do.
		return nil
	}

	if sess.ProviderTxID == nil {
		return s.failSession(ctx, sess, "no provider transaction recorded")
	}
	txID := *sess.ProviderTxID

	var tx *providers.Transaction

	settlement := saga.New("settle-session").
		AddStep(saga.Step{
			Name: "verify-transaction",
			Execute: func(stepCtx context.Context) error {
				result, err := retry.DoWithResult(stepCtx, s.retryCfg, func() (*providers.LookupResult, error) {
					return s.LookupTransaction(stepCtx, txID)
				})
				if err != nil {
					return err
				}
				tx = result.Tx
				switch tx.Status {
				case providers.TxCompleted:
					return nil
				case providers.TxFailed:
					return fmt.Errorf("%w: %s", errPermanent, tx.FailureReason)
				default:
					return fmt.Errorf("transaction %s still pending", txID)
				}
			},
		}).
		AddStep(saga.Step{
			Name: "check-escrow-funding",
			Execute: func(stepCtx context.Context) error {
				status, err := retry.DoWithResult(stepCtx, s.retryCfg, func() (escrow.FundingStatus, error) {
					return s.escrowClient.CheckFunding(stepCtx, sess.ContractID)
				})
				if err != nil {
					return err
				}
				if !status.Funded {
					return domainErrors.ErrEscrowNotFunded
				}
				return nil
			},
		}).
		AddStep(saga.Step{
			Name: "mark-funded",
			Execute: func(stepCtx context.Context) error {
				if err := sess.MarkFunded(); err != nil {
					return err
				}
				return s.txManager.WithTransaction(stepCtx, func(txCtx context.Context) error {
					if err := s.sessionRepo.Update(txCtx, sess); err != nil {
						return err
					}
					entry := outbox.NewEntry(
						outbox.AggregateSession,
						sess.ID,
						outbox.EventFundingConfirmed,
						map[string]any{
							"session_id":     sess.ID.String(),
							"contract_id":    sess.ContractID,
							"provider_tx_id": txID,
							"amount_cents":   sess.Amount.ValueCents,
							"currency":       sess.Amount.Currency,
						},
					)
					return s.outboxRepo.Insert(txCtx, entry)
				})
			},
			Compensate: func(stepCtx context.Context) error {
				// A failed commit leaves the in-memory entity funded; reload it
				// on the next attempt instead of unwinding here.
				return nil
			},
		})

	if _, err := settlement.Execute(ctx); err != nil {
		if errors.Is(err, errPermanent) {
			return s.failSession(ctx, sess, err.Error())
		}
		return s.requeueSession(ctx, sess, err)
	}

	return nil
}

// errPermanent marks settlement errors that must not be retried.
var errPermanent = errors.New("permanent settlement failure")

// requeueSession returns the session to the settlement queue, or fails it once
// retries are exhausted.
func (s *VerificationService) requeueSession(ctx context.Context, sess *session.Session, cause error) error {
	err := sess.RequeueSettlement(cause.Error())
	if errors.Is(err, domainErrors.ErrMaxRetriesExceeded) {
		return s.failSession(ctx, sess, fmt.Sprintf("retries exhausted: %v", cause))
	}
	if err != nil {
		return err
	}
	if err := s.sessionRepo.Update(ctx, sess); err != nil {
		return err
	}
	return cause
}

// failSession marks the session failed and records the failure event.
func (s *VerificationService) failSession(ctx context.Context, sess *session.Session, reason string) error {
	if err := sess.MarkFailed(reason); err != nil {
		return err
	}
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.sessionRepo.Update(txCtx, sess); err != nil {
			return err
		}
		entry := outbox.NewEntry(
			outbox.AggregateSession,
			sess.ID,
			outbox.EventSessionFailed,
			map[string]any{
				"session_id": sess.ID.String(),
				"reason":     reason,
			},
		)
		return s.outboxRepo.Insert(txCtx, entry)
	})
	if err != nil {
		return err
	}
	return domainErrors.NewDomainError("settlement_failed", reason, nil)
}
