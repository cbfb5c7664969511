package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	domainErrors "github.com/cassiomorais/onramp/internal/domain/errors"
	"github.com/cassiomorais/onramp/internal/domain/outbox"
	"github.com/cassiomorais/onramp/internal/domain/session"
	"github.com/cassiomorais/onramp/internal/infrastructure/config"
	"github.com/cassiomorais/onramp/internal/providers"
	"github.com/google/uuid"
)

// SessionService handles on-ramp session business logic.
type SessionService struct {
	sessionRepo     session.Repository
	outboxRepo      outbox.Repository
	txManager       TransactionManager
	providerFactory *providers.Factory
	providerCfg     config.ProviderConfig
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessionRepo session.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	providerFactory *providers.Factory,
	providerCfg config.ProviderConfig,
) *SessionService {
	return &SessionService{
		sessionRepo:     sessionRepo,
		outboxRepo:      outboxRepo,
		txManager:       txManager,
		providerFactory: providerFactory,
		providerCfg:     providerCfg,
	}
}

// CreateSessionRequest holds the input for creating a session.
type CreateSessionRequest struct {
	IdempotencyKey string
	ContractID     string
	WalletAddress  string
	Amount         int64 // in cents
	Currency       string
	PaymentMethod  session.PaymentMethod
}

// CreateSessionResponse holds the result of creating a session. WidgetURL is
// empty for wallet transfers, which never open the hosted widget.
type CreateSessionResponse struct {
	Session   *session.Session
	WidgetURL string
}

// CreateSession creates a session and, for card payments, builds the hosted
// widget URL with the session's redirect callbacks baked in.
func (s *SessionService) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResponse, error) {
	// 1. Check idempotency
	existing, err := s.sessionRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
	if err == nil && existing != nil {
		return s.responseFor(existing)
	}

	// 2. Create session entity
	sess, err := session.NewSession(
		req.IdempotencyKey,
		req.ContractID,
		req.WalletAddress,
		session.Amount{ValueCents: req.Amount, Currency: req.Currency},
		req.PaymentMethod,
	)
	if err != nil {
		return nil, err
	}
	sess.Provider = session.Provider(s.providerCfg.Name)

	// 3. Persist
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		return nil, err
	}

	return s.responseFor(sess)
}

func (s *SessionService) responseFor(sess *session.Session) (*CreateSessionResponse, error) {
	resp := &CreateSessionResponse{Session: sess}
	if sess.PaymentMethod != session.MethodCard || sess.IsTerminal() {
		return resp, nil
	}

	widgetURL, err := s.widgetURLFor(sess)
	if err != nil {
		return nil, err
	}
	resp.WidgetURL = widgetURL
	return resp, nil
}

// widgetURLFor builds the hosted widget URL for a session. The redirect URLs
// carry the session identifier so the callback handlers can correlate the
// provider's redirect back to the session.
func (s *SessionService) widgetURLFor(sess *session.Session) (string, error) {
	provider, _, err := s.providerFactory.Get(string(sess.Provider))
	if err != nil {
		return "", err
	}

	successURL, err := appendSessionID(s.providerCfg.SuccessRedirectURL, sess.ID)
	if err != nil {
		return "", err
	}
	failureURL, err := appendSessionID(s.providerCfg.FailureRedirectURL, sess.ID)
	if err != nil {
		return "", err
	}

	return provider.WidgetURL(providers.WidgetURLRequest{
		WalletAddress:      sess.WalletAddress,
		BaseCurrencyAmount: sess.Amount.Decimal(),
		CurrencyCode:       s.providerCfg.CurrencyCode,
		RedirectURL:        successURL,
		FailureRedirectURL: failureURL,
	})
}

func appendSessionID(base string, id uuid.UUID) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse redirect url: %w", err)
	}
	q := u.Query()
	q.Set("sessionId", id.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// GetSession retrieves a session by ID.
func (s *SessionService) GetSession(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	sess, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, domainErrors.ErrSessionNotFound
	}
	return sess, nil
}

// ListSessions lists sessions matching the filter.
func (s *SessionService) ListSessions(ctx context.Context, filter session.ListFilter) ([]*session.Session, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	return s.sessionRepo.List(ctx, filter)
}

// expireIfStale persists the expired status for a session past its deadline.
// The periodic sweeper catches these eventually; a request arriving between
// sweeps must not act on a dead session.
func (s *SessionService) expireIfStale(ctx context.Context, sess *session.Session) error {
	if !sess.IsExpired(time.Now()) {
		return nil
	}
	if err := sess.MarkExpired(); err != nil {
		return err
	}
	if err := s.sessionRepo.Update(ctx, sess); err != nil {
		return err
	}
	return domainErrors.ErrSessionExpired
}

// OpenWidget attaches the hosted widget to a session. A session may hold at
// most one attachment at a time.
func (s *SessionService) OpenWidget(ctx context.Context, id uuid.UUID) (*CreateSessionResponse, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.expireIfStale(ctx, sess); err != nil {
		return nil, err
	}
	if err := sess.OpenWidget(); err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Update(ctx, sess); err != nil {
		return nil, err
	}
	return s.responseFor(sess)
}

// CloseWidget detaches the widget from a session without completing payment.
// The session stays open for a re-attach until it expires.
func (s *SessionService) CloseWidget(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sess.CloseWidget(); err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Update(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// HandleSuccessRedirect records the provider transaction identifier delivered
// by the success redirect and queues the session for settlement. The session
// update and the outbox entry commit in one transaction.
func (s *SessionService) HandleSuccessRedirect(ctx context.Context, id uuid.UUID, providerTxID string) (*session.Session, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	// Replayed redirect with the same transaction identifier is a no-op.
	if sess.Status == session.StatusAwaitingSettlement &&
		sess.ProviderTxID != nil && *sess.ProviderTxID == providerTxID {
		return sess, nil
	}

	if err := s.expireIfStale(ctx, sess); err != nil {
		return nil, err
	}

	// A provider transaction funds exactly one session.
	if other, err := s.sessionRepo.GetByProviderTxID(ctx, providerTxID); err == nil && other != nil && other.ID != sess.ID {
		return nil, domainErrors.NewDomainError(
			"duplicate_transaction",
			"provider transaction already bound to another session",
			domainErrors.ErrInvalidInput,
		)
	}

	if err := sess.CompletePayment(providerTxID); err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.sessionRepo.Update(txCtx, sess); err != nil {
			return err
		}
		entry := outbox.NewEntry(
			outbox.AggregateSession,
			sess.ID,
			outbox.EventSettlementRequested,
			map[string]any{
				"session_id":     sess.ID.String(),
				"provider_tx_id": providerTxID,
				"contract_id":    sess.ContractID,
				"amount_cents":   sess.Amount.ValueCents,
				"currency":       sess.Amount.Currency,
			},
		)
		return s.outboxRepo.Insert(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	return sess, nil
}

// HandleFailureRedirect marks a session failed after the provider redirected
// to the failure URL. The provider's transaction status, when present, is kept
// as the failure reason.
func (s *SessionService) HandleFailureRedirect(ctx context.Context, id uuid.UUID, providerTxID, txStatus string) (*session.Session, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if sess.Status == session.StatusFailed {
		return sess, nil
	}

	if err := s.expireIfStale(ctx, sess); err != nil {
		return nil, err
	}

	reason := "payment failed at provider"
	if txStatus != "" {
		reason = fmt.Sprintf("provider reported status %q", txStatus)
	}
	if err := sess.MarkFailed(reason); err != nil {
		return nil, err
	}
	if providerTxID != "" {
		sess.ProviderTxID = &providerTxID
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
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
		return nil, err
	}

	return sess, nil
}

// ExpireStaleSessions marks sessions past their deadline as expired.
func (s *SessionService) ExpireStaleSessions(ctx context.Context) (int64, error) {
	return s.sessionRepo.ExpireStale(ctx, time.Now())
}
