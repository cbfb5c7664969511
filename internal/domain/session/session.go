package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/cassiomorais/onramp/internal/domain/errors"
	"github.com/google/uuid"
)

// PaymentMethod represents how the user funds the escrow contract
type PaymentMethod string

const (
	MethodCard           PaymentMethod = "card"
	MethodWalletTransfer PaymentMethod = "wallet_transfer"
)

// Status represents the session status in the state machine
type Status string

const (
	StatusCreated            Status = "created"
	StatusWidgetOpen         Status = "widget_open"
	StatusAwaitingSettlement Status = "awaiting_settlement"
	StatusSettling           Status = "settling"
	StatusFunded             Status = "funded"
	StatusFailed             Status = "failed"
	StatusExpired            Status = "expired"
)

// Provider identifies the external on-ramp provider
type Provider string

// Session correlates a payment attempt with a pre-existing escrow contract.
// The escrow contract itself is created and executed by an external platform;
// the session only carries its reference and tracks the funding attempt.
type Session struct {
	ID             uuid.UUID
	IdempotencyKey string
	ContractID     string
	WalletAddress  string
	Amount         Amount
	PaymentMethod  PaymentMethod
	Status         Status
	Provider       Provider
	ProviderTxID   *string
	WidgetAttached bool
	RetryCount     int
	MaxRetries     int
	LastError      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
	ExpiresAt      time.Time
}

// Amount represents a monetary amount in the smallest currency unit (e.g. cents).
type Amount struct {
	ValueCents int64
	Currency   string
}

// String returns a human-readable representation of the amount.
func (a Amount) String() string {
	whole := a.ValueCents / 100
	frac := a.ValueCents % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d %s", whole, frac, a.Currency)
}

// Decimal returns the amount as a decimal string without the currency code,
// the form the provider's baseCurrencyAmount query parameter expects.
func (a Amount) Decimal() string {
	whole := a.ValueCents / 100
	frac := a.ValueCents % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d", whole, frac)
}

// Validate checks that the amount is valid.
func (a Amount) Validate() error {
	if a.ValueCents <= 0 {
		return errors.ErrInvalidAmount
	}
	if len(a.Currency) != 3 {
		return errors.ErrInvalidCurrency
	}
	return nil
}

const defaultTTL = 30 * time.Minute

// NewSession creates a new on-ramp session
func NewSession(
	idempotencyKey string,
	contractID string,
	walletAddress string,
	amount Amount,
	method PaymentMethod,
) (*Session, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}
	if idempotencyKey == "" {
		return nil, errors.ErrInvalidInput
	}
	if strings.TrimSpace(contractID) == "" {
		return nil, errors.ErrInvalidContractRef
	}
	if strings.TrimSpace(walletAddress) == "" {
		return nil, errors.ErrInvalidWalletAddress
	}
	if method != MethodCard && method != MethodWalletTransfer {
		return nil, errors.ErrInvalidPaymentMethod
	}

	now := time.Now()
	return &Session{
		ID:             uuid.New(),
		IdempotencyKey: idempotencyKey,
		ContractID:     contractID,
		WalletAddress:  walletAddress,
		Amount:         amount,
		PaymentMethod:  method,
		Status:         StatusCreated,
		RetryCount:     0,
		MaxRetries:     3,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(defaultTTL),
	}, nil
}

// CanTransitionTo checks if the session can transition to the given status
func (s *Session) CanTransitionTo(newStatus Status) bool {
	transitions := map[Status][]Status{
		StatusCreated: {
			StatusWidgetOpen,
			StatusAwaitingSettlement, // wallet transfers skip the widget
			StatusFailed,
			StatusExpired,
		},
		StatusWidgetOpen: {
			StatusAwaitingSettlement,
			StatusFailed,
			StatusExpired,
		},
		StatusAwaitingSettlement: {
			StatusSettling,
			StatusFailed,
			StatusExpired,
		},
		StatusSettling: {
			StatusFunded,
			StatusAwaitingSettlement, // settlement retry
			StatusFailed,
		},
		StatusFunded:  {}, // terminal
		StatusFailed:  {}, // terminal
		StatusExpired: {}, // terminal
	}

	allowed, exists := transitions[s.Status]
	if !exists {
		return false
	}
	for _, a := range allowed {
		if a == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo transitions the session to a new status
func (s *Session) TransitionTo(newStatus Status) error {
	if !s.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(s.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}

	s.Status = newStatus
	s.UpdatedAt = time.Now()

	if newStatus == StatusFunded || newStatus == StatusFailed || newStatus == StatusExpired {
		now := time.Now()
		s.CompletedAt = &now
	}

	return nil
}

// OpenWidget attaches the hosted payment widget to the session. Exactly one
// attachment may exist while the widget is open; a second open is rejected.
func (s *Session) OpenWidget() error {
	if s.WidgetAttached {
		return errors.ErrWidgetAlreadyOpen
	}
	if s.PaymentMethod != MethodCard {
		return errors.ErrInvalidPaymentMethod
	}
	if s.Status == StatusCreated {
		if err := s.TransitionTo(StatusWidgetOpen); err != nil {
			return err
		}
	} else if s.Status != StatusWidgetOpen {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot open widget in status "+string(s.Status),
			errors.ErrInvalidStateTransition,
		)
	}
	s.WidgetAttached = true
	s.UpdatedAt = time.Now()
	return nil
}

// CloseWidget detaches the widget. Closing an unattached widget is rejected.
func (s *Session) CloseWidget() error {
	if !s.WidgetAttached {
		return errors.ErrWidgetNotOpen
	}
	s.WidgetAttached = false
	s.UpdatedAt = time.Now()
	return nil
}

// CompletePayment records the provider transaction identifier handed back via
// the redirect and moves the session to awaiting_settlement. The identifier is
// stored exactly as received.
func (s *Session) CompletePayment(providerTxID string) error {
	if strings.TrimSpace(providerTxID) == "" {
		return errors.ErrInvalidInput
	}
	if err := s.TransitionTo(StatusAwaitingSettlement); err != nil {
		return err
	}
	s.ProviderTxID = &providerTxID
	s.WidgetAttached = false
	return nil
}

// MarkSettling transitions the session to settling status
func (s *Session) MarkSettling() error {
	return s.TransitionTo(StatusSettling)
}

// MarkFunded transitions the session to funded status
func (s *Session) MarkFunded() error {
	return s.TransitionTo(StatusFunded)
}

// MarkFailed transitions the session to failed status with an error message
func (s *Session) MarkFailed(reason string) error {
	if err := s.TransitionTo(StatusFailed); err != nil {
		return err
	}
	if reason != "" {
		s.LastError = &reason
	}
	s.WidgetAttached = false
	return nil
}

// MarkExpired transitions the session to expired status
func (s *Session) MarkExpired() error {
	if err := s.TransitionTo(StatusExpired); err != nil {
		return err
	}
	s.WidgetAttached = false
	return nil
}

// RequeueSettlement returns a settling session to awaiting_settlement,
// incrementing the retry counter. Fails once retries are exhausted.
func (s *Session) RequeueSettlement(lastError string) error {
	if s.RetryCount >= s.MaxRetries {
		return errors.ErrMaxRetriesExceeded
	}
	if err := s.TransitionTo(StatusAwaitingSettlement); err != nil {
		return err
	}
	s.RetryCount++
	if lastError != "" {
		s.LastError = &lastError
	}
	return nil
}

// IsTerminal reports whether the session reached a terminal status
func (s *Session) IsTerminal() bool {
	return s.Status == StatusFunded || s.Status == StatusFailed || s.Status == StatusExpired
}

// IsExpired reports whether the session passed its deadline at the given time
func (s *Session) IsExpired(now time.Time) bool {
	return !s.IsTerminal() && now.After(s.ExpiresAt)
}
