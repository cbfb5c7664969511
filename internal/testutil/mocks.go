package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/cassiomorais/onramp/internal/domain/outbox"
	"github.com/cassiomorais/onramp/internal/domain/session"
	"github.com/cassiomorais/onramp/internal/escrow"
	"github.com/google/uuid"
)

// --- Session Repository Mock ---

// MockSessionRepository is a mock implementation of session.Repository.
type MockSessionRepository struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*session.Session
	byKey    map[string]*session.Session
	byTxID   map[string]*session.Session

	CreateFunc              func(ctx context.Context, sess *session.Session) error
	GetByIDFunc             func(ctx context.Context, id uuid.UUID) (*session.Session, error)
	GetByIdempotencyKeyFunc func(ctx context.Context, key string) (*session.Session, error)
	GetByProviderTxIDFunc   func(ctx context.Context, txID string) (*session.Session, error)
	UpdateFunc              func(ctx context.Context, sess *session.Session) error
	ListFunc                func(ctx context.Context, filter session.ListFilter) ([]*session.Session, error)
	ExpireStaleFunc         func(ctx context.Context, now time.Time) (int64, error)
}

func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{
		sessions: make(map[uuid.UUID]*session.Session),
		byKey:    make(map[string]*session.Session),
		byTxID:   make(map[string]*session.Session),
	}
}

// AddSession pre-populates the mock with a session.
func (m *MockSessionRepository) AddSession(sess *session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	m.byKey[sess.IdempotencyKey] = sess
	if sess.ProviderTxID != nil {
		m.byTxID[*sess.ProviderTxID] = sess
	}
}

func (m *MockSessionRepository) Create(ctx context.Context, sess *session.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, sess)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	m.byKey[sess.IdempotencyKey] = sess
	return nil
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return sess, nil
}

func (m *MockSessionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*session.Session, error) {
	if m.GetByIdempotencyKeyFunc != nil {
		return m.GetByIdempotencyKeyFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.byKey[key]
	if !ok {
		return nil, nil
	}
	return sess, nil
}

func (m *MockSessionRepository) GetByProviderTxID(ctx context.Context, txID string) (*session.Session, error) {
	if m.GetByProviderTxIDFunc != nil {
		return m.GetByProviderTxIDFunc(ctx, txID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.byTxID[txID]
	if !ok {
		return nil, nil
	}
	return sess, nil
}

func (m *MockSessionRepository) Update(ctx context.Context, sess *session.Session) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, sess)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	if sess.ProviderTxID != nil {
		m.byTxID[*sess.ProviderTxID] = sess
	}
	return nil
}

func (m *MockSessionRepository) List(ctx context.Context, filter session.ListFilter) ([]*session.Session, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*session.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		if filter.Status != nil && sess.Status != *filter.Status {
			continue
		}
		if filter.ContractID != nil && sess.ContractID != *filter.ContractID {
			continue
		}
		result = append(result, sess)
	}
	return result, nil
}

func (m *MockSessionRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	if m.ExpireStaleFunc != nil {
		return m.ExpireStaleFunc(ctx, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, sess := range m.sessions {
		if sess.IsExpired(now) {
			sess.Status = session.StatusExpired
			count++
		}
	}
	return count, nil
}

// GetSessionByID returns the stored session (test helper, no context needed).
func (m *MockSessionRepository) GetSessionByID(id uuid.UUID) *session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is a mock implementation of outbox.Repository.
type MockOutboxRepository struct {
	mu      sync.Mutex
	entries []*outbox.Entry

	InsertFunc        func(ctx context.Context, entry *outbox.Entry) error
	GetPendingFunc    func(ctx context.Context, limit int) ([]*outbox.Entry, error)
	MarkPublishedFunc func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc    func(ctx context.Context, id uuid.UUID) error
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if m.GetPendingFunc != nil {
		return m.GetPendingFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := make([]*outbox.Entry, 0)
	for _, e := range m.entries {
		if e.Status == outbox.StatusPending {
			pending = append(pending, e)
		}
		if len(pending) >= limit {
			break
		}
	}
	return pending, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.Status = outbox.StatusPublished
		}
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.Status = outbox.StatusFailed
			e.RetryCount++
		}
	}
	return nil
}

// Entries returns a copy of all inserted entries (test helper).
func (m *MockOutboxRepository) Entries() []*outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*outbox.Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// --- Escrow Client Mock ---

// MockEscrowClient is a mock implementation of escrow.Client.
type MockEscrowClient struct {
	CheckFundingFunc func(ctx context.Context, contractID string) (escrow.FundingStatus, error)
	PingFunc         func(ctx context.Context) error
}

func (m *MockEscrowClient) CheckFunding(ctx context.Context, contractID string) (escrow.FundingStatus, error) {
	if m.CheckFundingFunc != nil {
		return m.CheckFundingFunc(ctx, contractID)
	}
	return escrow.FundingStatus{ContractID: contractID, Funded: true}, nil
}

func (m *MockEscrowClient) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}
