package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/onramp/internal/domain/errors"
	"github.com/cassiomorais/onramp/internal/domain/session"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// allowedSortColumns is a whitelist of columns valid for ORDER BY.
var allowedSortColumns = map[string]string{
	"created_at": "created_at",
	"amount":     "amount",
	"status":     "status",
	"updated_at": "updated_at",
}

const sessionColumns = `id, idempotency_key, contract_id, wallet_address,
	        amount, currency, payment_method, status, provider, provider_transaction_id,
	        widget_attached, retry_count, max_retries, last_error,
	        created_at, updated_at, completed_at, expires_at`

// SessionRepository implements session.Repository using PostgreSQL.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	amountStr := centsToNumericString(s.Amount.ValueCents)

	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO onramp_sessions
		 (id, idempotency_key, contract_id, wallet_address,
		  amount, currency, payment_method, status, provider, provider_transaction_id,
		  widget_attached, retry_count, max_retries, last_error,
		  created_at, updated_at, completed_at, expires_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		s.ID, s.IdempotencyKey, s.ContractID, s.WalletAddress,
		amountStr, s.Amount.Currency, string(s.PaymentMethod), string(s.Status), string(s.Provider), s.ProviderTxID,
		s.WidgetAttached, s.RetryCount, s.MaxRetries, s.LastError,
		s.CreatedAt, s.UpdatedAt, s.CompletedAt, s.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domainErrors.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	return r.scanSession(r.db(ctx).QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM onramp_sessions WHERE id = $1`, id))
}

// GetByIdempotencyKey retrieves a session by idempotency key.
func (r *SessionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*session.Session, error) {
	return r.scanSession(r.db(ctx).QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM onramp_sessions WHERE idempotency_key = $1`, key))
}

// GetByProviderTxID retrieves a session by the provider's transaction identifier.
func (r *SessionRepository) GetByProviderTxID(ctx context.Context, txID string) (*session.Session, error) {
	return r.scanSession(r.db(ctx).QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM onramp_sessions WHERE provider_transaction_id = $1`, txID))
}

// Update updates an existing session.
func (r *SessionRepository) Update(ctx context.Context, s *session.Session) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE onramp_sessions SET
		  status=$1, provider=$2, provider_transaction_id=$3, widget_attached=$4,
		  retry_count=$5, last_error=$6, updated_at=$7, completed_at=$8
		 WHERE id=$9`,
		string(s.Status), string(s.Provider), s.ProviderTxID, s.WidgetAttached,
		s.RetryCount, s.LastError, s.UpdatedAt, s.CompletedAt, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrSessionNotFound
	}
	return nil
}

// List lists sessions with optional filters.
func (r *SessionRepository) List(ctx context.Context, f session.ListFilter) ([]*session.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM onramp_sessions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.ContractID != nil {
		query += fmt.Sprintf(" AND contract_id = $%d", argIdx)
		args = append(args, *f.ContractID)
		argIdx++
	}
	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*f.Status))
		argIdx++
	}
	if f.Method != nil {
		query += fmt.Sprintf(" AND payment_method = $%d", argIdx)
		args = append(args, string(*f.Method))
		argIdx++
	}

	// Strict whitelist for sort column
	sortBy := "created_at"
	if col, ok := allowedSortColumns[f.SortBy]; ok {
		sortBy = col
	}
	sortOrder := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		sortOrder = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, sortOrder)

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ExpireStale marks non-terminal sessions past their deadline as expired.
func (r *SessionRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE onramp_sessions
		 SET status=$1, widget_attached=FALSE, updated_at=$2, completed_at=$2
		 WHERE expires_at < $2 AND status NOT IN ($3, $4, $5)`,
		string(session.StatusExpired), now,
		string(session.StatusFunded), string(session.StatusFailed), string(session.StatusExpired),
	)
	if err != nil {
		return 0, fmt.Errorf("expire stale sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) scanSession(row scanner) (*session.Session, error) {
	s := &session.Session{}
	var (
		amountStr     string
		currency      string
		method        string
		status        string
		provider      string
	)

	err := row.Scan(
		&s.ID, &s.IdempotencyKey, &s.ContractID, &s.WalletAddress,
		&amountStr, &currency, &method, &status, &provider, &s.ProviderTxID,
		&s.WidgetAttached, &s.RetryCount, &s.MaxRetries, &s.LastError,
		&s.CreatedAt, &s.UpdatedAt, &s.CompletedAt, &s.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	cents, err := numericStringToCents(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse session amount: %w", err)
	}

	s.Amount = session.Amount{ValueCents: cents, Currency: currency}
	s.PaymentMethod = session.PaymentMethod(method)
	s.Status = session.Status(status)
	s.Provider = session.Provider(provider)
	return s, nil
}
