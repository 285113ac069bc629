package escrow

import (
	"context"
	"database/sql"
	"time"

	"github.com/sahaay-app/sahaay/internal/apperr"
	"github.com/sahaay-app/sahaay/internal/storeutil"
)

// PostgresStore persists escrow transactions in PostgreSQL. The unique
// index on problem_id is the single-flight authority for Lock.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed escrow store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const escrowColumns = `id, problem_id, client_id, helper_id, amount_inr,
	status, locked_at, lock_expiry_at, released_at, released_by,
	dispute_reason, updated_at`

func (p *PostgresStore) Create(ctx context.Context, t *Transaction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO escrows (`+escrowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.ProblemID, t.ClientID, t.HelperID, t.AmountINR,
		string(t.Status), t.LockedAt, t.LockExpiryAt,
		storeutil.NullTime(t.ReleasedAt), storeutil.NullString(t.ReleasedBy),
		storeutil.NullString(t.DisputeReason), t.UpdatedAt,
	)
	if storeutil.IsUniqueViolation(err) {
		return apperr.Conflictf("escrow already exists for problem %s", t.ProblemID)
	}
	if err != nil {
		return apperr.Transientf("create escrow: %v", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id)
	return scanTransaction(row)
}

func (p *PostgresStore) GetByProblem(ctx context.Context, problemID string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+escrowColumns+` FROM escrows WHERE problem_id = $1`, problemID)
	return scanTransaction(row)
}

// Transition commits the full record conditionally on the current status.
// Zero rows affected means another writer moved the escrow first.
func (p *PostgresStore) Transition(ctx context.Context, t *Transaction, from Status) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE escrows SET
			status = $2, released_at = $3, released_by = $4,
			dispute_reason = $5, updated_at = $6
		WHERE id = $1 AND status = $7`,
		t.ID, string(t.Status), storeutil.NullTime(t.ReleasedAt),
		storeutil.NullString(t.ReleasedBy), storeutil.NullString(t.DisputeReason),
		t.UpdatedAt, string(from),
	)
	if err != nil {
		return apperr.Transientf("transition escrow: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperr.Transientf("transition escrow: %v", err)
	}
	if rows == 0 {
		if _, err := p.Get(ctx, t.ID); err != nil {
			return err
		}
		return apperr.Preconditionf("escrow is not %s", from)
	}
	return nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+escrowColumns+` FROM escrows
		WHERE client_id = $1 OR helper_id = $1
		ORDER BY locked_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, apperr.Transientf("list escrows: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ListExpired(ctx context.Context, before time.Time, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+escrowColumns+` FROM escrows
		WHERE status = 'locked' AND lock_expiry_at < $1
		ORDER BY lock_expiry_at
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, apperr.Transientf("list expired escrows: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	t := &Transaction{}
	var releasedAt sql.NullTime
	var releasedBy, disputeReason sql.NullString
	err := row.Scan(&t.ID, &t.ProblemID, &t.ClientID, &t.HelperID, &t.AmountINR,
		&t.Status, &t.LockedAt, &t.LockExpiryAt,
		&releasedAt, &releasedBy, &disputeReason, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Transientf("scan escrow: %v", err)
	}
	t.ReleasedAt = storeutil.TimePtr(releasedAt)
	t.ReleasedBy = releasedBy.String
	t.DisputeReason = disputeReason.String
	return t, nil
}

var _ Store = (*PostgresStore)(nil)
