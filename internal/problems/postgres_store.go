package problems

import (
	"context"
	"database/sql"
	"time"

	"github.com/sahaay-app/sahaay/internal/apperr"
	"github.com/sahaay-app/sahaay/internal/pagination"
	"github.com/sahaay-app/sahaay/internal/storeutil"
)

// PostgresStore persists problems in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed problems store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const problemColumns = `id, poster_id, helper_id, title, description,
	risk_level, status, lat, lng, amount_inr, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, pr *Problem) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO problems (`+problemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		pr.ID, pr.PosterID, storeutil.NullString(pr.HelperID),
		pr.Title, storeutil.NullString(pr.Description),
		string(pr.RiskLevel), string(pr.Status),
		pr.Lat, pr.Lng, pr.AmountINR, pr.CreatedAt, pr.UpdatedAt,
	)
	if storeutil.IsUniqueViolation(err) {
		return apperr.Conflictf("problem %s already exists", pr.ID)
	}
	if err != nil {
		return apperr.Transientf("create problem: %v", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Problem, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+problemColumns+` FROM problems WHERE id = $1`, id)
	return scanProblem(row)
}

func (p *PostgresStore) ListOpen(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*Problem, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + problemColumns + ` FROM problems
		WHERE status = 'open'`
	args := []interface{}{limit}
	if cursor != nil {
		query += ` AND (created_at, id) < ($2, $3)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	query += `
		ORDER BY created_at DESC, id DESC
		LIMIT $1`
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Transientf("list open problems: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Problem
	for rows.Next() {
		pr, err := scanProblem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

// Transition flips status conditionally on the expected current value.
// Zero rows affected means the problem is missing or in another state;
// a follow-up read disambiguates.
func (p *PostgresStore) Transition(ctx context.Context, id string, from, to Status, helperID string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE problems SET
			status = $3,
			helper_id = COALESCE(NULLIF($4, ''), helper_id),
			updated_at = $5
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), helperID, time.Now(),
	)
	if err != nil {
		return apperr.Transientf("transition problem: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperr.Transientf("transition problem: %v", err)
	}
	if rows == 0 {
		if _, err := p.Get(ctx, id); err != nil {
			return err
		}
		return apperr.Preconditionf("problem is not %s", from)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProblem(row rowScanner) (*Problem, error) {
	pr := &Problem{}
	var helper, description sql.NullString
	err := row.Scan(&pr.ID, &pr.PosterID, &helper, &pr.Title, &description,
		&pr.RiskLevel, &pr.Status, &pr.Lat, &pr.Lng, &pr.AmountINR,
		&pr.CreatedAt, &pr.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Transientf("scan problem: %v", err)
	}
	pr.HelperID = helper.String
	pr.Description = description.String
	return pr, nil
}

var _ Store = (*PostgresStore)(nil)
