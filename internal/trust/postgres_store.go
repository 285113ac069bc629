package trust

import (
	"context"
	"database/sql"

	"github.com/sahaay-app/sahaay/internal/apperr"
	"github.com/sahaay-app/sahaay/internal/storeutil"
)

// PostgresStore persists trust records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed trust store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Get(ctx context.Context, userID string) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT user_id, score, streak_bonus, location_bonus, version, updated_at
		FROM trust_records WHERE user_id = $1`, userID)

	rec := &Record{}
	err := row.Scan(&rec.UserID, &rec.Score, &rec.StreakBonusAwarded,
		&rec.LocationBonusGranted, &rec.Version, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Transientf("get trust record: %v", err)
	}
	return rec, nil
}

func (p *PostgresStore) Create(ctx context.Context, rec *Record) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO trust_records (user_id, score, streak_bonus, location_bonus, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.UserID, rec.Score, rec.StreakBonusAwarded,
		rec.LocationBonusGranted, rec.Version, rec.UpdatedAt,
	)
	if storeutil.IsUniqueViolation(err) {
		return apperr.Conflictf("trust record for %s already exists", rec.UserID)
	}
	if err != nil {
		return apperr.Transientf("create trust record: %v", err)
	}
	return nil
}

// UpdateScore performs a compare-and-swap on the version column. Zero rows
// affected means another writer won the race.
func (p *PostgresStore) UpdateScore(ctx context.Context, rec *Record) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE trust_records SET
			score = $1, streak_bonus = $2, location_bonus = $3,
			version = version + 1, updated_at = $4
		WHERE user_id = $5 AND version = $6`,
		rec.Score, rec.StreakBonusAwarded, rec.LocationBonusGranted,
		rec.UpdatedAt, rec.UserID, rec.Version,
	)
	if err != nil {
		return apperr.Transientf("update trust record: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperr.Transientf("update trust record: %v", err)
	}
	if rows == 0 {
		return ErrStaleRecord
	}
	rec.Version++
	return nil
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
