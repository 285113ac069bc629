package fraud

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/sahaay-app/sahaay/internal/apperr"
)

// PostgresStore persists the fraud audit trail in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) RecordAssessment(ctx context.Context, a *Assessment) error {
	indicatorsJSON, err := json.Marshal(a.Indicators)
	if err != nil {
		return apperr.Validationf("marshal indicators: %v", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO fraud_assessments (id, user_id, score, level, action, multi_account, indicators, assessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.UserID, a.Score, string(a.Level), string(a.Action),
		a.MultiAccountDetected, indicatorsJSON, a.AssessedAt,
	)
	if err != nil {
		return apperr.Transientf("record assessment: %v", err)
	}
	return nil
}

func (p *PostgresStore) ListAssessments(ctx context.Context, userID string, limit int) ([]*Assessment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, score, level, action, multi_account, indicators, assessed_at
		FROM fraud_assessments
		WHERE user_id = $1
		ORDER BY assessed_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, apperr.Transientf("list assessments: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Assessment
	for rows.Next() {
		var a Assessment
		var indicatorsJSON []byte
		if err := rows.Scan(&a.ID, &a.UserID, &a.Score, &a.Level, &a.Action,
			&a.MultiAccountDetected, &indicatorsJSON, &a.AssessedAt); err != nil {
			return nil, apperr.Transientf("scan assessment: %v", err)
		}
		_ = json.Unmarshal(indicatorsJSON, &a.Indicators)
		result = append(result, &a)
	}
	return result, rows.Err()
}

func (p *PostgresStore) RecordSignal(ctx context.Context, s *Signal) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO fraud_signals (id, user_id, type, severity, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.UserID, s.Type, s.Severity, s.Description, s.CreatedAt,
	)
	if err != nil {
		return apperr.Transientf("record signal: %v", err)
	}
	return nil
}

func (p *PostgresStore) ListSignals(ctx context.Context, userID string, limit int) ([]*Signal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, type, severity, description, created_at
		FROM fraud_signals
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, apperr.Transientf("list signals: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Signal
	for rows.Next() {
		var s Signal
		if err := rows.Scan(&s.ID, &s.UserID, &s.Type, &s.Severity,
			&s.Description, &s.CreatedAt); err != nil {
			return nil, apperr.Transientf("scan signal: %v", err)
		}
		result = append(result, &s)
	}
	return result, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
