package users

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/sahaay-app/sahaay/internal/apperr"
	"github.com/sahaay-app/sahaay/internal/storeutil"
)

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed users store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, name, phone, upi_id, device_fingerprint, last_ip,
	home_lat, home_lng, help_count, no_show_count, report_count,
	flagged, suspected_multi_account, linked_accounts, restricted,
	created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, u *User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		u.ID, u.Name, u.Phone, storeutil.NullString(u.UPIID),
		storeutil.NullString(u.DeviceFingerprint), storeutil.NullString(u.LastIP),
		u.HomeLat, u.HomeLng, u.HelpCount, u.NoShowCount, u.ReportCount,
		u.Flagged, u.SuspectedMultiAccount, pq.Array(u.LinkedAccounts),
		u.Restricted, u.CreatedAt, u.UpdatedAt,
	)
	if storeutil.IsUniqueViolation(err) {
		return apperr.Conflictf("phone number already registered")
	}
	if err != nil {
		return apperr.Transientf("create user: %v", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (p *PostgresStore) Update(ctx context.Context, u *User) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE users SET
			name = $2, phone = $3, upi_id = $4, device_fingerprint = $5,
			last_ip = $6, home_lat = $7, home_lng = $8,
			flagged = $9, suspected_multi_account = $10,
			linked_accounts = $11, restricted = $12, updated_at = $13
		WHERE id = $1`,
		u.ID, u.Name, u.Phone, storeutil.NullString(u.UPIID),
		storeutil.NullString(u.DeviceFingerprint), storeutil.NullString(u.LastIP),
		u.HomeLat, u.HomeLng, u.Flagged, u.SuspectedMultiAccount,
		pq.Array(u.LinkedAccounts), u.Restricted, u.UpdatedAt,
	)
	if err != nil {
		return apperr.Transientf("update user: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperr.Transientf("update user: %v", err)
	}
	if rows == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (p *PostgresStore) Increment(ctx context.Context, id string, counter Counter) error {
	var column string
	switch counter {
	case CounterHelp:
		column = "help_count"
	case CounterNoShow:
		column = "no_show_count"
	case CounterReport:
		column = "report_count"
	default:
		return apperr.Validationf("unknown counter %q", counter)
	}

	result, err := p.db.ExecContext(ctx,
		`UPDATE users SET `+column+` = `+column+` + 1, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return apperr.Transientf("increment %s: %v", column, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperr.Transientf("increment %s: %v", column, err)
	}
	if rows == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ByDevice(ctx context.Context, fingerprint string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id FROM users WHERE device_fingerprint = $1`, fingerprint)
	if err != nil {
		return nil, apperr.Transientf("query by device: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Transientf("scan user id: %v", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *PostgresStore) CountByIP(ctx context.Context, ip string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE last_ip = $1`, ip).Scan(&count)
	if err != nil {
		return 0, apperr.Transientf("count by ip: %v", err)
	}
	return count, nil
}

func (p *PostgresStore) UPIOwner(ctx context.Context, upi string) (string, error) {
	var id string
	err := p.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE upi_id = $1`, upi).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", apperr.Transientf("upi owner lookup: %v", err)
	}
	return id, nil
}

// SweepCandidates joins trust records so low-trust accounts surface even
// before any explicit flag lands.
func (p *PostgresStore) SweepCandidates(ctx context.Context, limit int) ([]*User, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+prefixColumns("u.")+`
		FROM users u
		LEFT JOIN trust_records tr ON tr.user_id = u.id
		WHERE u.flagged OR u.no_show_count > 3 OR COALESCE(tr.score, 50) < 30
		ORDER BY u.updated_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, apperr.Transientf("sweep candidates: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	u := &User{}
	var upi, device, ip sql.NullString
	err := row.Scan(&u.ID, &u.Name, &u.Phone, &upi, &device, &ip,
		&u.HomeLat, &u.HomeLng, &u.HelpCount, &u.NoShowCount, &u.ReportCount,
		&u.Flagged, &u.SuspectedMultiAccount, pq.Array(&u.LinkedAccounts),
		&u.Restricted, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Transientf("scan user: %v", err)
	}
	u.UPIID = upi.String
	u.DeviceFingerprint = device.String
	u.LastIP = ip.String
	return u, nil
}

func prefixColumns(prefix string) string {
	return prefix + `id, ` + prefix + `name, ` + prefix + `phone, ` + prefix + `upi_id, ` +
		prefix + `device_fingerprint, ` + prefix + `last_ip, ` + prefix + `home_lat, ` +
		prefix + `home_lng, ` + prefix + `help_count, ` + prefix + `no_show_count, ` +
		prefix + `report_count, ` + prefix + `flagged, ` + prefix + `suspected_multi_account, ` +
		prefix + `linked_accounts, ` + prefix + `restricted, ` + prefix + `created_at, ` +
		prefix + `updated_at`
}

var _ Store = (*PostgresStore)(nil)
