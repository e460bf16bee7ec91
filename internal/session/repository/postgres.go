package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"mymessenger/backend/internal/session/domain"
)

const sessionColumns = `id, identity_id, refresh_token_hash, device_info, ip_address, expires_at, last_used_at, created_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the session to the database. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.IdentityID, s.RefreshTokenHash,
		nullString(s.DeviceInfo), nullString(s.IPAddress),
		s.ExpiresAt, s.LastUsedAt, s.CreatedAt,
	)
	return err
}

// GetLiveByHash returns the session whose refresh hash is hash and whose expiry
// is after now, or nil if there is none.
func (r *PostgresRepository) GetLiveByHash(ctx context.Context, hash string, now time.Time) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE refresh_token_hash = $1 AND expires_at > $2`,
		hash, now,
	)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// Rotate performs the compare-and-swap in one UPDATE. Under concurrent rotations
// of the same hash the second writer blocks on the row lock, re-checks the WHERE
// clause against the committed row and matches nothing.
func (r *PostgresRepository) Rotate(ctx context.Context, rot domain.Rotation) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE sessions
		    SET refresh_token_hash = $2,
		        expires_at = $3,
		        last_used_at = $4,
		        device_info = COALESCE($5, device_info),
		        ip_address = COALESCE($6, ip_address)
		  WHERE refresh_token_hash = $1 AND expires_at > $4
		RETURNING `+sessionColumns,
		rot.OldHash, rot.NewHash, rot.ExpiresAt, rot.Now,
		nullString(rot.DeviceInfo), nullString(rot.IPAddress),
	)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// DeleteByHash deletes the session holding hash. Reports whether a row was removed.
func (r *PostgresRepository) DeleteByHash(ctx context.Context, hash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE refresh_token_hash = $1`, hash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteByID deletes one session of identityID. Sessions of other identities are never touched.
func (r *PostgresRepository) DeleteByID(ctx context.Context, identityID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1 AND identity_id = $2`, id, identityID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteAllByIdentity deletes every session of identityID and returns how many were removed.
func (r *PostgresRepository) DeleteAllByIdentity(ctx context.Context, identityID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE identity_id = $1`, identityID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListLiveByIdentity returns the live sessions of identityID, most recently used first.
func (r *PostgresRepository) ListLiveByIdentity(ctx context.Context, identityID string, now time.Time) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		  WHERE identity_id = $1 AND expires_at > $2
		  ORDER BY last_used_at DESC`,
		identityID, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PurgeExpired deletes rows whose expiry is at or before now.
func (r *PostgresRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s      domain.Session
		device sql.NullString
		ip     sql.NullString
	)
	if err := row.Scan(&s.ID, &s.IdentityID, &s.RefreshTokenHash, &device, &ip, &s.ExpiresAt, &s.LastUsedAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.DeviceInfo = device.String
	s.IPAddress = ip.String
	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
