package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"mymessenger/backend/internal/identity/domain"
)

// uniqueViolation is the SQLSTATE Postgres reports for unique constraint failures.
const uniqueViolation = "23505"

const identityColumns = `id, email, password_hash, name, active, totp_secret, totp_enabled, totp_verified_at, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an identity repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the identity for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	return r.getOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
}

// GetByEmail returns the identity with the given email, or nil if not found.
// Email matching is case-sensitive.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return r.getOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE email = $1`, email)
}

// Create persists the identity. The identity must have ID set. A duplicate email
// yields ErrEmailTaken.
func (r *PostgresRepository) Create(ctx context.Context, i *domain.Identity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (`+identityColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		i.ID, i.Email, i.PasswordHash, i.Name, i.Active,
		nullStringPtr(i.TOTPSecret), i.TOTPEnabled, nullTimePtr(i.TOTPVerifiedAt),
		i.CreatedAt, i.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (r *PostgresRepository) SetTOTPSecret(ctx context.Context, id, secret string, at time.Time) (bool, error) {
	return r.execOne(ctx,
		`UPDATE identities SET totp_secret = $2, totp_verified_at = NULL, updated_at = $3
		  WHERE id = $1 AND totp_enabled = false`,
		id, secret, at,
	)
}

func (r *PostgresRepository) EnableTOTP(ctx context.Context, id, secret string, at time.Time) (bool, error) {
	return r.execOne(ctx,
		`UPDATE identities SET totp_enabled = true, totp_verified_at = $3, updated_at = $3
		  WHERE id = $1 AND totp_enabled = false AND totp_secret = $2`,
		id, secret, at,
	)
}

func (r *PostgresRepository) DisableTOTP(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.execOne(ctx,
		`UPDATE identities SET totp_enabled = false, totp_secret = NULL, totp_verified_at = NULL, updated_at = $2
		  WHERE id = $1 AND totp_enabled = true`,
		id, at,
	)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.Identity, error) {
	var (
		i          domain.Identity
		secret     sql.NullString
		verifiedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&i.ID, &i.Email, &i.PasswordHash, &i.Name, &i.Active,
		&secret, &i.TOTPEnabled, &verifiedAt, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if secret.Valid {
		i.TOTPSecret = &secret.String
	}
	if verifiedAt.Valid {
		i.TOTPVerifiedAt = &verifiedAt.Time
	}
	return &i, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
