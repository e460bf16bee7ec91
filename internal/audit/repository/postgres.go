package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"mymessenger/backend/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the audit log to the database. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	var meta []byte
	if len(a.Metadata) > 0 {
		b, err := json.Marshal(a.Metadata)
		if err != nil {
			return err
		}
		meta = b
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, identity_id, session_id, action, ip, device_info, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, nullString(a.IdentityID), nullString(a.SessionID), a.Action,
		nullString(a.IP), nullString(a.DeviceInfo), meta, a.CreatedAt,
	)
	return err
}

// ListByIdentity returns audit logs for identityID, newest first.
// Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByIdentity(ctx context.Context, identityID string, limit int32) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, identity_id, session_id, action, ip, device_info, metadata, created_at
		   FROM audit_logs
		  WHERE identity_id = $1
		  ORDER BY created_at DESC
		  LIMIT $2`,
		identityID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a                       domain.AuditLog
			ident, sess, ip, device sql.NullString
			meta                    []byte
		)
		if err := rows.Scan(&a.ID, &ident, &sess, &a.Action, &ip, &device, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.IdentityID, a.SessionID, a.IP, a.DeviceInfo = ident.String, sess.String, ip.String, device.String
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &a.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
