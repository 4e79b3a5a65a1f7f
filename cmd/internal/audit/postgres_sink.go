package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink writes entries to the audit_log table.
//
// Expected schema:
//
//	CREATE TABLE IF NOT EXISTS audit_log (
//	    id         BIGSERIAL PRIMARY KEY,
//	    ts         TIMESTAMPTZ NOT NULL,
//	    action     TEXT NOT NULL,
//	    user_id    TEXT,
//	    email      TEXT,
//	    remote_ip  TEXT,
//	    detail     TEXT
//	);
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink wraps an existing connection pool. The sink does not own
// the pool; the caller closes it.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

func (s *PostgresSink) Write(ctx context.Context, e Entry) error {
	const q = `
		INSERT INTO audit_log (ts, action, user_id, email, remote_ip, detail)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := s.pool.Exec(ctx, q,
		e.Timestamp, string(e.Action), e.UserID, e.Email, e.RemoteIP, e.Detail,
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
