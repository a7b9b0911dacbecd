package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlAuditEvents = `
CREATE TABLE IF NOT EXISTS audit_events (
    id         TEXT        PRIMARY KEY,
    session_id TEXT        NOT NULL,
    event_type TEXT        NOT NULL,
    details    JSONB,
    sealed     JSONB,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_session
    ON audit_events (session_id, created_at);`

// PostgresStore persists the audit trail in a single audit_events table.
// All methods are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the database at dsn and ensures the
// audit_events table exists. The migration is idempotent.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("audit store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("audit store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlAuditEvents); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit store: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Record appends one event.
func (p *PostgresStore) Record(ctx context.Context, ev Event) error {
	const q = `
		INSERT INTO audit_events (id, session_id, event_type, details, sealed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	details, err := marshalJSONB(ev.Details)
	if err != nil {
		return fmt.Errorf("audit store: encode details: %w", err)
	}
	sealed, err := marshalJSONB(ev.Sealed)
	if err != nil {
		return fmt.Errorf("audit store: encode sealed: %w", err)
	}
	if _, err := p.pool.Exec(ctx, q, ev.ID, ev.SessionID, string(ev.Type), details, sealed, ev.Time); err != nil {
		return fmt.Errorf("audit store: record: %w", err)
	}
	return nil
}

// SessionEvents returns the trail for one session, oldest first.
func (p *PostgresStore) SessionEvents(ctx context.Context, sessionID string) ([]Event, error) {
	const q = `
		SELECT id, session_id, event_type, details, sealed, created_at
		FROM   audit_events
		WHERE  session_id = $1
		ORDER  BY created_at, id`

	rows, err := p.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("audit store: session events: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		var (
			ev      Event
			details []byte
			sealed  []byte
		)
		if err := row.Scan(&ev.ID, &ev.SessionID, &ev.Type, &details, &sealed, &ev.Time); err != nil {
			return Event{}, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &ev.Details); err != nil {
				return Event{}, err
			}
		}
		if len(sealed) > 0 {
			ev.Sealed = new(Envelope)
			if err := json.Unmarshal(sealed, ev.Sealed); err != nil {
				return Event{}, err
			}
		}
		return ev, nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit store: scan events: %w", err)
	}
	return events, nil
}

// Close releases the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// marshalJSONB encodes v for a JSONB column, mapping empty values to SQL NULL.
func marshalJSONB(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]string:
		if len(val) == 0 {
			return nil, nil
		}
	case *Envelope:
		if val == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
