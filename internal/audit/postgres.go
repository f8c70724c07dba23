package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mateit-cloudware/mate-sentinel/internal/database"
	"github.com/mateit-cloudware/mate-sentinel/internal/security"
)

// EventRecord is a persisted security event row.
type EventRecord struct {
	ID         uuid.UUID
	EventType  string
	Severity   string
	IPAddress  string
	UserID     string
	Endpoint   string
	Details    map[string]any
	Handled    bool
	OccurredAt time.Time
	CreatedAt  time.Time
}

// PostgresSink persists security events to the audit database.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(db *database.DB) *PostgresSink {
	return &PostgresSink{pool: db.Pool}
}

// Write inserts one security event.
func (s *PostgresSink) Write(ctx context.Context, event security.SecurityEvent) error {
	details := event.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal event details: %w", err)
	}

	query := `
		INSERT INTO security_events (
			id, event_type, severity, ip_address, user_id, endpoint,
			details, handled, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = s.pool.Exec(ctx, query,
		event.ID, string(event.Type), string(event.Severity),
		event.IP, event.UserID, event.Endpoint,
		detailsJSON, event.Handled, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}

	return nil
}

// ListRecent returns the most recent persisted events, newest first.
func (s *PostgresSink) ListRecent(ctx context.Context, limit int) ([]*EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, event_type, severity, ip_address, user_id, endpoint,
		       details, handled, occurred_at, created_at
		FROM security_events
		ORDER BY occurred_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	records := make([]*EventRecord, 0)
	for rows.Next() {
		var rec EventRecord
		var detailsJSON []byte
		err := rows.Scan(
			&rec.ID, &rec.EventType, &rec.Severity, &rec.IPAddress,
			&rec.UserID, &rec.Endpoint, &detailsJSON, &rec.Handled,
			&rec.OccurredAt, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		if err := json.Unmarshal(detailsJSON, &rec.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event details: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security event rows: %w", err)
	}

	return records, nil
}

// PruneOlderThan deletes persisted events older than the cutoff and
// returns the number removed.
func (s *PostgresSink) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM security_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune security events: %w", err)
	}
	return tag.RowsAffected(), nil
}
