package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/agri-procurement/internal/outbox"
)

// PostgresOutbox reads and maintains the outbox table. Writing happens
// inside the aggregate stores' transactions via insertOutboxRecords.
type PostgresOutbox struct {
	db *sql.DB
}

func NewPostgresOutbox(db *sql.DB) *PostgresOutbox {
	return &PostgresOutbox{db: db}
}

func insertOutboxRecords(ctx context.Context, tx *sql.Tx, records []outbox.Record) error {
	for _, rec := range records {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO outbox_records (id, aggregate_id, event_type, payload, created_at, processed, retry_count, last_error)
			 VALUES ($1, $2, $3, $4, $5, FALSE, 0, '')`,
			rec.ID, rec.AggregateID, rec.EventType, rec.Payload, rec.CreatedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresOutbox) Pending(ctx context.Context, limit, maxRetries int) ([]outbox.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, aggregate_id, event_type, payload, created_at, processed_at, processed, retry_count, last_error
		 FROM outbox_records
		 WHERE NOT processed AND retry_count < $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		maxRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []outbox.Record
	for rows.Next() {
		var (
			rec         outbox.Record
			processedAt sql.NullTime
		)
		err := rows.Scan(&rec.ID, &rec.AggregateID, &rec.EventType, &rec.Payload,
			&rec.CreatedAt, &processedAt, &rec.Processed, &rec.RetryCount, &rec.LastError)
		if err != nil {
			return nil, err
		}
		if processedAt.Valid {
			rec.ProcessedAt = &processedAt.Time
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresOutbox) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_records SET processed = TRUE, processed_at = $1 WHERE id = $2`, at, id)
	return err
}

func (s *PostgresOutbox) MarkFailed(ctx context.Context, id string, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_records SET retry_count = retry_count + 1, last_error = $1 WHERE id = $2`, lastError, id)
	return err
}

// PurgeProcessedBefore deletes processed records older than cutoff.
// Unprocessed records are never deleted here regardless of age.
func (s *PostgresOutbox) PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM outbox_records WHERE processed AND created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}
