// Package ledger keeps an append-only history of the commands sent to the
// tree server, keyed by request id.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Status is the outcome of a command.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// DefaultLimit is used by Recent when no positive limit is given.
const DefaultLimit = 50

// Entry is a single dispatched command.
type Entry struct {
	ID         string         `json:"id"`
	Command    string         `json:"command"`
	Path       string         `json:"path"`
	Source     string         `json:"source,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Duration   time.Duration  `json:"duration"`
	Status     Status         `json:"status"`
	HTTPStatus int            `json:"http_status,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Ledger stores command history in SQLite.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Append records one command. Missing id and timestamp are filled in.
func (l *Ledger) Append(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}

	var payload sql.NullString
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		payload = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO command_ledger
			(id, command, path, source, timestamp, duration_ms, status, http_status, payload, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.Command, e.Path, nullString(e.Source), e.Timestamp.UnixMilli(),
		e.Duration.Milliseconds(), string(e.Status), nullInt(e.HTTPStatus), payload, nullString(e.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to append command %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns the latest entries, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, command, path, source, timestamp, duration_ms, status, http_status, payload, error
		FROM command_ledger
		ORDER BY timestamp DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query commands: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UnixMilli()
	result, err := l.db.ExecContext(ctx, `DELETE FROM command_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old commands: %w", err)
	}
	return result.RowsAffected()
}

// RunCleanup applies the retention policy every interval until ctx is done.
func (l *Ledger) RunCleanup(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := l.DeleteOlderThan(ctx, retention)
			if err != nil {
				log.Error().Err(err).Msg("Ledger cleanup failed")
				continue
			}
			if deleted > 0 {
				log.Info().Int64("deleted", deleted).Msg("Ledger cleanup completed")
			}
		}
	}
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var source, payload, errText sql.NullString
		var httpStatus sql.NullInt64
		var timestamp, durationMS int64
		var status string

		err := rows.Scan(
			&entry.ID, &entry.Command, &entry.Path, &source, &timestamp,
			&durationMS, &status, &httpStatus, &payload, &errText,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.UnixMilli(timestamp).UTC()
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entry.Status = Status(status)
		entry.Source = source.String
		entry.Error = errText.String
		entry.HTTPStatus = int(httpStatus.Int64)

		if payload.Valid && payload.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payload.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}
