package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/bindflow/runledger/internal/domain"
	pg "github.com/bindflow/runledger/internal/platform/postgres"
	"github.com/bindflow/runledger/internal/repo"
)

type StatusEventStore struct {
	db DB
}

func NewStatusEventStore(db DB) *StatusEventStore {
	if db == nil {
		return nil
	}
	return &StatusEventStore{db: db}
}

func (s *StatusEventStore) AppendStatusEvent(ctx context.Context, event domain.StatusEvent) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("status event store not initialized")
	}
	if !event.Status.Valid() {
		return 0, domain.NewValidationError("status", "unknown status "+string(event.Status))
	}
	metadataJSON, err := encodeMetadata(event.Metadata)
	if err != nil {
		return 0, fmt.Errorf("encode metadata: %w", err)
	}
	var id int64
	err = s.db.QueryRowContext(
		ctx,
		`INSERT INTO run_status_events (run_id, status, note, metadata, recorded_at)
		 VALUES ($1,$2,$3,$4,$5)
		 RETURNING id`,
		strings.TrimSpace(event.RunID),
		string(event.Status),
		nullIfEmpty(event.Note),
		metadataJSON,
		normalizeTime(event.RecordedAt),
	).Scan(&id)
	if err != nil {
		if pg.IsForeignKeyViolation(err) {
			return 0, repo.ErrNotFound
		}
		return 0, fmt.Errorf("insert status event: %w", err)
	}
	return id, nil
}

func (s *StatusEventStore) ListStatusEvents(ctx context.Context, runID string) ([]domain.StatusEvent, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("status event store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, run_id, status, note, metadata, recorded_at
		 FROM run_status_events
		 WHERE run_id = $1
		 ORDER BY recorded_at ASC, id ASC`,
		strings.TrimSpace(runID),
	)
	if err != nil {
		return nil, fmt.Errorf("list status events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.StatusEvent, 0)
	for rows.Next() {
		var (
			event        domain.StatusEvent
			status       string
			note         sql.NullString
			metadataJSON []byte
		)
		if err := rows.Scan(&event.ID, &event.RunID, &status, &note, &metadataJSON, &event.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan status event: %w", err)
		}
		meta, err := decodeMetadata(metadataJSON)
		if err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		event.Status = domain.RunStatus(status)
		event.Note = note.String
		event.Metadata = meta
		event.RecordedAt = event.RecordedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list status events: %w", err)
	}
	return events, nil
}
