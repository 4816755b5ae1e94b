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

type MetricsStore struct {
	db DB
}

func NewMetricsStore(db DB) *MetricsStore {
	if db == nil {
		return nil
	}
	return &MetricsStore{db: db}
}

func (s *MetricsStore) UpsertMetrics(ctx context.Context, metrics domain.RunMetrics) error {
	if s == nil || s.db == nil {
		return errors.New("metrics store not initialized")
	}
	extraJSON, err := encodeMetadata(metrics.Extra)
	if err != nil {
		return fmt.Errorf("encode extra: %w", err)
	}
	var score any
	if metrics.PrimaryScore != nil {
		score = *metrics.PrimaryScore
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO run_metrics (run_id, primary_score, extra, updated_at)
		 VALUES ($1,$2,$3,$4)
		 ON CONFLICT (run_id) DO UPDATE
		 SET primary_score = EXCLUDED.primary_score,
		     extra = EXCLUDED.extra,
		     updated_at = EXCLUDED.updated_at`,
		strings.TrimSpace(metrics.RunID),
		score,
		extraJSON,
		normalizeTime(metrics.UpdatedAt),
	)
	if err != nil {
		if pg.IsForeignKeyViolation(err) {
			return repo.ErrNotFound
		}
		return fmt.Errorf("upsert run metrics: %w", err)
	}
	return nil
}

func (s *MetricsStore) GetMetrics(ctx context.Context, runID string) (domain.RunMetrics, error) {
	if s == nil || s.db == nil {
		return domain.RunMetrics{}, errors.New("metrics store not initialized")
	}
	var (
		metrics   domain.RunMetrics
		score     sql.NullFloat64
		extraJSON []byte
	)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT run_id, primary_score, extra, updated_at FROM run_metrics WHERE run_id = $1`,
		strings.TrimSpace(runID),
	)
	if err := row.Scan(&metrics.RunID, &score, &extraJSON, &metrics.UpdatedAt); err != nil {
		return domain.RunMetrics{}, handleNotFound(err)
	}
	extra, err := decodeMetadata(extraJSON)
	if err != nil {
		return domain.RunMetrics{}, fmt.Errorf("decode extra: %w", err)
	}
	metrics.PrimaryScore = floatPtr(score)
	metrics.Extra = extra
	metrics.UpdatedAt = metrics.UpdatedAt.UTC()
	return metrics, nil
}
