package runs

import (
	"context"
	"math"
	"strings"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/service/access"
)

// RecordMetrics replaces the run's metrics snapshot. It fails with
// domain.ErrNotFound when the run does not exist.
func (s *Service) RecordMetrics(ctx context.Context, runID string, primaryScore *float64, extra domain.Metadata) (domain.RunMetrics, error) {
	if primaryScore != nil && (math.IsNaN(*primaryScore) || math.IsInf(*primaryScore, 0)) {
		return domain.RunMetrics{}, domain.NewValidationError("primary_score", "must be a finite number")
	}
	metrics := domain.RunMetrics{
		RunID:     strings.TrimSpace(runID),
		Extra:     extra.Clone(),
		UpdatedAt: s.now().UTC(),
	}
	if primaryScore != nil {
		score := *primaryScore
		metrics.PrimaryScore = &score
	}
	if err := s.store.Metrics().UpsertMetrics(ctx, metrics); err != nil {
		return domain.RunMetrics{}, err
	}
	return metrics, nil
}

// RecordMetricsAs records metrics on behalf of the run owner.
func (s *Service) RecordMetricsAs(ctx context.Context, callerUserID, runID string, primaryScore *float64, extra domain.Metadata) (domain.RunMetrics, error) {
	run, err := s.gate.Require(ctx, callerUserID, runID, access.ActionRecordMetrics)
	if err != nil {
		return domain.RunMetrics{}, err
	}
	return s.RecordMetrics(ctx, run.ID, primaryScore, extra)
}

func (s *Service) GetMetrics(ctx context.Context, callerUserID, runID string) (domain.RunMetrics, error) {
	run, err := s.gate.Require(ctx, callerUserID, runID, access.ActionView)
	if err != nil {
		return domain.RunMetrics{}, err
	}
	return s.store.Metrics().GetMetrics(ctx, run.ID)
}

// HasMetrics reports whether a metrics snapshot with a primary score exists.
func (s *Service) HasMetrics(ctx context.Context, runID string) (bool, error) {
	metrics, err := s.store.Metrics().GetMetrics(ctx, runID)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return metrics.PrimaryScore != nil, nil
}

// ListEvents returns the run's status trail in recording order.
func (s *Service) ListEvents(ctx context.Context, callerUserID, runID string) ([]domain.StatusEvent, error) {
	run, err := s.gate.Require(ctx, callerUserID, runID, access.ActionReadLogs)
	if err != nil {
		return nil, err
	}
	return s.store.StatusEvents().ListStatusEvents(ctx, run.ID)
}
