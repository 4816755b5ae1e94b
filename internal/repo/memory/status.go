package memory

import (
	"context"
	"sort"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/repo"
)

type statusEventRepo struct{ v view }

func (r statusEventRepo) AppendStatusEvent(_ context.Context, event domain.StatusEvent) (int64, error) {
	if !event.Status.Valid() {
		return 0, domain.NewValidationError("status", "unknown status "+string(event.Status))
	}
	event.Metadata = event.Metadata.Clone()
	if event.RecordedAt.IsZero() {
		event.RecordedAt = nowUTC()
	}
	var id int64
	err := r.v.read(func(st *state) error {
		if _, ok := st.runs[event.RunID]; !ok {
			return repo.ErrNotFound
		}
		st.nextEventID++
		event.ID = st.nextEventID
		st.events = append(st.events, event)
		id = event.ID
		return nil
	})
	return id, err
}

// ListStatusEvents returns events ordered by recorded_at, then id.
func (r statusEventRepo) ListStatusEvents(_ context.Context, runID string) ([]domain.StatusEvent, error) {
	out := make([]domain.StatusEvent, 0)
	err := r.v.read(func(st *state) error {
		for _, event := range st.events {
			if event.RunID == runID {
				out = append(out, event)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.Before(out[j].RecordedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type metricsRepo struct{ v view }

// UpsertMetrics replaces any previous snapshot for the run.
func (r metricsRepo) UpsertMetrics(_ context.Context, metrics domain.RunMetrics) error {
	metrics.Extra = metrics.Extra.Clone()
	if metrics.UpdatedAt.IsZero() {
		metrics.UpdatedAt = nowUTC()
	}
	if metrics.PrimaryScore != nil {
		score := *metrics.PrimaryScore
		metrics.PrimaryScore = &score
	}
	return r.v.read(func(st *state) error {
		if _, ok := st.runs[metrics.RunID]; !ok {
			return repo.ErrNotFound
		}
		st.metrics[metrics.RunID] = metrics
		return nil
	})
}

func (r metricsRepo) GetMetrics(_ context.Context, runID string) (domain.RunMetrics, error) {
	var out domain.RunMetrics
	err := r.v.read(func(st *state) error {
		metrics, ok := st.metrics[runID]
		if !ok {
			return repo.ErrNotFound
		}
		out = metrics
		return nil
	})
	return out, err
}
