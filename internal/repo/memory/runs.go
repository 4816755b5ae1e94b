package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/repo"
)

type runRepo struct{ v view }

func nowUTC() time.Time { return time.Now().UTC() }

func (r runRepo) CreateRun(_ context.Context, run domain.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}
	run.Params = run.Params.Clone()
	run.Labels = run.Labels.Clone()
	if run.RequestedAt.IsZero() {
		run.RequestedAt = nowUTC()
	}
	return r.v.read(func(st *state) error {
		if _, ok := st.users[run.OwnerUserID]; !ok {
			return domain.NewValidationError("owner_user_id", "unknown user")
		}
		if run.WorkflowID != "" {
			if _, ok := st.workflows[run.WorkflowID]; !ok {
				return domain.NewValidationError("workflow_id", "unknown workflow")
			}
		}
		if _, ok := st.runs[run.ID]; ok {
			return &domain.ConflictError{Entity: "run", Field: "id", Value: run.ID}
		}
		for _, existing := range st.runs {
			if existing.ExternalRunID == run.ExternalRunID {
				return &domain.ConflictError{Entity: "run", Field: "external_run_id", Value: run.ExternalRunID}
			}
			if existing.WorkDir == run.WorkDir {
				return &domain.ConflictError{Entity: "run", Field: "work_dir", Value: run.WorkDir}
			}
		}
		st.runs[run.ID] = run
		return nil
	})
}

func (r runRepo) GetRun(_ context.Context, id string) (domain.Run, error) {
	var out domain.Run
	err := r.v.read(func(st *state) error {
		run, ok := st.runs[strings.TrimSpace(id)]
		if !ok {
			return repo.ErrNotFound
		}
		out = run
		return nil
	})
	return out, err
}

// GetRunForUpdate needs no row lock here: transactions are already serial.
func (r runRepo) GetRunForUpdate(ctx context.Context, id string) (domain.Run, error) {
	return r.GetRun(ctx, id)
}

func (r runRepo) GetRunByExternalID(_ context.Context, externalRunID string) (domain.Run, error) {
	externalRunID = strings.TrimSpace(externalRunID)
	var out domain.Run
	err := r.v.read(func(st *state) error {
		for _, run := range st.runs {
			if run.ExternalRunID == externalRunID {
				out = run
				return nil
			}
		}
		return repo.ErrNotFound
	})
	return out, err
}

func (r runRepo) ListRuns(_ context.Context, filter repo.RunFilter) ([]repo.RunRecord, int, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	statuses := make(map[domain.RunStatus]struct{}, len(filter.Statuses))
	for _, status := range filter.Statuses {
		statuses[status] = struct{}{}
	}

	records := make([]repo.RunRecord, 0)
	err := r.v.read(func(st *state) error {
		for _, run := range st.runs {
			if filter.OwnerUserID != "" && run.OwnerUserID != filter.OwnerUserID {
				continue
			}
			if filter.NonTerminalOnly && run.Status.Terminal() {
				continue
			}
			if len(statuses) > 0 {
				if _, ok := statuses[run.Status]; !ok {
					continue
				}
			}
			record := repo.RunRecord{Run: run}
			if workflow, ok := st.workflows[run.WorkflowID]; ok {
				record.WorkflowName = workflow.Name
			}
			if metrics, ok := st.metrics[run.ID]; ok {
				record.PrimaryScore = metrics.PrimaryScore
			}
			if filter.Unscored && record.PrimaryScore != nil {
				continue
			}
			if search != "" &&
				!strings.Contains(strings.ToLower(run.RunName), search) &&
				!strings.Contains(strings.ToLower(record.WorkflowName), search) {
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].Run, records[j].Run
		if !a.RequestedAt.Equal(b.RequestedAt) {
			return a.RequestedAt.After(b.RequestedAt)
		}
		return a.ID > b.ID
	})
	total := len(records)
	if filter.Offset > 0 {
		if filter.Offset >= len(records) {
			records = records[:0]
		} else {
			records = records[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, total, nil
}

// UpdateRunState persists mutable lifecycle fields only.
func (r runRepo) UpdateRunState(_ context.Context, run domain.Run) error {
	return r.v.read(func(st *state) error {
		existing, ok := st.runs[run.ID]
		if !ok {
			return repo.ErrNotFound
		}
		existing.Status = run.Status
		existing.StartedAt = run.StartedAt
		existing.FinishedAt = run.FinishedAt
		existing.ErrorSummary = run.ErrorSummary
		if strings.TrimSpace(run.RunName) != "" {
			existing.RunName = run.RunName
		}
		st.runs[run.ID] = existing
		return nil
	})
}

// DeleteRun cascades to provenance links, status events and metrics.
func (r runRepo) DeleteRun(_ context.Context, id string) error {
	return r.v.read(func(st *state) error {
		if _, ok := st.runs[id]; !ok {
			return repo.ErrNotFound
		}
		delete(st.runs, id)
		for key := range st.inputs {
			if key.runID == id {
				delete(st.inputs, key)
			}
		}
		for key := range st.outputs {
			if key.runID == id {
				delete(st.outputs, key)
			}
		}
		kept := st.events[:0]
		for _, event := range st.events {
			if event.RunID != id {
				kept = append(kept, event)
			}
		}
		st.events = kept
		delete(st.metrics, id)
		return nil
	})
}
