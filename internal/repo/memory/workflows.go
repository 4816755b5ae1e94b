package memory

import (
	"context"
	"sort"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/repo"
)

type workflowRepo struct{ v view }

func (r workflowRepo) CreateWorkflow(_ context.Context, workflow domain.Workflow) error {
	if err := workflow.Validate(); err != nil {
		return err
	}
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = nowUTC()
	}
	return r.v.read(func(st *state) error {
		if _, ok := st.workflows[workflow.ID]; ok {
			return &domain.ConflictError{Entity: "workflow", Field: "id", Value: workflow.ID}
		}
		st.workflows[workflow.ID] = workflow
		return nil
	})
}

func (r workflowRepo) GetWorkflow(_ context.Context, id string) (domain.Workflow, error) {
	var out domain.Workflow
	err := r.v.read(func(st *state) error {
		workflow, ok := st.workflows[id]
		if !ok {
			return repo.ErrNotFound
		}
		out = workflow
		return nil
	})
	return out, err
}

func (r workflowRepo) ListWorkflows(_ context.Context, limit int) ([]domain.Workflow, error) {
	out := make([]domain.Workflow, 0)
	err := r.v.read(func(st *state) error {
		for _, workflow := range st.workflows {
			out = append(out, workflow)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteWorkflow detaches dependent runs instead of deleting them.
func (r workflowRepo) DeleteWorkflow(_ context.Context, id string) error {
	return r.v.read(func(st *state) error {
		if _, ok := st.workflows[id]; !ok {
			return repo.ErrNotFound
		}
		for runID, run := range st.runs {
			if run.WorkflowID == id {
				run.WorkflowID = ""
				st.runs[runID] = run
			}
		}
		delete(st.workflows, id)
		return nil
	})
}
