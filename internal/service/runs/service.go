package runs

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/repo"
	"github.com/bindflow/runledger/internal/service/access"
	"github.com/bindflow/runledger/internal/service/objects"
	"github.com/google/uuid"
)

// ErrPlatform wraps failures reported by the execution platform.
var ErrPlatform = errors.New("execution platform error")

// Platform propagates cancel and delete to the execution platform.
type Platform interface {
	Cancel(ctx context.Context, externalRunID string) error
	Delete(ctx context.Context, externalRunID string) error
}

// Observer receives ledger events for instrumentation.
type Observer interface {
	RunCreated()
	StatusChanged(from, to domain.RunStatus)
	RunsDeleted(n int)
}

type nopObserver struct{}

func (nopObserver) RunCreated()                         {}
func (nopObserver) StatusChanged(_, _ domain.RunStatus) {}
func (nopObserver) RunsDeleted(int)                     {}

const (
	DefaultListLimit      = 50
	MaxListLimit          = 200
	defaultProvenancePage = 100
)

type Service struct {
	store    repo.Store
	gate     *access.Gate
	registry *objects.Registry
	platform Platform
	observer Observer
	pageSize int
	now      func() time.Time
	newID    func() string
}

func New(store repo.Store, gate *access.Gate, registry *objects.Registry) *Service {
	if store == nil || gate == nil || registry == nil {
		return nil
	}
	return &Service{
		store:    store,
		gate:     gate,
		registry: registry,
		observer: nopObserver{},
		pageSize: defaultProvenancePage,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithPlatform enables cancel and delete propagation.
func (s *Service) WithPlatform(p Platform) *Service {
	s.platform = p
	return s
}

func (s *Service) WithObserver(o Observer) *Service {
	if o != nil {
		s.observer = o
	}
	return s
}

type CreateInput struct {
	OwnerUserID       string
	WorkflowID        string
	ExternalRunID     string
	ExternalDatasetID string
	RunName           string
	WorkDir           string
	Params            domain.Metadata
	Labels            domain.Metadata
}

// CreateRun records a launched execution in the pending state together with
// its initial status event. A duplicate external run id or work dir yields a
// *domain.ConflictError naming the field.
func (s *Service) CreateRun(ctx context.Context, in CreateInput) (domain.Run, error) {
	now := s.now().UTC()
	run := domain.Run{
		ID:                s.newID(),
		WorkflowID:        strings.TrimSpace(in.WorkflowID),
		OwnerUserID:       strings.TrimSpace(in.OwnerUserID),
		ExternalRunID:     strings.TrimSpace(in.ExternalRunID),
		ExternalDatasetID: strings.TrimSpace(in.ExternalDatasetID),
		RunName:           strings.TrimSpace(in.RunName),
		WorkDir:           strings.TrimSpace(in.WorkDir),
		Status:            domain.RunStatusPending,
		RequestedAt:       now,
		Params:            in.Params.Clone(),
		Labels:            in.Labels.Clone(),
	}
	if err := run.Validate(); err != nil {
		return domain.Run{}, err
	}
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Repositories) error {
		if err := tx.Runs().CreateRun(ctx, run); err != nil {
			return err
		}
		_, err := tx.StatusEvents().AppendStatusEvent(ctx, domain.StatusEvent{
			RunID:      run.ID,
			Status:     domain.RunStatusPending,
			Note:       "run created",
			Metadata:   domain.Metadata{},
			RecordedAt: now,
		})
		return err
	})
	if err != nil {
		return domain.Run{}, err
	}
	s.observer.RunCreated()
	return run, nil
}

// RunView is a run with the catalog name and the displayed score.
type RunView struct {
	Run          domain.Run
	WorkflowName string
	// Score is only set for succeeded runs, rounded to three decimals.
	Score *float64
}

func (v RunView) UIStatus() string {
	return v.Run.Status.UILabel()
}

func newRunView(run domain.Run, workflowName string, score *float64) RunView {
	view := RunView{Run: run, WorkflowName: workflowName}
	if run.Status == domain.RunStatusSucceeded && score != nil {
		rounded := RoundScore(*score)
		view.Score = &rounded
	}
	return view
}

// RoundScore rounds to three decimals.
func RoundScore(score float64) float64 {
	return math.Round(score*1000) / 1000
}

func (s *Service) GetRun(ctx context.Context, callerUserID, runID string) (RunView, error) {
	run, err := s.gate.Require(ctx, callerUserID, runID, access.ActionView)
	if err != nil {
		return RunView{}, err
	}
	var workflowName string
	if run.WorkflowID != "" {
		workflow, err := s.store.Workflows().GetWorkflow(ctx, run.WorkflowID)
		switch {
		case err == nil:
			workflowName = workflow.Name
		case !errors.Is(err, repo.ErrNotFound):
			return RunView{}, err
		}
	}
	var score *float64
	metrics, err := s.store.Metrics().GetMetrics(ctx, run.ID)
	switch {
	case err == nil:
		score = metrics.PrimaryScore
	case !errors.Is(err, repo.ErrNotFound):
		return RunView{}, err
	}
	return newRunView(run, workflowName, score), nil
}

type ListQuery struct {
	Search string
	// Statuses accepts run statuses or UI labels.
	Statuses []string
	Limit    int
	Offset   int
}

type RunPage struct {
	Runs   []RunView
	Total  int
	Limit  int
	Offset int
}

// ListRuns returns the caller's runs, newest first.
func (s *Service) ListRuns(ctx context.Context, callerUserID string, q ListQuery) (RunPage, error) {
	callerUserID = strings.TrimSpace(callerUserID)
	if callerUserID == "" {
		return RunPage{}, domain.NewValidationError("owner_user_id", "is required")
	}
	limit := q.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}
	if limit < 1 || limit > MaxListLimit {
		return RunPage{}, domain.NewValidationError("limit", "must be between 1 and 200")
	}
	if q.Offset < 0 {
		return RunPage{}, domain.NewValidationError("offset", "must be >= 0")
	}
	statuses, err := parseStatusFilter(q.Statuses)
	if err != nil {
		return RunPage{}, err
	}

	records, total, err := s.store.Runs().ListRuns(ctx, repo.RunFilter{
		OwnerUserID: callerUserID,
		Statuses:    statuses,
		Search:      q.Search,
		Limit:       limit,
		Offset:      q.Offset,
	})
	if err != nil {
		return RunPage{}, err
	}
	views := make([]RunView, 0, len(records))
	for _, record := range records {
		views = append(views, newRunView(record.Run, record.WorkflowName, record.PrimaryScore))
	}
	return RunPage{Runs: views, Total: total, Limit: limit, Offset: q.Offset}, nil
}

func parseStatusFilter(raw []string) ([]domain.RunStatus, error) {
	seen := make(map[domain.RunStatus]struct{})
	out := make([]domain.RunStatus, 0, len(raw))
	add := func(status domain.RunStatus) {
		if _, ok := seen[status]; !ok {
			seen[status] = struct{}{}
			out = append(out, status)
		}
	}
	for _, value := range raw {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if status, err := domain.ParseRunStatus(value); err == nil {
			add(status)
			continue
		}
		statuses := domain.StatusesForUILabel(value)
		if statuses == nil {
			return nil, domain.NewValidationError("status", "unknown status "+value)
		}
		for _, status := range statuses {
			add(status)
		}
	}
	return out, nil
}

// ListActive returns every non-terminal run across owners, fetched in pages
// of batch rows, newest first.
func (s *Service) ListActive(ctx context.Context, batch int) ([]domain.Run, error) {
	return s.listAll(ctx, repo.RunFilter{NonTerminalOnly: true}, batch)
}

// ListUnscored returns succeeded runs across owners that have no primary score yet.
func (s *Service) ListUnscored(ctx context.Context, batch int) ([]domain.Run, error) {
	return s.listAll(ctx, repo.RunFilter{
		Statuses: []domain.RunStatus{domain.RunStatusSucceeded},
		Unscored: true,
	}, batch)
}

func (s *Service) listAll(ctx context.Context, filter repo.RunFilter, batch int) ([]domain.Run, error) {
	if batch <= 0 {
		batch = DefaultListLimit
	}
	filter.Limit = batch
	out := make([]domain.Run, 0)
	for offset := 0; ; offset += batch {
		filter.Offset = offset
		records, total, err := s.store.Runs().ListRuns(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			out = append(out, record.Run)
		}
		if len(records) < batch || offset+batch >= total {
			return out, nil
		}
	}
}
