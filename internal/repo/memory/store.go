// Package memory is an in-process repo.Store that enforces the same uniqueness,
// foreign-key and cascade rules as the Postgres schema. It backs the dev store
// mode and the service tests.
package memory

import (
	"context"
	"sync"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/repo"
)

type linkKey struct {
	runID    string
	objectID string
}

type state struct {
	users       map[string]domain.User
	workflows   map[string]domain.Workflow
	runs        map[string]domain.Run
	objects     map[string]domain.StorageObject
	inputs      map[linkKey]domain.ProvenanceLink
	outputs     map[linkKey]domain.ProvenanceLink
	events      []domain.StatusEvent
	metrics     map[string]domain.RunMetrics
	nextEventID int64
}

func newState() *state {
	return &state{
		users:     make(map[string]domain.User),
		workflows: make(map[string]domain.Workflow),
		runs:      make(map[string]domain.Run),
		objects:   make(map[string]domain.StorageObject),
		inputs:    make(map[linkKey]domain.ProvenanceLink),
		outputs:   make(map[linkKey]domain.ProvenanceLink),
		metrics:   make(map[string]domain.RunMetrics),
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.workflows {
		out.workflows[k] = v
	}
	for k, v := range s.runs {
		out.runs[k] = v
	}
	for k, v := range s.objects {
		out.objects[k] = v
	}
	for k, v := range s.inputs {
		out.inputs[k] = v
	}
	for k, v := range s.outputs {
		out.outputs[k] = v
	}
	for k, v := range s.metrics {
		out.metrics[k] = v
	}
	out.events = append(make([]domain.StatusEvent, 0, len(s.events)), s.events...)
	out.nextEventID = s.nextEventID
	return out
}

func (s *state) links(direction domain.Direction) map[linkKey]domain.ProvenanceLink {
	if direction == domain.DirectionInput {
		return s.inputs
	}
	return s.outputs
}

// Store is a mutex-guarded repo.Store. Transactions run serially against a
// private copy of the state that replaces the shared state on success.
type Store struct {
	mu sync.Mutex
	st *state
}

var _ repo.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

// view executes repository calls either against a transaction's private state
// or, outside a transaction, against the shared state under the store lock.
type view struct {
	store *Store
	tx    *state
}

func (v view) read(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.st)
}

func (v view) Users() repo.UserRepository               { return userRepo{v} }
func (v view) Workflows() repo.WorkflowRepository       { return workflowRepo{v} }
func (v view) Runs() repo.RunRepository                 { return runRepo{v} }
func (v view) Objects() repo.ObjectRepository           { return objectRepo{v} }
func (v view) Provenance() repo.ProvenanceRepository    { return provenanceRepo{v} }
func (v view) StatusEvents() repo.StatusEventRepository { return statusEventRepo{v} }
func (v view) Metrics() repo.MetricsRepository          { return metricsRepo{v} }

func (s *Store) root() view { return view{store: s} }

func (s *Store) Users() repo.UserRepository               { return s.root().Users() }
func (s *Store) Workflows() repo.WorkflowRepository       { return s.root().Workflows() }
func (s *Store) Runs() repo.RunRepository                 { return s.root().Runs() }
func (s *Store) Objects() repo.ObjectRepository           { return s.root().Objects() }
func (s *Store) Provenance() repo.ProvenanceRepository    { return s.root().Provenance() }
func (s *Store) StatusEvents() repo.StatusEventRepository { return s.root().StatusEvents() }
func (s *Store) Metrics() repo.MetricsRepository          { return s.root().Metrics() }

// InTx must not call back into the non-transactional repositories of s.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx repo.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := s.st.clone()
	if err := fn(ctx, view{store: s, tx: tx}); err != nil {
		return err
	}
	s.st = tx
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}
