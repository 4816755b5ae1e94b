package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bindflow/runledger/internal/repo"
)

// Store is the Postgres repo.Store. Repositories obtained from it run on the
// pool; InTx hands out repositories bound to a single transaction.
type Store struct {
	db *sql.DB
}

var _ repo.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

type repositories struct {
	db DB
}

func (r repositories) Users() repo.UserRepository               { return &UserStore{db: r.db} }
func (r repositories) Workflows() repo.WorkflowRepository       { return &WorkflowStore{db: r.db} }
func (r repositories) Runs() repo.RunRepository                 { return &RunStore{db: r.db} }
func (r repositories) Objects() repo.ObjectRepository           { return &ObjectStore{db: r.db} }
func (r repositories) Provenance() repo.ProvenanceRepository    { return &ProvenanceStore{db: r.db} }
func (r repositories) StatusEvents() repo.StatusEventRepository { return &StatusEventStore{db: r.db} }
func (r repositories) Metrics() repo.MetricsRepository          { return &MetricsStore{db: r.db} }

func (s *Store) pool() repositories { return repositories{db: s.db} }

func (s *Store) Users() repo.UserRepository               { return s.pool().Users() }
func (s *Store) Workflows() repo.WorkflowRepository       { return s.pool().Workflows() }
func (s *Store) Runs() repo.RunRepository                 { return s.pool().Runs() }
func (s *Store) Objects() repo.ObjectRepository           { return s.pool().Objects() }
func (s *Store) Provenance() repo.ProvenanceRepository    { return s.pool().Provenance() }
func (s *Store) StatusEvents() repo.StatusEventRepository { return s.pool().StatusEvents() }
func (s *Store) Metrics() repo.MetricsRepository          { return s.pool().Metrics() }

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx repo.Repositories) error) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(ctx, repositories{db: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}
