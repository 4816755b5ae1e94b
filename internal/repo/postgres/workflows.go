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

type WorkflowStore struct {
	db DB
}

func NewWorkflowStore(db DB) *WorkflowStore {
	if db == nil {
		return nil
	}
	return &WorkflowStore{db: db}
}

func (s *WorkflowStore) CreateWorkflow(ctx context.Context, workflow domain.Workflow) error {
	if s == nil || s.db == nil {
		return errors.New("workflow store not initialized")
	}
	if err := workflow.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO workflows (id, name, description, repo_url, default_revision, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		strings.TrimSpace(workflow.ID),
		strings.TrimSpace(workflow.Name),
		nullIfEmpty(workflow.Description),
		nullIfEmpty(workflow.RepoURL),
		nullIfEmpty(workflow.DefaultRevision),
		normalizeTime(workflow.CreatedAt),
	)
	if err != nil {
		if conflict := conflictFromUnique("workflow", err, map[string]string{"id": workflow.ID}); conflict != nil {
			return conflict
		}
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

func (s *WorkflowStore) GetWorkflow(ctx context.Context, id string) (domain.Workflow, error) {
	if s == nil || s.db == nil {
		return domain.Workflow{}, errors.New("workflow store not initialized")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, description, repo_url, default_revision, created_at FROM workflows WHERE id = $1`,
		strings.TrimSpace(id),
	)
	workflow, err := scanWorkflow(row)
	if err != nil {
		return domain.Workflow{}, handleNotFound(err)
	}
	return workflow, nil
}

func (s *WorkflowStore) ListWorkflows(ctx context.Context, limit int) ([]domain.Workflow, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("workflow store not initialized")
	}
	builder := psql.Select("id", "name", "description", "repo_url", "default_revision", "created_at").
		From("workflows").
		OrderBy("name ASC", "id ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list workflows query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Workflow, 0)
	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		out = append(out, workflow)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return out, nil
}

// DeleteWorkflow leaves dependent runs in place with a null workflow reference.
func (s *WorkflowStore) DeleteWorkflow(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("workflow store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, strings.TrimSpace(id))
	if err != nil {
		if pg.IsInvalidText(err) {
			return repo.ErrNotFound
		}
		return fmt.Errorf("delete workflow: %w", err)
	}
	return rowsAffected(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row scanner) (domain.Workflow, error) {
	var (
		workflow                    domain.Workflow
		description, repo, revision sql.NullString
	)
	if err := row.Scan(&workflow.ID, &workflow.Name, &description, &repo, &revision, &workflow.CreatedAt); err != nil {
		return domain.Workflow{}, err
	}
	workflow.Description = description.String
	workflow.RepoURL = repo.String
	workflow.DefaultRevision = revision.String
	return workflow, nil
}
