// Package catalog manages optional workflow metadata that runs may reference.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/repo"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

type Service struct {
	workflows repo.WorkflowRepository
	now       func() time.Time
	newID     func() string
}

func New(workflows repo.WorkflowRepository) *Service {
	if workflows == nil {
		return nil
	}
	return &Service{
		workflows: workflows,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

type CreateInput struct {
	ID              string
	Name            string
	Description     string
	RepoURL         string
	DefaultRevision string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Workflow, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = s.newID()
	} else if _, err := uuid.Parse(id); err != nil {
		return domain.Workflow{}, domain.NewValidationError("workflow_id", "must be a uuid")
	}
	workflow := domain.Workflow{
		ID:              id,
		Name:            strings.TrimSpace(in.Name),
		Description:     strings.TrimSpace(in.Description),
		RepoURL:         strings.TrimSpace(in.RepoURL),
		DefaultRevision: strings.TrimSpace(in.DefaultRevision),
		CreatedAt:       s.now().UTC(),
	}
	if err := workflow.Validate(); err != nil {
		return domain.Workflow{}, err
	}
	if err := s.workflows.CreateWorkflow(ctx, workflow); err != nil {
		return domain.Workflow{}, err
	}
	return workflow, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Workflow, error) {
	return s.workflows.GetWorkflow(ctx, strings.TrimSpace(id))
}

func (s *Service) List(ctx context.Context, limit int) ([]domain.Workflow, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.workflows.ListWorkflows(ctx, limit)
}

// Delete removes the catalog entry; runs that referenced it keep existing
// with no workflow.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.workflows.DeleteWorkflow(ctx, strings.TrimSpace(id))
}

type seedFile struct {
	Workflows []seedWorkflow `yaml:"workflows"`
}

type seedWorkflow struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	RepoURL         string `yaml:"repo_url"`
	DefaultRevision string `yaml:"default_revision"`
}

// ParseSeed decodes a catalog seed document.
func ParseSeed(raw []byte) ([]CreateInput, error) {
	var doc seedFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog seed: %w", err)
	}
	out := make([]CreateInput, 0, len(doc.Workflows))
	for i, w := range doc.Workflows {
		if strings.TrimSpace(w.ID) == "" {
			return nil, fmt.Errorf("catalog seed entry %d: id is required", i)
		}
		out = append(out, CreateInput{
			ID:              w.ID,
			Name:            w.Name,
			Description:     w.Description,
			RepoURL:         w.RepoURL,
			DefaultRevision: w.DefaultRevision,
		})
	}
	return out, nil
}

// Seed creates the entries that do not exist yet and returns how many were added.
func (s *Service) Seed(ctx context.Context, entries []CreateInput) (int, error) {
	created := 0
	for _, entry := range entries {
		_, err := s.workflows.GetWorkflow(ctx, strings.TrimSpace(entry.ID))
		if err == nil {
			continue
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return created, err
		}
		if _, err := s.Create(ctx, entry); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			return created, fmt.Errorf("seed workflow %s: %w", entry.ID, err)
		}
		created++
	}
	return created, nil
}

// SeedFromFile loads path and seeds it. An empty path is a no-op.
func (s *Service) SeedFromFile(ctx context.Context, path string) (int, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read catalog seed: %w", err)
	}
	entries, err := ParseSeed(raw)
	if err != nil {
		return 0, err
	}
	return s.Seed(ctx, entries)
}
