package domain

import (
	"strings"
	"time"
)

// Workflow is optional catalog metadata for a reusable workflow definition.
type Workflow struct {
	ID              string
	Name            string
	Description     string
	RepoURL         string
	DefaultRevision string
	CreatedAt       time.Time
}

func (w Workflow) Validate() error {
	if strings.TrimSpace(w.ID) == "" {
		return NewValidationError("workflow_id", "is required")
	}
	if strings.TrimSpace(w.Name) == "" {
		return NewValidationError("name", "is required")
	}
	return nil
}
