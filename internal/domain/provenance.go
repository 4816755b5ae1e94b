package domain

import (
	"strings"
	"time"
)

// Direction distinguishes consumed from produced artifacts.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

func (d Direction) Valid() bool {
	return d == DirectionInput || d == DirectionOutput
}

// Rank orders inputs before outputs.
func (d Direction) Rank() int {
	if d == DirectionInput {
		return 0
	}
	return 1
}

// ProvenanceLink records that a run consumed or produced a storage object.
type ProvenanceLink struct {
	RunID     string
	ObjectID  string
	Direction Direction
	TypeTag   string
	Label     string
	Metadata  Metadata
	CreatedAt time.Time
}

func (l ProvenanceLink) Validate() error {
	if strings.TrimSpace(l.RunID) == "" {
		return NewValidationError("run_id", "is required")
	}
	if strings.TrimSpace(l.ObjectID) == "" {
		return NewValidationError("object_id", "is required")
	}
	if !l.Direction.Valid() {
		return NewValidationError("direction", "must be input or output")
	}
	if strings.TrimSpace(l.TypeTag) == "" {
		return NewValidationError("type", "is required")
	}
	return nil
}

// ProvenanceEntry is a provenance link joined with its storage object.
type ProvenanceEntry struct {
	Link   ProvenanceLink
	Object StorageObject
}
