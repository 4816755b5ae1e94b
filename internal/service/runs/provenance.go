package runs

import (
	"context"
	"errors"
	"iter"
	"strings"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/repo"
	"github.com/bindflow/runledger/internal/service/access"
	"github.com/bindflow/runledger/internal/service/objects"
)

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

type AttachInput struct {
	// ObjectID references an already registered object. When empty, Object is
	// registered first.
	ObjectID string
	Object   objects.Descriptor
	TypeTag  string
	Label    string
	Metadata domain.Metadata
}

type AttachResult struct {
	Object domain.StorageObject
	// Created is false when the link already existed.
	Created bool
}

func (s *Service) AttachInput(ctx context.Context, callerUserID, runID string, in AttachInput) (AttachResult, error) {
	return s.attachAs(ctx, callerUserID, runID, domain.DirectionInput, in)
}

func (s *Service) AttachOutput(ctx context.Context, callerUserID, runID string, in AttachInput) (AttachResult, error) {
	return s.attachAs(ctx, callerUserID, runID, domain.DirectionOutput, in)
}

func (s *Service) attachAs(ctx context.Context, callerUserID, runID string, direction domain.Direction, in AttachInput) (AttachResult, error) {
	run, err := s.gate.Require(ctx, callerUserID, runID, access.ActionAttach)
	if err != nil {
		return AttachResult{}, err
	}
	return s.attach(ctx, run.ID, direction, in)
}

// RecordOutputs registers and attaches outputs reported by the platform.
func (s *Service) RecordOutputs(ctx context.Context, runID string, typeTag string, descs []objects.Descriptor) (int, error) {
	created := 0
	for _, desc := range descs {
		res, err := s.attach(ctx, runID, domain.DirectionOutput, AttachInput{Object: desc, TypeTag: typeTag})
		if err != nil {
			return created, err
		}
		if res.Created {
			created++
		}
	}
	return created, nil
}

// AttachOutputPrefix registers every object listed under bucket/prefix and
// attaches each one as an output of the caller's run. It returns the number of
// newly created links.
func (s *Service) AttachOutputPrefix(ctx context.Context, callerUserID, runID string, lister objects.Lister, bucket, prefix, typeTag string) (int, error) {
	run, err := s.gate.Require(ctx, callerUserID, runID, access.ActionAttach)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(bucket) == "" {
		return 0, domain.NewValidationError("bucket", "is required")
	}
	registered, err := s.registry.RegisterPrefix(ctx, lister, bucket, prefix)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, object := range registered {
		res, err := s.attach(ctx, run.ID, domain.DirectionOutput, AttachInput{ObjectID: object.ID, TypeTag: typeTag})
		if err != nil {
			return created, err
		}
		if res.Created {
			created++
		}
	}
	return created, nil
}

// attach is idempotent on (run, object) per direction.
func (s *Service) attach(ctx context.Context, runID string, direction domain.Direction, in AttachInput) (AttachResult, error) {
	typeTag := strings.TrimSpace(in.TypeTag)
	if typeTag == "" {
		return AttachResult{}, domain.NewValidationError("type", "is required")
	}
	var (
		object domain.StorageObject
		err    error
	)
	if id := strings.TrimSpace(in.ObjectID); id != "" {
		object, err = s.registry.Get(ctx, id)
		if isNotFound(err) {
			return AttachResult{}, domain.NewValidationError("object_id", "unknown storage object")
		}
	} else {
		object, err = s.registry.GetOrCreate(ctx, in.Object)
	}
	if err != nil {
		return AttachResult{}, err
	}
	created, err := s.store.Provenance().AttachLink(ctx, domain.ProvenanceLink{
		RunID:     runID,
		ObjectID:  object.ID,
		Direction: direction,
		TypeTag:   typeTag,
		Label:     strings.TrimSpace(in.Label),
		Metadata:  in.Metadata.Clone(),
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return AttachResult{}, err
	}
	return AttachResult{Object: object, Created: created}, nil
}

// ListProvenance checks ownership, then returns a lazy sequence of the run's
// inputs followed by its outputs, each ordered by object identity. The
// sequence reads the store page by page and starts over on every range.
func (s *Service) ListProvenance(ctx context.Context, callerUserID, runID string) (iter.Seq2[domain.ProvenanceEntry, error], error) {
	run, err := s.gate.Require(ctx, callerUserID, runID, access.ActionReadLineage)
	if err != nil {
		return nil, err
	}
	return s.provenance(ctx, run.ID), nil
}

func (s *Service) provenance(ctx context.Context, runID string) iter.Seq2[domain.ProvenanceEntry, error] {
	return func(yield func(domain.ProvenanceEntry, error) bool) {
		for _, direction := range []domain.Direction{domain.DirectionInput, domain.DirectionOutput} {
			var after *domain.ObjectIdentity
			for {
				page, err := s.store.Provenance().ListProvenancePage(ctx, repo.ProvenancePage{
					RunID:     runID,
					Direction: direction,
					After:     after,
					Limit:     s.pageSize,
				})
				if err != nil {
					yield(domain.ProvenanceEntry{}, err)
					return
				}
				for _, entry := range page {
					if !yield(entry, nil) {
						return
					}
				}
				if len(page) < s.pageSize {
					break
				}
				last := page[len(page)-1].Object.Identity
				after = &last
			}
		}
	}
}

// CollectProvenance drains seq into a slice.
func CollectProvenance(seq iter.Seq2[domain.ProvenanceEntry, error]) ([]domain.ProvenanceEntry, error) {
	out := make([]domain.ProvenanceEntry, 0)
	for entry, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}
