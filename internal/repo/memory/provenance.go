package memory

import (
	"context"
	"sort"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/repo"
)

type provenanceRepo struct{ v view }

// AttachLink inserts the link unless the (run, object) pair already exists in
// that direction. It reports whether a row was created.
func (r provenanceRepo) AttachLink(_ context.Context, link domain.ProvenanceLink) (bool, error) {
	if err := link.Validate(); err != nil {
		return false, err
	}
	link.Metadata = link.Metadata.Clone()
	if link.CreatedAt.IsZero() {
		link.CreatedAt = nowUTC()
	}
	created := false
	err := r.v.read(func(st *state) error {
		if _, ok := st.runs[link.RunID]; !ok {
			return repo.ErrNotFound
		}
		if _, ok := st.objects[link.ObjectID]; !ok {
			return repo.ErrNotFound
		}
		links := st.links(link.Direction)
		key := linkKey{runID: link.RunID, objectID: link.ObjectID}
		if _, ok := links[key]; ok {
			return nil
		}
		links[key] = link
		created = true
		return nil
	})
	return created, err
}

func (r provenanceRepo) ListProvenancePage(_ context.Context, page repo.ProvenancePage) ([]domain.ProvenanceEntry, error) {
	if !page.Direction.Valid() {
		return nil, domain.NewValidationError("direction", "must be input or output")
	}
	entries := make([]domain.ProvenanceEntry, 0)
	err := r.v.read(func(st *state) error {
		for key, link := range st.links(page.Direction) {
			if key.runID != page.RunID {
				continue
			}
			object, ok := st.objects[key.objectID]
			if !ok {
				continue
			}
			if page.After != nil && !page.After.Less(object.Identity) {
				continue
			}
			entries = append(entries, domain.ProvenanceEntry{Link: link, Object: object})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Object.Identity.Less(entries[j].Object.Identity)
	})
	if page.Limit > 0 && len(entries) > page.Limit {
		entries = entries[:page.Limit]
	}
	return entries, nil
}
