package memory

import (
	"context"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/repo"
)

type objectRepo struct{ v view }

func (r objectRepo) InsertObject(_ context.Context, object domain.StorageObject) error {
	object.Identity = object.Identity.Normalize()
	if err := object.Validate(); err != nil {
		return err
	}
	if object.CreatedAt.IsZero() {
		object.CreatedAt = nowUTC()
	}
	return r.v.read(func(st *state) error {
		if _, ok := st.objects[object.ID]; ok {
			return &domain.ConflictError{Entity: "storage_object", Field: "id", Value: object.ID}
		}
		for _, existing := range st.objects {
			if existing.Identity == object.Identity {
				return &domain.ConflictError{Entity: "storage_object", Field: "identity", Value: object.Identity.String()}
			}
		}
		st.objects[object.ID] = object
		return nil
	})
}

func (r objectRepo) GetObject(_ context.Context, id string) (domain.StorageObject, error) {
	var out domain.StorageObject
	err := r.v.read(func(st *state) error {
		object, ok := st.objects[id]
		if !ok {
			return repo.ErrNotFound
		}
		out = object
		return nil
	})
	return out, err
}

func (r objectRepo) GetObjectByIdentity(_ context.Context, identity domain.ObjectIdentity) (domain.StorageObject, error) {
	identity = identity.Normalize()
	var out domain.StorageObject
	err := r.v.read(func(st *state) error {
		for _, object := range st.objects {
			if object.Identity == identity {
				out = object
				return nil
			}
		}
		return repo.ErrNotFound
	})
	return out, err
}

// DeleteObject refuses to remove objects still referenced by a provenance link.
func (r objectRepo) DeleteObject(_ context.Context, id string) error {
	return r.v.read(func(st *state) error {
		if _, ok := st.objects[id]; !ok {
			return repo.ErrNotFound
		}
		for key := range st.inputs {
			if key.objectID == id {
				return &domain.ConflictError{Entity: "storage_object", Field: "references", Value: id}
			}
		}
		for key := range st.outputs {
			if key.objectID == id {
				return &domain.ConflictError{Entity: "storage_object", Field: "references", Value: id}
			}
		}
		delete(st.objects, id)
		return nil
	})
}
