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

type ObjectStore struct {
	db DB
}

func NewObjectStore(db DB) *ObjectStore {
	if db == nil {
		return nil
	}
	return &ObjectStore{db: db}
}

const objectColumns = `id, bucket, object_key, version_id, size_bytes, checksum, content_type, created_at`

// InsertObject never aborts the surrounding transaction on a duplicate
// identity: the conflict is absorbed by ON CONFLICT and reported as a
// *domain.ConflictError.
func (s *ObjectStore) InsertObject(ctx context.Context, object domain.StorageObject) error {
	if s == nil || s.db == nil {
		return errors.New("object store not initialized")
	}
	object.Identity = object.Identity.Normalize()
	if err := object.Validate(); err != nil {
		return err
	}
	var size any
	if object.SizeBytes > 0 {
		size = object.SizeBytes
	}
	var id string
	err := s.db.QueryRowContext(
		ctx,
		`INSERT INTO storage_objects (`+objectColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT DO NOTHING
		 RETURNING id`,
		strings.TrimSpace(object.ID),
		object.Identity.Bucket,
		object.Identity.Key,
		object.Identity.Version,
		size,
		nullIfEmpty(object.Checksum),
		nullIfEmpty(object.ContentType),
		normalizeTime(object.CreatedAt),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.ConflictError{Entity: "storage_object", Field: "identity", Value: object.Identity.String()}
	}
	if err != nil {
		return fmt.Errorf("insert storage object: %w", err)
	}
	return nil
}

func (s *ObjectStore) GetObject(ctx context.Context, id string) (domain.StorageObject, error) {
	if s == nil || s.db == nil {
		return domain.StorageObject{}, errors.New("object store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.StorageObject{}, repo.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+objectColumns+` FROM storage_objects WHERE id = $1`, id)
	object, err := scanObject(row)
	if err != nil {
		return domain.StorageObject{}, handleNotFound(err)
	}
	return object, nil
}

func (s *ObjectStore) GetObjectByIdentity(ctx context.Context, identity domain.ObjectIdentity) (domain.StorageObject, error) {
	if s == nil || s.db == nil {
		return domain.StorageObject{}, errors.New("object store not initialized")
	}
	identity = identity.Normalize()
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+objectColumns+` FROM storage_objects
		 WHERE bucket = $1 AND object_key = $2 AND version_id = $3`,
		identity.Bucket,
		identity.Key,
		identity.Version,
	)
	object, err := scanObject(row)
	if err != nil {
		return domain.StorageObject{}, handleNotFound(err)
	}
	return object, nil
}

// DeleteObject fails with a conflict while any run still references the object.
func (s *ObjectStore) DeleteObject(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("object store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM storage_objects WHERE id = $1`, strings.TrimSpace(id))
	if err != nil {
		if pg.IsInvalidText(err) {
			return repo.ErrNotFound
		}
		if pg.IsForeignKeyViolation(err) {
			return &domain.ConflictError{Entity: "storage_object", Field: "references", Value: id}
		}
		return fmt.Errorf("delete storage object: %w", err)
	}
	return rowsAffected(res)
}

func scanObject(row scanner, prefix ...any) (domain.StorageObject, error) {
	var (
		object                domain.StorageObject
		size                  sql.NullInt64
		checksum, contentType sql.NullString
	)
	dest := append(prefix,
		&object.ID,
		&object.Identity.Bucket,
		&object.Identity.Key,
		&object.Identity.Version,
		&size,
		&checksum,
		&contentType,
		&object.CreatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return domain.StorageObject{}, err
	}
	object.SizeBytes = size.Int64
	object.Checksum = checksum.String
	object.ContentType = contentType.String
	object.CreatedAt = object.CreatedAt.UTC()
	return object, nil
}
