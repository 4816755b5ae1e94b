// Package objects registers immutable storage object references.
package objects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/platform/env"
	"github.com/bindflow/runledger/internal/platform/objectstore"
	"github.com/bindflow/runledger/internal/repo"
	"github.com/google/uuid"
)

type Config struct {
	// VerifyChecksum rejects re-registration of an identity whose recorded
	// checksum differs from the supplied one.
	VerifyChecksum bool
}

func ConfigFromEnv() (Config, error) {
	verify, err := env.Bool("OBJECT_IDENTITY_VERIFY_CHECKSUM", false)
	if err != nil {
		return Config{}, err
	}
	return Config{VerifyChecksum: verify}, nil
}

// Lister supplies object listings, typically *objectstore.Client.
type Lister interface {
	ListObjects(ctx context.Context, bucket, prefix string) ([]objectstore.ObjectInfo, error)
}

// Descriptor is the caller-supplied description of an object version.
type Descriptor struct {
	Bucket      string
	Key         string
	Version     string
	SizeBytes   int64
	Checksum    string
	ContentType string
}

func (d Descriptor) Identity() domain.ObjectIdentity {
	return domain.ObjectIdentity{Bucket: d.Bucket, Key: d.Key, Version: d.Version}.Normalize()
}

// FromListing converts a listing entry into a descriptor.
func FromListing(info objectstore.ObjectInfo) Descriptor {
	return Descriptor{
		Bucket:      info.Bucket,
		Key:         info.Key,
		Version:     info.VersionID,
		SizeBytes:   info.Size,
		Checksum:    info.ETag,
		ContentType: info.ContentType,
	}
}

type Registry struct {
	objects repo.ObjectRepository
	cfg     Config
	now     func() time.Time
	newID   func() string
}

func New(objects repo.ObjectRepository, cfg Config) *Registry {
	if objects == nil {
		return nil
	}
	return &Registry{
		objects: objects,
		cfg:     cfg,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// GetOrCreate returns the object recorded for the descriptor's identity,
// inserting it when absent. Existing rows are never modified. When two callers
// race, the loser's insert is rejected by the identity constraint and it reads
// the winner's row instead.
func (r *Registry) GetOrCreate(ctx context.Context, desc Descriptor) (domain.StorageObject, error) {
	identity := desc.Identity()
	if err := identity.Validate(); err != nil {
		return domain.StorageObject{}, err
	}
	if desc.SizeBytes < 0 {
		return domain.StorageObject{}, domain.NewValidationError("size_bytes", "must be >= 0")
	}

	existing, err := r.objects.GetObjectByIdentity(ctx, identity)
	if err == nil {
		return r.verify(existing, desc)
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.StorageObject{}, err
	}

	object := domain.StorageObject{
		ID:          r.newID(),
		Identity:    identity,
		SizeBytes:   desc.SizeBytes,
		Checksum:    strings.TrimSpace(desc.Checksum),
		ContentType: strings.TrimSpace(desc.ContentType),
		CreatedAt:   r.now().UTC(),
	}
	err = r.objects.InsertObject(ctx, object)
	if err == nil {
		return object, nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return domain.StorageObject{}, err
	}
	existing, err = r.objects.GetObjectByIdentity(ctx, identity)
	if err != nil {
		return domain.StorageObject{}, fmt.Errorf("lookup after conflict: %w", err)
	}
	return r.verify(existing, desc)
}

func (r *Registry) verify(existing domain.StorageObject, desc Descriptor) (domain.StorageObject, error) {
	if !r.cfg.VerifyChecksum {
		return existing, nil
	}
	supplied := strings.TrimSpace(desc.Checksum)
	if supplied == "" || existing.Checksum == "" || supplied == existing.Checksum {
		return existing, nil
	}
	return domain.StorageObject{}, &domain.ConflictError{
		Entity: "storage_object",
		Field:  "checksum",
		Value:  existing.Identity.String(),
	}
}

func (r *Registry) Get(ctx context.Context, id string) (domain.StorageObject, error) {
	return r.objects.GetObject(ctx, strings.TrimSpace(id))
}

// RegisterPrefix registers every object listed under bucket/prefix.
func (r *Registry) RegisterPrefix(ctx context.Context, lister Lister, bucket, prefix string) ([]domain.StorageObject, error) {
	if lister == nil {
		return nil, errors.New("lister is required")
	}
	listing, err := lister.ListObjects(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]domain.StorageObject, 0, len(listing))
	for _, info := range listing {
		if info.Bucket == "" {
			info.Bucket = bucket
		}
		object, err := r.GetOrCreate(ctx, FromListing(info))
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", info.Key, err)
		}
		out = append(out, object)
	}
	return out, nil
}
