package domain

import (
	"fmt"
	"strings"
	"time"
)

// ObjectIdentity is the version-qualified identity of a stored artifact.
// An empty Version denotes an unversioned object.
type ObjectIdentity struct {
	Bucket  string
	Key     string
	Version string
}

func (id ObjectIdentity) Normalize() ObjectIdentity {
	return ObjectIdentity{
		Bucket:  strings.TrimSpace(id.Bucket),
		Key:     strings.TrimSpace(id.Key),
		Version: strings.TrimSpace(id.Version),
	}
}

func (id ObjectIdentity) Validate() error {
	if strings.TrimSpace(id.Bucket) == "" {
		return NewValidationError("bucket", "is required")
	}
	if strings.TrimSpace(id.Key) == "" {
		return NewValidationError("key", "is required")
	}
	return nil
}

// Less orders identities by bucket, key then version.
func (id ObjectIdentity) Less(other ObjectIdentity) bool {
	if id.Bucket != other.Bucket {
		return id.Bucket < other.Bucket
	}
	if id.Key != other.Key {
		return id.Key < other.Key
	}
	return id.Version < other.Version
}

func (id ObjectIdentity) String() string {
	uri := fmt.Sprintf("s3://%s/%s", id.Bucket, id.Key)
	if id.Version != "" {
		uri += "?versionId=" + id.Version
	}
	return uri
}

// StorageObject is an immutable reference to externally stored data.
type StorageObject struct {
	ID          string
	Identity    ObjectIdentity
	SizeBytes   int64
	Checksum    string
	ContentType string
	CreatedAt   time.Time
}

func (o StorageObject) Validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return NewValidationError("object_id", "is required")
	}
	if err := o.Identity.Validate(); err != nil {
		return err
	}
	if o.SizeBytes < 0 {
		return NewValidationError("size_bytes", "must be >= 0")
	}
	return nil
}
