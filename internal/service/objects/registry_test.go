package objects

import (
	"context"
	"sync"
	"testing"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/platform/objectstore"
	"github.com/bindflow/runledger/internal/repo/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateReturnsExistingUnchanged(t *testing.T) {
	ctx := context.Background()
	reg := New(memory.New().Objects(), Config{})

	first, err := reg.GetOrCreate(ctx, Descriptor{Bucket: "bucket1", Key: "key1", Version: "v1", SizeBytes: 10, Checksum: "abc"})
	require.NoError(t, err)

	second, err := reg.GetOrCreate(ctx, Descriptor{Bucket: " bucket1 ", Key: "key1", Version: "v1", SizeBytes: 99, Checksum: "zzz"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(10), second.SizeBytes)
	assert.Equal(t, "abc", second.Checksum)

	other, err := reg.GetOrCreate(ctx, Descriptor{Bucket: "bucket1", Key: "key1", Version: "v2"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestGetOrCreateConcurrentCallersConverge(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	reg := New(store.Objects(), Config{})

	const callers = 16
	ids := make([]string, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			object, err := reg.GetOrCreate(ctx, Descriptor{Bucket: "bucket1", Key: "key1", Version: "v1"})
			ids[i], errs[i] = object.ID, err
		}(i)
	}
	close(start)
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	stored, err := store.Objects().GetObjectByIdentity(ctx, domain.ObjectIdentity{Bucket: "bucket1", Key: "key1", Version: "v1"})
	require.NoError(t, err)
	assert.Equal(t, ids[0], stored.ID)
}

func TestGetOrCreateVerifiesChecksumWhenConfigured(t *testing.T) {
	ctx := context.Background()
	reg := New(memory.New().Objects(), Config{VerifyChecksum: true})

	_, err := reg.GetOrCreate(ctx, Descriptor{Bucket: "b", Key: "k", Checksum: "abc"})
	require.NoError(t, err)

	_, err = reg.GetOrCreate(ctx, Descriptor{Bucket: "b", Key: "k", Checksum: "abc"})
	require.NoError(t, err)
	_, err = reg.GetOrCreate(ctx, Descriptor{Bucket: "b", Key: "k"})
	require.NoError(t, err)

	_, err = reg.GetOrCreate(ctx, Descriptor{Bucket: "b", Key: "k", Checksum: "def"})
	require.ErrorIs(t, err, domain.ErrConflict)
	field, _ := domain.ConflictField(err)
	assert.Equal(t, "checksum", field)
}

func TestGetOrCreateValidates(t *testing.T) {
	reg := New(memory.New().Objects(), Config{})
	_, err := reg.GetOrCreate(context.Background(), Descriptor{Key: "k"})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = reg.GetOrCreate(context.Background(), Descriptor{Bucket: "b", Key: "k", SizeBytes: -1})
	require.ErrorIs(t, err, domain.ErrValidation)
}

type fakeLister struct {
	items []objectstore.ObjectInfo
}

func (f fakeLister) ListObjects(_ context.Context, _, _ string) ([]objectstore.ObjectInfo, error) {
	return f.items, nil
}

func TestRegisterPrefix(t *testing.T) {
	ctx := context.Background()
	reg := New(memory.New().Objects(), Config{})
	lister := fakeLister{items: []objectstore.ObjectInfo{
		{Key: "results/run-1/a.csv", Size: 12, ETag: "e1", ContentType: "text/csv"},
		{Key: "results/run-1/b.pdb", Size: 40, ETag: "e2"},
	}}

	objs, err := reg.RegisterPrefix(ctx, lister, "results", "results/run-1/")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "results", objs[0].Identity.Bucket)

	again, err := reg.RegisterPrefix(ctx, lister, "results", "results/run-1/")
	require.NoError(t, err)
	assert.Equal(t, objs[0].ID, again[0].ID)
	assert.Equal(t, objs[1].ID, again[1].ID)
}
