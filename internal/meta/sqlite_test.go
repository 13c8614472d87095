package meta

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A fresh install points at a database path whose directory does not exist
// yet; the constructor must create it.
func TestNewSQLiteStoreCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nested", "metadata.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.CreateBucket(context.Background(), &Bucket{
		Name: "first", CreatedAt: time.Now(),
	}))
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateBucket(ctx, &Bucket{
		Name: "durable", Region: "us-east-1", OwnerID: "owner-1", CreatedAt: created,
	}))
	require.NoError(t, s.PutObject(ctx, &Object{
		Bucket: "durable", Key: "k", Size: 3, ETag: "abc",
		UserMetadata: map[string]string{"foo": "bar"},
		LastModified: created,
	}))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	b, err := reopened.GetBucket(ctx, "durable")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", b.OwnerID)
	assert.Equal(t, created, b.CreatedAt)

	obj, err := reopened.GetObject(ctx, "durable", "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", obj.ETag)
	assert.Equal(t, "bar", obj.UserMetadata["foo"])
	assert.Equal(t, created, obj.LastModified)
}

// Deleting a bucket cascades to its object records.
func TestSQLiteStoreDeleteBucketCascades(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, &Bucket{Name: "b", CreatedAt: time.Now()}))
	require.NoError(t, s.PutObject(ctx, &Object{Bucket: "b", Key: "k", ETag: "e", LastModified: time.Now()}))
	require.NoError(t, s.DeleteObject(ctx, "b", "k"))
	require.NoError(t, s.DeleteBucket(ctx, "b"))

	count, err := s.CountObjects(ctx, "b")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `plain/prefix`, escapeLike(`plain/prefix`))
	assert.Equal(t, `100\%`, escapeLike(`100%`))
	assert.Equal(t, `a\_b`, escapeLike(`a_b`))
	assert.Equal(t, `c\\d`, escapeLike(`c\d`))
}
