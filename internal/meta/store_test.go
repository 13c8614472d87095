package meta

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storesUnderTest enumerates the Store implementations that share the
// contract tests.
func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStoreBuckets(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			ctx := context.Background()

			b := &Bucket{Name: "mybucket", Region: "us-east-1", OwnerID: "owner-1", CreatedAt: time.Now()}
			require.NoError(t, s.CreateBucket(ctx, b))

			assert.Equal(t, ErrBucketExists, s.CreateBucket(ctx, b))

			got, err := s.GetBucket(ctx, "mybucket")
			require.NoError(t, err)
			assert.Equal(t, "us-east-1", got.Region)
			assert.Equal(t, "owner-1", got.OwnerID)

			exists, err := s.BucketExists(ctx, "mybucket")
			require.NoError(t, err)
			assert.True(t, exists)

			_, err = s.GetBucket(ctx, "absent")
			assert.Equal(t, ErrBucketNotFound, err)

			buckets, err := s.ListBuckets(ctx, "owner-1")
			require.NoError(t, err)
			require.Len(t, buckets, 1)

			// Other owners see nothing.
			buckets, err = s.ListBuckets(ctx, "owner-2")
			require.NoError(t, err)
			assert.Empty(t, buckets)

			require.NoError(t, s.DeleteBucket(ctx, "mybucket"))
			assert.Equal(t, ErrBucketNotFound, s.DeleteBucket(ctx, "mybucket"))
		})
	}
}

func TestStoreDeleteBucketNotEmpty(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			ctx := context.Background()

			require.NoError(t, s.CreateBucket(ctx, &Bucket{Name: "full", CreatedAt: time.Now()}))
			require.NoError(t, s.PutObject(ctx, &Object{Bucket: "full", Key: "blocker", ETag: "e", LastModified: time.Now()}))

			assert.Equal(t, ErrBucketNotEmpty, s.DeleteBucket(ctx, "full"))

			require.NoError(t, s.DeleteObject(ctx, "full", "blocker"))
			require.NoError(t, s.DeleteBucket(ctx, "full"))
		})
	}
}

func TestStoreDeleteBucketWithUpload(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			ctx := context.Background()

			require.NoError(t, s.CreateBucket(ctx, &Bucket{Name: "uploading", CreatedAt: time.Now()}))
			require.NoError(t, s.CreateUpload(ctx, &Upload{
				UploadID: "u1", Bucket: "uploading", Key: "pending", InitiatedAt: time.Now(),
			}))

			// An in-flight upload blocks deletion too.
			assert.Equal(t, ErrBucketNotEmpty, s.DeleteBucket(ctx, "uploading"))
		})
	}
}

func TestStoreObjects(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			ctx := context.Background()

			require.NoError(t, s.CreateBucket(ctx, &Bucket{Name: "b", CreatedAt: time.Now()}))

			obj := &Object{
				Bucket:       "b",
				Key:          "k",
				Size:         5,
				ETag:         "5d41402abc4b2a76b9719d911017c592",
				ContentType:  "text/plain",
				UserMetadata: map[string]string{"foo": "bar"},
				LastModified: time.Now().UTC(),
			}
			require.NoError(t, s.PutObject(ctx, obj))

			got, err := s.GetObject(ctx, "b", "k")
			require.NoError(t, err)
			assert.Equal(t, obj.ETag, got.ETag)
			assert.Equal(t, "text/plain", got.ContentType)
			assert.Equal(t, "bar", got.UserMetadata["foo"])

			count, err := s.CountObjects(ctx, "b")
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			// Overwrite replaces the record.
			obj.ETag = "0123456789abcdef0123456789abcdef"
			require.NoError(t, s.PutObject(ctx, obj))
			got, err = s.GetObject(ctx, "b", "k")
			require.NoError(t, err)
			assert.Equal(t, "0123456789abcdef0123456789abcdef", got.ETag)

			require.NoError(t, s.DeleteObject(ctx, "b", "k"))
			_, err = s.GetObject(ctx, "b", "k")
			assert.Equal(t, ErrObjectNotFound, err)

			// Deleting an absent key is fine.
			require.NoError(t, s.DeleteObject(ctx, "b", "k"))
		})
	}
}

func TestStoreListObjects(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			ctx := context.Background()

			require.NoError(t, s.CreateBucket(ctx, &Bucket{Name: "b", CreatedAt: time.Now()}))
			for _, key := range []string{"a/x", "a/y", "b", "c"} {
				require.NoError(t, s.PutObject(ctx, &Object{
					Bucket: "b", Key: key, ETag: "e", LastModified: time.Now(),
				}))
			}

			res, err := s.ListObjects(ctx, "b", ListObjectsOptions{Delimiter: "/"})
			require.NoError(t, err)
			require.Len(t, res.Objects, 2)
			assert.Equal(t, "b", res.Objects[0].Key)
			assert.Equal(t, "c", res.Objects[1].Key)
			assert.Equal(t, []string{"a/"}, res.CommonPrefixes)

			// StartAfter skips keys at or before the marker.
			res, err = s.ListObjects(ctx, "b", ListObjectsOptions{StartAfter: "b"})
			require.NoError(t, err)
			require.Len(t, res.Objects, 1)
			assert.Equal(t, "c", res.Objects[0].Key)

			res, err = s.ListObjects(ctx, "b", ListObjectsOptions{MaxKeys: 2})
			require.NoError(t, err)
			require.Len(t, res.Objects, 2)
			assert.True(t, res.IsTruncated)
			assert.Equal(t, "a/y", res.NextKey)

			res, err = s.ListObjects(ctx, "b", ListObjectsOptions{Prefix: "a/"})
			require.NoError(t, err)
			require.Len(t, res.Objects, 2)
			assert.Equal(t, "a/x", res.Objects[0].Key)
		})
	}
}

// Prefixes containing LIKE metacharacters must match literally.
func TestStoreListObjectsPrefixEscaping(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			ctx := context.Background()

			require.NoError(t, s.CreateBucket(ctx, &Bucket{Name: "b", CreatedAt: time.Now()}))
			for _, key := range []string{"100%_done/a", "100x_done/a", "plain"} {
				require.NoError(t, s.PutObject(ctx, &Object{
					Bucket: "b", Key: key, ETag: "e", LastModified: time.Now(),
				}))
			}

			res, err := s.ListObjects(ctx, "b", ListObjectsOptions{Prefix: "100%_done/"})
			require.NoError(t, err)
			require.Len(t, res.Objects, 1)
			assert.Equal(t, "100%_done/a", res.Objects[0].Key)
		})
	}
}

func TestStoreMultipart(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			ctx := context.Background()

			require.NoError(t, s.CreateBucket(ctx, &Bucket{Name: "b", CreatedAt: time.Now()}))
			require.NoError(t, s.CreateUpload(ctx, &Upload{
				UploadID: "u1", Bucket: "b", Key: "k", InitiatedAt: time.Now(),
			}))

			got, err := s.GetUpload(ctx, "b", "k", "u1")
			require.NoError(t, err)
			assert.Equal(t, "u1", got.UploadID)

			// Wrong bucket or key does not resolve the upload.
			_, err = s.GetUpload(ctx, "other", "k", "u1")
			assert.Equal(t, ErrUploadNotFound, err)

			for n := 1; n <= 3; n++ {
				require.NoError(t, s.PutPart(ctx, &Part{
					UploadID: "u1", PartNumber: n, Size: int64(n), ETag: "e", LastModified: time.Now(),
				}))
			}

			list, err := s.ListParts(ctx, "u1", ListPartsOptions{})
			require.NoError(t, err)
			require.Len(t, list.Parts, 3)
			assert.False(t, list.IsTruncated)

			list, err = s.ListParts(ctx, "u1", ListPartsOptions{MaxParts: 2})
			require.NoError(t, err)
			require.Len(t, list.Parts, 2)
			assert.True(t, list.IsTruncated)
			assert.Equal(t, 2, list.NextPartNumberMarker)

			list, err = s.ListParts(ctx, "u1", ListPartsOptions{PartNumberMarker: 2})
			require.NoError(t, err)
			require.Len(t, list.Parts, 1)
			assert.Equal(t, 3, list.Parts[0].PartNumber)

			parts, err := s.GetPartsForCompletion(ctx, "u1", []int{1, 3, 99})
			require.NoError(t, err)
			require.Len(t, parts, 2)
			assert.Equal(t, 1, parts[0].PartNumber)
			assert.Equal(t, 3, parts[1].PartNumber)
		})
	}
}

func TestStoreCompleteUpload(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			ctx := context.Background()

			require.NoError(t, s.CreateBucket(ctx, &Bucket{Name: "b", CreatedAt: time.Now()}))
			require.NoError(t, s.CreateUpload(ctx, &Upload{
				UploadID: "u1", Bucket: "b", Key: "k", InitiatedAt: time.Now(),
			}))
			require.NoError(t, s.PutPart(ctx, &Part{
				UploadID: "u1", PartNumber: 1, Size: 10, ETag: "e", LastModified: time.Now(),
			}))

			obj := &Object{Bucket: "b", Key: "k", Size: 10, ETag: "composite-1", LastModified: time.Now()}
			require.NoError(t, s.CompleteUpload(ctx, "u1", obj))

			// The object exists and the upload with its parts is gone.
			got, err := s.GetObject(ctx, "b", "k")
			require.NoError(t, err)
			assert.Equal(t, "composite-1", got.ETag)

			_, err = s.GetUpload(ctx, "b", "k", "u1")
			assert.Equal(t, ErrUploadNotFound, err)

			list, err := s.ListParts(ctx, "u1", ListPartsOptions{})
			require.NoError(t, err)
			assert.Empty(t, list.Parts)

			assert.Equal(t, ErrUploadNotFound, s.CompleteUpload(ctx, "u1", obj))
		})
	}
}

func TestStoreDeleteUpload(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			ctx := context.Background()

			require.NoError(t, s.CreateBucket(ctx, &Bucket{Name: "b", CreatedAt: time.Now()}))
			require.NoError(t, s.CreateUpload(ctx, &Upload{
				UploadID: "u1", Bucket: "b", Key: "k", InitiatedAt: time.Now(),
			}))
			require.NoError(t, s.DeleteUpload(ctx, "b", "k", "u1"))
			assert.Equal(t, ErrUploadNotFound, s.DeleteUpload(ctx, "b", "k", "u1"))
		})
	}
}

func TestStoreListUploads(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			ctx := context.Background()

			require.NoError(t, s.CreateBucket(ctx, &Bucket{Name: "b", CreatedAt: time.Now()}))
			require.NoError(t, s.CreateBucket(ctx, &Bucket{Name: "other", CreatedAt: time.Now()}))

			require.NoError(t, s.CreateUpload(ctx, &Upload{UploadID: "u2", Bucket: "b", Key: "beta", InitiatedAt: time.Now()}))
			require.NoError(t, s.CreateUpload(ctx, &Upload{UploadID: "u1", Bucket: "b", Key: "alpha", InitiatedAt: time.Now()}))
			require.NoError(t, s.CreateUpload(ctx, &Upload{UploadID: "u3", Bucket: "other", Key: "gamma", InitiatedAt: time.Now()}))

			res, err := s.ListUploads(ctx, "b", ListUploadsOptions{})
			require.NoError(t, err)
			require.Len(t, res.Uploads, 2)
			assert.Equal(t, "alpha", res.Uploads[0].Key)
			assert.Equal(t, "beta", res.Uploads[1].Key)

			count, err := s.CountUploads(ctx, "b")
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)

			res, err = s.ListUploads(ctx, "b", ListUploadsOptions{MaxUploads: 1})
			require.NoError(t, err)
			require.Len(t, res.Uploads, 1)
			assert.True(t, res.IsTruncated)
			assert.Equal(t, "alpha", res.NextKeyMarker)
			assert.Equal(t, "u1", res.NextUploadIDMarker)

			res, err = s.ListUploads(ctx, "b", ListUploadsOptions{KeyMarker: "alpha", UploadIDMarker: "u1"})
			require.NoError(t, err)
			require.Len(t, res.Uploads, 1)
			assert.Equal(t, "beta", res.Uploads[0].Key)
		})
	}
}

func TestStoreCredentials(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			ctx := context.Background()

			_, err := s.GetCredential(ctx, "AKID")
			assert.Equal(t, ErrCredentialNotFound, err)

			require.NoError(t, s.PutCredential(ctx, &Credential{
				AccessKeyID: "AKID",
				SecretKey:   "secret",
				OwnerID:     "owner-1",
				Active:      true,
				CreatedAt:   time.Now(),
			}))

			got, err := s.GetCredential(ctx, "AKID")
			require.NoError(t, err)
			assert.Equal(t, "secret", got.SecretKey)
			assert.True(t, got.Active)

			// Deactivation round-trips.
			require.NoError(t, s.PutCredential(ctx, &Credential{
				AccessKeyID: "AKID", SecretKey: "secret", OwnerID: "owner-1",
				Active: false, CreatedAt: time.Now(),
			}))
			got, err = s.GetCredential(ctx, "AKID")
			require.NoError(t, err)
			assert.False(t, got.Active)
		})
	}
}
