// Package blob defines the storage backend contract and its
// implementations. Backends own object bytes and part bytes; they never see
// metadata records. ETags returned here are unquoted hex strings.
package blob

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Sentinel errors returned by Backend implementations.
var (
	ErrNotFound       = errors.New("blob not found")
	ErrBucketNotFound = errors.New("blob bucket not found")
)

// PartRef names one part during assembly.
type PartRef struct {
	Number int
	ETag   string
}

// Backend is the storage backend contract. Implementations must be safe
// for concurrent callers. Part blobs live under the upload id, outside the
// bucket's key namespace, until AssembleParts or DeleteParts removes them.
type Backend interface {
	CreateBucket(ctx context.Context, bucket string) error
	DeleteBucket(ctx context.Context, bucket string) error

	// PutObject stores the full object body and returns (bytesWritten, etag).
	PutObject(ctx context.Context, bucket, key string, r io.Reader) (int64, string, error)
	// GetObject returns the object body and its size.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	ObjectExists(ctx context.Context, bucket, key string) (bool, error)
	// CopyObject duplicates a blob and returns the destination etag.
	CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (string, error)

	// PutPart stores one part blob and returns (size, etag).
	PutPart(ctx context.Context, bucket, uploadID string, partNumber int, r io.Reader) (int64, string, error)
	// AssembleParts concatenates the given parts into the final object blob
	// and returns (totalSize, compositeETag). Part blobs are left in place;
	// the caller removes them with DeleteParts after its metadata commit.
	AssembleParts(ctx context.Context, bucket, key, uploadID string, parts []PartRef) (int64, string, error)
	// DeleteParts removes every part blob of the upload. Best-effort.
	DeleteParts(ctx context.Context, bucket, uploadID string) error

	HealthCheck(ctx context.Context) error
	Close() error
}

// CompositeETag computes the multipart ETag: the MD5 of the concatenated
// binary part MD5s, suffixed with the part count.
func CompositeETag(parts []PartRef) (string, error) {
	h := md5.New()
	for _, p := range parts {
		raw, err := hex.DecodeString(strings.Trim(p.ETag, `"`))
		if err != nil {
			return "", fmt.Errorf("decode part %d etag: %w", p.Number, err)
		}
		h.Write(raw)
	}
	return fmt.Sprintf("%x-%d", h.Sum(nil), len(parts)), nil
}
