package blob

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// uploadsDir is the directory under the root that holds part blobs,
// outside any bucket's key namespace.
const uploadsDir = ".uploads"

// Local stores blobs as files: objects under {root}/{bucket}/{key}, part
// blobs under {root}/.uploads/{uploadID}/{n}. Writes go through a temp file
// in the same directory and a rename, so readers never observe a partial
// blob.
type Local struct {
	root string
}

var _ Backend = (*Local)(nil)

// NewLocal creates a Local backend rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, uploadsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &Local{root: dir}, nil
}

// Close is a no-op.
func (l *Local) Close() error { return nil }

// HealthCheck verifies the root directory is reachable.
func (l *Local) HealthCheck(ctx context.Context) error {
	_, err := os.Stat(l.root)
	return err
}

func (l *Local) bucketPath(bucket string) string {
	return filepath.Join(l.root, bucket)
}

// objectPath maps (bucket, key) to a file path, rejecting keys that would
// escape the bucket directory.
func (l *Local) objectPath(bucket, key string) (string, error) {
	p := filepath.Join(l.root, bucket, filepath.FromSlash(key))
	if !strings.HasPrefix(p, l.bucketPath(bucket)+string(filepath.Separator)) {
		return "", fmt.Errorf("key escapes bucket directory: %q", key)
	}
	return p, nil
}

func (l *Local) partPath(uploadID string, partNumber int) string {
	return filepath.Join(l.root, uploadsDir, uploadID, strconv.Itoa(partNumber))
}

// CreateBucket creates the bucket directory.
func (l *Local) CreateBucket(ctx context.Context, bucket string) error {
	if err := os.MkdirAll(l.bucketPath(bucket), 0o755); err != nil {
		return fmt.Errorf("create bucket dir %q: %w", bucket, err)
	}
	return nil
}

// DeleteBucket removes the bucket directory tree.
func (l *Local) DeleteBucket(ctx context.Context, bucket string) error {
	if err := os.RemoveAll(l.bucketPath(bucket)); err != nil {
		return fmt.Errorf("delete bucket dir %q: %w", bucket, err)
	}
	return nil
}

// writeBlob streams r into a temp file next to path while hashing, then
// renames it into place. Returns (bytesWritten, md5 hex).
func (l *Local) writeBlob(path string, r io.Reader) (int64, string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", fmt.Errorf("create dir %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	hash := md5.New()
	n, err := io.Copy(io.MultiWriter(tmp, hash), r)
	if err != nil {
		tmp.Close()
		return 0, "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, "", fmt.Errorf("rename blob into place: %w", err)
	}
	return n, hex.EncodeToString(hash.Sum(nil)), nil
}

// PutObject stores the object body at {bucket}/{key}.
func (l *Local) PutObject(ctx context.Context, bucket, key string, r io.Reader) (int64, string, error) {
	path, err := l.objectPath(bucket, key)
	if err != nil {
		return 0, "", err
	}
	return l.writeBlob(path, r)
}

// GetObject opens the object blob for reading.
func (l *Local) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	path, err := l.objectPath(bucket, key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("open blob %s/%s: %w", bucket, key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat blob %s/%s: %w", bucket, key, err)
	}
	return f, info.Size(), nil
}

// DeleteObject removes the object blob. Missing blobs are not an error.
func (l *Local) DeleteObject(ctx context.Context, bucket, key string) error {
	path, err := l.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob %s/%s: %w", bucket, key, err)
	}
	// Prune now-empty parent directories up to the bucket root so listings
	// of the file tree stay tidy. Stop at the first non-empty dir.
	dir := filepath.Dir(path)
	for dir != l.bucketPath(bucket) {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return nil
}

// ObjectExists reports whether the object blob exists.
func (l *Local) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	path, err := l.objectPath(bucket, key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// CopyObject duplicates a blob through the same temp-file path as a write.
func (l *Local) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (string, error) {
	src, _, err := l.GetObject(ctx, srcBucket, srcKey)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := l.objectPath(dstBucket, dstKey)
	if err != nil {
		return "", err
	}
	_, etag, err := l.writeBlob(dst, src)
	return etag, err
}

// PutPart stores one part blob under the upload id.
func (l *Local) PutPart(ctx context.Context, bucket, uploadID string, partNumber int, r io.Reader) (int64, string, error) {
	return l.writeBlob(l.partPath(uploadID, partNumber), r)
}

// AssembleParts concatenates part blobs in the given order into the final
// object blob and returns its size and composite etag.
func (l *Local) AssembleParts(ctx context.Context, bucket, key, uploadID string, parts []PartRef) (int64, string, error) {
	etag, err := CompositeETag(parts)
	if err != nil {
		return 0, "", err
	}

	path, err := l.objectPath(bucket, key)
	if err != nil {
		return 0, "", err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", fmt.Errorf("create dir %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	var total int64
	for _, p := range parts {
		f, err := os.Open(l.partPath(uploadID, p.Number))
		if err != nil {
			tmp.Close()
			if os.IsNotExist(err) {
				return 0, "", ErrNotFound
			}
			return 0, "", fmt.Errorf("open part %d: %w", p.Number, err)
		}
		n, err := io.Copy(tmp, f)
		f.Close()
		if err != nil {
			tmp.Close()
			return 0, "", fmt.Errorf("append part %d: %w", p.Number, err)
		}
		total += n
	}
	if err := tmp.Close(); err != nil {
		return 0, "", fmt.Errorf("close assembled blob: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, "", fmt.Errorf("rename assembled blob: %w", err)
	}
	return total, etag, nil
}

// DeleteParts removes the upload's part directory.
func (l *Local) DeleteParts(ctx context.Context, bucket, uploadID string) error {
	if err := os.RemoveAll(filepath.Join(l.root, uploadsDir, uploadID)); err != nil {
		return fmt.Errorf("delete parts of %q: %w", uploadID, err)
	}
	return nil
}

// PartSizes returns the on-disk sizes of the upload's parts, for tests and
// diagnostics.
func (l *Local) PartSizes(uploadID string) (map[int]int64, error) {
	dir := filepath.Join(l.root, uploadsDir, uploadID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sizes := make(map[int]int64, len(entries))
	for _, e := range entries {
		n, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		sizes[n] = info.Size()
	}
	return sizes, nil
}
