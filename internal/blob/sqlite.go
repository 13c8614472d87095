package blob

import (
	"bytes"
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLite stores blobs in an embedded database table keyed by storage key.
// Object keys are "{bucket}/{key}", part keys ".uploads/{uploadID}/{n}",
// mirroring the local backend's file layout.
type SQLite struct {
	db *sql.DB
}

var _ Backend = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the blob database at path.
func NewSQLite(path string) (*SQLite, error) {
	// SQLite creates the file but not its directory.
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create blob db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open blob db: %w", err)
	}
	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS blobs (
		storage_key TEXT PRIMARY KEY,
		data        BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create blobs table: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error { return s.db.Close() }

// HealthCheck pings the database.
func (s *SQLite) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func partStorageKey(uploadID string, partNumber int) string {
	return fmt.Sprintf("%s/%s/%d", uploadsDir, uploadID, partNumber)
}

func (s *SQLite) put(ctx context.Context, storageKey string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO blobs (storage_key, data) VALUES (?, ?)`,
		storageKey, data)
	if err != nil {
		return fmt.Errorf("put blob %q: %w", storageKey, err)
	}
	return nil
}

func (s *SQLite) get(ctx context.Context, storageKey string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM blobs WHERE storage_key = ?`, storageKey).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blob %q: %w", storageKey, err)
	}
	return data, nil
}

func (s *SQLite) CreateBucket(ctx context.Context, bucket string) error { return nil }

func (s *SQLite) DeleteBucket(ctx context.Context, bucket string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM blobs WHERE storage_key LIKE ? || '/%'`, bucket)
	if err != nil {
		return fmt.Errorf("delete bucket blobs %q: %w", bucket, err)
	}
	return nil
}

func (s *SQLite) PutObject(ctx context.Context, bucket, key string, r io.Reader) (int64, string, error) {
	hash := md5.New()
	data, err := io.ReadAll(io.TeeReader(r, hash))
	if err != nil {
		return 0, "", fmt.Errorf("read blob: %w", err)
	}
	if err := s.put(ctx, objKey(bucket, key), data); err != nil {
		return 0, "", err
	}
	return int64(len(data)), hex.EncodeToString(hash.Sum(nil)), nil
}

func (s *SQLite) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	data, err := s.get(ctx, objKey(bucket, key))
	if err != nil {
		return nil, 0, err
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (s *SQLite) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM blobs WHERE storage_key = ?`, objKey(bucket, key))
	if err != nil {
		return fmt.Errorf("delete blob %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *SQLite) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blobs WHERE storage_key = ?`,
		objKey(bucket, key)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check blob %s/%s: %w", bucket, key, err)
	}
	return n > 0, nil
}

func (s *SQLite) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (string, error) {
	data, err := s.get(ctx, objKey(srcBucket, srcKey))
	if err != nil {
		return "", err
	}
	if err := s.put(ctx, objKey(dstBucket, dstKey), data); err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

func (s *SQLite) PutPart(ctx context.Context, bucket, uploadID string, partNumber int, r io.Reader) (int64, string, error) {
	hash := md5.New()
	data, err := io.ReadAll(io.TeeReader(r, hash))
	if err != nil {
		return 0, "", fmt.Errorf("read part: %w", err)
	}
	if err := s.put(ctx, partStorageKey(uploadID, partNumber), data); err != nil {
		return 0, "", err
	}
	return int64(len(data)), hex.EncodeToString(hash.Sum(nil)), nil
}

func (s *SQLite) AssembleParts(ctx context.Context, bucket, key, uploadID string, parts []PartRef) (int64, string, error) {
	etag, err := CompositeETag(parts)
	if err != nil {
		return 0, "", err
	}

	var buf bytes.Buffer
	for _, p := range parts {
		data, err := s.get(ctx, partStorageKey(uploadID, p.Number))
		if err != nil {
			return 0, "", err
		}
		buf.Write(data)
	}
	if err := s.put(ctx, objKey(bucket, key), buf.Bytes()); err != nil {
		return 0, "", err
	}
	return int64(buf.Len()), etag, nil
}

func (s *SQLite) DeleteParts(ctx context.Context, bucket, uploadID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM blobs WHERE storage_key LIKE ? || '/%'`,
		uploadsDir+"/"+uploadID)
	if err != nil {
		return fmt.Errorf("delete parts of %q: %w", uploadID, err)
	}
	return nil
}
