package meta

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat is the ISO 8601 millisecond format used for stored timestamps.
const timeFormat = "2006-01-02T15:04:05.000Z"

// SQLiteStore implements Store on an embedded SQLite database. Writes are
// serialized by the driver behind a single connection; WAL keeps readers
// from blocking on them.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema. The schema is idempotent, so every startup runs it.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// SQLite creates the file but not its directory.
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create metadata db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init metadata db: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("exec %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS buckets (
			name          TEXT PRIMARY KEY,
			region        TEXT NOT NULL DEFAULT 'us-east-1',
			owner_id      TEXT NOT NULL,
			owner_display TEXT NOT NULL DEFAULT '',
			acl           TEXT NOT NULL DEFAULT '{}',
			created_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS objects (
			bucket              TEXT NOT NULL,
			key                 TEXT NOT NULL,
			size                INTEGER NOT NULL,
			etag                TEXT NOT NULL,
			content_type        TEXT NOT NULL DEFAULT 'application/octet-stream',
			content_encoding    TEXT,
			content_language    TEXT,
			content_disposition TEXT,
			cache_control       TEXT,
			expires             TEXT,
			storage_class       TEXT NOT NULL DEFAULT 'STANDARD',
			acl                 TEXT NOT NULL DEFAULT '{}',
			user_metadata       TEXT NOT NULL DEFAULT '{}',
			last_modified       TEXT NOT NULL,
			delete_marker       INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (bucket, key),
			FOREIGN KEY (bucket) REFERENCES buckets(name) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS uploads (
			upload_id           TEXT PRIMARY KEY,
			bucket              TEXT NOT NULL,
			key                 TEXT NOT NULL,
			content_type        TEXT NOT NULL DEFAULT 'application/octet-stream',
			content_encoding    TEXT,
			content_language    TEXT,
			content_disposition TEXT,
			cache_control       TEXT,
			expires             TEXT,
			storage_class       TEXT NOT NULL DEFAULT 'STANDARD',
			acl                 TEXT NOT NULL DEFAULT '{}',
			user_metadata       TEXT NOT NULL DEFAULT '{}',
			owner_id            TEXT NOT NULL,
			owner_display       TEXT NOT NULL DEFAULT '',
			initiated_at        TEXT NOT NULL,
			FOREIGN KEY (bucket) REFERENCES buckets(name) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_uploads_bucket_key ON uploads(bucket, key, upload_id);

		CREATE TABLE IF NOT EXISTS parts (
			upload_id     TEXT NOT NULL,
			part_number   INTEGER NOT NULL,
			size          INTEGER NOT NULL,
			etag          TEXT NOT NULL,
			last_modified TEXT NOT NULL,
			PRIMARY KEY (upload_id, part_number),
			FOREIGN KEY (upload_id) REFERENCES uploads(upload_id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS credentials (
			access_key_id TEXT PRIMARY KEY,
			secret_key    TEXT NOT NULL,
			owner_id      TEXT NOT NULL,
			display_name  TEXT NOT NULL DEFAULT '',
			active        INTEGER NOT NULL DEFAULT 1,
			created_at    TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ---- Buckets ----

// CreateBucket inserts a bucket record. ErrBucketExists if the name is taken.
func (s *SQLiteStore) CreateBucket(ctx context.Context, b *Bucket) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO buckets (name, region, owner_id, owner_display, acl, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.Name, b.Region, b.OwnerID, b.OwnerDisplay, marshalACL(b.ACL),
		b.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") ||
			strings.Contains(err.Error(), "PRIMARY KEY") {
			return ErrBucketExists
		}
		return fmt.Errorf("create bucket %q: %w", b.Name, err)
	}
	return nil
}

// GetBucket retrieves a bucket record by name.
func (s *SQLiteStore) GetBucket(ctx context.Context, name string) (*Bucket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, region, owner_id, owner_display, acl, created_at
		 FROM buckets WHERE name = ?`, name)

	var b Bucket
	var aclStr, createdAt string
	err := row.Scan(&b.Name, &b.Region, &b.OwnerID, &b.OwnerDisplay, &aclStr, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrBucketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bucket %q: %w", name, err)
	}
	b.ACL = unmarshalACL(aclStr)
	b.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &b, nil
}

// BucketExists reports whether the named bucket exists.
func (s *SQLiteStore) BucketExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM buckets WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check bucket %q: %w", name, err)
	}
	return n > 0, nil
}

// ListBuckets returns the buckets owned by ownerID, sorted by name.
func (s *SQLiteStore) ListBuckets(ctx context.Context, ownerID string) ([]Bucket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, region, owner_id, owner_display, acl, created_at
		 FROM buckets WHERE owner_id = ? ORDER BY name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()

	var buckets []Bucket
	for rows.Next() {
		var b Bucket
		var aclStr, createdAt string
		if err := rows.Scan(&b.Name, &b.Region, &b.OwnerID, &b.OwnerDisplay, &aclStr, &createdAt); err != nil {
			return nil, fmt.Errorf("scan bucket row: %w", err)
		}
		b.ACL = unmarshalACL(aclStr)
		b.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// DeleteBucket removes an empty bucket. ErrBucketNotEmpty if any object or
// in-progress upload still references it.
func (s *SQLiteStore) DeleteBucket(ctx context.Context, name string) error {
	exists, err := s.BucketExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return ErrBucketNotFound
	}

	objects, err := s.CountObjects(ctx, name)
	if err != nil {
		return err
	}
	if objects > 0 {
		return ErrBucketNotEmpty
	}
	uploads, err := s.CountUploads(ctx, name)
	if err != nil {
		return err
	}
	if uploads > 0 {
		return ErrBucketNotEmpty
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM buckets WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete bucket %q: %w", name, err)
	}
	return nil
}

// UpdateBucketACL replaces the ACL of the named bucket.
func (s *SQLiteStore) UpdateBucketACL(ctx context.Context, name string, acl ACL) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE buckets SET acl = ? WHERE name = ?`, marshalACL(acl), name)
	if err != nil {
		return fmt.Errorf("update bucket acl %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBucketNotFound
	}
	return nil
}

// ---- Objects ----

const objectColumns = `bucket, key, size, etag, content_type, content_encoding,
	content_language, content_disposition, cache_control, expires,
	storage_class, acl, user_metadata, last_modified, delete_marker`

// PutObject creates or replaces an object record.
func (s *SQLiteStore) PutObject(ctx context.Context, obj *Object) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO objects (`+objectColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		objectArgs(obj)...)
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", obj.Bucket, obj.Key, err)
	}
	return nil
}

// GetObject retrieves an object record.
func (s *SQLiteStore) GetObject(ctx context.Context, bucket, key string) (*Object, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+objectColumns+` FROM objects WHERE bucket = ? AND key = ?`,
		bucket, key)

	obj, err := scanObject(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	return obj, nil
}

// ObjectExists reports whether the object record exists.
func (s *SQLiteStore) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM objects WHERE bucket = ? AND key = ?`,
		bucket, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check object %s/%s: %w", bucket, key, err)
	}
	return n > 0, nil
}

// DeleteObject removes an object record. Deleting a missing record is not
// an error.
func (s *SQLiteStore) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM objects WHERE bucket = ? AND key = ?`, bucket, key)
	if err != nil {
		return fmt.Errorf("delete object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// CountObjects returns the number of object records in the bucket.
func (s *SQLiteStore) CountObjects(ctx context.Context, bucket string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM objects WHERE bucket = ?`, bucket).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count objects %q: %w", bucket, err)
	}
	return n, nil
}

// UpdateObjectACL replaces the ACL of an object.
func (s *SQLiteStore) UpdateObjectACL(ctx context.Context, bucket, key string, acl ACL) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE objects SET acl = ? WHERE bucket = ? AND key = ?`,
		marshalACL(acl), bucket, key)
	if err != nil {
		return fmt.Errorf("update object acl %s/%s: %w", bucket, key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrObjectNotFound
	}
	return nil
}

// ListObjects streams object records in key order into the delimiter
// grouping accumulator, stopping as soon as the page is full.
func (s *SQLiteStore) ListObjects(ctx context.Context, bucket string, opts ListObjectsOptions) (*ListObjectsResult, error) {
	if opts.MaxKeys <= 0 {
		opts.MaxKeys = 1000
	}

	query := `SELECT ` + objectColumns + ` FROM objects WHERE bucket = ?`
	args := []interface{}{bucket}
	if opts.Prefix != "" {
		query += ` AND key LIKE ? || '%' ESCAPE '\'`
		args = append(args, escapeLike(opts.Prefix))
	}
	if opts.StartAfter != "" {
		query += ` AND key > ?`
		args = append(args, opts.StartAfter)
	}
	query += ` ORDER BY key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list objects %q: %w", bucket, err)
	}
	defer rows.Close()

	acc := newListAccumulator(opts)
	for rows.Next() {
		obj, err := scanObject(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan object row: %w", err)
		}
		if !acc.add(*obj) {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate object rows: %w", err)
	}
	return acc.result(), nil
}

// ---- Multipart uploads ----

const uploadColumns = `upload_id, bucket, key, content_type, content_encoding,
	content_language, content_disposition, cache_control, expires,
	storage_class, acl, user_metadata, owner_id, owner_display, initiated_at`

// CreateUpload inserts a multipart upload record.
func (s *SQLiteStore) CreateUpload(ctx context.Context, u *Upload) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (`+uploadColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.UploadID, u.Bucket, u.Key, defaultStr(u.ContentType, "application/octet-stream"),
		nullStr(u.ContentEncoding), nullStr(u.ContentLanguage), nullStr(u.ContentDisposition),
		nullStr(u.CacheControl), nullStr(u.Expires),
		defaultStr(u.StorageClass, "STANDARD"), marshalACL(u.ACL), marshalMeta(u.UserMetadata),
		u.OwnerID, u.OwnerDisplay, u.InitiatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("create upload %q: %w", u.UploadID, err)
	}
	return nil
}

// GetUpload retrieves an upload record by its composite identity.
func (s *SQLiteStore) GetUpload(ctx context.Context, bucket, key, uploadID string) (*Upload, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+uploadColumns+` FROM uploads
		 WHERE upload_id = ? AND bucket = ? AND key = ?`,
		uploadID, bucket, key)

	u, err := scanUpload(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrUploadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get upload %q: %w", uploadID, err)
	}
	return u, nil
}

// PutPart records (or re-records) an uploaded part.
func (s *SQLiteStore) PutPart(ctx context.Context, p *Part) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO parts (upload_id, part_number, size, etag, last_modified)
		 VALUES (?, ?, ?, ?, ?)`,
		p.UploadID, p.PartNumber, p.Size, p.ETag, p.LastModified.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("put part %d of %q: %w", p.PartNumber, p.UploadID, err)
	}
	return nil
}

// ListParts returns parts in ascending part number order after the marker.
func (s *SQLiteStore) ListParts(ctx context.Context, uploadID string, opts ListPartsOptions) (*ListPartsResult, error) {
	if opts.MaxParts <= 0 {
		opts.MaxParts = 1000
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT upload_id, part_number, size, etag, last_modified
		 FROM parts WHERE upload_id = ? AND part_number > ?
		 ORDER BY part_number LIMIT ?`,
		uploadID, opts.PartNumberMarker, opts.MaxParts+1)
	if err != nil {
		return nil, fmt.Errorf("list parts %q: %w", uploadID, err)
	}
	defer rows.Close()

	var parts []Part
	for rows.Next() {
		p, err := scanPart(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan part row: %w", err)
		}
		parts = append(parts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate part rows: %w", err)
	}

	res := &ListPartsResult{Parts: parts}
	if len(parts) > opts.MaxParts {
		res.Parts = parts[:opts.MaxParts]
		res.IsTruncated = true
		res.NextPartNumberMarker = res.Parts[len(res.Parts)-1].PartNumber
	}
	return res, nil
}

// GetPartsForCompletion fetches the named parts in ascending order.
func (s *SQLiteStore) GetPartsForCompletion(ctx context.Context, uploadID string, partNumbers []int) ([]Part, error) {
	if len(partNumbers) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(partNumbers))
	args := make([]interface{}, 0, len(partNumbers)+1)
	args = append(args, uploadID)
	for i, n := range partNumbers {
		placeholders[i] = "?"
		args = append(args, n)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT upload_id, part_number, size, etag, last_modified
		 FROM parts WHERE upload_id = ? AND part_number IN (%s)
		 ORDER BY part_number`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return nil, fmt.Errorf("get parts for completion: %w", err)
	}
	defer rows.Close()

	var parts []Part
	for rows.Next() {
		p, err := scanPart(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan part row: %w", err)
		}
		parts = append(parts, *p)
	}
	return parts, rows.Err()
}

// CompleteUpload inserts the final object record and purges the upload and
// its parts in one transaction.
func (s *SQLiteStore) CompleteUpload(ctx context.Context, uploadID string, obj *Object) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin completion tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO objects (`+objectColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		objectArgs(obj)...)
	if err != nil {
		return fmt.Errorf("insert completed object: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM parts WHERE upload_id = ?`, uploadID); err != nil {
		return fmt.Errorf("purge parts: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM uploads WHERE upload_id = ?`, uploadID)
	if err != nil {
		return fmt.Errorf("purge upload: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUploadNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit completion: %w", err)
	}
	return nil
}

// DeleteUpload aborts a multipart upload, removing its record and parts.
func (s *SQLiteStore) DeleteUpload(ctx context.Context, bucket, key, uploadID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin abort tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM parts WHERE upload_id = ?`, uploadID); err != nil {
		return fmt.Errorf("delete parts: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM uploads WHERE upload_id = ? AND bucket = ? AND key = ?`,
		uploadID, bucket, key)
	if err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUploadNotFound
	}
	return tx.Commit()
}

// ListUploads lists in-progress uploads ordered by (key, upload_id).
func (s *SQLiteStore) ListUploads(ctx context.Context, bucket string, opts ListUploadsOptions) (*ListUploadsResult, error) {
	if opts.MaxUploads <= 0 {
		opts.MaxUploads = 1000
	}

	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE bucket = ?`
	args := []interface{}{bucket}
	if opts.Prefix != "" {
		query += ` AND key LIKE ? || '%' ESCAPE '\'`
		args = append(args, escapeLike(opts.Prefix))
	}
	if opts.KeyMarker != "" {
		if opts.UploadIDMarker != "" {
			query += ` AND (key > ? OR (key = ? AND upload_id > ?))`
			args = append(args, opts.KeyMarker, opts.KeyMarker, opts.UploadIDMarker)
		} else {
			query += ` AND key > ?`
			args = append(args, opts.KeyMarker)
		}
	}
	query += fmt.Sprintf(` ORDER BY key, upload_id LIMIT %d`, opts.MaxUploads+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list uploads %q: %w", bucket, err)
	}
	defer rows.Close()

	var uploads []Upload
	for rows.Next() {
		u, err := scanUpload(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan upload row: %w", err)
		}
		uploads = append(uploads, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate upload rows: %w", err)
	}

	res := &ListUploadsResult{Uploads: uploads}
	if len(uploads) > opts.MaxUploads {
		res.Uploads = uploads[:opts.MaxUploads]
		res.IsTruncated = true
		last := res.Uploads[len(res.Uploads)-1]
		res.NextKeyMarker = last.Key
		res.NextUploadIDMarker = last.UploadID
	}
	return res, nil
}

// CountUploads returns the number of in-progress uploads in the bucket.
func (s *SQLiteStore) CountUploads(ctx context.Context, bucket string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM uploads WHERE bucket = ?`, bucket).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count uploads %q: %w", bucket, err)
	}
	return n, nil
}

// ---- Credentials ----

// GetCredential retrieves a credential by access key id.
func (s *SQLiteStore) GetCredential(ctx context.Context, accessKeyID string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT access_key_id, secret_key, owner_id, display_name, active, created_at
		 FROM credentials WHERE access_key_id = ?`, accessKeyID)

	var c Credential
	var active int
	var createdAt string
	err := row.Scan(&c.AccessKeyID, &c.SecretKey, &c.OwnerID, &c.DisplayName, &active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %q: %w", accessKeyID, err)
	}
	c.Active = active != 0
	c.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &c, nil
}

// PutCredential creates or updates a credential.
func (s *SQLiteStore) PutCredential(ctx context.Context, c *Credential) error {
	active := 0
	if c.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO credentials
			(access_key_id, secret_key, owner_id, display_name, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.AccessKeyID, c.SecretKey, c.OwnerID, c.DisplayName, active,
		c.CreatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("put credential %q: %w", c.AccessKeyID, err)
	}
	return nil
}

// ---- Helpers ----

func marshalACL(acl ACL) string {
	b, err := json.Marshal(acl)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func unmarshalACL(s string) ACL {
	var acl ACL
	json.Unmarshal([]byte(s), &acl)
	return acl
}

func marshalMeta(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// escapeLike escapes %, _ and backslash so a prefix can be used in a LIKE
// pattern with ESCAPE '\'.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

func objectArgs(obj *Object) []interface{} {
	deleteMarker := 0
	if obj.DeleteMarker {
		deleteMarker = 1
	}
	return []interface{}{
		obj.Bucket, obj.Key, obj.Size, obj.ETag,
		defaultStr(obj.ContentType, "application/octet-stream"),
		nullStr(obj.ContentEncoding), nullStr(obj.ContentLanguage),
		nullStr(obj.ContentDisposition), nullStr(obj.CacheControl),
		nullStr(obj.Expires), defaultStr(obj.StorageClass, "STANDARD"),
		marshalACL(obj.ACL), marshalMeta(obj.UserMetadata),
		obj.LastModified.UTC().Format(timeFormat), deleteMarker,
	}
}

func scanObject(scan func(dest ...interface{}) error) (*Object, error) {
	var obj Object
	var enc, lang, disp, cache, expires sql.NullString
	var aclStr, metaStr, lastModified string
	var deleteMarker int

	err := scan(
		&obj.Bucket, &obj.Key, &obj.Size, &obj.ETag, &obj.ContentType,
		&enc, &lang, &disp, &cache, &expires,
		&obj.StorageClass, &aclStr, &metaStr, &lastModified, &deleteMarker,
	)
	if err != nil {
		return nil, err
	}
	obj.ContentEncoding = enc.String
	obj.ContentLanguage = lang.String
	obj.ContentDisposition = disp.String
	obj.CacheControl = cache.String
	obj.Expires = expires.String
	obj.ACL = unmarshalACL(aclStr)
	obj.LastModified, _ = time.Parse(timeFormat, lastModified)
	obj.DeleteMarker = deleteMarker != 0
	if metaStr != "" && metaStr != "{}" {
		obj.UserMetadata = make(map[string]string)
		json.Unmarshal([]byte(metaStr), &obj.UserMetadata)
	}
	return &obj, nil
}

func scanUpload(scan func(dest ...interface{}) error) (*Upload, error) {
	var u Upload
	var enc, lang, disp, cache, expires sql.NullString
	var aclStr, metaStr, initiated string

	err := scan(
		&u.UploadID, &u.Bucket, &u.Key, &u.ContentType,
		&enc, &lang, &disp, &cache, &expires,
		&u.StorageClass, &aclStr, &metaStr,
		&u.OwnerID, &u.OwnerDisplay, &initiated,
	)
	if err != nil {
		return nil, err
	}
	u.ContentEncoding = enc.String
	u.ContentLanguage = lang.String
	u.ContentDisposition = disp.String
	u.CacheControl = cache.String
	u.Expires = expires.String
	u.ACL = unmarshalACL(aclStr)
	u.InitiatedAt, _ = time.Parse(timeFormat, initiated)
	if metaStr != "" && metaStr != "{}" {
		u.UserMetadata = make(map[string]string)
		json.Unmarshal([]byte(metaStr), &u.UserMetadata)
	}
	return &u, nil
}

func scanPart(scan func(dest ...interface{}) error) (*Part, error) {
	var p Part
	var lastModified string
	if err := scan(&p.UploadID, &p.PartNumber, &p.Size, &p.ETag, &lastModified); err != nil {
		return nil, err
	}
	p.LastModified, _ = time.Parse(timeFormat, lastModified)
	return &p, nil
}
