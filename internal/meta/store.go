// Package meta defines the metadata store contract and its implementations.
// The store owns every record the server keeps about buckets, objects,
// multipart uploads, parts, and credentials; blob bytes live in the storage
// backend and are never touched here.
package meta

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by Store implementations.
var (
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrBucketExists       = errors.New("bucket already exists")
	ErrBucketNotEmpty     = errors.New("bucket not empty")
	ErrObjectNotFound     = errors.New("object not found")
	ErrUploadNotFound     = errors.New("upload not found")
	ErrCredentialNotFound = errors.New("credential not found")
)

// Bucket is the metadata record for a bucket.
type Bucket struct {
	Name         string
	Region       string
	OwnerID      string
	OwnerDisplay string
	ACL          ACL
	CreatedAt    time.Time
}

// Object is the metadata record for a stored object. ETag is the unquoted
// hex value; quoting happens at the HTTP boundary.
type Object struct {
	Bucket             string
	Key                string
	Size               int64
	ETag               string
	ContentType        string
	ContentEncoding    string
	ContentLanguage    string
	ContentDisposition string
	CacheControl       string
	Expires            string
	StorageClass       string
	ACL                ACL
	UserMetadata       map[string]string
	LastModified       time.Time
	DeleteMarker       bool
}

// Upload is the metadata record for an in-progress multipart upload.
type Upload struct {
	UploadID           string
	Bucket             string
	Key                string
	ContentType        string
	ContentEncoding    string
	ContentLanguage    string
	ContentDisposition string
	CacheControl       string
	Expires            string
	StorageClass       string
	ACL                ACL
	UserMetadata       map[string]string
	OwnerID            string
	OwnerDisplay       string
	InitiatedAt        time.Time
}

// Part is the metadata record for one uploaded part.
type Part struct {
	UploadID     string
	PartNumber   int
	Size         int64
	ETag         string
	LastModified time.Time
}

// Credential is a long-term access key pair.
type Credential struct {
	AccessKeyID string
	SecretKey   string
	OwnerID     string
	DisplayName string
	Active      bool
	CreatedAt   time.Time
}

// ListObjectsOptions controls object listing. StartAfter carries the
// effective start key: the caller resolves marker vs. start-after vs.
// decoded continuation-token before calling.
type ListObjectsOptions struct {
	Prefix     string
	Delimiter  string
	MaxKeys    int
	StartAfter string
}

// ListObjectsResult is the outcome of a ListObjects call. NextKey is the
// last emitted entry (object key or common prefix) when truncated.
type ListObjectsResult struct {
	Objects        []Object
	CommonPrefixes []string
	IsTruncated    bool
	NextKey        string
}

// ListUploadsOptions controls multipart upload listing.
type ListUploadsOptions struct {
	Prefix         string
	MaxUploads     int
	KeyMarker      string
	UploadIDMarker string
}

// ListUploadsResult is the outcome of a ListUploads call.
type ListUploadsResult struct {
	Uploads            []Upload
	IsTruncated        bool
	NextKeyMarker      string
	NextUploadIDMarker string
}

// ListPartsOptions controls part listing.
type ListPartsOptions struct {
	MaxParts         int
	PartNumberMarker int
}

// ListPartsResult is the outcome of a ListParts call.
type ListPartsResult struct {
	Parts                []Part
	IsTruncated          bool
	NextPartNumberMarker int
}

// Store is the metadata store contract. Implementations must be safe for
// concurrent callers. CompleteUpload is all-or-nothing: it inserts the
// final object record and purges the upload and its parts atomically.
type Store interface {
	// Buckets
	CreateBucket(ctx context.Context, b *Bucket) error
	GetBucket(ctx context.Context, name string) (*Bucket, error)
	BucketExists(ctx context.Context, name string) (bool, error)
	ListBuckets(ctx context.Context, ownerID string) ([]Bucket, error)
	DeleteBucket(ctx context.Context, name string) error
	UpdateBucketACL(ctx context.Context, name string, acl ACL) error

	// Objects
	PutObject(ctx context.Context, obj *Object) error
	GetObject(ctx context.Context, bucket, key string) (*Object, error)
	ObjectExists(ctx context.Context, bucket, key string) (bool, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	CountObjects(ctx context.Context, bucket string) (int64, error)
	UpdateObjectACL(ctx context.Context, bucket, key string, acl ACL) error
	ListObjects(ctx context.Context, bucket string, opts ListObjectsOptions) (*ListObjectsResult, error)

	// Multipart uploads
	CreateUpload(ctx context.Context, u *Upload) error
	GetUpload(ctx context.Context, bucket, key, uploadID string) (*Upload, error)
	PutPart(ctx context.Context, p *Part) error
	ListParts(ctx context.Context, uploadID string, opts ListPartsOptions) (*ListPartsResult, error)
	GetPartsForCompletion(ctx context.Context, uploadID string, partNumbers []int) ([]Part, error)
	CompleteUpload(ctx context.Context, uploadID string, obj *Object) error
	DeleteUpload(ctx context.Context, bucket, key, uploadID string) error
	ListUploads(ctx context.Context, bucket string, opts ListUploadsOptions) (*ListUploadsResult, error)
	CountUploads(ctx context.Context, bucket string) (int64, error)

	// Credentials
	GetCredential(ctx context.Context, accessKeyID string) (*Credential, error)
	PutCredential(ctx context.Context, c *Credential) error

	Close() error
}
