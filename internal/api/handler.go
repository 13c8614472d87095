package api

import (
	"context"
	"net/http"

	"github.com/bleepstore/bleepstore/internal/blob"
	"github.com/bleepstore/bleepstore/internal/meta"
)

// Handler executes S3 operations against the metadata store and the
// storage backend. It is the only writer that touches both in a single
// operation and owns the commit order between them.
type Handler struct {
	meta          meta.Store
	blob          blob.Backend
	region        string
	maxObjectSize int64
	defaultOwner  Owner
}

// Config carries the handler's operating limits.
type Config struct {
	Region        string
	MaxObjectSize int64
	DefaultOwner  Owner
}

// NewHandler creates a Handler over the given stores.
func NewHandler(metaStore meta.Store, backend blob.Backend, cfg Config) *Handler {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.MaxObjectSize <= 0 {
		cfg.MaxObjectSize = 5 << 30
	}
	return &Handler{
		meta:          metaStore,
		blob:          backend,
		region:        cfg.Region,
		maxObjectSize: cfg.MaxObjectSize,
		defaultOwner:  cfg.DefaultOwner,
	}
}

// Context keys
type contextKey string

const (
	bucketKey contextKey = "bucket"
	keyKey    contextKey = "key"
	ownerKey  contextKey = "owner"
)

// WithBucket adds bucket name to request context.
func WithBucket(r *http.Request, bucket string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), bucketKey, bucket))
}

// WithKey adds object key to request context.
func WithKey(r *http.Request, key string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), keyKey, key))
}

// WithOwner adds the authenticated owner to the context.
func WithOwner(ctx context.Context, owner Owner) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

// GetBucket returns bucket name from request context.
func GetBucket(r *http.Request) string {
	if bucket, ok := r.Context().Value(bucketKey).(string); ok {
		return bucket
	}
	return ""
}

// GetKey returns object key from request context.
func GetKey(r *http.Request) string {
	if key, ok := r.Context().Value(keyKey).(string); ok {
		return key
	}
	return ""
}

// requestOwner returns the authenticated owner, falling back to the
// server's bootstrap identity when auth is disabled.
func (h *Handler) requestOwner(r *http.Request) Owner {
	if owner, ok := r.Context().Value(ownerKey).(Owner); ok && owner.ID != "" {
		return owner
	}
	return h.defaultOwner
}
