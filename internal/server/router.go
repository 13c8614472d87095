package server

import (
	"net/http"
	"strings"

	"github.com/bleepstore/bleepstore/internal/api"
	"github.com/bleepstore/bleepstore/internal/auth"
	"github.com/bleepstore/bleepstore/internal/blob"
)

// notImplementedSubresources are the bucket and object subresources we
// recognize but do not serve.
var notImplementedSubresources = []string{
	"tagging", "cors", "versioning", "versions", "encryption",
	"lifecycle", "object-lock", "policy", "website", "retention",
	"legal-hold", "attributes", "torrent", "replication", "notification",
	"logging", "accelerate", "requestPayment", "inventory", "analytics",
	"intelligent-tiering", "publicAccessBlock", "ownershipControls",
}

// Options toggles the operational endpoints the router serves alongside
// the S3 API.
type Options struct {
	HealthCheck bool
	Metrics     bool
}

// Router handles S3 API routing.
type Router struct {
	handler    *api.Handler
	authMiddle auth.Authenticator
	backend    blob.Backend
	opts       Options
}

// NewRouter creates a new Router.
func NewRouter(handler *api.Handler, authMiddle auth.Authenticator, backend blob.Backend, opts Options) *Router {
	return &Router{
		handler:    handler,
		authMiddle: authMiddle,
		backend:    backend,
		opts:       opts,
	}
}

// ServeHTTP handles HTTP requests. When enabled, health endpoints bypass
// authentication; everything else runs through the middleware chain. A
// disabled endpoint falls through to S3 routing, so "/healthz" becomes an
// ordinary bucket path.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch req.URL.Path {
	case "/health", "/healthz", "/readyz":
		if r.opts.HealthCheck {
			r.handleHealth(w, req)
			return
		}
	case "/metrics":
		if r.opts.Metrics {
			RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				api.WriteError(w, api.ErrNotImplemented)
			})).ServeHTTP(w, req)
			return
		}
	}

	var handler http.Handler = r.routeRequest()
	handler = r.authMiddle.Wrap(handler)
	handler = RequestIDMiddleware(handler)
	handler = LoggingMiddleware(handler)
	handler = RecoveryMiddleware(handler)

	handler.ServeHTTP(w, req)
}

// handleHealth reports liveness; readyz also probes the storage backend.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path == "/readyz" {
		if err := r.backend.HealthCheck(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// hasNotImplementedSubresource reports whether the query names a
// subresource we answer with NotImplemented.
func hasNotImplementedSubresource(query map[string][]string) bool {
	for _, sub := range notImplementedSubresources {
		if _, ok := query[sub]; ok {
			return true
		}
	}
	return false
}

// routeRequest returns a handler that routes requests based on S3 API patterns.
func (r *Router) routeRequest() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		path := req.URL.Path
		query := req.URL.Query()

		// S3 path-style: /{bucket} or /{bucket}/{key}
		parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)

		bucket := ""
		key := ""
		if len(parts) > 0 {
			bucket = parts[0]
		}
		if len(parts) > 1 {
			key = parts[1]
		}

		req = api.WithBucket(req, bucket)
		req = api.WithKey(req, key)

		if bucket != "" && hasNotImplementedSubresource(query) {
			api.WriteError(w, api.ErrNotImplemented)
			return
		}

		switch req.Method {
		case http.MethodGet:
			if bucket == "" {
				r.handler.ListBuckets(w, req)
			} else if key == "" {
				switch {
				case query.Has("uploads"):
					r.handler.ListMultipartUploads(w, req)
				case query.Has("location"):
					r.handler.GetBucketLocation(w, req)
				case query.Has("acl"):
					r.handler.GetBucketAcl(w, req)
				case query.Get("list-type") == "2":
					r.handler.ListObjectsV2(w, req)
				default:
					r.handler.ListObjectsV1(w, req)
				}
			} else {
				switch {
				case query.Has("uploadId"):
					r.handler.ListParts(w, req)
				case query.Has("acl"):
					r.handler.GetObjectAcl(w, req)
				default:
					r.handler.GetObject(w, req)
				}
			}

		case http.MethodPut:
			if bucket != "" && key == "" {
				if query.Has("acl") {
					r.handler.PutBucketAcl(w, req)
				} else {
					r.handler.CreateBucket(w, req)
				}
			} else if bucket != "" && key != "" {
				switch {
				case query.Has("partNumber") && query.Has("uploadId"):
					if req.Header.Get("x-amz-copy-source") != "" {
						r.handler.UploadPartCopy(w, req)
					} else {
						r.handler.UploadPart(w, req)
					}
				case query.Has("acl"):
					r.handler.PutObjectAcl(w, req)
				case req.Header.Get("x-amz-copy-source") != "":
					r.handler.CopyObject(w, req)
				default:
					r.handler.PutObject(w, req)
				}
			} else {
				api.WriteError(w, api.ErrInvalidRequest)
			}

		case http.MethodPost:
			if bucket != "" && key != "" {
				switch {
				case query.Has("uploads"):
					r.handler.CreateMultipartUpload(w, req)
				case query.Has("uploadId"):
					r.handler.CompleteMultipartUpload(w, req)
				default:
					api.WriteError(w, api.ErrMethodNotAllowed)
				}
			} else if bucket != "" && key == "" {
				if query.Has("delete") {
					r.handler.DeleteObjects(w, req)
				} else {
					api.WriteError(w, api.ErrMethodNotAllowed)
				}
			} else {
				api.WriteError(w, api.ErrMethodNotAllowed)
			}

		case http.MethodDelete:
			if bucket != "" && key == "" {
				r.handler.DeleteBucket(w, req)
			} else if bucket != "" && key != "" {
				if query.Has("uploadId") {
					r.handler.AbortMultipartUpload(w, req)
				} else {
					r.handler.DeleteObject(w, req)
				}
			} else {
				api.WriteError(w, api.ErrInvalidRequest)
			}

		case http.MethodHead:
			if bucket != "" && key == "" {
				r.handler.HeadBucket(w, req)
			} else if bucket != "" && key != "" {
				r.handler.HeadObject(w, req)
			} else {
				api.WriteError(w, api.ErrInvalidRequest)
			}

		default:
			api.WriteError(w, api.ErrMethodNotAllowed)
		}
	}
}
