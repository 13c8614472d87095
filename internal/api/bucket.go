package api

import (
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bleepstore/bleepstore/internal/meta"
)

// ListAllMyBucketsResult is the response for ListBuckets.
type ListAllMyBucketsResult struct {
	XMLName xml.Name `xml:"ListAllMyBucketsResult"`
	Xmlns   string   `xml:"xmlns,attr"`
	Owner   Owner    `xml:"Owner"`
	Buckets Buckets  `xml:"Buckets"`
}

// Owner represents bucket owner information.
type Owner struct {
	ID          string `xml:"ID"`
	DisplayName string `xml:"DisplayName,omitempty"`
}

// Buckets is a container for bucket list.
type Buckets struct {
	Bucket []BucketInfo `xml:"Bucket"`
}

// BucketInfo represents a single bucket.
type BucketInfo struct {
	Name         string `xml:"Name"`
	CreationDate string `xml:"CreationDate"`
}

// CreateBucketConfiguration is the optional CreateBucket request body.
type CreateBucketConfiguration struct {
	XMLName            xml.Name `xml:"CreateBucketConfiguration"`
	LocationConstraint string   `xml:"LocationConstraint"`
}

// requireBucket resolves the taxonomy error for operations that need the
// bucket to exist before acting on a key within it.
func (h *Handler) requireBucket(r *http.Request, bucket string) *S3Error {
	exists, err := h.meta.BucketExists(r.Context(), bucket)
	if err != nil {
		return ErrInternalError
	}
	if !exists {
		return ErrNoSuchBucket
	}
	return nil
}

// CreateBucket handles PUT /{bucket} - CreateBucket.
func (h *Handler) CreateBucket(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	owner := h.requestOwner(r)

	if !ValidateBucketName(bucket) {
		WriteErrorWithResource(w, ErrInvalidBucketName, "/"+bucket)
		return
	}

	// Optional CreateBucketConfiguration body. An explicit region that
	// disagrees with the server's region is rejected.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteErrorWithResource(w, ErrInvalidRequest, "/"+bucket)
		return
	}
	if len(body) > 0 {
		var cfg CreateBucketConfiguration
		if err := xml.Unmarshal(body, &cfg); err != nil {
			WriteErrorWithResource(w, ErrMalformedXML, "/"+bucket)
			return
		}
		if cfg.LocationConstraint != "" && cfg.LocationConstraint != h.region {
			WriteErrorWithResource(w, ErrInvalidArgument, "/"+bucket)
			return
		}
	}

	acl, s3err := aclFromRequest(r, owner)
	if s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}

	if existing, err := h.meta.GetBucket(r.Context(), bucket); err == nil {
		if existing.OwnerID == owner.ID {
			// In us-east-1 re-creating your own bucket succeeds.
			if h.region == "us-east-1" {
				w.Header().Set("Location", "/"+bucket)
				w.WriteHeader(http.StatusOK)
				return
			}
			WriteErrorWithResource(w, ErrBucketAlreadyOwnedByYou, "/"+bucket)
			return
		}
		WriteErrorWithResource(w, ErrBucketAlreadyExists, "/"+bucket)
		return
	} else if !errors.Is(err, meta.ErrBucketNotFound) {
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket)
		return
	}

	// Blob side first, metadata second. An orphaned blob directory from a
	// crash between the two is harmless.
	if err := h.blob.CreateBucket(r.Context(), bucket); err != nil {
		log.Error().Err(err).Str("bucket", bucket).Msg("Failed to create bucket storage")
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket)
		return
	}

	record := &meta.Bucket{
		Name:         bucket,
		Region:       h.region,
		OwnerID:      owner.ID,
		OwnerDisplay: owner.DisplayName,
		ACL:          acl,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.meta.CreateBucket(r.Context(), record); err != nil {
		if errors.Is(err, meta.ErrBucketExists) {
			WriteErrorWithResource(w, ErrBucketAlreadyExists, "/"+bucket)
			return
		}
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket)
		return
	}

	w.Header().Set("Location", "/"+bucket)
	w.WriteHeader(http.StatusOK)
}

// DeleteBucket handles DELETE /{bucket} - DeleteBucket.
func (h *Handler) DeleteBucket(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	if s3err := h.requireBucket(r, bucket); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}

	objects, err := h.meta.CountObjects(r.Context(), bucket)
	if err != nil {
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket)
		return
	}
	uploads, err := h.meta.CountUploads(r.Context(), bucket)
	if err != nil {
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket)
		return
	}
	if objects > 0 || uploads > 0 {
		WriteErrorWithResource(w, ErrBucketNotEmpty, "/"+bucket)
		return
	}

	// Metadata first; blob cleanup is best-effort.
	if err := h.meta.DeleteBucket(r.Context(), bucket); err != nil {
		if errors.Is(err, meta.ErrBucketNotFound) {
			WriteErrorWithResource(w, ErrNoSuchBucket, "/"+bucket)
			return
		}
		if errors.Is(err, meta.ErrBucketNotEmpty) {
			WriteErrorWithResource(w, ErrBucketNotEmpty, "/"+bucket)
			return
		}
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket)
		return
	}
	if err := h.blob.DeleteBucket(r.Context(), bucket); err != nil {
		log.Warn().Err(err).Str("bucket", bucket).Msg("Failed to remove bucket storage")
	}

	w.WriteHeader(http.StatusNoContent)
}

// HeadBucket handles HEAD /{bucket} - HeadBucket.
func (h *Handler) HeadBucket(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	exists, err := h.meta.BucketExists(r.Context(), bucket)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ListBuckets handles GET / - ListBuckets.
func (h *Handler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	owner := h.requestOwner(r)

	buckets, err := h.meta.ListBuckets(r.Context(), owner.ID)
	if err != nil {
		WriteError(w, ErrInternalError)
		return
	}

	result := ListAllMyBucketsResult{
		Xmlns: s3Namespace,
		Owner: owner,
		Buckets: Buckets{
			Bucket: make([]BucketInfo, len(buckets)),
		},
	}
	for i, b := range buckets {
		result.Buckets.Bucket[i] = BucketInfo{
			Name:         b.Name,
			CreationDate: FormatTimeS3(b.CreatedAt),
		}
	}

	writeXML(w, http.StatusOK, result)
}

// LocationConstraint is the response for GetBucketLocation.
type LocationConstraint struct {
	XMLName  xml.Name `xml:"LocationConstraint"`
	Xmlns    string   `xml:"xmlns,attr"`
	Location string   `xml:",chardata"`
}

// GetBucketLocation handles GET /{bucket}?location - GetBucketLocation.
func (h *Handler) GetBucketLocation(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	b, err := h.meta.GetBucket(r.Context(), bucket)
	if err != nil {
		if errors.Is(err, meta.ErrBucketNotFound) {
			WriteErrorWithResource(w, ErrNoSuchBucket, "/"+bucket)
			return
		}
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket)
		return
	}

	// Empty LocationConstraint for us-east-1, the region name otherwise.
	location := b.Region
	if location == "us-east-1" {
		location = ""
	}
	writeXML(w, http.StatusOK, LocationConstraint{
		Xmlns:    s3Namespace,
		Location: location,
	})
}
