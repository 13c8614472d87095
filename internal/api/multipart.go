package api

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bleepstore/bleepstore/internal/blob"
	"github.com/bleepstore/bleepstore/internal/meta"
)

// minPartSize is the floor for every part except the last.
const minPartSize = 5 << 20

// maxPartNumber caps part numbers per upload.
const maxPartNumber = 10000

// InitiateMultipartUploadResult is the response for CreateMultipartUpload.
type InitiateMultipartUploadResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	Xmlns    string   `xml:"xmlns,attr"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	UploadId string   `xml:"UploadId"`
}

// CompleteMultipartUploadResult is the response for CompleteMultipartUpload.
type CompleteMultipartUploadResult struct {
	XMLName  xml.Name `xml:"CompleteMultipartUploadResult"`
	Xmlns    string   `xml:"xmlns,attr"`
	Location string   `xml:"Location"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	ETag     string   `xml:"ETag"`
}

// CompleteMultipartUploadRequest is the request body for CompleteMultipartUpload.
type CompleteMultipartUploadRequest struct {
	XMLName xml.Name       `xml:"CompleteMultipartUpload"`
	Parts   []CompletePart `xml:"Part"`
}

// CompletePart represents a part in CompleteMultipartUpload request.
type CompletePart struct {
	PartNumber int    `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
}

// ListPartsResult is the response for ListParts.
type ListPartsResult struct {
	XMLName              xml.Name   `xml:"ListPartsResult"`
	Xmlns                string     `xml:"xmlns,attr"`
	Bucket               string     `xml:"Bucket"`
	Key                  string     `xml:"Key"`
	UploadId             string     `xml:"UploadId"`
	PartNumberMarker     int        `xml:"PartNumberMarker"`
	NextPartNumberMarker int        `xml:"NextPartNumberMarker,omitempty"`
	MaxParts             int        `xml:"MaxParts"`
	IsTruncated          bool       `xml:"IsTruncated"`
	Parts                []PartInfo `xml:"Part"`
}

// PartInfo represents a part in ListParts response.
type PartInfo struct {
	PartNumber   int    `xml:"PartNumber"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
}

// CopyPartResult is the response for UploadPartCopy.
type CopyPartResult struct {
	XMLName      xml.Name `xml:"CopyPartResult"`
	Xmlns        string   `xml:"xmlns,attr"`
	LastModified string   `xml:"LastModified"`
	ETag         string   `xml:"ETag"`
}

// ListMultipartUploadsResult is the response for ListMultipartUploads.
type ListMultipartUploadsResult struct {
	XMLName            xml.Name     `xml:"ListMultipartUploadsResult"`
	Xmlns              string       `xml:"xmlns,attr"`
	Bucket             string       `xml:"Bucket"`
	KeyMarker          string       `xml:"KeyMarker"`
	UploadIdMarker     string       `xml:"UploadIdMarker"`
	NextKeyMarker      string       `xml:"NextKeyMarker,omitempty"`
	NextUploadIdMarker string       `xml:"NextUploadIdMarker,omitempty"`
	Prefix             string       `xml:"Prefix,omitempty"`
	MaxUploads         int          `xml:"MaxUploads"`
	IsTruncated        bool         `xml:"IsTruncated"`
	Uploads            []UploadInfo `xml:"Upload"`
}

// UploadInfo represents an upload in ListMultipartUploads response.
type UploadInfo struct {
	Key          string `xml:"Key"`
	UploadId     string `xml:"UploadId"`
	Initiator    *Owner `xml:"Initiator,omitempty"`
	Owner        *Owner `xml:"Owner,omitempty"`
	StorageClass string `xml:"StorageClass"`
	Initiated    string `xml:"Initiated"`
}

// newUploadID returns a 128-bit random token as 32 lowercase hex chars.
func newUploadID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		log.Error().Err(err).Msg("Failed to generate upload id")
		return "00000000000000000000000000000000"
	}
	return hex.EncodeToString(b)
}

// CreateMultipartUpload handles POST /{bucket}/{key}?uploads - CreateMultipartUpload.
func (h *Handler) CreateMultipartUpload(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	if s3err := validateKey(key); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket+"/"+key)
		return
	}
	if s3err := h.requireBucket(r, bucket); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}

	owner := h.requestOwner(r)
	acl, s3err := aclFromRequest(r, owner)
	if s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket+"/"+key)
		return
	}

	contentType, encoding, language, disposition, cacheControl, expires := contentHeadersFromRequest(r)
	upload := &meta.Upload{
		UploadID:           newUploadID(),
		Bucket:             bucket,
		Key:                key,
		ContentType:        contentType,
		ContentEncoding:    encoding,
		ContentLanguage:    language,
		ContentDisposition: disposition,
		CacheControl:       cacheControl,
		Expires:            expires,
		StorageClass:       storageClassOrDefault(r.Header.Get("x-amz-storage-class")),
		ACL:                acl,
		UserMetadata:       userMetadata(r.Header),
		OwnerID:            owner.ID,
		OwnerDisplay:       owner.DisplayName,
		InitiatedAt:        time.Now().UTC(),
	}
	if err := h.meta.CreateUpload(r.Context(), upload); err != nil {
		log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Failed to create multipart upload")
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket+"/"+key)
		return
	}

	writeXML(w, http.StatusOK, InitiateMultipartUploadResult{
		Xmlns:    s3Namespace,
		Bucket:   bucket,
		Key:      key,
		UploadId: upload.UploadID,
	})
}

// resolveUpload loads the upload record for the request's upload-id query
// parameter, mapping absence to NoSuchUpload.
func (h *Handler) resolveUpload(r *http.Request, bucket, key string) (*meta.Upload, *S3Error) {
	uploadID := r.URL.Query().Get("uploadId")
	if uploadID == "" {
		return nil, ErrInvalidArgument
	}
	upload, err := h.meta.GetUpload(r.Context(), bucket, key, uploadID)
	if err != nil {
		if errors.Is(err, meta.ErrUploadNotFound) {
			return nil, ErrNoSuchUpload
		}
		return nil, ErrInternalError
	}
	return upload, nil
}

// UploadPart handles PUT /{bucket}/{key}?partNumber=N&uploadId=ID - UploadPart.
func (h *Handler) UploadPart(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	partNumber, err := strconv.Atoi(r.URL.Query().Get("partNumber"))
	if err != nil || partNumber < 1 || partNumber > maxPartNumber {
		WriteErrorWithResource(w, ErrInvalidArgument, "/"+bucket+"/"+key)
		return
	}

	if s3err := h.requireBucket(r, bucket); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}
	upload, s3err := h.resolveUpload(r, bucket, key)
	if s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket+"/"+key)
		return
	}

	body, s3err := h.readBody(r)
	if s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket+"/"+key)
		return
	}
	if s3err := verifyContentMD5(r.Header.Get("Content-MD5"), body); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket+"/"+key)
		return
	}

	size, etag, err := h.blob.PutPart(r.Context(), bucket, upload.UploadID, partNumber, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Failed to write part blob")
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket+"/"+key)
		return
	}

	part := &meta.Part{
		UploadID:     upload.UploadID,
		PartNumber:   partNumber,
		Size:         size,
		ETag:         etag,
		LastModified: time.Now().UTC(),
	}
	if err := h.meta.PutPart(r.Context(), part); err != nil {
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket+"/"+key)
		return
	}

	w.Header().Set("ETag", quoteETag(etag))
	w.WriteHeader(http.StatusOK)
}

// UploadPartCopy handles PUT /{bucket}/{key}?partNumber=N&uploadId=ID with
// an x-amz-copy-source header.
func (h *Handler) UploadPartCopy(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	partNumber, err := strconv.Atoi(r.URL.Query().Get("partNumber"))
	if err != nil || partNumber < 1 || partNumber > maxPartNumber {
		WriteErrorWithResource(w, ErrInvalidArgument, "/"+bucket+"/"+key)
		return
	}

	if s3err := h.requireBucket(r, bucket); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}
	upload, s3err := h.resolveUpload(r, bucket, key)
	if s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket+"/"+key)
		return
	}

	srcBucket, srcKey, ok := parseCopySource(r.Header.Get("x-amz-copy-source"))
	if !ok {
		WriteErrorWithResource(w, ErrInvalidArgument, "/"+bucket+"/"+key)
		return
	}

	src, err := h.meta.GetObject(r.Context(), srcBucket, srcKey)
	if err != nil {
		if errors.Is(err, meta.ErrObjectNotFound) || errors.Is(err, meta.ErrBucketNotFound) {
			WriteErrorWithResource(w, ErrNoSuchKey, "/"+srcBucket+"/"+srcKey)
			return
		}
		WriteErrorWithResource(w, ErrInternalError, "/"+srcBucket+"/"+srcKey)
		return
	}
	if s3err := checkCopySourceConditional(r, src.ETag, src.LastModified); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+srcBucket+"/"+srcKey)
		return
	}

	rng := byteRange{start: 0, end: src.Size - 1, length: src.Size}
	if header := r.Header.Get("x-amz-copy-source-range"); header != "" {
		parsed, ranged, s3err := parseRange(header, src.Size)
		if s3err != nil || !ranged {
			WriteErrorWithResource(w, ErrInvalidRange, "/"+srcBucket+"/"+srcKey)
			return
		}
		rng = parsed
	}

	body, _, err := h.blob.GetObject(r.Context(), srcBucket, srcKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			WriteErrorWithResource(w, ErrNoSuchKey, "/"+srcBucket+"/"+srcKey)
			return
		}
		WriteErrorWithResource(w, ErrInternalError, "/"+srcBucket+"/"+srcKey)
		return
	}
	defer body.Close()

	if _, err := io.CopyN(io.Discard, body, rng.start); err != nil {
		WriteErrorWithResource(w, ErrInternalError, "/"+srcBucket+"/"+srcKey)
		return
	}
	reader := io.LimitReader(body, rng.length)

	size, etag, err := h.blob.PutPart(r.Context(), bucket, upload.UploadID, partNumber, reader)
	if err != nil {
		log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Failed to write part blob")
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket+"/"+key)
		return
	}

	now := time.Now().UTC()
	part := &meta.Part{
		UploadID:     upload.UploadID,
		PartNumber:   partNumber,
		Size:         size,
		ETag:         etag,
		LastModified: now,
	}
	if err := h.meta.PutPart(r.Context(), part); err != nil {
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket+"/"+key)
		return
	}

	writeXML(w, http.StatusOK, CopyPartResult{
		Xmlns:        s3Namespace,
		LastModified: FormatTimeS3(now),
		ETag:         quoteETag(etag),
	})
}

// CompleteMultipartUpload handles POST /{bucket}/{key}?uploadId=ID.
func (h *Handler) CompleteMultipartUpload(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	if s3err := h.requireBucket(r, bucket); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}
	upload, s3err := h.resolveUpload(r, bucket, key)
	if s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket+"/"+key)
		return
	}

	var req CompleteMultipartUploadRequest
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorWithResource(w, ErrMalformedXML, "/"+bucket+"/"+key)
		return
	}
	if len(req.Parts) == 0 {
		WriteErrorWithResource(w, ErrMalformedXML, "/"+bucket+"/"+key)
		return
	}
	for i := 1; i < len(req.Parts); i++ {
		if req.Parts[i].PartNumber <= req.Parts[i-1].PartNumber {
			WriteErrorWithResource(w, ErrInvalidPartOrder, "/"+bucket+"/"+key)
			return
		}
	}

	partNumbers := make([]int, len(req.Parts))
	for i, p := range req.Parts {
		partNumbers[i] = p.PartNumber
	}
	stored, err := h.meta.GetPartsForCompletion(r.Context(), upload.UploadID, partNumbers)
	if err != nil {
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket+"/"+key)
		return
	}
	if len(stored) != len(req.Parts) {
		WriteErrorWithResource(w, ErrInvalidPart, "/"+bucket+"/"+key)
		return
	}

	var totalSize int64
	refs := make([]blob.PartRef, len(req.Parts))
	for i, declared := range req.Parts {
		part := stored[i]
		if part.PartNumber != declared.PartNumber || part.ETag != unquoteETag(declared.ETag) {
			WriteErrorWithResource(w, ErrInvalidPart, "/"+bucket+"/"+key)
			return
		}
		// Every part but the last has a size floor.
		if i < len(req.Parts)-1 && part.Size < minPartSize {
			WriteErrorWithResource(w, ErrEntityTooSmall, "/"+bucket+"/"+key)
			return
		}
		totalSize += part.Size
		refs[i] = blob.PartRef{Number: part.PartNumber, ETag: part.ETag}
	}

	size, etag, err := h.blob.AssembleParts(r.Context(), bucket, key, upload.UploadID, refs)
	if err != nil {
		log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Failed to assemble parts")
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket+"/"+key)
		return
	}
	if size != totalSize {
		log.Warn().Int64("assembled", size).Int64("recorded", totalSize).
			Str("upload_id", upload.UploadID).Msg("Assembled size disagrees with part records")
	}

	record := &meta.Object{
		Bucket:             bucket,
		Key:                key,
		Size:               size,
		ETag:               etag,
		ContentType:        upload.ContentType,
		ContentEncoding:    upload.ContentEncoding,
		ContentLanguage:    upload.ContentLanguage,
		ContentDisposition: upload.ContentDisposition,
		CacheControl:       upload.CacheControl,
		Expires:            upload.Expires,
		StorageClass:       storageClassOrDefault(upload.StorageClass),
		ACL:                upload.ACL,
		UserMetadata:       upload.UserMetadata,
		LastModified:       time.Now().UTC(),
	}

	// One transaction: insert the object, purge the upload and its parts.
	if err := h.meta.CompleteUpload(r.Context(), upload.UploadID, record); err != nil {
		if errors.Is(err, meta.ErrUploadNotFound) {
			WriteErrorWithResource(w, ErrNoSuchUpload, "/"+bucket+"/"+key)
			return
		}
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket+"/"+key)
		return
	}

	// Part blobs are garbage after the commit.
	if err := h.blob.DeleteParts(r.Context(), bucket, upload.UploadID); err != nil {
		log.Warn().Err(err).Str("upload_id", upload.UploadID).Msg("Failed to remove part blobs")
	}

	writeXML(w, http.StatusOK, CompleteMultipartUploadResult{
		Xmlns:    s3Namespace,
		Location: "/" + bucket + "/" + key,
		Bucket:   bucket,
		Key:      key,
		ETag:     quoteETag(etag),
	})
}

// AbortMultipartUpload handles DELETE /{bucket}/{key}?uploadId=ID.
func (h *Handler) AbortMultipartUpload(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	if s3err := h.requireBucket(r, bucket); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}
	upload, s3err := h.resolveUpload(r, bucket, key)
	if s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket+"/"+key)
		return
	}

	// Records first, then blobs.
	if err := h.meta.DeleteUpload(r.Context(), bucket, key, upload.UploadID); err != nil {
		if errors.Is(err, meta.ErrUploadNotFound) {
			WriteErrorWithResource(w, ErrNoSuchUpload, "/"+bucket+"/"+key)
			return
		}
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket+"/"+key)
		return
	}
	if err := h.blob.DeleteParts(r.Context(), bucket, upload.UploadID); err != nil {
		log.Warn().Err(err).Str("upload_id", upload.UploadID).Msg("Failed to remove part blobs")
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListParts handles GET /{bucket}/{key}?uploadId=ID - ListParts.
func (h *Handler) ListParts(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	if s3err := h.requireBucket(r, bucket); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}
	upload, s3err := h.resolveUpload(r, bucket, key)
	if s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket+"/"+key)
		return
	}

	query := r.URL.Query()
	maxParts, s3err := parseMaxKeys(query.Get("max-parts"))
	if s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket+"/"+key)
		return
	}

	marker := 0
	if raw := query.Get("part-number-marker"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteErrorWithResource(w, ErrInvalidArgument, "/"+bucket+"/"+key)
			return
		}
		marker = n
	}

	result, err := h.meta.ListParts(r.Context(), upload.UploadID, meta.ListPartsOptions{
		MaxParts:         maxParts,
		PartNumberMarker: marker,
	})
	if err != nil {
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket+"/"+key)
		return
	}

	response := ListPartsResult{
		Xmlns:            s3Namespace,
		Bucket:           bucket,
		Key:              key,
		UploadId:         upload.UploadID,
		PartNumberMarker: marker,
		MaxParts:         maxParts,
		IsTruncated:      result.IsTruncated,
		Parts:            make([]PartInfo, len(result.Parts)),
	}
	if result.IsTruncated {
		response.NextPartNumberMarker = result.NextPartNumberMarker
	}
	for i, part := range result.Parts {
		response.Parts[i] = PartInfo{
			PartNumber:   part.PartNumber,
			LastModified: FormatTimeS3(part.LastModified),
			ETag:         quoteETag(part.ETag),
			Size:         part.Size,
		}
	}

	writeXML(w, http.StatusOK, response)
}

// ListMultipartUploads handles GET /{bucket}?uploads - ListMultipartUploads.
func (h *Handler) ListMultipartUploads(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	if s3err := h.requireBucket(r, bucket); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}

	query := r.URL.Query()
	prefix := query.Get("prefix")
	keyMarker := query.Get("key-marker")
	uploadIDMarker := query.Get("upload-id-marker")

	maxUploads, s3err := parseMaxKeys(query.Get("max-uploads"))
	if s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}

	result, err := h.meta.ListUploads(r.Context(), bucket, meta.ListUploadsOptions{
		Prefix:         prefix,
		MaxUploads:     maxUploads,
		KeyMarker:      keyMarker,
		UploadIDMarker: uploadIDMarker,
	})
	if err != nil {
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket)
		return
	}

	response := ListMultipartUploadsResult{
		Xmlns:          s3Namespace,
		Bucket:         bucket,
		KeyMarker:      keyMarker,
		UploadIdMarker: uploadIDMarker,
		Prefix:         prefix,
		MaxUploads:     maxUploads,
		IsTruncated:    result.IsTruncated,
		Uploads:        make([]UploadInfo, len(result.Uploads)),
	}
	if result.IsTruncated {
		response.NextKeyMarker = result.NextKeyMarker
		response.NextUploadIdMarker = result.NextUploadIDMarker
	}
	for i, upload := range result.Uploads {
		owner := &Owner{ID: upload.OwnerID, DisplayName: upload.OwnerDisplay}
		response.Uploads[i] = UploadInfo{
			Key:          upload.Key,
			UploadId:     upload.UploadID,
			Initiator:    owner,
			Owner:        owner,
			StorageClass: storageClassOrDefault(upload.StorageClass),
			Initiated:    FormatTimeS3(upload.InitiatedAt),
		}
	}

	writeXML(w, http.StatusOK, response)
}

// unquoteETag strips surrounding double quotes from a client-sent etag.
func unquoteETag(etag string) string {
	if len(etag) >= 2 && etag[0] == '"' && etag[len(etag)-1] == '"' {
		return etag[1 : len(etag)-1]
	}
	return etag
}
