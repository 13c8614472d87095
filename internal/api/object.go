package api

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
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

// ListBucketResult is the response for ListObjectsV2.
type ListBucketResult struct {
	XMLName               xml.Name       `xml:"ListBucketResult"`
	Xmlns                 string         `xml:"xmlns,attr"`
	Name                  string         `xml:"Name"`
	Prefix                string         `xml:"Prefix"`
	Delimiter             string         `xml:"Delimiter,omitempty"`
	MaxKeys               int            `xml:"MaxKeys"`
	EncodingType          string         `xml:"EncodingType,omitempty"`
	IsTruncated           bool           `xml:"IsTruncated"`
	KeyCount              int            `xml:"KeyCount"`
	ContinuationToken     string         `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string         `xml:"NextContinuationToken,omitempty"`
	StartAfter            string         `xml:"StartAfter,omitempty"`
	Contents              []ObjectInfo   `xml:"Contents"`
	CommonPrefixes        []CommonPrefix `xml:"CommonPrefixes,omitempty"`
}

// ListBucketResultV1 is the response for the legacy ListObjects.
type ListBucketResultV1 struct {
	XMLName        xml.Name       `xml:"ListBucketResult"`
	Xmlns          string         `xml:"xmlns,attr"`
	Name           string         `xml:"Name"`
	Prefix         string         `xml:"Prefix"`
	Marker         string         `xml:"Marker"`
	NextMarker     string         `xml:"NextMarker,omitempty"`
	Delimiter      string         `xml:"Delimiter,omitempty"`
	MaxKeys        int            `xml:"MaxKeys"`
	IsTruncated    bool           `xml:"IsTruncated"`
	Contents       []ObjectInfo   `xml:"Contents"`
	CommonPrefixes []CommonPrefix `xml:"CommonPrefixes,omitempty"`
}

// ObjectInfo represents a single object in listing.
type ObjectInfo struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
	Owner        *Owner `xml:"Owner,omitempty"`
}

// CommonPrefix represents a common prefix.
type CommonPrefix struct {
	Prefix string `xml:"Prefix"`
}

// CopyObjectResult is the response for CopyObject.
type CopyObjectResult struct {
	XMLName      xml.Name `xml:"CopyObjectResult"`
	Xmlns        string   `xml:"xmlns,attr"`
	LastModified string   `xml:"LastModified"`
	ETag         string   `xml:"ETag"`
}

// Delete is the request body for DeleteObjects.
type Delete struct {
	XMLName xml.Name           `xml:"Delete"`
	Quiet   bool               `xml:"Quiet"`
	Objects []ObjectIdentifier `xml:"Object"`
}

// ObjectIdentifier names one key in a batch delete.
type ObjectIdentifier struct {
	Key string `xml:"Key"`
}

// DeleteResult is the response for DeleteObjects.
type DeleteResult struct {
	XMLName xml.Name        `xml:"DeleteResult"`
	Xmlns   string          `xml:"xmlns,attr"`
	Deleted []DeletedObject `xml:"Deleted"`
	Errors  []DeleteError   `xml:"Error"`
}

// DeletedObject reports one successfully deleted key.
type DeletedObject struct {
	Key string `xml:"Key"`
}

// DeleteError reports one failed key in a batch delete.
type DeleteError struct {
	Key     string `xml:"Key"`
	Code    string `xml:"Code"`
	Message string `xml:"Message"`
}

// maxBatchDeleteKeys caps one DeleteObjects request.
const maxBatchDeleteKeys = 1000

// storageClassOrDefault normalizes an empty stored class to STANDARD.
func storageClassOrDefault(class string) string {
	if class == "" {
		return "STANDARD"
	}
	return class
}

// contentHeaders captures the content-* family a record carries.
func contentHeadersFromRequest(r *http.Request) (contentType, encoding, language, disposition, cacheControl, expires string) {
	contentType = r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return contentType,
		r.Header.Get("Content-Encoding"),
		r.Header.Get("Content-Language"),
		r.Header.Get("Content-Disposition"),
		r.Header.Get("Cache-Control"),
		r.Header.Get("Expires")
}

// writeObjectHeaders sets the response headers a record carries, with
// response-content-* query overrides applied for GET.
func writeObjectHeaders(w http.ResponseWriter, r *http.Request, obj *meta.Object) {
	set := func(name, stored, override string) {
		if v := r.URL.Query().Get(override); v != "" {
			w.Header().Set(name, v)
			return
		}
		if stored != "" {
			w.Header().Set(name, stored)
		}
	}

	set("Content-Type", obj.ContentType, "response-content-type")
	set("Content-Encoding", obj.ContentEncoding, "response-content-encoding")
	set("Content-Language", obj.ContentLanguage, "response-content-language")
	set("Content-Disposition", obj.ContentDisposition, "response-content-disposition")
	set("Cache-Control", obj.CacheControl, "response-cache-control")
	set("Expires", obj.Expires, "response-expires")

	w.Header().Set("ETag", quoteETag(obj.ETag))
	w.Header().Set("Last-Modified", FormatTimeHTTP(obj.LastModified))
	for k, v := range obj.UserMetadata {
		w.Header().Set("x-amz-meta-"+k, v)
	}
	if obj.StorageClass != "" && obj.StorageClass != "STANDARD" {
		w.Header().Set("x-amz-storage-class", obj.StorageClass)
	}
}

// readBody reads the request body honoring Content-Length and the
// configured object size cap.
func (h *Handler) readBody(r *http.Request) ([]byte, *S3Error) {
	if r.ContentLength < 0 {
		return nil, ErrMissingContentLength
	}
	if r.ContentLength > h.maxObjectSize {
		return nil, ErrEntityTooLarge
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxObjectSize+1))
	if err != nil {
		return nil, ErrIncompleteBody
	}
	if int64(len(body)) > h.maxObjectSize {
		return nil, ErrEntityTooLarge
	}
	if int64(len(body)) != r.ContentLength {
		return nil, ErrIncompleteBody
	}
	return body, nil
}

// verifyContentMD5 checks a Content-MD5 header against the body.
func verifyContentMD5(header string, body []byte) *S3Error {
	if header == "" {
		return nil
	}
	want, err := base64.StdEncoding.DecodeString(header)
	if err != nil || len(want) != md5.Size {
		return ErrInvalidDigest
	}
	sum := md5.Sum(body)
	if !bytes.Equal(want, sum[:]) {
		return ErrBadDigest
	}
	return nil
}

// PutObject handles PUT /{bucket}/{key} - PutObject.
func (h *Handler) PutObject(w http.ResponseWriter, r *http.Request) {
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

	body, s3err := h.readBody(r)
	if s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket+"/"+key)
		return
	}
	if s3err := verifyContentMD5(r.Header.Get("Content-MD5"), body); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket+"/"+key)
		return
	}

	// Conditional writes are evaluated against the current record; an
	// absent record fails If-Match and passes If-None-Match.
	current, err := h.meta.GetObject(r.Context(), bucket, key)
	switch {
	case err == nil:
		if s3err := checkConditional(r, current.ETag, current.LastModified, false); s3err != nil {
			WriteErrorWithResource(w, s3err, "/"+bucket+"/"+key)
			return
		}
	case errors.Is(err, meta.ErrObjectNotFound):
		if r.Header.Get("If-Match") != "" {
			WriteErrorWithResource(w, ErrPreconditionFailed, "/"+bucket+"/"+key)
			return
		}
	default:
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket+"/"+key)
		return
	}

	owner := h.requestOwner(r)
	acl, s3err := aclFromRequest(r, owner)
	if s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket+"/"+key)
		return
	}

	// Blob first, metadata second.
	size, etag, err := h.blob.PutObject(r.Context(), bucket, key, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Failed to write object blob")
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket+"/"+key)
		return
	}

	contentType, encoding, language, disposition, cacheControl, expires := contentHeadersFromRequest(r)
	record := &meta.Object{
		Bucket:             bucket,
		Key:                key,
		Size:               size,
		ETag:               etag,
		ContentType:        contentType,
		ContentEncoding:    encoding,
		ContentLanguage:    language,
		ContentDisposition: disposition,
		CacheControl:       cacheControl,
		Expires:            expires,
		StorageClass:       storageClassOrDefault(r.Header.Get("x-amz-storage-class")),
		ACL:                acl,
		UserMetadata:       userMetadata(r.Header),
		LastModified:       time.Now().UTC(),
	}
	if err := h.meta.PutObject(r.Context(), record); err != nil {
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket+"/"+key)
		return
	}

	w.Header().Set("ETag", quoteETag(etag))
	w.WriteHeader(http.StatusOK)
}

// GetObject handles GET /{bucket}/{key} - GetObject.
func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	h.serveObject(w, r, true)
}

// HeadObject handles HEAD /{bucket}/{key} - HeadObject.
func (h *Handler) HeadObject(w http.ResponseWriter, r *http.Request) {
	h.serveObject(w, r, false)
}

// serveObject implements GetObject and HeadObject; withBody selects GET.
func (h *Handler) serveObject(w http.ResponseWriter, r *http.Request, withBody bool) {
	bucket := GetBucket(r)
	key := GetKey(r)

	if s3err := h.requireBucket(r, bucket); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}

	obj, err := h.meta.GetObject(r.Context(), bucket, key)
	if err != nil {
		if errors.Is(err, meta.ErrObjectNotFound) {
			WriteErrorWithResource(w, ErrNoSuchKey, "/"+bucket+"/"+key)
			return
		}
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket+"/"+key)
		return
	}

	if s3err := checkConditional(r, obj.ETag, obj.LastModified, true); s3err != nil {
		if s3err == ErrNotModified {
			w.Header().Set("ETag", quoteETag(obj.ETag))
			w.Header().Set("Last-Modified", FormatTimeHTTP(obj.LastModified))
		}
		WriteErrorWithResource(w, s3err, "/"+bucket+"/"+key)
		return
	}

	rng, ranged, s3err := parseRange(r.Header.Get("Range"), obj.Size)
	if s3err != nil {
		w.Header().Set("Content-Range", "bytes */"+strconv.FormatInt(obj.Size, 10))
		WriteErrorWithResource(w, s3err, "/"+bucket+"/"+key)
		return
	}

	writeObjectHeaders(w, r, obj)

	status := http.StatusOK
	length := obj.Size
	if ranged {
		status = http.StatusPartialContent
		length = rng.length
		w.Header().Set("Content-Range",
			"bytes "+strconv.FormatInt(rng.start, 10)+"-"+strconv.FormatInt(rng.end, 10)+"/"+strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.Header().Set("Accept-Ranges", "bytes")

	if !withBody {
		w.WriteHeader(status)
		return
	}

	body, _, err := h.blob.GetObject(r.Context(), bucket, key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			WriteErrorWithResource(w, ErrNoSuchKey, "/"+bucket+"/"+key)
			return
		}
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket+"/"+key)
		return
	}
	defer body.Close()

	w.WriteHeader(status)
	if ranged {
		if _, err := io.CopyN(io.Discard, body, rng.start); err != nil {
			log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Failed to seek object body")
			return
		}
		if _, err := io.CopyN(w, body, rng.length); err != nil {
			log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Failed to write object body range")
		}
		return
	}
	if _, err := io.Copy(w, body); err != nil {
		log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Failed to write object body")
	}
}

// DeleteObject handles DELETE /{bucket}/{key} - DeleteObject.
func (h *Handler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	if s3err := h.requireBucket(r, bucket); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}

	// Metadata first, blob best-effort. Absent objects still return 204.
	if err := h.meta.DeleteObject(r.Context(), bucket, key); err != nil {
		if !errors.Is(err, meta.ErrObjectNotFound) {
			WriteErrorWithResource(w, ErrInternalError, "/"+bucket+"/"+key)
			return
		}
	} else if err := h.blob.DeleteObject(r.Context(), bucket, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
		log.Warn().Err(err).Str("bucket", bucket).Str("key", key).Msg("Failed to remove object blob")
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteObjects handles POST /{bucket}?delete - batch delete.
func (h *Handler) DeleteObjects(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	if s3err := h.requireBucket(r, bucket); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		WriteErrorWithResource(w, ErrInvalidRequest, "/"+bucket)
		return
	}

	var req Delete
	if err := xml.Unmarshal(body, &req); err != nil {
		WriteErrorWithResource(w, ErrMalformedXML, "/"+bucket)
		return
	}
	if len(req.Objects) == 0 || len(req.Objects) > maxBatchDeleteKeys {
		WriteErrorWithResource(w, ErrMalformedXML, "/"+bucket)
		return
	}

	result := DeleteResult{Xmlns: s3Namespace}
	for _, obj := range req.Objects {
		if obj.Key == "" {
			result.Errors = append(result.Errors, DeleteError{
				Key:     obj.Key,
				Code:    ErrInvalidArgument.Code,
				Message: ErrInvalidArgument.Message,
			})
			continue
		}

		err := h.meta.DeleteObject(r.Context(), bucket, obj.Key)
		if err != nil && !errors.Is(err, meta.ErrObjectNotFound) {
			result.Errors = append(result.Errors, DeleteError{
				Key:     obj.Key,
				Code:    ErrInternalError.Code,
				Message: ErrInternalError.Message,
			})
			continue
		}
		if err == nil {
			if berr := h.blob.DeleteObject(r.Context(), bucket, obj.Key); berr != nil && !errors.Is(berr, blob.ErrNotFound) {
				log.Warn().Err(berr).Str("bucket", bucket).Str("key", obj.Key).Msg("Failed to remove object blob")
			}
		}
		// Missing keys still report Deleted.
		if !req.Quiet {
			result.Deleted = append(result.Deleted, DeletedObject{Key: obj.Key})
		}
	}

	writeXML(w, http.StatusOK, result)
}

// CopyObject handles PUT /{bucket}/{key} with x-amz-copy-source.
func (h *Handler) CopyObject(w http.ResponseWriter, r *http.Request) {
	dstBucket := GetBucket(r)
	dstKey := GetKey(r)

	if s3err := validateKey(dstKey); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+dstBucket+"/"+dstKey)
		return
	}
	if s3err := h.requireBucket(r, dstBucket); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+dstBucket)
		return
	}

	srcBucket, srcKey, ok := parseCopySource(r.Header.Get("x-amz-copy-source"))
	if !ok {
		WriteErrorWithResource(w, ErrInvalidArgument, "/"+dstBucket+"/"+dstKey)
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

	etag, err := h.blob.CopyObject(r.Context(), srcBucket, srcKey, dstBucket, dstKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			WriteErrorWithResource(w, ErrNoSuchKey, "/"+srcBucket+"/"+srcKey)
			return
		}
		WriteErrorWithResource(w, ErrInternalError, "/"+dstBucket+"/"+dstKey)
		return
	}

	owner := h.requestOwner(r)
	acl, s3err := aclFromRequest(r, owner)
	if s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+dstBucket+"/"+dstKey)
		return
	}

	record := &meta.Object{
		Bucket:       dstBucket,
		Key:          dstKey,
		Size:         src.Size,
		ETag:         etag,
		ACL:          acl,
		LastModified: time.Now().UTC(),
	}

	// COPY inherits the source's content headers and user metadata;
	// REPLACE takes them from this request.
	directive := r.Header.Get("x-amz-metadata-directive")
	switch directive {
	case "", "COPY":
		record.ContentType = src.ContentType
		record.ContentEncoding = src.ContentEncoding
		record.ContentLanguage = src.ContentLanguage
		record.ContentDisposition = src.ContentDisposition
		record.CacheControl = src.CacheControl
		record.Expires = src.Expires
		record.StorageClass = src.StorageClass
		record.UserMetadata = src.UserMetadata
	case "REPLACE":
		contentType, encoding, language, disposition, cacheControl, expires := contentHeadersFromRequest(r)
		record.ContentType = contentType
		record.ContentEncoding = encoding
		record.ContentLanguage = language
		record.ContentDisposition = disposition
		record.CacheControl = cacheControl
		record.Expires = expires
		record.StorageClass = storageClassOrDefault(r.Header.Get("x-amz-storage-class"))
		record.UserMetadata = userMetadata(r.Header)
	default:
		WriteErrorWithResource(w, ErrInvalidArgument, "/"+dstBucket+"/"+dstKey)
		return
	}
	record.StorageClass = storageClassOrDefault(record.StorageClass)

	if err := h.meta.PutObject(r.Context(), record); err != nil {
		WriteErrorWithResource(w, ErrInternalError, "/"+dstBucket+"/"+dstKey)
		return
	}

	writeXML(w, http.StatusOK, CopyObjectResult{
		Xmlns:        s3Namespace,
		LastModified: FormatTimeS3(record.LastModified),
		ETag:         quoteETag(etag),
	})
}

// parseMaxKeys parses and clamps a max-keys style query value.
func parseMaxKeys(raw string) (int, *S3Error) {
	if raw == "" {
		return 1000, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, ErrInvalidArgument
	}
	if n > 1000 {
		n = 1000
	}
	return n, nil
}

// ListObjectsV2 handles GET /{bucket}?list-type=2 - ListObjectsV2.
func (h *Handler) ListObjectsV2(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	if s3err := h.requireBucket(r, bucket); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}

	query := r.URL.Query()
	prefix := query.Get("prefix")
	delimiter := query.Get("delimiter")
	startAfter := query.Get("start-after")
	continuationToken := query.Get("continuation-token")

	maxKeys, s3err := parseMaxKeys(query.Get("max-keys"))
	if s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}

	// The effective start key is the greater of start-after and the
	// decoded continuation token.
	start := startAfter
	if continuationToken != "" {
		decoded, err := base64.StdEncoding.DecodeString(continuationToken)
		if err != nil {
			WriteErrorWithResource(w, ErrInvalidArgument, "/"+bucket)
			return
		}
		if s := string(decoded); s > start {
			start = s
		}
	}

	result, err := h.meta.ListObjects(r.Context(), bucket, meta.ListObjectsOptions{
		Prefix:     prefix,
		Delimiter:  delimiter,
		MaxKeys:    maxKeys,
		StartAfter: start,
	})
	if err != nil {
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket)
		return
	}

	response := ListBucketResult{
		Xmlns:             s3Namespace,
		Name:              bucket,
		Prefix:            prefix,
		Delimiter:         delimiter,
		MaxKeys:           maxKeys,
		IsTruncated:       result.IsTruncated,
		KeyCount:          len(result.Objects) + len(result.CommonPrefixes),
		ContinuationToken: continuationToken,
		StartAfter:        startAfter,
		Contents:          objectInfos(result.Objects, false),
	}
	if result.IsTruncated {
		response.NextContinuationToken = base64.StdEncoding.EncodeToString([]byte(result.NextKey))
	}
	for _, p := range result.CommonPrefixes {
		response.CommonPrefixes = append(response.CommonPrefixes, CommonPrefix{Prefix: p})
	}

	writeXML(w, http.StatusOK, response)
}

// ListObjectsV1 handles GET /{bucket} - the legacy ListObjects.
func (h *Handler) ListObjectsV1(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	if s3err := h.requireBucket(r, bucket); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}

	query := r.URL.Query()
	prefix := query.Get("prefix")
	delimiter := query.Get("delimiter")
	marker := query.Get("marker")

	maxKeys, s3err := parseMaxKeys(query.Get("max-keys"))
	if s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}

	result, err := h.meta.ListObjects(r.Context(), bucket, meta.ListObjectsOptions{
		Prefix:     prefix,
		Delimiter:  delimiter,
		MaxKeys:    maxKeys,
		StartAfter: marker,
	})
	if err != nil {
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket)
		return
	}

	response := ListBucketResultV1{
		Xmlns:       s3Namespace,
		Name:        bucket,
		Prefix:      prefix,
		Marker:      marker,
		Delimiter:   delimiter,
		MaxKeys:     maxKeys,
		IsTruncated: result.IsTruncated,
		Contents:    objectInfos(result.Objects, true),
	}
	// NextMarker is only advertised when a delimiter groups keys.
	if result.IsTruncated && delimiter != "" {
		response.NextMarker = result.NextKey
	}
	for _, p := range result.CommonPrefixes {
		response.CommonPrefixes = append(response.CommonPrefixes, CommonPrefix{Prefix: p})
	}

	writeXML(w, http.StatusOK, response)
}

// objectInfos converts records to listing entries. v1 listings include
// the owner on each entry.
func objectInfos(objects []meta.Object, withOwner bool) []ObjectInfo {
	infos := make([]ObjectInfo, len(objects))
	for i, obj := range objects {
		infos[i] = ObjectInfo{
			Key:          obj.Key,
			LastModified: FormatTimeS3(obj.LastModified),
			ETag:         quoteETag(obj.ETag),
			Size:         obj.Size,
			StorageClass: storageClassOrDefault(obj.StorageClass),
		}
		if withOwner {
			infos[i].Owner = &Owner{
				ID:          obj.ACL.OwnerID,
				DisplayName: obj.ACL.OwnerDisplay,
			}
		}
	}
	return infos
}
