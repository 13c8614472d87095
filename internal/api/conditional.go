package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// checkConditional evaluates the RFC 7232 precondition headers against the
// stored etag (unquoted) and last-modified time. Precedence: If-Match,
// then If-Unmodified-Since, then If-None-Match, then If-Modified-Since.
// For GET/HEAD a failed If-None-Match or If-Modified-Since yields
// NotModified; writes get PreconditionFailed instead.
func checkConditional(r *http.Request, etag string, lastModified time.Time, read bool) *S3Error {
	quoted := quoteETag(etag)
	lastModified = lastModified.Truncate(time.Second)

	if v := r.Header.Get("If-Match"); v != "" {
		if !etagListMatches(v, quoted) {
			return ErrPreconditionFailed
		}
		return nil
	}

	if v := r.Header.Get("If-Unmodified-Since"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			if lastModified.After(t.Truncate(time.Second)) {
				return ErrPreconditionFailed
			}
			return nil
		}
	}

	if v := r.Header.Get("If-None-Match"); v != "" {
		if etagListMatches(v, quoted) {
			if read {
				return ErrNotModified
			}
			return ErrPreconditionFailed
		}
		return nil
	}

	if v := r.Header.Get("If-Modified-Since"); v != "" && read {
		if t, err := http.ParseTime(v); err == nil {
			if !lastModified.After(t.Truncate(time.Second)) {
				return ErrNotModified
			}
		}
	}

	return nil
}

// checkCopySourceConditional evaluates the x-amz-copy-source-if-* headers
// against the source object. Same precedence as checkConditional; every
// failure is PreconditionFailed.
func checkCopySourceConditional(r *http.Request, etag string, lastModified time.Time) *S3Error {
	quoted := quoteETag(etag)
	lastModified = lastModified.Truncate(time.Second)

	if v := r.Header.Get("x-amz-copy-source-if-match"); v != "" {
		if !etagListMatches(v, quoted) {
			return ErrPreconditionFailed
		}
		return nil
	}
	if v := r.Header.Get("x-amz-copy-source-if-unmodified-since"); v != "" {
		if t, err := http.ParseTime(v); err == nil && lastModified.After(t.Truncate(time.Second)) {
			return ErrPreconditionFailed
		}
		return nil
	}
	if v := r.Header.Get("x-amz-copy-source-if-none-match"); v != "" {
		if etagListMatches(v, quoted) {
			return ErrPreconditionFailed
		}
		return nil
	}
	if v := r.Header.Get("x-amz-copy-source-if-modified-since"); v != "" {
		if t, err := http.ParseTime(v); err == nil && !lastModified.After(t.Truncate(time.Second)) {
			return ErrPreconditionFailed
		}
	}
	return nil
}

// etagListMatches reports whether the header value (a comma-separated etag
// list or "*") matches the quoted etag.
func etagListMatches(header, quoted string) bool {
	if strings.TrimSpace(header) == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == quoted || candidate == strings.Trim(quoted, `"`) {
			return true
		}
	}
	return false
}

// byteRange is a resolved, inclusive byte range.
type byteRange struct {
	start  int64
	end    int64
	length int64
}

// parseRange resolves a Range header of the forms bytes=a-b, bytes=a-, or
// bytes=-n against an object of the given size. The second return is false
// when the header is absent or malformed (serve the whole object); the
// error is non-nil when the range is syntactically valid but
// unsatisfiable.
func parseRange(header string, size int64) (byteRange, bool, *S3Error) {
	if header == "" || !strings.HasPrefix(header, "bytes=") {
		return byteRange{}, false, nil
	}
	spec := strings.TrimPrefix(header, "bytes=")
	if strings.Contains(spec, ",") {
		// Multi-range requests are not supported; serve the whole object.
		return byteRange{}, false, nil
	}

	dash := strings.Index(spec, "-")
	if dash < 0 {
		return byteRange{}, false, nil
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	if startStr == "" {
		// Suffix form: last n bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return byteRange{}, false, ErrInvalidRange
		}
		if n > size {
			n = size
		}
		if size == 0 {
			return byteRange{}, false, ErrInvalidRange
		}
		start := size - n
		return byteRange{start: start, end: size - 1, length: n}, true, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return byteRange{}, false, ErrInvalidRange
	}
	if start >= size {
		return byteRange{}, false, ErrInvalidRange
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return byteRange{}, false, ErrInvalidRange
		}
		if end > size-1 {
			end = size - 1
		}
	}
	return byteRange{start: start, end: end, length: end - start + 1}, true, nil
}
