package api

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	bucketNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)
	ipLikeRegex     = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+$`)
)

// ValidateBucketName validates a bucket name according to S3 rules:
// 3-63 chars, lowercase letters, digits, hyphens and dots, starting and
// ending alphanumeric, not IP-formatted, no adjacent dots, no reserved
// prefixes or suffixes.
func ValidateBucketName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if !bucketNameRegex.MatchString(name) {
		return false
	}
	if ipLikeRegex.MatchString(name) {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	if strings.HasPrefix(name, "xn--") {
		return false
	}
	if strings.HasSuffix(name, "-s3alias") {
		return false
	}
	return true
}

// validateKey checks an object key: 1-1024 bytes of valid UTF-8. Returns
// the taxonomy error to surface, or nil.
func validateKey(key string) *S3Error {
	if key == "" {
		return ErrInvalidArgument
	}
	if len(key) > 1024 {
		return ErrKeyTooLong
	}
	if !utf8.ValidString(key) {
		return ErrInvalidArgument
	}
	return nil
}

// parseCopySource decodes an x-amz-copy-source header value into
// (bucket, key). The value is percent-encoded and may carry a leading
// slash.
func parseCopySource(value string) (string, string, bool) {
	decoded, err := url.PathUnescape(value)
	if err != nil {
		return "", "", false
	}
	decoded = strings.TrimPrefix(decoded, "/")
	parts := strings.SplitN(decoded, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// userMetadata collects x-amz-meta-* headers with lowercased keys.
func userMetadata(h http.Header) map[string]string {
	var md map[string]string
	for name, values := range h {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "x-amz-meta-") && len(values) > 0 {
			if md == nil {
				md = make(map[string]string)
			}
			md[strings.TrimPrefix(lower, "x-amz-meta-")] = values[0]
		}
	}
	return md
}
