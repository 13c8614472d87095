// Package auth provides AWS Signature V4 authentication backed by the
// credential store.
package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bleepstore/bleepstore/internal/api"
	"github.com/bleepstore/bleepstore/internal/meta"
)

const (
	algorithm       = "AWS4-HMAC-SHA256"
	unsignedPayload = "UNSIGNED-PAYLOAD"
	amzDateFormat   = "20060102T150405Z"

	// maxClockSkew bounds the difference between request time and server
	// time for header-signed requests.
	maxClockSkew = 15 * time.Minute

	// maxPresignExpiry is seven days, the ceiling for X-Amz-Expires.
	maxPresignExpiry = 604800

	signingKeyTTL       = 24 * time.Hour
	signingKeyCacheSize = 1000
	credentialTTL       = 60 * time.Second
)

// CredentialSource resolves access keys to credential records. meta.Store
// satisfies it.
type CredentialSource interface {
	GetCredential(ctx context.Context, accessKeyID string) (*meta.Credential, error)
}

// signingKeyEntry is one derived key with its expiry.
type signingKeyEntry struct {
	key     []byte
	expires time.Time
}

// credentialEntry is one cached credential lookup.
type credentialEntry struct {
	cred    *meta.Credential
	expires time.Time
}

// verifier checks SigV4 signatures against the credential store. Signing
// keys are cached by (akid, date, region, service) for 24 hours; the cache
// is cleared wholesale when it outgrows its bound. Credential lookups are
// cached for 60 seconds so key deactivation propagates quickly.
type verifier struct {
	source CredentialSource

	mu          sync.Mutex
	signingKeys map[string]signingKeyEntry
	credentials map[string]credentialEntry
}

func newVerifier(source CredentialSource) *verifier {
	return &verifier{
		source:      source,
		signingKeys: make(map[string]signingKeyEntry),
		credentials: make(map[string]credentialEntry),
	}
}

// credential is a parsed Credential scope string.
type credential struct {
	accessKey string
	date      string
	region    string
	service   string
}

// parseCredential parses AKID/YYYYMMDD/region/service/aws4_request.
func parseCredential(value string) (credential, bool) {
	parts := strings.Split(value, "/")
	if len(parts) != 5 || parts[4] != "aws4_request" {
		return credential{}, false
	}
	return credential{
		accessKey: parts[0],
		date:      parts[1],
		region:    parts[2],
		service:   parts[3],
	}, true
}

// lookupCredential resolves an access key, consulting the short-lived
// cache first. Inactive keys resolve the same as absent ones.
func (v *verifier) lookupCredential(ctx context.Context, accessKey string) (*meta.Credential, *api.S3Error) {
	now := time.Now()

	v.mu.Lock()
	if entry, ok := v.credentials[accessKey]; ok && now.Before(entry.expires) {
		cred := entry.cred
		v.mu.Unlock()
		if cred == nil || !cred.Active {
			return nil, api.ErrInvalidAccessKeyId
		}
		return cred, nil
	}
	v.mu.Unlock()

	cred, err := v.source.GetCredential(ctx, accessKey)
	if err != nil && !isNotFound(err) {
		return nil, api.ErrInternalError
	}

	v.mu.Lock()
	v.credentials[accessKey] = credentialEntry{cred: cred, expires: now.Add(credentialTTL)}
	v.mu.Unlock()

	if cred == nil || !cred.Active {
		return nil, api.ErrInvalidAccessKeyId
	}
	return cred, nil
}

func isNotFound(err error) bool {
	return err == meta.ErrCredentialNotFound
}

// signingKey derives (or retrieves) the key for one credential scope.
func (v *verifier) signingKey(secret string, cred credential) []byte {
	cacheKey := cred.accessKey + "/" + cred.date + "/" + cred.region + "/" + cred.service
	now := time.Now()

	v.mu.Lock()
	if entry, ok := v.signingKeys[cacheKey]; ok && now.Before(entry.expires) {
		v.mu.Unlock()
		return entry.key
	}
	v.mu.Unlock()

	kDate := hmacSHA256([]byte("AWS4"+secret), cred.date)
	kRegion := hmacSHA256(kDate, cred.region)
	kService := hmacSHA256(kRegion, cred.service)
	kSigning := hmacSHA256(kService, "aws4_request")

	v.mu.Lock()
	if len(v.signingKeys) >= signingKeyCacheSize {
		v.signingKeys = make(map[string]signingKeyEntry)
	}
	v.signingKeys[cacheKey] = signingKeyEntry{key: kSigning, expires: now.Add(signingKeyTTL)}
	v.mu.Unlock()

	return kSigning
}

// verifyHeader checks a header-signed request. On success it returns the
// credential and may replace r.Body after payload verification.
func (v *verifier) verifyHeader(r *http.Request, header string) (*meta.Credential, *api.S3Error) {
	if !strings.HasPrefix(header, algorithm+" ") {
		return nil, api.ErrAccessDenied
	}

	params := make(map[string]string)
	for _, part := range strings.Split(strings.TrimPrefix(header, algorithm+" "), ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 {
			params[kv[0]] = kv[1]
		}
	}

	cred, ok := parseCredential(params["Credential"])
	signedHeaders := params["SignedHeaders"]
	clientSignature := params["Signature"]
	if !ok || signedHeaders == "" || clientSignature == "" {
		return nil, api.ErrAccessDenied
	}

	record, s3err := v.lookupCredential(r.Context(), cred.accessKey)
	if s3err != nil {
		return nil, s3err
	}

	amzDate := r.Header.Get("x-amz-date")
	if amzDate == "" {
		amzDate = r.Header.Get("Date")
	}
	reqTime, err := parseRequestTime(amzDate)
	if err != nil {
		return nil, api.ErrAccessDenied
	}
	if d := time.Since(reqTime); d > maxClockSkew || d < -maxClockSkew {
		return nil, api.ErrRequestTimeTooSkewed
	}

	payloadHash := r.Header.Get("x-amz-content-sha256")
	if payloadHash == "" {
		payloadHash = unsignedPayload
	}

	canonical := canonicalRequest(r, signedHeaders, payloadHash)
	expected := v.sign(record.SecretKey, cred, amzDate, canonical)

	if !hmac.Equal([]byte(expected), []byte(clientSignature)) {
		return nil, api.ErrSignatureDoesNotMatch
	}

	// The signed payload hash must match the bytes we actually receive.
	if payloadHash != unsignedPayload {
		if s3err := verifyPayloadHash(r, payloadHash); s3err != nil {
			return nil, s3err
		}
	}

	return record, nil
}

// verifyPresigned checks a query-signed (presigned URL) request.
func (v *verifier) verifyPresigned(r *http.Request) (*meta.Credential, *api.S3Error) {
	query := r.URL.Query()

	if query.Get("X-Amz-Algorithm") != algorithm {
		return nil, api.ErrAccessDenied
	}
	cred, ok := parseCredential(query.Get("X-Amz-Credential"))
	signedHeaders := query.Get("X-Amz-SignedHeaders")
	clientSignature := query.Get("X-Amz-Signature")
	amzDate := query.Get("X-Amz-Date")
	if !ok || signedHeaders == "" || clientSignature == "" || amzDate == "" {
		return nil, api.ErrAccessDenied
	}

	record, s3err := v.lookupCredential(r.Context(), cred.accessKey)
	if s3err != nil {
		return nil, s3err
	}

	reqTime, err := time.Parse(amzDateFormat, amzDate)
	if err != nil {
		return nil, api.ErrAccessDenied
	}
	expires, err := strconv.Atoi(query.Get("X-Amz-Expires"))
	if err != nil || expires < 1 || expires > maxPresignExpiry {
		return nil, api.ErrAccessDenied
	}
	if time.Since(reqTime) > time.Duration(expires)*time.Second {
		return nil, api.ErrAccessDenied
	}

	// The signature parameter itself is excluded from the canonical query.
	stripped := r.Clone(r.Context())
	q := stripped.URL.Query()
	q.Del("X-Amz-Signature")
	stripped.URL.RawQuery = q.Encode()

	// Presigned requests always sign UNSIGNED-PAYLOAD.
	canonical := canonicalRequest(stripped, signedHeaders, unsignedPayload)
	expected := v.sign(record.SecretKey, cred, amzDate, canonical)

	if !hmac.Equal([]byte(expected), []byte(clientSignature)) {
		return nil, api.ErrSignatureDoesNotMatch
	}
	return record, nil
}

// sign computes the final hex signature for a canonical request.
func (v *verifier) sign(secret string, cred credential, amzDate, canonical string) string {
	scope := cred.date + "/" + cred.region + "/" + cred.service + "/aws4_request"
	stringToSign := algorithm + "\n" + amzDate + "\n" + scope + "\n" + sha256Hex(canonical)
	return hex.EncodeToString(hmacSHA256(v.signingKey(secret, cred), stringToSign))
}

// canonicalRequest builds the SigV4 canonical request string.
func canonicalRequest(r *http.Request, signedHeaders, payloadHash string) string {
	uri := uriEncodePath(r.URL.Path)
	if uri == "" {
		uri = "/"
	}

	headersList := strings.Split(strings.ToLower(signedHeaders), ";")
	sort.Strings(headersList)

	var canonicalHeaders strings.Builder
	for _, h := range headersList {
		var value string
		if h == "host" {
			value = r.Host
		} else {
			value = r.Header.Get(h)
		}
		canonicalHeaders.WriteString(h)
		canonicalHeaders.WriteString(":")
		canonicalHeaders.WriteString(strings.TrimSpace(value))
		canonicalHeaders.WriteString("\n")
	}

	return r.Method + "\n" +
		uri + "\n" +
		canonicalQueryString(r.URL.Query()) + "\n" +
		canonicalHeaders.String() + "\n" +
		strings.Join(headersList, ";") + "\n" +
		payloadHash
}

// canonicalQueryString sorts parameters by key then value, each
// percent-encoded.
func canonicalQueryString(query map[string][]string) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		values := append([]string(nil), query[k]...)
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, uriEncode(k)+"="+uriEncode(v))
		}
	}
	return strings.Join(parts, "&")
}

// verifyPayloadHash reads the body, checks its SHA-256 against the signed
// hash, and hands the handler a fresh reader over the same bytes.
func verifyPayloadHash(r *http.Request, expected string) *api.S3Error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return api.ErrInternalError
	}
	sum := sha256.Sum256(body)
	if !strings.EqualFold(hex.EncodeToString(sum[:]), expected) {
		return api.ErrSignatureDoesNotMatch
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return nil
}

// parseRequestTime accepts the compact amz-date form or RFC 1123.
func parseRequestTime(value string) (time.Time, error) {
	if strings.Contains(value, "T") {
		return time.Parse(amzDateFormat, value)
	}
	return time.Parse(time.RFC1123, value)
}

func sha256Hex(data string) string {
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

// uriEncode percent-encodes every byte outside the RFC 3986 unreserved
// set.
func uriEncode(s string) string {
	return encode(s, false)
}

// uriEncodePath encodes like uriEncode but leaves slashes intact.
func uriEncodePath(s string) string {
	return encode(s, true)
}

func encode(s string, keepSlash bool) string {
	var result strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || (keepSlash && c == '/') {
			result.WriteByte(c)
		} else {
			result.WriteString("%" + strings.ToUpper(hex.EncodeToString([]byte{c})))
		}
	}
	return result.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}
