package api

import (
	"bytes"
	"encoding/xml"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// s3Namespace is the namespace carried by every response document.
const s3Namespace = "http://s3.amazonaws.com/doc/2006-03-01/"

// s3TimeFormat is ISO 8601 with millisecond precision, the timestamp form
// used inside XML documents.
const s3TimeFormat = "2006-01-02T15:04:05.000Z"

// FormatTimeS3 renders a timestamp for XML documents.
func FormatTimeS3(t time.Time) string {
	return t.UTC().Format(s3TimeFormat)
}

// FormatTimeHTTP renders a timestamp for the Last-Modified header.
func FormatTimeHTTP(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// writeXML renders v as a complete XML document, prefixed with the XML
// declaration. The document is buffered first so an encode failure can
// still become a clean error response.
func writeXML(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode XML response")
		WriteError(w, ErrInternalError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Error().Err(err).Msg("Failed to write XML response")
	}
}

// quoteETag wraps an unquoted etag in double quotes per RFC 7232.
func quoteETag(etag string) string {
	return `"` + etag + `"`
}
