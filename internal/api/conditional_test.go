package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testETag = "5d41402abc4b2a76b9719d911017c592"

func condRequest(headers map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/bucket/key", nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestCheckConditionalIfMatch(t *testing.T) {
	modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := checkConditional(condRequest(map[string]string{
		"If-Match": `"` + testETag + `"`,
	}), testETag, modified, true)
	assert.Nil(t, err)

	// Bare etag without quotes also matches.
	err = checkConditional(condRequest(map[string]string{
		"If-Match": testETag,
	}), testETag, modified, true)
	assert.Nil(t, err)

	err = checkConditional(condRequest(map[string]string{
		"If-Match": `"other"`,
	}), testETag, modified, true)
	assert.Equal(t, ErrPreconditionFailed, err)

	err = checkConditional(condRequest(map[string]string{
		"If-Match": "*",
	}), testETag, modified, true)
	assert.Nil(t, err)
}

func TestCheckConditionalIfNoneMatch(t *testing.T) {
	modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Reads get 304, writes get 412.
	err := checkConditional(condRequest(map[string]string{
		"If-None-Match": `"` + testETag + `"`,
	}), testETag, modified, true)
	assert.Equal(t, ErrNotModified, err)

	err = checkConditional(condRequest(map[string]string{
		"If-None-Match": `"` + testETag + `"`,
	}), testETag, modified, false)
	assert.Equal(t, ErrPreconditionFailed, err)

	err = checkConditional(condRequest(map[string]string{
		"If-None-Match": `"other"`,
	}), testETag, modified, true)
	assert.Nil(t, err)
}

func TestCheckConditionalDates(t *testing.T) {
	modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	before := modified.Add(-time.Hour).Format(http.TimeFormat)
	after := modified.Add(time.Hour).Format(http.TimeFormat)

	err := checkConditional(condRequest(map[string]string{
		"If-Unmodified-Since": before,
	}), testETag, modified, true)
	assert.Equal(t, ErrPreconditionFailed, err)

	err = checkConditional(condRequest(map[string]string{
		"If-Unmodified-Since": after,
	}), testETag, modified, true)
	assert.Nil(t, err)

	err = checkConditional(condRequest(map[string]string{
		"If-Modified-Since": after,
	}), testETag, modified, true)
	assert.Equal(t, ErrNotModified, err)

	err = checkConditional(condRequest(map[string]string{
		"If-Modified-Since": before,
	}), testETag, modified, true)
	assert.Nil(t, err)

	// Sub-second differences are not modifications.
	err = checkConditional(condRequest(map[string]string{
		"If-Modified-Since": modified.Format(http.TimeFormat),
	}), testETag, modified.Add(500*time.Millisecond), true)
	assert.Equal(t, ErrNotModified, err)

	// If-Modified-Since is ignored on writes.
	err = checkConditional(condRequest(map[string]string{
		"If-Modified-Since": after,
	}), testETag, modified, false)
	assert.Nil(t, err)
}

func TestCheckConditionalPrecedence(t *testing.T) {
	modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	after := modified.Add(time.Hour).Format(http.TimeFormat)

	// A passing If-Match short-circuits the later checks, so the matching
	// If-None-Match never runs against a read.
	err := checkConditional(condRequest(map[string]string{
		"If-Match":          `"` + testETag + `"`,
		"If-Modified-Since": after,
	}), testETag, modified, true)
	assert.Nil(t, err)

	// A failing If-Match dominates a passing If-None-Match.
	err = checkConditional(condRequest(map[string]string{
		"If-Match":      `"other"`,
		"If-None-Match": `"also-other"`,
	}), testETag, modified, true)
	assert.Equal(t, ErrPreconditionFailed, err)
}

func TestCheckCopySourceConditional(t *testing.T) {
	modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := checkCopySourceConditional(condRequest(map[string]string{
		"x-amz-copy-source-if-match": `"` + testETag + `"`,
	}), testETag, modified)
	assert.Nil(t, err)

	// Copy-source conditionals never yield NotModified.
	err = checkCopySourceConditional(condRequest(map[string]string{
		"x-amz-copy-source-if-none-match": `"` + testETag + `"`,
	}), testETag, modified)
	assert.Equal(t, ErrPreconditionFailed, err)

	err = checkCopySourceConditional(condRequest(map[string]string{
		"x-amz-copy-source-if-modified-since": modified.Add(time.Hour).Format(http.TimeFormat),
	}), testETag, modified)
	assert.Equal(t, ErrPreconditionFailed, err)
}

func TestETagListMatches(t *testing.T) {
	quoted := `"` + testETag + `"`

	assert.True(t, etagListMatches("*", quoted))
	assert.True(t, etagListMatches(quoted, quoted))
	assert.True(t, etagListMatches(testETag, quoted))
	assert.True(t, etagListMatches(`"aaa", `+quoted+`, "bbb"`, quoted))
	assert.False(t, etagListMatches(`"aaa", "bbb"`, quoted))
	assert.False(t, etagListMatches("", quoted))
}

func TestParseRange(t *testing.T) {
	const size = 10

	cases := []struct {
		header string
		start  int64
		end    int64
		length int64
	}{
		{"bytes=0-3", 0, 3, 4},
		{"bytes=5-", 5, 9, 5},
		{"bytes=-2", 8, 9, 2},
		{"bytes=8-100", 8, 9, 2},
		{"bytes=-100", 0, 9, 10},
		{"bytes=0-0", 0, 0, 1},
	}
	for _, tc := range cases {
		br, ok, err := parseRange(tc.header, size)
		require.Nil(t, err, "header %s", tc.header)
		require.True(t, ok, "header %s", tc.header)
		assert.Equal(t, tc.start, br.start, "header %s", tc.header)
		assert.Equal(t, tc.end, br.end, "header %s", tc.header)
		assert.Equal(t, tc.length, br.length, "header %s", tc.header)
	}
}

func TestParseRangeWholeObject(t *testing.T) {
	// Absent, malformed, or multi-range headers mean the whole object.
	for _, header := range []string{
		"",
		"chunks=0-3",
		"bytes=0-3,5-7",
		"bytes=nonsense",
	} {
		_, ok, err := parseRange(header, 10)
		assert.False(t, ok, "header %q", header)
		assert.Nil(t, err, "header %q", header)
	}
}

func TestParseRangeUnsatisfiable(t *testing.T) {
	for _, header := range []string{
		"bytes=10-",
		"bytes=100-200",
		"bytes=5-2",
		"bytes=-0",
	} {
		_, ok, err := parseRange(header, 10)
		assert.False(t, ok, "header %q", header)
		assert.Equal(t, ErrInvalidRange, err, "header %q", header)
	}
}
