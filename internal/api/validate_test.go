package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateBucketName(t *testing.T) {
	valid := []string{
		"abc",
		"my-bucket",
		"my.bucket.with.dots",
		"bucket123",
		"123bucket",
		strings.Repeat("a", 63),
	}
	for _, name := range valid {
		assert.True(t, ValidateBucketName(name), "expected %q to be valid", name)
	}

	invalid := []string{
		"",
		"ab",
		strings.Repeat("a", 64),
		"UPPERCASE",
		"under_score",
		"-leading-hyphen",
		"trailing-hyphen-",
		".leading-dot",
		"trailing-dot.",
		"has..dots",
		"192.168.0.1",
		"xn--punycode",
		"bucket-s3alias",
		"has space",
	}
	for _, name := range invalid {
		assert.False(t, ValidateBucketName(name), "expected %q to be invalid", name)
	}
}

func TestValidateKey(t *testing.T) {
	assert.Nil(t, validateKey("a"))
	assert.Nil(t, validateKey("path/to/object.txt"))
	assert.Nil(t, validateKey(strings.Repeat("k", 1024)))
	assert.Nil(t, validateKey("ünïcødé/キー"))

	assert.Equal(t, ErrInvalidArgument, validateKey(""))
	assert.Equal(t, ErrKeyTooLong, validateKey(strings.Repeat("k", 1025)))
	// Keys must be valid UTF-8.
	assert.Equal(t, ErrInvalidArgument, validateKey("bad\xff\xfebytes"))
	assert.Equal(t, ErrInvalidArgument, validateKey(string([]byte{0xC3, 0x28})))
}

func TestParseCopySource(t *testing.T) {
	bucket, key, ok := parseCopySource("mybucket/path/to/key")
	assert.True(t, ok)
	assert.Equal(t, "mybucket", bucket)
	assert.Equal(t, "path/to/key", key)

	bucket, key, ok = parseCopySource("/mybucket/key")
	assert.True(t, ok)
	assert.Equal(t, "mybucket", bucket)
	assert.Equal(t, "key", key)

	bucket, key, ok = parseCopySource("mybucket/with%20space.txt")
	assert.True(t, ok)
	assert.Equal(t, "mybucket", bucket)
	assert.Equal(t, "with space.txt", key)

	_, _, ok = parseCopySource("no-key")
	assert.False(t, ok)

	_, _, ok = parseCopySource("/")
	assert.False(t, ok)

	_, _, ok = parseCopySource("")
	assert.False(t, ok)
}

func TestUserMetadata(t *testing.T) {
	h := http.Header{}
	h.Set("x-amz-meta-foo", "bar")
	h.Set("X-Amz-Meta-Mixed-Case", "value")
	h.Set("Content-Type", "text/plain")

	md := userMetadata(h)
	assert.Equal(t, map[string]string{
		"foo":        "bar",
		"mixed-case": "value",
	}, md)

	assert.Nil(t, userMetadata(http.Header{}))
}
