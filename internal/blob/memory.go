package blob

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
)

// Memory stores blobs in process memory. Used by tests and the memory
// storage profile.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte            // "{bucket}/{key}" -> bytes
	parts   map[string]map[int][]byte    // uploadID -> part number -> bytes
	buckets map[string]struct{}
}

var _ Backend = (*Memory)(nil)

// NewMemory creates an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string][]byte),
		parts:   make(map[string]map[int][]byte),
		buckets: make(map[string]struct{}),
	}
}

func objKey(bucket, key string) string { return bucket + "/" + key }

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// HealthCheck is a no-op.
func (m *Memory) HealthCheck(ctx context.Context) error { return nil }

func (m *Memory) CreateBucket(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucket] = struct{}{}
	return nil
}

func (m *Memory) DeleteBucket(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, bucket)
	prefix := bucket + "/"
	for k := range m.objects {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(m.objects, k)
		}
	}
	return nil
}

func (m *Memory) PutObject(ctx context.Context, bucket, key string, r io.Reader) (int64, string, error) {
	hash := md5.New()
	data, err := io.ReadAll(io.TeeReader(r, hash))
	if err != nil {
		return 0, "", fmt.Errorf("read blob: %w", err)
	}
	m.mu.Lock()
	m.objects[objKey(bucket, key)] = data
	m.mu.Unlock()
	return int64(len(data)), hex.EncodeToString(hash.Sum(nil)), nil
}

func (m *Memory) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	m.mu.RLock()
	data, ok := m.objects[objKey(bucket, key)]
	m.mu.RUnlock()
	if !ok {
		return nil, 0, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (m *Memory) DeleteObject(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	delete(m.objects, objKey(bucket, key))
	m.mu.Unlock()
	return nil
}

func (m *Memory) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	m.mu.RLock()
	_, ok := m.objects[objKey(bucket, key)]
	m.mu.RUnlock()
	return ok, nil
}

func (m *Memory) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objKey(srcBucket, srcKey)]
	if !ok {
		return "", ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[objKey(dstBucket, dstKey)] = cp
	sum := md5.Sum(cp)
	return hex.EncodeToString(sum[:]), nil
}

func (m *Memory) PutPart(ctx context.Context, bucket, uploadID string, partNumber int, r io.Reader) (int64, string, error) {
	hash := md5.New()
	data, err := io.ReadAll(io.TeeReader(r, hash))
	if err != nil {
		return 0, "", fmt.Errorf("read part: %w", err)
	}
	m.mu.Lock()
	parts, ok := m.parts[uploadID]
	if !ok {
		parts = make(map[int][]byte)
		m.parts[uploadID] = parts
	}
	parts[partNumber] = data
	m.mu.Unlock()
	return int64(len(data)), hex.EncodeToString(hash.Sum(nil)), nil
}

func (m *Memory) AssembleParts(ctx context.Context, bucket, key, uploadID string, parts []PartRef) (int64, string, error) {
	etag, err := CompositeETag(parts)
	if err != nil {
		return 0, "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.parts[uploadID]
	var buf bytes.Buffer
	for _, p := range parts {
		data, ok := stored[p.Number]
		if !ok {
			return 0, "", ErrNotFound
		}
		buf.Write(data)
	}
	m.objects[objKey(bucket, key)] = buf.Bytes()
	return int64(buf.Len()), etag, nil
}

func (m *Memory) DeleteParts(ctx context.Context, bucket, uploadID string) error {
	m.mu.Lock()
	delete(m.parts, uploadID)
	m.mu.Unlock()
	return nil
}
