package meta

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore implements Store with in-process maps. It exists for tests
// and for the memory storage profile; nothing survives a restart.
type MemoryStore struct {
	mu          sync.RWMutex
	buckets     map[string]*Bucket
	objects     map[string]map[string]*Object // bucket -> key -> record
	uploads     map[string]*Upload            // upload_id -> record
	parts       map[string]map[int]*Part      // upload_id -> number -> record
	credentials map[string]*Credential
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets:     make(map[string]*Bucket),
		objects:     make(map[string]map[string]*Object),
		uploads:     make(map[string]*Upload),
		parts:       make(map[string]map[int]*Part),
		credentials: make(map[string]*Credential),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// ---- Buckets ----

func (s *MemoryStore) CreateBucket(ctx context.Context, b *Bucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[b.Name]; ok {
		return ErrBucketExists
	}
	cp := *b
	s.buckets[b.Name] = &cp
	s.objects[b.Name] = make(map[string]*Object)
	return nil
}

func (s *MemoryStore) GetBucket(ctx context.Context, name string) (*Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[name]
	if !ok {
		return nil, ErrBucketNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) BucketExists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.buckets[name]
	return ok, nil
}

func (s *MemoryStore) ListBuckets(ctx context.Context, ownerID string) ([]Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var buckets []Bucket
	for _, b := range s.buckets {
		if b.OwnerID == ownerID {
			buckets = append(buckets, *b)
		}
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Name < buckets[j].Name })
	return buckets, nil
}

func (s *MemoryStore) DeleteBucket(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[name]; !ok {
		return ErrBucketNotFound
	}
	if len(s.objects[name]) > 0 {
		return ErrBucketNotEmpty
	}
	for _, u := range s.uploads {
		if u.Bucket == name {
			return ErrBucketNotEmpty
		}
	}
	delete(s.buckets, name)
	delete(s.objects, name)
	return nil
}

func (s *MemoryStore) UpdateBucketACL(ctx context.Context, name string, acl ACL) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[name]
	if !ok {
		return ErrBucketNotFound
	}
	b.ACL = acl
	return nil
}

// ---- Objects ----

func (s *MemoryStore) PutObject(ctx context.Context, obj *Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, ok := s.objects[obj.Bucket]
	if !ok {
		keys = make(map[string]*Object)
		s.objects[obj.Bucket] = keys
	}
	cp := *obj
	keys[obj.Key] = &cp
	return nil
}

func (s *MemoryStore) GetObject(ctx context.Context, bucket, key string) (*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[bucket][key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	cp := *obj
	return &cp, nil
}

func (s *MemoryStore) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[bucket][key]
	return ok, nil
}

func (s *MemoryStore) DeleteObject(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects[bucket], key)
	return nil
}

func (s *MemoryStore) CountObjects(ctx context.Context, bucket string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.objects[bucket])), nil
}

func (s *MemoryStore) UpdateObjectACL(ctx context.Context, bucket, key string, acl ACL) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[bucket][key]
	if !ok {
		return ErrObjectNotFound
	}
	obj.ACL = acl
	return nil
}

func (s *MemoryStore) ListObjects(ctx context.Context, bucket string, opts ListObjectsOptions) (*ListObjectsResult, error) {
	if opts.MaxKeys <= 0 {
		opts.MaxKeys = 1000
	}

	s.mu.RLock()
	var keys []string
	for k := range s.objects[bucket] {
		if !strings.HasPrefix(k, opts.Prefix) {
			continue
		}
		if opts.StartAfter != "" && k <= opts.StartAfter {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	acc := newListAccumulator(opts)
	for _, k := range keys {
		if !acc.add(*s.objects[bucket][k]) {
			break
		}
	}
	s.mu.RUnlock()
	return acc.result(), nil
}

// ---- Multipart uploads ----

func (s *MemoryStore) CreateUpload(ctx context.Context, u *Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.uploads[u.UploadID] = &cp
	s.parts[u.UploadID] = make(map[int]*Part)
	return nil
}

func (s *MemoryStore) GetUpload(ctx context.Context, bucket, key, uploadID string) (*Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.uploads[uploadID]
	if !ok || u.Bucket != bucket || u.Key != key {
		return nil, ErrUploadNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) PutPart(ctx context.Context, p *Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts, ok := s.parts[p.UploadID]
	if !ok {
		return ErrUploadNotFound
	}
	cp := *p
	parts[p.PartNumber] = &cp
	return nil
}

func (s *MemoryStore) ListParts(ctx context.Context, uploadID string, opts ListPartsOptions) (*ListPartsResult, error) {
	if opts.MaxParts <= 0 {
		opts.MaxParts = 1000
	}

	s.mu.RLock()
	var parts []Part
	for n, p := range s.parts[uploadID] {
		if n > opts.PartNumberMarker {
			parts = append(parts, *p)
		}
	}
	s.mu.RUnlock()
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })

	res := &ListPartsResult{Parts: parts}
	if len(parts) > opts.MaxParts {
		res.Parts = parts[:opts.MaxParts]
		res.IsTruncated = true
		res.NextPartNumberMarker = res.Parts[len(res.Parts)-1].PartNumber
	}
	return res, nil
}

func (s *MemoryStore) GetPartsForCompletion(ctx context.Context, uploadID string, partNumbers []int) ([]Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var parts []Part
	for _, n := range partNumbers {
		if p, ok := s.parts[uploadID][n]; ok {
			parts = append(parts, *p)
		}
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return parts, nil
}

func (s *MemoryStore) CompleteUpload(ctx context.Context, uploadID string, obj *Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.uploads[uploadID]; !ok {
		return ErrUploadNotFound
	}
	keys, ok := s.objects[obj.Bucket]
	if !ok {
		keys = make(map[string]*Object)
		s.objects[obj.Bucket] = keys
	}
	cp := *obj
	keys[obj.Key] = &cp
	delete(s.uploads, uploadID)
	delete(s.parts, uploadID)
	return nil
}

func (s *MemoryStore) DeleteUpload(ctx context.Context, bucket, key, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[uploadID]
	if !ok || u.Bucket != bucket || u.Key != key {
		return ErrUploadNotFound
	}
	delete(s.uploads, uploadID)
	delete(s.parts, uploadID)
	return nil
}

func (s *MemoryStore) ListUploads(ctx context.Context, bucket string, opts ListUploadsOptions) (*ListUploadsResult, error) {
	if opts.MaxUploads <= 0 {
		opts.MaxUploads = 1000
	}

	s.mu.RLock()
	var uploads []Upload
	for _, u := range s.uploads {
		if u.Bucket != bucket || !strings.HasPrefix(u.Key, opts.Prefix) {
			continue
		}
		if opts.KeyMarker != "" {
			if u.Key < opts.KeyMarker {
				continue
			}
			if u.Key == opts.KeyMarker &&
				(opts.UploadIDMarker == "" || u.UploadID <= opts.UploadIDMarker) {
				continue
			}
		}
		uploads = append(uploads, *u)
	}
	s.mu.RUnlock()

	sort.Slice(uploads, func(i, j int) bool {
		if uploads[i].Key != uploads[j].Key {
			return uploads[i].Key < uploads[j].Key
		}
		return uploads[i].UploadID < uploads[j].UploadID
	})

	res := &ListUploadsResult{Uploads: uploads}
	if len(uploads) > opts.MaxUploads {
		res.Uploads = uploads[:opts.MaxUploads]
		res.IsTruncated = true
		last := res.Uploads[len(res.Uploads)-1]
		res.NextKeyMarker = last.Key
		res.NextUploadIDMarker = last.UploadID
	}
	return res, nil
}

func (s *MemoryStore) CountUploads(ctx context.Context, bucket string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, u := range s.uploads {
		if u.Bucket == bucket {
			n++
		}
	}
	return n, nil
}

// ---- Credentials ----

func (s *MemoryStore) GetCredential(ctx context.Context, accessKeyID string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[accessKeyID]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) PutCredential(ctx context.Context, c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.credentials[c.AccessKeyID] = &cp
	return nil
}
