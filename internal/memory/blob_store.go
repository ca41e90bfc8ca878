package memory

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/itaysmouha/ScoutAI/internal/blob"
)

type object struct {
	data        []byte
	contentType string
	modified    time.Time
}

// BlobStore is an in-memory Blob Store that counts writes per key
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]object
	writes  map[string]int
	total   int
}

// NewBlobStore returns an empty BlobStore
func NewBlobStore() *BlobStore {
	return &BlobStore{
		objects: make(map[string]object),
		writes:  make(map[string]int),
	}
}

// Put writes data at key, replacing any existing object
func (s *BlobStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = object{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		modified:    time.Now().UTC(),
	}
	s.writes[key]++
	s.total++
	return nil
}

// Seed stores an object without counting it as a write
func (s *BlobStore) Seed(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = object{data: append([]byte(nil), data...), modified: time.Now().UTC()}
}

// Stat returns metadata for key, or blob.ErrNotFound
func (s *BlobStore) Stat(_ context.Context, key string) (blob.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return blob.ObjectInfo{}, fmt.Errorf("blob stat: %w", blob.ErrNotFound)
	}

	sum := md5.Sum(obj.data)
	return blob.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		ETag:         hex.EncodeToString(sum[:]),
		LastModified: obj.modified,
	}, nil
}

// Get returns a copy of the stored bytes
func (s *BlobStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// PresignPut returns a fake upload URL for key
func (s *BlobStore) PresignPut(_ context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("memory://%s?expires=%d", key, int(expiry.Seconds())), nil
}

// Writes returns how many times key was written
func (s *BlobStore) Writes(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.writes[key]
}

// TotalWrites returns the number of writes across all keys
func (s *BlobStore) TotalWrites() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.total
}

// Keys returns the number of distinct objects stored
func (s *BlobStore) Keys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.objects)
}
