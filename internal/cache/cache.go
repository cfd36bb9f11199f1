// Package cache memoizes provider and parser results by the exact bytes of their input.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Store maps content keys to values. It is unbounded unless built with a positive size,
// in which case the least recently used entries are evicted.
type Store[V any] struct {
	mu      sync.Mutex
	entries map[string]V
	bounded *lru.Cache[string, V]
}

func New[V any](maxEntries int) (*Store[V], error) {
	if maxEntries <= 0 {
		return &Store[V]{entries: make(map[string]V)}, nil
	}
	c, err := lru.New[string, V](maxEntries)
	if err != nil {
		return nil, err
	}
	return &Store[V]{bounded: c}, nil
}

// Key hashes a namespace (the function identity) and the input parts. Parts are
// length-prefixed so ("ab","c") and ("a","bc") never collide.
func Key(namespace string, parts ...[]byte) string {
	h := sha256.New()
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(namespace)))
	h.Write(n[:])
	h.Write([]byte(namespace))
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Store[V]) Get(key string) (V, bool) {
	if s.bounded != nil {
		return s.bounded.Get(key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key]
	return v, ok
}

func (s *Store[V]) Put(key string, v V) {
	if s.bounded != nil {
		s.bounded.Add(key, v)
		return
	}
	s.mu.Lock()
	s.entries[key] = v
	s.mu.Unlock()
}

func (s *Store[V]) Len() int {
	if s.bounded != nil {
		return s.bounded.Len()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
