package cache

import "sync"

// Store はTTLを持たない構造キャッシュ（親→子の関係など）。
// Putは常に上書きし、既存値とのマージは行わない。
type Store[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
	opts    options
}

// NewStore はStoreの新しいインスタンスを生成する。
// WithClockは無視される。
func NewStore[K comparable, V any](opts ...Option) *Store[K, V] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[K, V]{
		entries: make(map[K]V),
		opts:    o,
	}
}

// Get はキーに対応する値とtrueを返す。未格納の場合はゼロ値とfalseを返す。
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	v, ok := s.entries[key]
	s.mu.RUnlock()

	if s.opts.observer != nil {
		if ok {
			s.opts.observer.RecordCacheHit(s.opts.name)
		} else {
			s.opts.observer.RecordCacheMiss(s.opts.name)
		}
	}
	return v, ok
}

// Put は値を上書き格納する。
func (s *Store[K, V]) Put(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
}

// Clear は全エントリを削除する。
func (s *Store[K, V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[K]V)
}

// Len は格納済みエントリ数を返す。
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
