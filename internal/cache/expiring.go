// Package cache はセッション単位のインメモリキャッシュを提供する。
// TTL付きのExpiringと、TTLを持たない構造キャッシュのStoreの2種類がある。
// いずれもサイズ上限を持たず、プロセス終了まで保持される。
package cache

import (
	"sync"
	"time"
)

// DefaultTTL は代表画像キャッシュの有効期間（1時間）。
const DefaultTTL = time.Hour

// Observer はキャッシュのヒット/ミスを受け取るインターフェース。
// メトリクス収集に使用する。
type Observer interface {
	RecordCacheHit(name string)
	RecordCacheMiss(name string)
}

// entry は値と格納時刻の組。
type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Option はExpiringの生成オプション。
type Option func(*options)

type options struct {
	now      func() time.Time
	observer Observer
	name     string
}

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithObserver はヒット/ミスの通知先とキャッシュ名を設定する。
func WithObserver(name string, obs Observer) Option {
	return func(o *options) {
		o.name = name
		o.observer = obs
	}
}

// Expiring は固定TTLを持つキー・バリューキャッシュ。
// エントリは格納時刻からTTL未満の間のみ有効で、期限切れのエントリは
// 未格納と区別されない。期限切れエントリは能動的に削除せず、次回のPutで上書きする。
type Expiring[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[K]entry[V]
	opts    options
}

// NewExpiring はExpiringの新しいインスタンスを生成する。
// ttlが0以下の場合はDefaultTTLを使用する。
func NewExpiring[K comparable, V any](ttl time.Duration, opts ...Option) *Expiring[K, V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Expiring[K, V]{
		ttl:     ttl,
		entries: make(map[K]entry[V]),
		opts:    o,
	}
}

// Get は有効なエントリが存在する場合にその値とtrueを返す。
// 未格納または期限切れの場合はゼロ値とfalseを返す。
func (c *Expiring[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()

	if ok && c.opts.now().Sub(e.storedAt) < c.ttl {
		c.observeHit()
		return e.value, true
	}

	c.observeMiss()
	var zero V
	return zero, false
}

// Put は既存エントリの有無にかかわらず、現在時刻で値を上書き格納する。
func (c *Expiring[K, V]) Put(key K, value V) {
	now := c.opts.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, storedAt: now}
}

// Clear は全エントリを削除する。
func (c *Expiring[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
}

// Len は期限切れを含む格納済みエントリ数を返す。
func (c *Expiring[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TTL はキャッシュの有効期間を返す。
func (c *Expiring[K, V]) TTL() time.Duration {
	return c.ttl
}

func (c *Expiring[K, V]) observeHit() {
	if c.opts.observer != nil {
		c.opts.observer.RecordCacheHit(c.opts.name)
	}
}

func (c *Expiring[K, V]) observeMiss() {
	if c.opts.observer != nil {
		c.opts.observer.RecordCacheMiss(c.opts.name)
	}
}
