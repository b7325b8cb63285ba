// Package profilecache はタグ無効化付きのクエリキャッシュを提供する。
// バックエンドから取得したユーザープロフィールや一覧をTTL付きで保持し、
// ユーザーデータを変更する操作が関連タグを無効化する。
package profilecache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/marketgate/internal/metrics"
)

// ListTag はユーザー一覧クエリに付けるタグ。
const ListTag = "users:list"

// DefaultFetchTimeout は共有fetch1回あたりの上限時間。
const DefaultFetchTimeout = 15 * time.Second

// UserTag は指定ユーザーのプロフィールに付けるタグを返す。
func UserTag(userID string) string {
	return "user:" + userID
}

type entry[V any] struct {
	value     V
	tags      []string
	expiresAt time.Time
}

// Cache はTTLとタグ無効化を備えたスレッドセーフなキャッシュ。
// 同一キーへの同時取得はsingleflightで1回のfetchにまとめる。
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[V]
	byTag   map[string]map[string]struct{}
	gen     uint64 // Invalidateのたびに増える
	ttl     time.Duration
	timeout time.Duration
	group   singleflight.Group
	metrics metrics.MetricsCollector
}

// New はCacheを生成する。
func New[V any](ttl time.Duration, m metrics.MetricsCollector) *Cache[V] {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Cache[V]{
		entries: make(map[string]*entry[V]),
		byTag:   make(map[string]map[string]struct{}),
		ttl:     ttl,
		timeout: DefaultFetchTimeout,
		metrics: m,
	}
}

// SetFetchTimeout は共有fetchの上限時間を変える。0以下は無視する。
func (c *Cache[V]) SetFetchTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Get はキャッシュ済みの値を返す。期限切れまたは未登録の場合はfetchを呼び、
// 成功した結果をtagsに紐づけて保存する。fetchのエラーはキャッシュしない。
func (c *Cache[V]) Get(ctx context.Context, key string, tags []string, fetch func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.lookup(key); ok {
		c.metrics.RecordCacheHit()
		return v, nil
	}
	c.metrics.RecordCacheMiss()

	c.mu.RLock()
	startGen := c.gen
	c.mu.RUnlock()

	// fetchは同じキーを待つ全員で共有するため、最初の呼び出し元のキャンセルに引きずられないようにする。
	// 各呼び出し元は自分のctxが終わった時点で待つのをやめる。
	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		v, err := fetch(fetchCtx)
		if err != nil {
			return v, err
		}
		c.store(key, tags, v, startGen)
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

func (c *Cache[V]) lookup(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, found := c.entries[key]
	if !found || time.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// store は取得開始後に無効化が入っていなければ値を保存する。
func (c *Cache[V]) store(key string, tags []string, v V, startGen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != startGen {
		return
	}
	c.removeLocked(key)
	c.entries[key] = &entry[V]{
		value:     v,
		tags:      tags,
		expiresAt: time.Now().Add(c.ttl),
	}
	for _, tag := range tags {
		keys, ok := c.byTag[tag]
		if !ok {
			keys = make(map[string]struct{})
			c.byTag[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

// Invalidate はいずれかのタグに紐づくエントリをすべて削除する。
func (c *Cache[V]) Invalidate(tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	for _, tag := range tags {
		for key := range c.byTag[tag] {
			c.removeLocked(key)
			c.group.Forget(key)
		}
		delete(c.byTag, tag)
	}
}

func (c *Cache[V]) removeLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	for _, tag := range e.tags {
		if keys, ok := c.byTag[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.byTag, tag)
			}
		}
	}
}

// Len は保持しているエントリ数を返す。
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cleanup は期限切れのエントリを削除する。
func (c *Cache[V]) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			c.removeLocked(key)
		}
	}
}

// RunCleanup はctxがキャンセルされるまで定期的にCleanupを実行する。
func (c *Cache[V]) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}
