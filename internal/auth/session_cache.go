package auth

import (
	"sync"
	"time"

	"github.com/hitoshi/todoman/internal/model"
)

// cacheEntry はキャッシュされた認証済みセッションと有効期限を保持する。
type cacheEntry struct {
	value     *model.AuthSession
	expiresAt time.Time
}

// SessionCache はセッショントークンをキーに解決済みの{session,user}を保持する
// プロセスローカルなキャッシュ。
// エントリの有効期限は min(格納時刻+TTL, セッション期限)。
// 他プロセスでのログアウトはTTL経過まで反映されない。
type SessionCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSessionCache は新しいSessionCacheを生成する。
// ttlが0以下の場合はキャッシュを無効化し、すべての参照がミスになる。
// 有効な場合はバックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewSessionCache(ttl time.Duration) *SessionCache {
	c := &SessionCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
		stopCh:  make(chan struct{}),
	}

	if ttl > 0 {
		go c.cleanupLoop()
	}

	return c
}

// Enabled はキャッシュが有効かを返す。
func (c *SessionCache) Enabled() bool {
	return c != nil && c.ttl > 0
}

// Get はトークンに対応するエントリを返す。期限切れの場合はミスとして扱う。
func (c *SessionCache) Get(token string) (*model.AuthSession, bool) {
	if !c.Enabled() {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.entries[token]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set はトークンに対応するエントリを格納する。
// セッションが既に期限切れの場合は格納しない。
func (c *SessionCache) Set(token string, value *model.AuthSession) {
	if !c.Enabled() || value == nil || value.Session == nil {
		return
	}

	now := c.now()
	expiresAt := now.Add(c.ttl)
	if value.Session.ExpiresAt.Before(expiresAt) {
		expiresAt = value.Session.ExpiresAt
	}
	if !now.Before(expiresAt) {
		return
	}

	c.mu.Lock()
	c.entries[token] = cacheEntry{value: value, expiresAt: expiresAt}
	c.mu.Unlock()
}

// Delete はトークンのエントリを削除する。
func (c *SessionCache) Delete(token string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, token)
	c.mu.Unlock()
}

// DeleteByUserID は指定ユーザーのエントリをすべて削除する。
func (c *SessionCache) DeleteByUserID(userID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	for token, e := range c.entries {
		if e.value.User != nil && e.value.User.ID == userID {
			delete(c.entries, token)
		}
	}
	c.mu.Unlock()
}

// Len は現在保持しているエントリ数を返す。テスト用。
func (c *SessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (c *SessionCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的に削除する。
func (c *SessionCache) cleanupLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCh:
			return
		}
	}
}

// cleanup は期限切れエントリを削除する。
func (c *SessionCache) cleanup() {
	now := c.now()

	c.mu.Lock()
	for token, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, token)
		}
	}
	c.mu.Unlock()
}
