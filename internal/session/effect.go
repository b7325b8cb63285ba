package session

import (
	"context"
	"fmt"

	"github.com/hitoshi/marketgate/internal/model"
)

// AccessTokenKey はアクセストークンを保存するスロットのキー。
const AccessTokenKey = "accessToken"

// SlotStore はトークンスロットの保存先。
type SlotStore interface {
	Put(ctx context.Context, ownerID, key, value string) error
	Delete(ctx context.Context, ownerID, key string) error
}

// TokenPersister はセッションのアクセストークンをスロットへ書き出すエフェクト。
type TokenPersister struct {
	slots SlotStore
}

// NewTokenPersister はTokenPersisterを生成する。
func NewTokenPersister(slots SlotStore) *TokenPersister {
	return &TokenPersister{slots: slots}
}

// Sync はセッションにアクセストークンがあればスロットへUPSERTする。
// 冪等で、スロットを削除することはない。
func (p *TokenPersister) Sync(ctx context.Context, sess *model.Session) error {
	if sess == nil || sess.AccessToken == "" {
		return nil
	}
	if err := p.slots.Put(ctx, sess.ID, AccessTokenKey, sess.AccessToken); err != nil {
		return fmt.Errorf("failed to persist access token: %w", err)
	}
	return nil
}

// Clear はスロットを削除する。ログアウト時にのみ呼ぶ。
func (p *TokenPersister) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := p.slots.Delete(ctx, sessionID, AccessTokenKey); err != nil {
		return fmt.Errorf("failed to clear access token: %w", err)
	}
	return nil
}
