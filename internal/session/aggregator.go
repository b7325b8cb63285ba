package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/marketgate/internal/backend"
	"github.com/hitoshi/marketgate/internal/model"
	"github.com/hitoshi/marketgate/internal/profilecache"
)

// SessionSource は有効なセッションを返すストア。
type SessionSource interface {
	Current(ctx context.Context, sessionID string) (*model.Session, error)
}

// ProfileSource はアクセストークンでプロフィールを取得するAPI。
type ProfileSource interface {
	GetMe(ctx context.Context, token string) (*backend.Response[model.User], error)
}

// Aggregator はセッションとプロフィールを読み出してスナップショットを作る。
type Aggregator struct {
	sessions SessionSource
	profiles ProfileSource
	cache    *profilecache.Cache[*model.User]
	logger   *slog.Logger
}

// NewAggregator はAggregatorを生成する。
func NewAggregator(sessions SessionSource, profiles ProfileSource, cache *profilecache.Cache[*model.User], logger *slog.Logger) *Aggregator {
	return &Aggregator{
		sessions: sessions,
		profiles: profiles,
		cache:    cache,
		logger:   logger,
	}
}

// Snapshot はセッションIDから現在のユーザービューを計算する。
// セッションの読み出しに失敗した場合は状態不明としてLoadingを立てる。
// プロフィールはアクセストークンを持つセッションについてのみ取得する。
func (a *Aggregator) Snapshot(ctx context.Context, sessionID string) Snapshot {
	return Derive(a.load(ctx, sessionID))
}

func (a *Aggregator) load(ctx context.Context, sessionID string) (SessionState, ProfileState) {
	if sessionID == "" {
		return SessionState{}, ProfileState{}
	}

	sess, err := a.sessions.Current(ctx, sessionID)
	if err != nil {
		a.logger.Warn("failed to load session", slog.String("error", err.Error()))
		return SessionState{IsLoading: true}, ProfileState{}
	}
	if sess == nil {
		return SessionState{}, ProfileState{}
	}

	state := SessionState{Session: sess, IsAuthenticated: true}
	if sess.AccessToken == "" {
		return state, ProfileState{}
	}

	user, err := a.cache.Get(ctx, "me:"+sess.UserID, []string{profilecache.UserTag(sess.UserID)},
		func(ctx context.Context) (*model.User, error) {
			return a.fetchProfile(ctx, sess.AccessToken)
		})
	if err != nil {
		a.logger.Warn("failed to load user profile",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
		return state, ProfileState{Err: err}
	}
	return state, ProfileState{User: user}
}

func (a *Aggregator) fetchProfile(ctx context.Context, token string) (*model.User, error) {
	resp, err := a.profiles.GetMe(ctx, token)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("profile request rejected: %s", resp.Message)
	}
	user := resp.Data
	return &user, nil
}
