// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/marketgate/internal/model"
	"github.com/hitoshi/marketgate/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// snapshotContextKey はリクエストコンテキストにスナップショットを格納するためのキー。
var snapshotContextKey = contextKey("snapshot")

// SessionIDReader はリクエストからセッションIDを読み出す。auth.CookieCodecが実装する。
type SessionIDReader interface {
	Read(r *http.Request) (string, error)
}

// SnapshotProvider はセッションIDからスナップショットを作る。session.Aggregatorが実装する。
type SnapshotProvider interface {
	Snapshot(ctx context.Context, sessionID string) session.Snapshot
}

// TokenSyncer はセッションのアクセストークンを永続化する。session.TokenPersisterが実装する。
type TokenSyncer interface {
	Sync(ctx context.Context, sess *model.Session) error
}

// NewSessionMiddleware はCookieのセッションIDからスナップショットを作り、
// リクエストコンテキストに注入するミドルウェアを返す。
// 未認証でもリクエストは通す。認可はRequire*で行う。
// スナップショットの導出後にアクセストークンをスロットへ書き出す。
func NewSessionMiddleware(ids SessionIDReader, snapshots SnapshotProvider, tokens TokenSyncer, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 改ざん・期限切れのCookieは未ログインとして扱う
			sessionID, err := ids.Read(r)
			if err != nil {
				sessionID = ""
			}

			snap := snapshots.Snapshot(r.Context(), sessionID)
			if snap.Session != nil {
				recordUserID(r.Context(), snap.Session.UserID)
			}

			if err := tokens.Sync(r.Context(), snap.Session); err != nil {
				logger.Warn("failed to sync access token",
					slog.String("error", err.Error()),
				)
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSnapshot(r.Context(), snap)))
		})
	}
}

// SnapshotFromContext はリクエストコンテキストからスナップショットを取得する。
// セッションミドルウェアを通過していない場合はゼロ値（未ログイン）を返す。
func SnapshotFromContext(ctx context.Context) session.Snapshot {
	snap, _ := ctx.Value(snapshotContextKey).(session.Snapshot)
	return snap
}

// ContextWithSnapshot はコンテキストにスナップショットを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSnapshot(ctx context.Context, snap session.Snapshot) context.Context {
	return context.WithValue(ctx, snapshotContextKey, snap)
}

// UserIDFromContext はリクエストコンテキストからログイン中のユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	snap := SnapshotFromContext(ctx)
	if snap.Session == nil || snap.Session.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return snap.Session.UserID, nil
}

// RequireAuthenticated は未ログインのリクエストに401を返す。
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !SnapshotFromContext(r.Context()).IsAuthenticated {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin はADMIN以上でないリクエストを拒否する。
func RequireAdmin(next http.Handler) http.Handler {
	return requireRole(model.RoleAdmin, session.Snapshot.IsAdmin, next)
}

// RequireSuperAdmin はSUPER_ADMINでないリクエストを拒否する。
func RequireSuperAdmin(next http.Handler) http.Handler {
	return requireRole(model.RoleSuperAdmin, session.Snapshot.IsSuperAdmin, next)
}

func requireRole(required model.Role, allowed func(session.Snapshot) bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := SnapshotFromContext(r.Context())
		if !snap.IsAuthenticated {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		if !allowed(snap) {
			WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError(required))
			return
		}
		next.ServeHTTP(w, r)
	})
}
