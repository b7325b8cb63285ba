// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/marketgate/internal/model"
)

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	// 紐づくトークンスロットはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// TokenSlotRepository はセッションごとに永続化される単一値スロットのインターフェース。
// ブラウザのローカルストレージに相当し、キーは固定文字列で運用する。
type TokenSlotRepository interface {
	// Put はスロットに値を冪等にUPSERTする。
	Put(ctx context.Context, ownerID, key, value string) error
	// Get はスロットの値を取得する。未設定の場合は空文字とfalseを返す。
	Get(ctx context.Context, ownerID, key string) (string, bool, error)
	// Delete はスロットを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, ownerID, key string) error
}
