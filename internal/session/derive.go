// Package session はセッションとプロフィールを1つのユーザービューに統合する。
// 導出は副作用のない関数で行い、トークンの永続化は別のエフェクトとして明示的に呼び出す。
package session

import "github.com/hitoshi/marketgate/internal/model"

// ProfileErrorMessage はプロフィール取得失敗時にスナップショットへ載せる固定文言。
// 取得エラーの詳細は外に出さない。
const ProfileErrorMessage = "Failed to load user profile"

// SessionState はセッションストアの状態。
type SessionState struct {
	Session         *model.Session
	IsLoading       bool
	IsAuthenticated bool
}

// ProfileState はプロフィール取得の状態。
type ProfileState struct {
	User *model.User
	Err  error
}

// Snapshot はある時点のユーザービュー。保存はせず、必要なたびに2つのソースから作り直す。
type Snapshot struct {
	User            *model.User
	Loading         bool
	IsAuthenticated bool
	Error           string

	// Session は導出元のセッション。エフェクトとガードが参照する。
	Session *model.Session
}

// DeriveUser はプロフィールがあればそれを、なければセッションのクレームからユーザーを返す。
// どちらもない場合はnil。
func DeriveUser(sess *model.Session, profile *model.User) *model.User {
	if profile != nil {
		return profile
	}
	return sess.ClaimsUser()
}

// Derive はセッション状態とプロフィール状態からスナップショットを計算する。
func Derive(s SessionState, p ProfileState) Snapshot {
	user := DeriveUser(s.Session, p.User)

	snap := Snapshot{
		User:            user,
		Loading:         s.IsLoading || (s.IsAuthenticated && user == nil),
		IsAuthenticated: s.IsAuthenticated,
		Session:         s.Session,
	}
	if p.Err != nil {
		snap.Error = ProfileErrorMessage
	}
	return snap
}

// IsAdmin はユーザーがADMINまたはSUPER_ADMINの場合にtrueを返す。
func (s Snapshot) IsAdmin() bool {
	return s.User != nil && s.User.Role.IsAdmin()
}

// IsSuperAdmin はユーザーがSUPER_ADMINの場合のみtrueを返す。
func (s Snapshot) IsSuperAdmin() bool {
	return s.User != nil && s.User.Role.IsSuperAdmin()
}
