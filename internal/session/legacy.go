package session

import (
	"context"
	"errors"

	"github.com/hitoshi/marketgate/internal/auth"
	"github.com/hitoshi/marketgate/internal/model"
)

// 既存の呼び出し元向けのフォールバック文言。
const (
	signInFallbackMessage     = "Invalid email or password"
	createUserFallbackMessage = "Registration failed"
	logOutFallbackMessage     = "Sign out failed"
)

// Legacy は失敗を空でないメッセージ付きのエラーとして返す互換層。
type Legacy struct {
	sessions SessionManager
	actions  *Actions
	tokens   *TokenPersister
}

// NewLegacy はLegacyを生成する。
func NewLegacy(sessions SessionManager, actions *Actions, tokens *TokenPersister) *Legacy {
	return &Legacy{sessions: sessions, actions: actions, tokens: tokens}
}

// SignInUser はセッションストアの認証情報サインインを直接呼ぶ。
// 失敗時のメッセージはバックエンドの文言、なければ固定文言。
func (l *Legacy) SignInUser(ctx context.Context, email, password string) (*model.Session, error) {
	res, err := l.sessions.SignInCredentials(ctx, email, password)
	if err != nil {
		var sie *auth.SignInError
		if errors.As(err, &sie) && sie.Message != "" {
			return nil, &ActionError{Action: "signInUser", Message: sie.Message}
		}
		return nil, &ActionError{Action: "signInUser", Message: signInFallbackMessage}
	}
	return res.Session, nil
}

// CreateUser はユーザーを登録する。
// HTTPルーターからは呼ばれず、Go APIとして直接使う呼び出し元のために残している。
func (l *Legacy) CreateUser(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	res, err := l.actions.Register(ctx, in)
	if err != nil {
		var ae *ActionError
		if errors.As(err, &ae) && ae.Message != "" {
			return nil, &ActionError{Action: "createUser", Message: ae.Message}
		}
		return nil, &ActionError{Action: "createUser", Message: createUserFallbackMessage}
	}
	return res, nil
}

// LogOut はセッションストアのサインアウトを直接呼ぶ。バックエンドへは通知しない。
// HTTPルーターからは呼ばれず、Go APIとして直接使う呼び出し元のために残している。
func (l *Legacy) LogOut(ctx context.Context, sessionID string) error {
	clearErr := l.tokens.Clear(ctx, sessionID)
	signOutErr := l.sessions.SignOut(ctx, sessionID)
	if clearErr != nil || signOutErr != nil {
		return &ActionError{Action: "logOut", Message: logOutFallbackMessage}
	}
	return nil
}
