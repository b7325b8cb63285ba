// Package auth はサインイン・サインアウトとゲートウェイセッションの管理を提供する。
// セッションを変更するのはこのパッケージのサインインとサインアウトだけである。
package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/hitoshi/marketgate/internal/backend"
	"github.com/hitoshi/marketgate/internal/model"
	"github.com/hitoshi/marketgate/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Picture        string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// CredentialBackend はサインインに使うバックエンドAPI。
type CredentialBackend interface {
	Login(ctx context.Context, in backend.LoginRequest) (*backend.Response[backend.AuthData], error)
	GoogleLogin(ctx context.Context, in backend.GoogleLoginRequest) (*backend.Response[backend.AuthData], error)
}

// SignInError はバックエンドがサインインを拒否したことを表す。
// Messageはバックエンドが返した文言で、空の場合もある。
type SignInError struct {
	Message string
}

func (e *SignInError) Error() string {
	if e.Message == "" {
		return "sign in rejected"
	}
	return "sign in rejected: " + e.Message
}

// SignInResult はサインイン成功時に発行したセッションとバックエンドのユーザー。
type SignInResult struct {
	Session *model.Session
	User    model.User
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service はゲートウェイセッションに関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	backend     CredentialBackend
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	backend CredentialBackend,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		backend:     backend,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// SignInCredentials はメールアドレスとパスワードでサインインし、セッションを発行する。
// バックエンドが拒否した場合は*SignInErrorを返す。
func (s *Service) SignInCredentials(ctx context.Context, email, password string) (*SignInResult, error) {
	resp, err := s.backend.Login(ctx, backend.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("failed to call login: %w", err)
	}
	if !resp.Success {
		return nil, &SignInError{Message: resp.Message}
	}

	return s.establish(ctx, resp.Data, "credentials")
}

// SignInGoogle はOAuthコールバックの認可コードでサインインし、セッションを発行する。
func (s *Service) SignInGoogle(ctx context.Context, code string) (*SignInResult, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	resp, err := s.backend.GoogleLogin(ctx, backend.GoogleLoginRequest{
		Email:    userInfo.Email,
		Name:     userInfo.Name,
		GoogleID: userInfo.ProviderUserID,
		Avatar:   userInfo.Picture,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call google login: %w", err)
	}
	if !resp.Success {
		return nil, &SignInError{Message: resp.Message}
	}

	return s.establish(ctx, resp.Data, userInfo.Provider)
}

// establish はバックエンドのサインイン結果からセッションを作成する。
func (s *Service) establish(ctx context.Context, data backend.AuthData, method string) (*SignInResult, error) {
	if data.User.ID == "" {
		return nil, fmt.Errorf("login response has no user id")
	}

	session, err := s.createSession(ctx, data.User, data.NextAuthSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user signed in",
		slog.String("user_id", data.User.ID),
		slog.String("method", method),
	)
	return &SignInResult{Session: session, User: data.User}, nil
}

// errEmptyID はセッションIDやユーザーIDが空のまま呼ばれたことを表す。
var errEmptyID = errors.New("auth: empty id")

// SignOut はセッションを破棄する。トークンスロットはCASCADEで消える。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("sign out: %w", errEmptyID)
	}
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	slog.Info("user signed out", slog.String("session_id", sessionID))
	return nil
}

// RevokeUser はBANや削除の後に呼び、そのユーザーの全端末のセッションを消す。
func (s *Service) RevokeUser(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("revoke user: %w", errEmptyID)
	}
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("revoke user %s: %w", userID, err)
	}
	slog.Info("user sessions revoked", slog.String("user_id", userID))
	return nil
}

// Current は有効なセッションを返す。IDが空、存在しない、期限切れのいずれもnil。
func (s *Service) Current(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}
	sess, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

// createSession はバックエンドのユーザーをクレームとして写したセッションを保存する。
// 有効期限はSESSION_MAX_AGEとアクセストークンのexpの早い方。
func (s *Service) createSession(ctx context.Context, user model.User, accessToken string) (*model.Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	issued := s.now()
	expires := issued.Add(time.Duration(s.config.SessionMaxAge) * time.Second)
	if exp, ok := tokenExpiry(accessToken); ok && exp.Before(expires) {
		expires = exp
	}

	sess := &model.Session{
		ID:          id,
		UserID:      user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Role:        user.Role,
		AccessToken: accessToken,
		ExpiresAt:   expires,
		CreatedAt:   issued,
	}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// generateSessionID は32バイトの乱数を16進64文字にしたセッションIDを返す。
func generateSessionID() (string, error) {
	key := securecookie.GenerateRandomKey(32)
	if key == nil {
		return "", errors.New("auth: random source unavailable")
	}
	return hex.EncodeToString(key), nil
}
