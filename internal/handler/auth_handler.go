// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/marketgate/internal/backend"
	"github.com/hitoshi/marketgate/internal/middleware"
	"github.com/hitoshi/marketgate/internal/model"
	"github.com/hitoshi/marketgate/internal/session"
)

const oauthStateCookie = "oauth_state"

// AuthActions は認証ハンドラーが使うアクション。session.Uniformが実装する。
type AuthActions interface {
	Register(ctx context.Context, in session.RegisterInput) *session.AuthResult
	GoogleLogin(ctx context.Context, code string) *session.AuthResult
	Logout(ctx context.Context, sess *model.Session) bool
	VerifyEmail(ctx context.Context, email, otp string) bool
	ResendVerificationEmail(ctx context.Context, email string) bool
	ForgotPassword(ctx context.Context, email string) bool
	ResetPassword(ctx context.Context, email, otp, newPassword string) bool
}

// CredentialSignIn はエラーメッセージ付きのサインイン。session.Legacyが実装する。
type CredentialSignIn interface {
	SignInUser(ctx context.Context, email, password string) (*model.Session, error)
}

// SessionCookies はセッションCookieの書き込みと削除。auth.CookieCodecが実装する。
type SessionCookies interface {
	Write(w http.ResponseWriter, sessionID string) error
	Clear(w http.ResponseWriter)
}

// LoginURLProvider はOAuth認証URLを生成する。
type LoginURLProvider interface {
	GetLoginURL(state string) string
}

// InputSanitizer は利用者が入力したテキスト項目をサニタイズする。
type InputSanitizer interface {
	SanitizeProfile(in backend.UpdateProfileRequest) backend.UpdateProfileRequest
	SanitizeRegister(in backend.RegisterRequest) backend.RegisterRequest
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL      string
	CookieSecure bool
}

// AuthHandler はサインイン・登録・OAuthフローのHTTPハンドラー。
type AuthHandler struct {
	actions   AuthActions
	signIn    CredentialSignIn
	cookies   SessionCookies
	oauth     LoginURLProvider
	sanitizer InputSanitizer
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(
	actions AuthActions,
	signIn CredentialSignIn,
	cookies SessionCookies,
	oauth LoginURLProvider,
	sanitizer InputSanitizer,
	config AuthHandlerConfig,
) *AuthHandler {
	return &AuthHandler{
		actions:   actions,
		signIn:    signIn,
		cookies:   cookies,
		oauth:     oauth,
		sanitizer: sanitizer,
		config:    config,
	}
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

// SignIn はメールアドレスとパスワードでサインインし、セッションCookieを設定する。
// POST /api/auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email と password は必須です")
		return
	}

	sess, err := h.signIn.SignInUser(r.Context(), req.Email, req.Password)
	if err != nil {
		var ae *session.ActionError
		msg := err.Error()
		if errors.As(err, &ae) {
			msg = ae.Message
		}
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewSignInFailedError(msg))
		return
	}

	if err := h.cookies.Write(w, sess.ID); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user": sess.ClaimsUser(),
	})
}

// Register はユーザーを登録する。セッションは発行しない。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		writeBadRequest(w, "name、email、password は必須です")
		return
	}

	in := h.sanitizer.SanitizeRegister(session.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	res := h.actions.Register(r.Context(), in)
	if res == nil {
		writeActionFailed(w, "register")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Logout はバックエンドからログアウトし、セッションCookieを削除する。
// バックエンドの失敗に関わらずCookieは削除する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	snap := middleware.SnapshotFromContext(r.Context())
	h.cookies.Clear(w)

	if snap.Session == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !h.actions.Logout(r.Context(), snap.Session) {
		writeActionFailed(w, "logout")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VerifyEmail はメールアドレス確認コードを検証する。
// POST /api/auth/verify-email
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.OTP == "" {
		writeBadRequest(w, "email と otp は必須です")
		return
	}
	h.respondBool(w, "verify_email", h.actions.VerifyEmail(r.Context(), req.Email, req.OTP))
}

// ResendVerification は確認コードを再送する。
// POST /api/auth/resend-verification
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeBadRequest(w, "email は必須です")
		return
	}
	h.respondBool(w, "resend_verification_email", h.actions.ResendVerificationEmail(r.Context(), req.Email))
}

// ForgotPassword はパスワード再設定コードを送る。
// POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeBadRequest(w, "email は必須です")
		return
	}
	h.respondBool(w, "forgot_password", h.actions.ForgotPassword(r.Context(), req.Email))
}

// ResetPassword はコードを検証して新しいパスワードを設定する。
// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.OTP == "" || req.NewPassword == "" {
		writeBadRequest(w, "email、otp、newPassword は必須です")
		return
	}
	h.respondBool(w, "reset_password", h.actions.ResetPassword(r.Context(), req.Email, req.OTP, req.NewPassword))
}

func (h *AuthHandler) respondBool(w http.ResponseWriter, action string, ok bool) {
	if !ok {
		writeActionFailed(w, action)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GoogleLogin はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteError(w, r, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.oauth.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// GoogleCallback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("query_state", state),
		)
		writeBadRequest(w, "state が一致しません")
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		writeBadRequest(w, "認可コードがありません")
		return
	}

	// 3. サインイン
	res := h.actions.GoogleLogin(r.Context(), code)
	if res == nil || res.Session == nil {
		http.Redirect(w, r, h.config.BaseURL+"/login?error=google_login_failed", http.StatusTemporaryRedirect)
		return
	}

	// 4. セッションCookieを設定
	if err := h.cookies.Write(w, res.Session.ID); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	// 5. フロントエンドにリダイレクト
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
