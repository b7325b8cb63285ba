package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/hitoshi/marketgate/internal/auth"
	"github.com/hitoshi/marketgate/internal/backend"
	"github.com/hitoshi/marketgate/internal/metrics"
	"github.com/hitoshi/marketgate/internal/model"
	"github.com/hitoshi/marketgate/internal/profilecache"
)

// Backend はアクションが呼び出すバックエンドAPI。1アクションにつき1メソッドを使う。
type Backend interface {
	Register(ctx context.Context, in backend.RegisterRequest) (*backend.Response[backend.AuthData], error)
	Logout(ctx context.Context, token string) (*backend.Response[backend.Empty], error)
	VerifyOTP(ctx context.Context, in backend.VerifyOTPRequest) (*backend.Response[backend.Empty], error)
	ResendOTP(ctx context.Context, in backend.ResendOTPRequest) (*backend.Response[backend.Empty], error)
	ChangePassword(ctx context.Context, token string, in backend.ChangePasswordRequest) (*backend.Response[backend.Empty], error)
	UpdateProfile(ctx context.Context, token string, in backend.UpdateProfileRequest) (*backend.Response[model.User], error)
	UpdateAvatar(ctx context.Context, token, filename string, image io.Reader) (*backend.Response[model.User], error)
	GetAllUsers(ctx context.Context, token string, p backend.ListUsersParams) (*backend.Response[[]model.User], error)
	UpdateUserRole(ctx context.Context, token, userID string, role model.Role) (*backend.Response[model.User], error)
	BanUser(ctx context.Context, token, userID string) (*backend.Response[backend.Empty], error)
	UnbanUser(ctx context.Context, token, userID string) (*backend.Response[backend.Empty], error)
	DeleteUser(ctx context.Context, token, userID string) (*backend.Response[backend.Empty], error)
}

// SessionManager はセッションを変更する唯一の窓口。
type SessionManager interface {
	SignInCredentials(ctx context.Context, email, password string) (*auth.SignInResult, error)
	SignInGoogle(ctx context.Context, code string) (*auth.SignInResult, error)
	SignOut(ctx context.Context, sessionID string) error
	RevokeUser(ctx context.Context, userID string) error
}

// Invalidator はタグ単位でキャッシュを無効化する。
type Invalidator interface {
	Invalidate(tags ...string)
}

// ActionError はバックエンドがアクションを拒否したことを表す。
type ActionError struct {
	Action  string
	Message string
}

func (e *ActionError) Error() string {
	if e.Message == "" {
		return e.Action + " failed"
	}
	return e.Action + " failed: " + e.Message
}

// ErrNotAuthenticated はセッションを必要とするアクションがセッションなしで呼ばれたことを表す。
var ErrNotAuthenticated = errors.New("not authenticated")

// AuthResult はログイン・登録の結果。
type AuthResult struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	User         model.User `json:"user"`

	// Session はログインで発行したセッション。登録では発行しないためnil。
	Session *model.Session `json:"-"`
}

// UserList はユーザー一覧の結果。Totalは返された件数。
type UserList struct {
	Users []model.User `json:"users"`
	Total int          `json:"total"`
}

// RegisterInput はユーザー登録の入力。
type RegisterInput = backend.RegisterRequest

// ProfileInput はプロフィール更新の入力。
type ProfileInput = backend.UpdateProfileRequest

// ListParams はユーザー一覧取得の入力。
type ListParams = backend.ListUsersParams

// Actions は全アクションの基本層。どのアクションも値とエラーの組を返す。
// リトライはしない。アクション間の排他も行わない。
type Actions struct {
	backend  Backend
	sessions SessionManager
	tokens   *TokenPersister
	lists    *profilecache.Cache[[]model.User]
	caches   []Invalidator
	metrics  metrics.MetricsCollector
}

// NewActions はActionsを生成する。
// listsはユーザー一覧のキャッシュ、cachesはユーザーデータ変更時に無効化する全キャッシュ。
func NewActions(
	be Backend,
	sessions SessionManager,
	tokens *TokenPersister,
	lists *profilecache.Cache[[]model.User],
	caches []Invalidator,
	m metrics.MetricsCollector,
) *Actions {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Actions{
		backend:  be,
		sessions: sessions,
		tokens:   tokens,
		lists:    lists,
		caches:   caches,
		metrics:  m,
	}
}

func (a *Actions) invalidate(tags ...string) {
	for _, c := range a.caches {
		c.Invalidate(tags...)
	}
}

func (a *Actions) observe(action string, err error) {
	a.metrics.RecordActionOutcome(action, err == nil)
}

func token(sess *model.Session) (string, error) {
	if sess == nil || sess.AccessToken == "" {
		return "", ErrNotAuthenticated
	}
	return sess.AccessToken, nil
}

// check はレスポンスのsuccessを確認し、falseならActionErrorにする。
func check[T any](action string, resp *backend.Response[T], err error) (T, error) {
	var zero T
	if err != nil {
		return zero, fmt.Errorf("%s: %w", action, err)
	}
	if !resp.Success {
		return zero, &ActionError{Action: action, Message: resp.Message}
	}
	return resp.Data, nil
}

func fromSignIn(res *auth.SignInResult) *AuthResult {
	return &AuthResult{
		AccessToken:  res.Session.AccessToken,
		RefreshToken: "",
		User:         res.User,
		Session:      res.Session,
	}
}

// Login は認証情報でサインインし、セッションを発行する。
func (a *Actions) Login(ctx context.Context, email, password string) (_ *AuthResult, err error) {
	defer func() { a.observe("login", err) }()

	res, err := a.sessions.SignInCredentials(ctx, email, password)
	if err != nil {
		return nil, signInError("login", err)
	}
	return fromSignIn(res), nil
}

// Register はユーザーを登録する。セッションは発行しない。
func (a *Actions) Register(ctx context.Context, in RegisterInput) (_ *AuthResult, err error) {
	defer func() { a.observe("register", err) }()

	resp, err := a.backend.Register(ctx, in)
	data, err := check("register", resp, err)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:  data.NextAuthSecret,
		RefreshToken: "",
		User:         data.User,
	}, nil
}

// GoogleLogin はOAuthの認可コードでサインインし、セッションを発行する。
func (a *Actions) GoogleLogin(ctx context.Context, code string) (_ *AuthResult, err error) {
	defer func() { a.observe("google_login", err) }()

	res, err := a.sessions.SignInGoogle(ctx, code)
	if err != nil {
		return nil, signInError("google_login", err)
	}
	return fromSignIn(res), nil
}

// signInError はバックエンドの拒否をActionErrorに変換する。通信エラー等はそのまま返す。
func signInError(action string, err error) error {
	var sie *auth.SignInError
	if errors.As(err, &sie) {
		return &ActionError{Action: action, Message: sie.Message}
	}
	return err
}

// Logout はバックエンドからログアウトし、トークンスロットとセッションを削除する。
// どれかが失敗しても残りは必ず実行し、失敗はまとめて返す。
func (a *Actions) Logout(ctx context.Context, sess *model.Session) (err error) {
	defer func() { a.observe("logout", err) }()

	tok, err := token(sess)
	if err != nil {
		return err
	}

	resp, err := a.backend.Logout(ctx, tok)
	_, backendErr := check("logout", resp, err)

	clearErr := a.tokens.Clear(ctx, sess.ID)
	signOutErr := a.sessions.SignOut(ctx, sess.ID)
	a.invalidate(profilecache.UserTag(sess.UserID))

	return errors.Join(backendErr, clearErr, signOutErr)
}

// VerifyEmail はメールアドレス確認のワンタイムパスワードを検証する。
func (a *Actions) VerifyEmail(ctx context.Context, email, otp string) (err error) {
	defer func() { a.observe("verify_email", err) }()

	resp, err := a.backend.VerifyOTP(ctx, backend.VerifyOTPRequest{Email: email, OTP: otp})
	_, err = check("verify_email", resp, err)
	return err
}

// ResendVerificationEmail は確認用ワンタイムパスワードを再送する。
func (a *Actions) ResendVerificationEmail(ctx context.Context, email string) (err error) {
	defer func() { a.observe("resend_verification_email", err) }()

	resp, err := a.backend.ResendOTP(ctx, backend.ResendOTPRequest{Email: email})
	_, err = check("resend_verification_email", resp, err)
	return err
}

// ForgotPassword はパスワード再設定用にワンタイムパスワードを送る。
// 専用のエンドポイントはなく、OTP再送を使う。
func (a *Actions) ForgotPassword(ctx context.Context, email string) (err error) {
	defer func() { a.observe("forgot_password", err) }()

	resp, err := a.backend.ResendOTP(ctx, backend.ResendOTPRequest{Email: email})
	_, err = check("forgot_password", resp, err)
	return err
}

// ResetPassword はワンタイムパスワードを検証して新しいパスワードを設定する。
// 専用のエンドポイントはなく、OTP検証を使う。
func (a *Actions) ResetPassword(ctx context.Context, email, otp, newPassword string) (err error) {
	defer func() { a.observe("reset_password", err) }()

	resp, err := a.backend.VerifyOTP(ctx, backend.VerifyOTPRequest{
		Email:       email,
		OTP:         otp,
		NewPassword: newPassword,
	})
	_, err = check("reset_password", resp, err)
	return err
}

// ChangePassword はログイン中ユーザーのパスワードを変更する。
func (a *Actions) ChangePassword(ctx context.Context, sess *model.Session, current, next string) (err error) {
	defer func() { a.observe("change_password", err) }()

	tok, err := token(sess)
	if err != nil {
		return err
	}
	resp, err := a.backend.ChangePassword(ctx, tok, backend.ChangePasswordRequest{
		CurrentPassword: current,
		NewPassword:     next,
	})
	_, err = check("change_password", resp, err)
	return err
}

// UpdateProfile はプロフィールを更新し、本人のプロフィールと一覧を無効化する。
func (a *Actions) UpdateProfile(ctx context.Context, sess *model.Session, in ProfileInput) (_ *model.User, err error) {
	defer func() { a.observe("update_profile", err) }()

	tok, err := token(sess)
	if err != nil {
		return nil, err
	}
	resp, err := a.backend.UpdateProfile(ctx, tok, in)
	user, err := check("update_profile", resp, err)
	if err != nil {
		return nil, err
	}
	a.invalidate(profilecache.UserTag(sess.UserID), profilecache.ListTag)
	return &user, nil
}

// UploadProfilePhoto はアバター画像を更新し、本人のプロフィールと一覧を無効化する。
func (a *Actions) UploadProfilePhoto(ctx context.Context, sess *model.Session, filename string, image io.Reader) (_ *model.User, err error) {
	defer func() { a.observe("upload_profile_photo", err) }()

	tok, err := token(sess)
	if err != nil {
		return nil, err
	}
	resp, err := a.backend.UpdateAvatar(ctx, tok, filename, image)
	user, err := check("upload_profile_photo", resp, err)
	if err != nil {
		return nil, err
	}
	a.invalidate(profilecache.UserTag(sess.UserID), profilecache.ListTag)
	return &user, nil
}

// GetAllUsers はユーザー一覧を取得する。Totalはサーバーの件数ではなく返された配列の長さ。
func (a *Actions) GetAllUsers(ctx context.Context, sess *model.Session, p ListParams) (_ *UserList, err error) {
	defer func() { a.observe("get_all_users", err) }()

	tok, err := token(sess)
	if err != nil {
		return nil, err
	}

	key := "list:" + sess.UserID + ":" + strconv.Itoa(p.Page) + ":" + strconv.Itoa(p.Limit) + ":" + p.Search
	users, err := a.lists.Get(ctx, key, []string{profilecache.ListTag}, func(ctx context.Context) ([]model.User, error) {
		resp, err := a.backend.GetAllUsers(ctx, tok, p)
		return check("get_all_users", resp, err)
	})
	if err != nil {
		return nil, err
	}
	return &UserList{Users: users, Total: len(users)}, nil
}

// UpdateUserRole はユーザーのロールを変更する。
func (a *Actions) UpdateUserRole(ctx context.Context, sess *model.Session, userID string, role model.Role) (_ *model.User, err error) {
	defer func() { a.observe("update_user_role", err) }()

	tok, err := token(sess)
	if err != nil {
		return nil, err
	}
	resp, err := a.backend.UpdateUserRole(ctx, tok, userID, role)
	user, err := check("update_user_role", resp, err)
	if err != nil {
		return nil, err
	}
	a.invalidate(profilecache.UserTag(userID), profilecache.ListTag)
	return &user, nil
}

// UpdateUserStatus はisActiveがtrueならBAN解除、falseならBANを呼び出す。
// 状態を直接設定するのではなく、望む次の状態に対応するトグル操作を1回だけ行う。
// BANした場合はそのユーザーのゲートウェイセッションも失効させる。
// BAN自体は成功しているので、失効の失敗はログに残すだけで成功として返す。
func (a *Actions) UpdateUserStatus(ctx context.Context, sess *model.Session, userID string, isActive bool) (err error) {
	defer func() { a.observe("update_user_status", err) }()

	tok, err := token(sess)
	if err != nil {
		return err
	}

	var resp *backend.Response[backend.Empty]
	if isActive {
		resp, err = a.backend.UnbanUser(ctx, tok, userID)
	} else {
		resp, err = a.backend.BanUser(ctx, tok, userID)
	}
	if _, err := check("update_user_status", resp, err); err != nil {
		return err
	}

	a.invalidate(profilecache.UserTag(userID), profilecache.ListTag)
	if !isActive {
		a.revoke(ctx, "update_user_status", userID)
	}
	return nil
}

// revoke はuserIDの全セッションを失効させる。失効できなかったセッションは期限切れで消える。
func (a *Actions) revoke(ctx context.Context, action, userID string) {
	if err := a.sessions.RevokeUser(ctx, userID); err != nil {
		slog.Warn("failed to revoke sessions after backend success",
			slog.String("action", action),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteUser はユーザーを削除し、そのユーザーのゲートウェイセッションを失効させる。
// 失効の失敗はUpdateUserStatusと同じく成功扱い。
func (a *Actions) DeleteUser(ctx context.Context, sess *model.Session, userID string) (err error) {
	defer func() { a.observe("delete_user", err) }()

	tok, err := token(sess)
	if err != nil {
		return err
	}
	resp, err := a.backend.DeleteUser(ctx, tok, userID)
	if _, err := check("delete_user", resp, err); err != nil {
		return err
	}
	a.invalidate(profilecache.UserTag(userID), profilecache.ListTag)
	a.revoke(ctx, "delete_user", userID)
	return nil
}
