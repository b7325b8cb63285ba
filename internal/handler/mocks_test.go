package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/hitoshi/marketgate/internal/backend"
	"github.com/hitoshi/marketgate/internal/middleware"
	"github.com/hitoshi/marketgate/internal/model"
	"github.com/hitoshi/marketgate/internal/security"
	"github.com/hitoshi/marketgate/internal/session"
)

// --- モック定義 ---

// mockActions はSessionActionsのモック。未設定のメソッドは失敗（nil/false）を返す。
type mockActions struct {
	registerFn         func(ctx context.Context, in session.RegisterInput) *session.AuthResult
	googleLoginFn      func(ctx context.Context, code string) *session.AuthResult
	logoutFn           func(ctx context.Context, sess *model.Session) bool
	verifyEmailFn      func(ctx context.Context, email, otp string) bool
	resendFn           func(ctx context.Context, email string) bool
	forgotPasswordFn   func(ctx context.Context, email string) bool
	resetPasswordFn    func(ctx context.Context, email, otp, newPassword string) bool
	changePasswordFn   func(ctx context.Context, sess *model.Session, current, next string) bool
	updateProfileFn    func(ctx context.Context, sess *model.Session, in session.ProfileInput) *model.User
	uploadPhotoFn      func(ctx context.Context, sess *model.Session, filename string, image io.Reader) *model.User
	getAllUsersFn      func(ctx context.Context, sess *model.Session, p session.ListParams) *session.UserList
	updateUserRoleFn   func(ctx context.Context, sess *model.Session, userID string, role model.Role) *model.User
	updateUserStatusFn func(ctx context.Context, sess *model.Session, userID string, isActive bool) bool
	deleteUserFn       func(ctx context.Context, sess *model.Session, userID string) bool
}

func (m *mockActions) Register(ctx context.Context, in session.RegisterInput) *session.AuthResult {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil
}

func (m *mockActions) GoogleLogin(ctx context.Context, code string) *session.AuthResult {
	if m.googleLoginFn != nil {
		return m.googleLoginFn(ctx, code)
	}
	return nil
}

func (m *mockActions) Logout(ctx context.Context, sess *model.Session) bool {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sess)
	}
	return false
}

func (m *mockActions) VerifyEmail(ctx context.Context, email, otp string) bool {
	if m.verifyEmailFn != nil {
		return m.verifyEmailFn(ctx, email, otp)
	}
	return false
}

func (m *mockActions) ResendVerificationEmail(ctx context.Context, email string) bool {
	if m.resendFn != nil {
		return m.resendFn(ctx, email)
	}
	return false
}

func (m *mockActions) ForgotPassword(ctx context.Context, email string) bool {
	if m.forgotPasswordFn != nil {
		return m.forgotPasswordFn(ctx, email)
	}
	return false
}

func (m *mockActions) ResetPassword(ctx context.Context, email, otp, newPassword string) bool {
	if m.resetPasswordFn != nil {
		return m.resetPasswordFn(ctx, email, otp, newPassword)
	}
	return false
}

func (m *mockActions) ChangePassword(ctx context.Context, sess *model.Session, current, next string) bool {
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, sess, current, next)
	}
	return false
}

func (m *mockActions) UpdateProfile(ctx context.Context, sess *model.Session, in session.ProfileInput) *model.User {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, sess, in)
	}
	return nil
}

func (m *mockActions) UploadProfilePhoto(ctx context.Context, sess *model.Session, filename string, image io.Reader) *model.User {
	if m.uploadPhotoFn != nil {
		return m.uploadPhotoFn(ctx, sess, filename, image)
	}
	return nil
}

func (m *mockActions) GetAllUsers(ctx context.Context, sess *model.Session, p session.ListParams) *session.UserList {
	if m.getAllUsersFn != nil {
		return m.getAllUsersFn(ctx, sess, p)
	}
	return nil
}

func (m *mockActions) UpdateUserRole(ctx context.Context, sess *model.Session, userID string, role model.Role) *model.User {
	if m.updateUserRoleFn != nil {
		return m.updateUserRoleFn(ctx, sess, userID, role)
	}
	return nil
}

func (m *mockActions) UpdateUserStatus(ctx context.Context, sess *model.Session, userID string, isActive bool) bool {
	if m.updateUserStatusFn != nil {
		return m.updateUserStatusFn(ctx, sess, userID, isActive)
	}
	return false
}

func (m *mockActions) DeleteUser(ctx context.Context, sess *model.Session, userID string) bool {
	if m.deleteUserFn != nil {
		return m.deleteUserFn(ctx, sess, userID)
	}
	return false
}

type mockSignIn struct {
	signInFn func(ctx context.Context, email, password string) (*model.Session, error)
}

func (m *mockSignIn) SignInUser(ctx context.Context, email, password string) (*model.Session, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, &session.ActionError{Action: "signInUser", Message: "Invalid email or password"}
}

// mockCookies はセッションCookieを平文で読み書きする。
type mockCookies struct {
	written  []string
	cleared  int
	writeErr error
}

func (m *mockCookies) Write(w http.ResponseWriter, sessionID string) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = append(m.written, sessionID)
	http.SetCookie(w, &http.Cookie{Name: testSessionCookie, Value: sessionID, Path: "/"})
	return nil
}

func (m *mockCookies) Clear(w http.ResponseWriter) {
	m.cleared++
	http.SetCookie(w, &http.Cookie{Name: testSessionCookie, Value: "", Path: "/", MaxAge: -1})
}

func (m *mockCookies) Read(r *http.Request) (string, error) {
	c, err := r.Cookie(testSessionCookie)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

const testSessionCookie = "mg_session"

type mockLoginURL struct{}

func (mockLoginURL) GetLoginURL(state string) string {
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

// passthroughSanitizer は入力をそのまま返す。
type passthroughSanitizer struct{}

func (passthroughSanitizer) SanitizeProfile(in backend.UpdateProfileRequest) backend.UpdateProfileRequest {
	return in
}

func (passthroughSanitizer) SanitizeRegister(in backend.RegisterRequest) backend.RegisterRequest {
	return in
}

type mockAvatars struct {
	fetchFn func(ctx context.Context, rawURL string) (*security.AvatarImage, error)
}

func (m *mockAvatars) Fetch(ctx context.Context, rawURL string) (*security.AvatarImage, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, rawURL)
	}
	return nil, errors.New("not configured")
}

type mockHealth struct {
	err error
}

func (m *mockHealth) PingContext(context.Context) error {
	return m.err
}

// --- ヘルパー ---

func testSession(role model.Role) *model.Session {
	return &model.Session{
		ID:          "session-123",
		UserID:      "user-123",
		Email:       "user@example.com",
		Name:        "Test User",
		Role:        role,
		AccessToken: "access-token",
	}
}

func snapshotFor(sess *model.Session) session.Snapshot {
	if sess == nil {
		return session.Derive(session.SessionState{}, session.ProfileState{})
	}
	return session.Derive(session.SessionState{Session: sess, IsAuthenticated: true}, session.ProfileState{})
}

// withSession はリクエストにスナップショットを注入する。
func withSession(r *http.Request, sess *model.Session) *http.Request {
	return r.WithContext(middleware.ContextWithSnapshot(r.Context(), snapshotFor(sess)))
}
