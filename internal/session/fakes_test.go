package session

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/hitoshi/marketgate/internal/auth"
	"github.com/hitoshi/marketgate/internal/backend"
	"github.com/hitoshi/marketgate/internal/model"
	"github.com/hitoshi/marketgate/internal/profilecache"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func ok[T any](data T) (*backend.Response[T], error) {
	return &backend.Response[T]{Success: true, Data: data}, nil
}

func rejected[T any](msg string) (*backend.Response[T], error) {
	return &backend.Response[T]{Success: false, Message: msg}, nil
}

// mockBackend は呼び出し回数を数えるBackend。未設定のメソッドは成功を返す。
type mockBackend struct {
	mu    sync.Mutex
	calls map[string]int

	registerFn       func(in backend.RegisterRequest) (*backend.Response[backend.AuthData], error)
	logoutFn         func(token string) (*backend.Response[backend.Empty], error)
	verifyOTPFn      func(in backend.VerifyOTPRequest) (*backend.Response[backend.Empty], error)
	resendOTPFn      func(in backend.ResendOTPRequest) (*backend.Response[backend.Empty], error)
	changePasswordFn func(token string, in backend.ChangePasswordRequest) (*backend.Response[backend.Empty], error)
	updateProfileFn  func(token string, in backend.UpdateProfileRequest) (*backend.Response[model.User], error)
	updateAvatarFn   func(token, filename string, image io.Reader) (*backend.Response[model.User], error)
	getAllUsersFn    func(token string, p backend.ListUsersParams) (*backend.Response[[]model.User], error)
	updateRoleFn     func(token, userID string, role model.Role) (*backend.Response[model.User], error)
	banFn            func(token, userID string) (*backend.Response[backend.Empty], error)
	unbanFn          func(token, userID string) (*backend.Response[backend.Empty], error)
	deleteFn         func(token, userID string) (*backend.Response[backend.Empty], error)
}

func (m *mockBackend) count(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[name]++
}

func (m *mockBackend) callCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *mockBackend) Register(_ context.Context, in backend.RegisterRequest) (*backend.Response[backend.AuthData], error) {
	m.count("register")
	if m.registerFn != nil {
		return m.registerFn(in)
	}
	return ok(backend.AuthData{})
}

func (m *mockBackend) Logout(_ context.Context, token string) (*backend.Response[backend.Empty], error) {
	m.count("logout")
	if m.logoutFn != nil {
		return m.logoutFn(token)
	}
	return ok(backend.Empty{})
}

func (m *mockBackend) VerifyOTP(_ context.Context, in backend.VerifyOTPRequest) (*backend.Response[backend.Empty], error) {
	m.count("verify_otp")
	if m.verifyOTPFn != nil {
		return m.verifyOTPFn(in)
	}
	return ok(backend.Empty{})
}

func (m *mockBackend) ResendOTP(_ context.Context, in backend.ResendOTPRequest) (*backend.Response[backend.Empty], error) {
	m.count("resend_otp")
	if m.resendOTPFn != nil {
		return m.resendOTPFn(in)
	}
	return ok(backend.Empty{})
}

func (m *mockBackend) ChangePassword(_ context.Context, token string, in backend.ChangePasswordRequest) (*backend.Response[backend.Empty], error) {
	m.count("change_password")
	if m.changePasswordFn != nil {
		return m.changePasswordFn(token, in)
	}
	return ok(backend.Empty{})
}

func (m *mockBackend) UpdateProfile(_ context.Context, token string, in backend.UpdateProfileRequest) (*backend.Response[model.User], error) {
	m.count("update_profile")
	if m.updateProfileFn != nil {
		return m.updateProfileFn(token, in)
	}
	return ok(model.User{})
}

func (m *mockBackend) UpdateAvatar(_ context.Context, token, filename string, image io.Reader) (*backend.Response[model.User], error) {
	m.count("update_avatar")
	if m.updateAvatarFn != nil {
		return m.updateAvatarFn(token, filename, image)
	}
	return ok(model.User{})
}

func (m *mockBackend) GetAllUsers(_ context.Context, token string, p backend.ListUsersParams) (*backend.Response[[]model.User], error) {
	m.count("get_all_users")
	if m.getAllUsersFn != nil {
		return m.getAllUsersFn(token, p)
	}
	return ok([]model.User{})
}

func (m *mockBackend) UpdateUserRole(_ context.Context, token, userID string, role model.Role) (*backend.Response[model.User], error) {
	m.count("update_user_role")
	if m.updateRoleFn != nil {
		return m.updateRoleFn(token, userID, role)
	}
	return ok(model.User{ID: userID, Role: role})
}

func (m *mockBackend) BanUser(_ context.Context, token, userID string) (*backend.Response[backend.Empty], error) {
	m.count("ban")
	if m.banFn != nil {
		return m.banFn(token, userID)
	}
	return ok(backend.Empty{})
}

func (m *mockBackend) UnbanUser(_ context.Context, token, userID string) (*backend.Response[backend.Empty], error) {
	m.count("unban")
	if m.unbanFn != nil {
		return m.unbanFn(token, userID)
	}
	return ok(backend.Empty{})
}

func (m *mockBackend) DeleteUser(_ context.Context, token, userID string) (*backend.Response[backend.Empty], error) {
	m.count("delete")
	if m.deleteFn != nil {
		return m.deleteFn(token, userID)
	}
	return ok(backend.Empty{})
}

// mockSessions はSessionManagerのモック。
type mockSessions struct {
	signInFn       func(email, password string) (*auth.SignInResult, error)
	signInGoogleFn func(code string) (*auth.SignInResult, error)
	signOutFn      func(sessionID string) error
	revokeErr      error
	revoked        []string
	signedOut      []string
}

func (m *mockSessions) SignInCredentials(_ context.Context, email, password string) (*auth.SignInResult, error) {
	if m.signInFn != nil {
		return m.signInFn(email, password)
	}
	return nil, &auth.SignInError{}
}

func (m *mockSessions) SignInGoogle(_ context.Context, code string) (*auth.SignInResult, error) {
	if m.signInGoogleFn != nil {
		return m.signInGoogleFn(code)
	}
	return nil, &auth.SignInError{}
}

func (m *mockSessions) SignOut(_ context.Context, sessionID string) error {
	m.signedOut = append(m.signedOut, sessionID)
	if m.signOutFn != nil {
		return m.signOutFn(sessionID)
	}
	return nil
}

func (m *mockSessions) RevokeUser(_ context.Context, userID string) error {
	m.revoked = append(m.revoked, userID)
	return m.revokeErr
}

// memSlots はメモリ上のSlotStore。
type memSlots struct {
	mu        sync.Mutex
	values    map[string]string
	puts      int
	putErr    error
	deleteErr error
}

func newMemSlots() *memSlots {
	return &memSlots{values: map[string]string{}}
}

func (m *memSlots) Put(_ context.Context, ownerID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	m.values[ownerID+"/"+key] = value
	return nil
}

func (m *memSlots) Delete(_ context.Context, ownerID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.values, ownerID+"/"+key)
	return nil
}

func (m *memSlots) get(ownerID, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, found := m.values[ownerID+"/"+key]
	return v, found
}

// recordingInvalidator は無効化されたタグを記録する。
type recordingInvalidator struct {
	tags []string
}

func (r *recordingInvalidator) Invalidate(tags ...string) {
	r.tags = append(r.tags, tags...)
}

// actionsFixture はActionsとその依存をまとめて組み立てる。
type actionsFixture struct {
	backend  *mockBackend
	sessions *mockSessions
	slots    *memSlots
	inval    *recordingInvalidator
	logBuf   *bytes.Buffer
	actions  *Actions
	uniform  *Uniform
	legacy   *Legacy
}

func newActionsFixture() *actionsFixture {
	f := &actionsFixture{
		backend:  &mockBackend{},
		sessions: &mockSessions{},
		slots:    newMemSlots(),
		inval:    &recordingInvalidator{},
		logBuf:   &bytes.Buffer{},
	}
	tokens := NewTokenPersister(f.slots)
	lists := profilecache.New[[]model.User](0, nil)
	f.actions = NewActions(f.backend, f.sessions, tokens, lists, []Invalidator{f.inval, lists}, nil)
	f.uniform = NewUniform(f.actions, newTestLogger(f.logBuf))
	f.legacy = NewLegacy(f.sessions, f.actions, tokens)
	return f
}

func testSession() *model.Session {
	return &model.Session{ID: "sess-1", UserID: "admin-1", Role: model.RoleSuperAdmin, AccessToken: "tok"}
}
