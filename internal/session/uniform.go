package session

import (
	"context"
	"io"
	"log/slog"

	"github.com/hitoshi/marketgate/internal/model"
)

// Uniform はエラーを返さないアクション層。
// 失敗はnilまたはfalseとして返し、理由はログにだけ残す。
type Uniform struct {
	actions *Actions
	logger  *slog.Logger
}

// NewUniform はUniformを生成する。
func NewUniform(actions *Actions, logger *slog.Logger) *Uniform {
	return &Uniform{actions: actions, logger: logger}
}

func (u *Uniform) failed(action string, err error) {
	u.logger.Error("action failed",
		slog.String("action", action),
		slog.String("error", err.Error()),
	)
}

// Login はサインインする。失敗時はnil。
// HTTPルーターからは呼ばれず、Go APIとして直接使う呼び出し元のために残している。
func (u *Uniform) Login(ctx context.Context, email, password string) *AuthResult {
	res, err := u.actions.Login(ctx, email, password)
	if err != nil {
		u.failed("login", err)
		return nil
	}
	return res
}

// Register はユーザーを登録する。失敗時はnil。
func (u *Uniform) Register(ctx context.Context, in RegisterInput) *AuthResult {
	res, err := u.actions.Register(ctx, in)
	if err != nil {
		u.failed("register", err)
		return nil
	}
	return res
}

// GoogleLogin はGoogleアカウントでサインインする。失敗時はnil。
func (u *Uniform) GoogleLogin(ctx context.Context, code string) *AuthResult {
	res, err := u.actions.GoogleLogin(ctx, code)
	if err != nil {
		u.failed("google_login", err)
		return nil
	}
	return res
}

// Logout はログアウトする。
func (u *Uniform) Logout(ctx context.Context, sess *model.Session) bool {
	if err := u.actions.Logout(ctx, sess); err != nil {
		u.failed("logout", err)
		return false
	}
	return true
}

// VerifyEmail はメールアドレスを確認する。
func (u *Uniform) VerifyEmail(ctx context.Context, email, otp string) bool {
	if err := u.actions.VerifyEmail(ctx, email, otp); err != nil {
		u.failed("verify_email", err)
		return false
	}
	return true
}

// ResendVerificationEmail は確認メールを再送する。
func (u *Uniform) ResendVerificationEmail(ctx context.Context, email string) bool {
	if err := u.actions.ResendVerificationEmail(ctx, email); err != nil {
		u.failed("resend_verification_email", err)
		return false
	}
	return true
}

// ForgotPassword はパスワード再設定を開始する。
func (u *Uniform) ForgotPassword(ctx context.Context, email string) bool {
	if err := u.actions.ForgotPassword(ctx, email); err != nil {
		u.failed("forgot_password", err)
		return false
	}
	return true
}

// ResetPassword はパスワードを再設定する。
func (u *Uniform) ResetPassword(ctx context.Context, email, otp, newPassword string) bool {
	if err := u.actions.ResetPassword(ctx, email, otp, newPassword); err != nil {
		u.failed("reset_password", err)
		return false
	}
	return true
}

// ChangePassword はパスワードを変更する。
func (u *Uniform) ChangePassword(ctx context.Context, sess *model.Session, current, next string) bool {
	if err := u.actions.ChangePassword(ctx, sess, current, next); err != nil {
		u.failed("change_password", err)
		return false
	}
	return true
}

// UpdateProfile はプロフィールを更新する。失敗時はnil。
func (u *Uniform) UpdateProfile(ctx context.Context, sess *model.Session, in ProfileInput) *model.User {
	user, err := u.actions.UpdateProfile(ctx, sess, in)
	if err != nil {
		u.failed("update_profile", err)
		return nil
	}
	return user
}

// UploadProfilePhoto はアバター画像を更新する。失敗時はnil。
func (u *Uniform) UploadProfilePhoto(ctx context.Context, sess *model.Session, filename string, image io.Reader) *model.User {
	user, err := u.actions.UploadProfilePhoto(ctx, sess, filename, image)
	if err != nil {
		u.failed("upload_profile_photo", err)
		return nil
	}
	return user
}

// GetAllUsers はユーザー一覧を取得する。失敗時はnil。
func (u *Uniform) GetAllUsers(ctx context.Context, sess *model.Session, p ListParams) *UserList {
	list, err := u.actions.GetAllUsers(ctx, sess, p)
	if err != nil {
		u.failed("get_all_users", err)
		return nil
	}
	return list
}

// UpdateUserRole はロールを変更する。失敗時はnil。
func (u *Uniform) UpdateUserRole(ctx context.Context, sess *model.Session, userID string, role model.Role) *model.User {
	user, err := u.actions.UpdateUserRole(ctx, sess, userID, role)
	if err != nil {
		u.failed("update_user_role", err)
		return nil
	}
	return user
}

// UpdateUserStatus はBANまたはBAN解除を行う。
func (u *Uniform) UpdateUserStatus(ctx context.Context, sess *model.Session, userID string, isActive bool) bool {
	if err := u.actions.UpdateUserStatus(ctx, sess, userID, isActive); err != nil {
		u.failed("update_user_status", err)
		return false
	}
	return true
}

// DeleteUser はユーザーを削除する。
func (u *Uniform) DeleteUser(ctx context.Context, sess *model.Session, userID string) bool {
	if err := u.actions.DeleteUser(ctx, sess, userID); err != nil {
		u.failed("delete_user", err)
		return false
	}
	return true
}

// ClearError は何もしない。スナップショットのエラーは次の取得まで残る。
// HTTPルーターからは呼ばれず、Go APIとして直接使う呼び出し元のために残している。
func (u *Uniform) ClearError() {}
