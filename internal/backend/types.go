package backend

import "github.com/hitoshi/marketgate/internal/model"

// LoginRequest は認証情報によるログインのリクエスト。
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest はユーザー登録のリクエスト。
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

// GoogleLoginRequest はGoogleアカウントによるログインのリクエスト。
// 内容はGoogleのuserinfoから組み立てる。
type GoogleLoginRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	GoogleID string `json:"googleId"`
	Avatar   string `json:"avatar,omitempty"`
}

// AuthData はログイン・登録成功時のdata部。
// NextAuthSecretはセッションに載せるアクセストークン。
type AuthData struct {
	User           model.User `json:"user"`
	NextAuthSecret string     `json:"nextAuthSecret"`
}

// VerifyOTPRequest はワンタイムパスワード検証のリクエスト。
// NewPasswordはパスワード再設定の場合のみ指定する。
type VerifyOTPRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword,omitempty"`
}

// ResendOTPRequest はワンタイムパスワード再送のリクエスト。
type ResendOTPRequest struct {
	Email string `json:"email"`
}

// ChangePasswordRequest はパスワード変更のリクエスト。
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// UpdateProfileRequest はプロフィール更新のリクエスト。空の項目は送信しない。
type UpdateProfileRequest struct {
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

// ListUsersParams はユーザー一覧取得のクエリパラメータ。
type ListUsersParams struct {
	Page   int
	Limit  int
	Search string
}

// Empty はdata部を使わないレスポンスの型引数。data部の内容は読み捨てる。
type Empty struct{}

// UnmarshalJSON はdata部の形に関わらず何もしない。
func (*Empty) UnmarshalJSON([]byte) error { return nil }
