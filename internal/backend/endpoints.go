package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/marketgate/internal/model"
)

// Login は POST /auth/login を呼び出す。
func (c *Client) Login(ctx context.Context, in LoginRequest) (*Response[AuthData], error) {
	body, err := jsonBody(in)
	if err != nil {
		return nil, err
	}
	return call[AuthData](ctx, c, request{
		endpoint: "login", method: http.MethodPost, path: "/auth/login",
		body: body, contentType: "application/json",
	})
}

// Register は POST /auth/register を呼び出す。
func (c *Client) Register(ctx context.Context, in RegisterRequest) (*Response[AuthData], error) {
	body, err := jsonBody(in)
	if err != nil {
		return nil, err
	}
	return call[AuthData](ctx, c, request{
		endpoint: "register", method: http.MethodPost, path: "/auth/register",
		body: body, contentType: "application/json",
	})
}

// GoogleLogin は POST /auth/google を呼び出す。
func (c *Client) GoogleLogin(ctx context.Context, in GoogleLoginRequest) (*Response[AuthData], error) {
	body, err := jsonBody(in)
	if err != nil {
		return nil, err
	}
	return call[AuthData](ctx, c, request{
		endpoint: "google_login", method: http.MethodPost, path: "/auth/google",
		body: body, contentType: "application/json",
	})
}

// Logout は POST /auth/logout を呼び出す。
func (c *Client) Logout(ctx context.Context, token string) (*Response[Empty], error) {
	return call[Empty](ctx, c, request{
		endpoint: "logout", method: http.MethodPost, path: "/auth/logout", token: token,
	})
}

// VerifyOTP は POST /auth/verify-otp を呼び出す。
func (c *Client) VerifyOTP(ctx context.Context, in VerifyOTPRequest) (*Response[Empty], error) {
	body, err := jsonBody(in)
	if err != nil {
		return nil, err
	}
	return call[Empty](ctx, c, request{
		endpoint: "verify_otp", method: http.MethodPost, path: "/auth/verify-otp",
		body: body, contentType: "application/json",
	})
}

// ResendOTP は POST /auth/resend-otp を呼び出す。
func (c *Client) ResendOTP(ctx context.Context, in ResendOTPRequest) (*Response[Empty], error) {
	body, err := jsonBody(in)
	if err != nil {
		return nil, err
	}
	return call[Empty](ctx, c, request{
		endpoint: "resend_otp", method: http.MethodPost, path: "/auth/resend-otp",
		body: body, contentType: "application/json",
	})
}

// ChangePassword は POST /auth/change-password を呼び出す。
func (c *Client) ChangePassword(ctx context.Context, token string, in ChangePasswordRequest) (*Response[Empty], error) {
	body, err := jsonBody(in)
	if err != nil {
		return nil, err
	}
	return call[Empty](ctx, c, request{
		endpoint: "change_password", method: http.MethodPost, path: "/auth/change-password",
		token: token, body: body, contentType: "application/json",
	})
}

// GetMe は GET /users/me を呼び出す。
func (c *Client) GetMe(ctx context.Context, token string) (*Response[model.User], error) {
	return call[model.User](ctx, c, request{
		endpoint: "get_me", method: http.MethodGet, path: "/users/me", token: token,
	})
}

// UpdateProfile は PATCH /users/profile を呼び出す。
func (c *Client) UpdateProfile(ctx context.Context, token string, in UpdateProfileRequest) (*Response[model.User], error) {
	body, err := jsonBody(in)
	if err != nil {
		return nil, err
	}
	return call[model.User](ctx, c, request{
		endpoint: "update_profile", method: http.MethodPatch, path: "/users/profile",
		token: token, body: body, contentType: "application/json",
	})
}

// UpdateAvatar は POST /users/profile/avatar をmultipart形式で呼び出す。
// 画像はフィールド名 "avatar" で送信する。
func (c *Client) UpdateAvatar(ctx context.Context, token, filename string, image io.Reader) (*Response[model.User], error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("avatar", filename)
	if err != nil {
		return nil, fmt.Errorf("multipartの作成に失敗しました: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("画像の書き込みに失敗しました: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("multipartの作成に失敗しました: %w", err)
	}

	return call[model.User](ctx, c, request{
		endpoint: "update_avatar", method: http.MethodPost, path: "/users/profile/avatar",
		token: token, body: &buf, contentType: mw.FormDataContentType(),
	})
}

// GetAllUsers は GET /users をページング・検索パラメータ付きで呼び出す。
func (c *Client) GetAllUsers(ctx context.Context, token string, p ListUsersParams) (*Response[[]model.User], error) {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	path := "/users"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return call[[]model.User](ctx, c, request{
		endpoint: "get_all_users", method: http.MethodGet, path: path, token: token,
	})
}

// UpdateUserRole は PATCH /users/{id}/role を呼び出す。
func (c *Client) UpdateUserRole(ctx context.Context, token, userID string, role model.Role) (*Response[model.User], error) {
	body, err := jsonBody(struct {
		Role model.Role `json:"role"`
	}{Role: role})
	if err != nil {
		return nil, err
	}
	return call[model.User](ctx, c, request{
		endpoint: "update_user_role", method: http.MethodPatch, path: "/users/" + url.PathEscape(userID) + "/role",
		token: token, body: body, contentType: "application/json",
	})
}

// BanUser は PATCH /users/{id}/ban を呼び出す。
func (c *Client) BanUser(ctx context.Context, token, userID string) (*Response[Empty], error) {
	return call[Empty](ctx, c, request{
		endpoint: "ban_user", method: http.MethodPatch, path: "/users/" + url.PathEscape(userID) + "/ban", token: token,
	})
}

// UnbanUser は PATCH /users/{id}/unban を呼び出す。
func (c *Client) UnbanUser(ctx context.Context, token, userID string) (*Response[Empty], error) {
	return call[Empty](ctx, c, request{
		endpoint: "unban_user", method: http.MethodPatch, path: "/users/" + url.PathEscape(userID) + "/unban", token: token,
	})
}

// DeleteUser は DELETE /users/{id} を呼び出す。
func (c *Client) DeleteUser(ctx context.Context, token, userID string) (*Response[Empty], error) {
	return call[Empty](ctx, c, request{
		endpoint: "delete_user", method: http.MethodDelete, path: "/users/" + url.PathEscape(userID), token: token,
	})
}
