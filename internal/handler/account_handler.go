package handler

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/hitoshi/marketgate/internal/middleware"
	"github.com/hitoshi/marketgate/internal/model"
	"github.com/hitoshi/marketgate/internal/security"
	"github.com/hitoshi/marketgate/internal/session"
)

// AccountActions はログイン中ユーザー向けのアクション。session.Uniformが実装する。
type AccountActions interface {
	ChangePassword(ctx context.Context, sess *model.Session, current, next string) bool
	UpdateProfile(ctx context.Context, sess *model.Session, in session.ProfileInput) *model.User
	UploadProfilePhoto(ctx context.Context, sess *model.Session, filename string, image io.Reader) *model.User
}

// AvatarFetcher はURLで指定されたアバター画像を取得する。
type AvatarFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*security.AvatarImage, error)
}

// AccountHandler はパスワード変更とプロフィール更新のHTTPハンドラー。
type AccountHandler struct {
	actions       AccountActions
	sanitizer     InputSanitizer
	avatars       AvatarFetcher
	avatarMaxSize int64
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(actions AccountActions, sanitizer InputSanitizer, avatars AvatarFetcher, avatarMaxSize int64) *AccountHandler {
	return &AccountHandler{
		actions:       actions,
		sanitizer:     sanitizer,
		avatars:       avatars,
		avatarMaxSize: avatarMaxSize,
	}
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type avatarURLRequest struct {
	URL string `json:"url"`
}

// ChangePassword はパスワードを変更する。
// POST /api/account/change-password
func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeBadRequest(w, "currentPassword と newPassword は必須です")
		return
	}

	sess := middleware.SnapshotFromContext(r.Context()).Session
	if !h.actions.ChangePassword(r.Context(), sess, req.CurrentPassword, req.NewPassword) {
		writeActionFailed(w, "change_password")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateProfile はプロフィールを更新する。入力はサニタイズしてから送る。
// PATCH /api/account/profile
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req session.ProfileInput
	if !decodeJSON(w, r, &req) {
		return
	}

	sess := middleware.SnapshotFromContext(r.Context()).Session
	user := h.actions.UpdateProfile(r.Context(), sess, h.sanitizer.SanitizeProfile(req))
	if user == nil {
		writeActionFailed(w, "update_profile")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UploadPhoto はアバター画像を更新する。
// multipart/form-dataのavatarフィールド、またはJSONの{"url": "..."}を受け付ける。
// POST /api/account/photo
func (h *AccountHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		filename string
		image    io.Reader
	)
	switch {
	case mediaType == "multipart/form-data":
		// フォーム全体の上限は画像サイズに余裕を持たせる
		r.Body = http.MaxBytesReader(w, r.Body, h.avatarMaxSize+1<<20)
		file, header, err := r.FormFile("avatar")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				middleware.WriteError(w, r, model.NewAvatarTooLargeError(h.avatarMaxSize))
				return
			}
			writeBadRequest(w, "avatar ファイルがありません")
			return
		}
		defer file.Close()
		if header.Size > h.avatarMaxSize {
			middleware.WriteError(w, r, model.NewAvatarTooLargeError(h.avatarMaxSize))
			return
		}
		filename, image = header.Filename, file

	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		var req avatarURLRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.URL == "" {
			middleware.WriteError(w, r, model.NewInvalidURLError("URLが空です"))
			return
		}
		img, err := h.avatars.Fetch(r.Context(), req.URL)
		if err != nil {
			middleware.WriteError(w, r, err)
			return
		}
		filename, image = img.Filename, img.Reader()

	default:
		middleware.WriteErrorResponse(w, http.StatusUnsupportedMediaType,
			model.NewInvalidRequestError("multipart/form-data または application/json で送信してください"))
		return
	}

	sess := middleware.SnapshotFromContext(r.Context()).Session
	user := h.actions.UploadProfilePhoto(r.Context(), sess, filename, image)
	if user == nil {
		writeActionFailed(w, "upload_profile_photo")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
