package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/marketgate/internal/model"
	"github.com/hitoshi/marketgate/internal/security"
	"github.com/hitoshi/marketgate/internal/session"
)

const testAvatarMaxSize = 1024

func newTestAccountHandler(actions *mockActions, avatars *mockAvatars) *AccountHandler {
	return NewAccountHandler(actions, security.NewProfileSanitizer(), avatars, testAvatarMaxSize)
}

func multipartAvatarRequest(t *testing.T, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("avatar", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/account/photo", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return withSession(req, testSession(model.RoleUser))
}

func TestAccountHandler_ChangePassword(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		ok         bool
		wantStatus int
	}{
		{"success", `{"currentPassword":"old","newPassword":"new"}`, true, http.StatusNoContent},
		{"rejected", `{"currentPassword":"old","newPassword":"new"}`, false, http.StatusUnprocessableEntity},
		{"missing new password", `{"currentPassword":"old"}`, true, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actions := &mockActions{changePasswordFn: func(_ context.Context, sess *model.Session, current, next string) bool {
				if sess.ID != "session-123" || current != "old" || next != "new" {
					t.Errorf("unexpected call: %v %q %q", sess, current, next)
				}
				return tt.ok
			}}
			h := newTestAccountHandler(actions, &mockAvatars{})

			w := httptest.NewRecorder()
			req := withSession(jsonRequest(http.MethodPost, "/api/account/change-password", tt.body), testSession(model.RoleUser))
			h.ChangePassword(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestAccountHandler_UpdateProfile_SanitizesInput(t *testing.T) {
	var got session.ProfileInput
	actions := &mockActions{updateProfileFn: func(_ context.Context, _ *model.Session, in session.ProfileInput) *model.User {
		got = in
		return &model.User{ID: "user-123", Name: in.Name}
	}}
	h := newTestAccountHandler(actions, &mockAvatars{})

	w := httptest.NewRecorder()
	req := withSession(jsonRequest(http.MethodPatch, "/api/account/profile",
		`{"name":"<b>Taro</b>","city":" Tokyo "}`), testSession(model.RoleUser))
	h.UpdateProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.Name != "Taro" {
		t.Errorf("name = %q, want %q", got.Name, "Taro")
	}
	if got.City != "Tokyo" {
		t.Errorf("city = %q, want %q", got.City, "Tokyo")
	}
}

func TestAccountHandler_UpdateProfile_Failure_Returns422(t *testing.T) {
	h := newTestAccountHandler(&mockActions{}, &mockAvatars{})

	w := httptest.NewRecorder()
	req := withSession(jsonRequest(http.MethodPatch, "/api/account/profile", `{"name":"Taro"}`), testSession(model.RoleUser))
	h.UpdateProfile(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
}

func TestAccountHandler_UploadPhoto_Multipart(t *testing.T) {
	var gotName string
	var gotData []byte
	actions := &mockActions{uploadPhotoFn: func(_ context.Context, _ *model.Session, filename string, image io.Reader) *model.User {
		gotName = filename
		gotData, _ = io.ReadAll(image)
		return &model.User{ID: "user-123"}
	}}
	h := newTestAccountHandler(actions, &mockAvatars{})

	w := httptest.NewRecorder()
	h.UploadPhoto(w, multipartAvatarRequest(t, "me.png", []byte("png-bytes")))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
	if gotName != "me.png" || string(gotData) != "png-bytes" {
		t.Errorf("upload = %q %q", gotName, gotData)
	}
}

func TestAccountHandler_UploadPhoto_MultipartTooLarge_Returns413(t *testing.T) {
	called := false
	actions := &mockActions{uploadPhotoFn: func(context.Context, *model.Session, string, io.Reader) *model.User {
		called = true
		return &model.User{}
	}}
	h := newTestAccountHandler(actions, &mockAvatars{})

	w := httptest.NewRecorder()
	h.UploadPhoto(w, multipartAvatarRequest(t, "big.png", bytes.Repeat([]byte("x"), testAvatarMaxSize+1)))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
	if called {
		t.Error("upload should not be called for oversized image")
	}
}

func TestAccountHandler_UploadPhoto_FromURL(t *testing.T) {
	avatars := &mockAvatars{fetchFn: func(_ context.Context, rawURL string) (*security.AvatarImage, error) {
		if rawURL != "https://cdn.example.com/me.jpg" {
			t.Errorf("url = %q", rawURL)
		}
		return &security.AvatarImage{Filename: "me.jpg", ContentType: "image/jpeg", Data: []byte("jpg")}, nil
	}}
	var gotName string
	actions := &mockActions{uploadPhotoFn: func(_ context.Context, _ *model.Session, filename string, _ io.Reader) *model.User {
		gotName = filename
		return &model.User{ID: "user-123"}
	}}
	h := newTestAccountHandler(actions, avatars)

	w := httptest.NewRecorder()
	req := withSession(jsonRequest(http.MethodPost, "/api/account/photo", `{"url":"https://cdn.example.com/me.jpg"}`), testSession(model.RoleUser))
	h.UploadPhoto(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotName != "me.jpg" {
		t.Errorf("filename = %q, want me.jpg", gotName)
	}
}

func TestAccountHandler_UploadPhoto_FetchErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"ssrf blocked", model.NewSSRFBlockedError(), http.StatusForbidden},
		{"too large", model.NewAvatarTooLargeError(testAvatarMaxSize), http.StatusRequestEntityTooLarge},
		{"upstream failure", model.NewAvatarFetchFailedError("status 404"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			avatars := &mockAvatars{fetchFn: func(context.Context, string) (*security.AvatarImage, error) {
				return nil, tt.err
			}}
			h := newTestAccountHandler(&mockActions{}, avatars)

			w := httptest.NewRecorder()
			req := withSession(jsonRequest(http.MethodPost, "/api/account/photo", `{"url":"http://10.0.0.1/a.png"}`), testSession(model.RoleUser))
			h.UploadPhoto(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestAccountHandler_UploadPhoto_UnsupportedContentType(t *testing.T) {
	h := newTestAccountHandler(&mockActions{}, &mockAvatars{})

	req := httptest.NewRequest(http.MethodPost, "/api/account/photo", strings.NewReader("raw"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	h.UploadPhoto(w, withSession(req, testSession(model.RoleUser)))

	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnsupportedMediaType)
	}
}
