package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/marketgate/internal/model"
)

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestCSRFMiddleware_Validation(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		cookie     string
		header     string
		wantStatus int
		wantCalled bool
	}{
		{"GETはトークン不要", http.MethodGet, "", "", http.StatusOK, true},
		{"HEADはトークン不要", http.MethodHead, "", "", http.StatusOK, true},
		{"OPTIONSはトークン不要", http.MethodOptions, "", "", http.StatusOK, true},
		{"POST一致", http.MethodPost, "tok-1", "tok-1", http.StatusOK, true},
		{"DELETE一致", http.MethodDelete, "tok-1", "tok-1", http.StatusOK, true},
		{"POST Cookieなし", http.MethodPost, "", "tok-1", http.StatusForbidden, false},
		{"PATCH ヘッダーなし", http.MethodPatch, "tok-1", "", http.StatusForbidden, false},
		{"PUT 不一致", http.MethodPut, "tok-1", "tok-2", http.StatusForbidden, false},
		{"POST 長さ違い", http.MethodPost, "tok-1", "tok-10", http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/test", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", called, tt.wantCalled)
			}
			if tt.wantStatus == http.StatusForbidden {
				var body ErrorResponseBody
				if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if body.Code != model.ErrCodeCSRFFailed {
					t.Errorf("code = %q, want %q", body.Code, model.ErrCodeCSRFFailed)
				}
			}
		})
	}
}

func TestCSRFMiddleware_SafeMethodIssuesCookie(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{CookieSecure: true, CookieDomain: "example.com"})(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	c := findCookie(w.Result(), csrfCookieName)
	if c == nil {
		t.Fatal("expected CSRF cookie to be set")
	}
	if len(c.Value) != 64 {
		t.Errorf("token length = %d, want 64", len(c.Value))
	}
	if c.HttpOnly {
		t.Error("CSRF cookie must be readable from JavaScript")
	}
	if !c.Secure {
		t.Error("Secure should follow config")
	}
	if c.Domain != "example.com" {
		t.Errorf("Domain = %q, want %q", c.Domain, "example.com")
	}
	if c.MaxAge != int((24 * time.Hour).Seconds()) {
		t.Errorf("MaxAge = %d, want 24h", c.MaxAge)
	}
}

func TestCSRFMiddleware_ExistingCookieNotReissued(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if c := findCookie(w.Result(), csrfCookieName); c != nil {
		t.Errorf("CSRF cookie re-set to %q", c.Value)
	}
}

func TestCSRFTokenHandler(t *testing.T) {
	t.Run("新規発行", func(t *testing.T) {
		h := NewCSRFTokenHandler(CSRFConfig{MaxAge: time.Hour})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

		if got := w.Header().Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		c := findCookie(w.Result(), csrfCookieName)
		if c == nil {
			t.Fatal("expected CSRF cookie to be set")
		}
		if body.Token == "" || body.Token != c.Value {
			t.Errorf("token = %q, cookie = %q; should match", body.Token, c.Value)
		}
		if c.MaxAge != 3600 {
			t.Errorf("MaxAge = %d, want 3600", c.MaxAge)
		}
		if c.SameSite != http.SameSiteLaxMode {
			t.Errorf("SameSite = %v, want Lax", c.SameSite)
		}
	})

	t.Run("既存トークンを返す", func(t *testing.T) {
		h := NewCSRFTokenHandler(CSRFConfig{})
		req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing-csrf-token"})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if body.Token != "existing-csrf-token" {
			t.Errorf("token = %q, want %q", body.Token, "existing-csrf-token")
		}
		if c := findCookie(w.Result(), csrfCookieName); c != nil {
			t.Error("cookie should not be re-set")
		}
	})
}
