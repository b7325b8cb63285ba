package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/securecookie"
)

// SessionCookieName はセッションIDを運ぶCookie名。
const SessionCookieName = "mg_session"

// ErrNoSessionCookie はセッションCookieがないことを表す。
var ErrNoSessionCookie = errors.New("session cookie not found")

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Secure bool
	Domain string
	MaxAge int // 秒
}

// CookieCodec はセッションIDを署名・暗号化してCookieに載せる。
type CookieCodec struct {
	sc     *securecookie.SecureCookie
	config CookieConfig
}

// NewCookieCodec はSESSION_SECRETからハッシュキーと暗号化キーを導出してCookieCodecを生成する。
func NewCookieCodec(secret string, config CookieConfig) *CookieCodec {
	hashKey := deriveKey(secret, "marketgate-cookie-hash")
	blockKey := deriveKey(secret, "marketgate-cookie-block")

	sc := securecookie.New(hashKey, blockKey)
	if config.MaxAge > 0 {
		sc.MaxAge(config.MaxAge)
	}
	return &CookieCodec{sc: sc, config: config}
}

func deriveKey(secret, label string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(label))
	return mac.Sum(nil)
}

// Write はセッションIDをエンコードしてCookieを設定する。
func (c *CookieCodec) Write(w http.ResponseWriter, sessionID string) error {
	encoded, err := c.sc.Encode(SessionCookieName, sessionID)
	if err != nil {
		return fmt.Errorf("failed to encode session cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    encoded,
		Path:     "/",
		Domain:   c.config.Domain,
		MaxAge:   c.config.MaxAge,
		HttpOnly: true,
		Secure:   c.config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Read はリクエストのCookieからセッションIDを取り出す。
// Cookieがない場合はErrNoSessionCookie、改ざん・期限切れの場合はsecurecookieのエラーを返す。
func (c *CookieCodec) Read(r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", ErrNoSessionCookie
	}

	var sessionID string
	if err := c.sc.Decode(SessionCookieName, cookie.Value, &sessionID); err != nil {
		return "", fmt.Errorf("failed to decode session cookie: %w", err)
	}
	return sessionID, nil
}

// Clear はセッションCookieを削除する。
func (c *CookieCodec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   c.config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
