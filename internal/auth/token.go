package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpiry はアクセストークンがJWTの場合にexpクレームを返す。
// 署名は検証しない。バックエンドのトークンはバックエンドが検証する。
// JWTでない場合やexpがない場合はfalseを返す。
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
