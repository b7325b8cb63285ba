// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ProfileSanitizer はプロフィール更新の入力からHTMLを取り除き、
// バックエンドへ送る前にマークアップ混入によるXSSを防ぐ。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/marketgate/internal/backend"
)

// ProfileSanitizer はプロフィール項目のサニタイズを行う。
// bluemondayのStrictPolicyで全タグを除去する。ポリシーはスレッドセーフ。
type ProfileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerを生成する。
func NewProfileSanitizer() *ProfileSanitizer {
	return &ProfileSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeText はタグを除去し、前後の空白を取り除いた文字列を返す。
// script, styleの中身も除去される。
func (s *ProfileSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(s.policy.Sanitize(raw))
}

// SanitizeProfile はプロフィール更新リクエストの全項目をサニタイズしたコピーを返す。
func (s *ProfileSanitizer) SanitizeProfile(in backend.UpdateProfileRequest) backend.UpdateProfileRequest {
	return backend.UpdateProfileRequest{
		Name:       s.SanitizeText(in.Name),
		Phone:      s.SanitizeText(in.Phone),
		Address:    s.SanitizeText(in.Address),
		City:       s.SanitizeText(in.City),
		State:      s.SanitizeText(in.State),
		Country:    s.SanitizeText(in.Country),
		PostalCode: s.SanitizeText(in.PostalCode),
	}
}

// SanitizeRegister は登録リクエストの表示名と電話番号をサニタイズする。
// メールアドレスとパスワードは変更しない。
func (s *ProfileSanitizer) SanitizeRegister(in backend.RegisterRequest) backend.RegisterRequest {
	in.Name = s.SanitizeText(in.Name)
	in.Phone = s.SanitizeText(in.Phone)
	return in
}
