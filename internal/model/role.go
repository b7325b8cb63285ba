package model

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Role はユーザーの権限ロールを表す。
// 値はUSER、ADMIN、SUPER_ADMINの3つに閉じている。
type Role int

const (
	RoleUser Role = iota
	RoleAdmin
	RoleSuperAdmin
)

// ParseRole はバックエンドAPIのロール文字列をRoleに変換する。
func ParseRole(s string) (Role, error) {
	switch s {
	case "USER":
		return RoleUser, nil
	case "ADMIN":
		return RoleAdmin, nil
	case "SUPER_ADMIN":
		return RoleSuperAdmin, nil
	default:
		return RoleUser, fmt.Errorf("unknown role: %q", s)
	}
}

// String はAPIで使用するロール文字列を返す。
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "USER"
	case RoleAdmin:
		return "ADMIN"
	case RoleSuperAdmin:
		return "SUPER_ADMIN"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// IsAdmin はADMINまたはSUPER_ADMINの場合にtrueを返す。
func (r Role) IsAdmin() bool {
	switch r {
	case RoleAdmin, RoleSuperAdmin:
		return true
	case RoleUser:
		return false
	default:
		return false
	}
}

// IsSuperAdmin はSUPER_ADMINの場合のみtrueを返す。
func (r Role) IsSuperAdmin() bool {
	switch r {
	case RoleSuperAdmin:
		return true
	case RoleUser, RoleAdmin:
		return false
	default:
		return false
	}
}

// MarshalJSON はロールを文字列としてエンコードする。
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON はバックエンドのロール文字列をデコードする。
// null、空文字、未知の値はいずれも一般ユーザーとして扱い、1件の不正値でレスポンス全体を失敗させない。
// 管理者がロールを指定する入力はParseRoleで厳密に検証すること。
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		slog.Warn("non-string role treated as USER", slog.String("raw", string(data)))
		*r = RoleUser
		return nil
	}
	parsed, err := ParseRole(s)
	if err != nil && s != "" {
		slog.Warn("unknown role treated as USER", slog.String("role", s))
	}
	*r = parsed
	return nil
}
