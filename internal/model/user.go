// Package model はドメインモデルを定義する。
package model

import "time"

// User はマーケットプレイスのユーザーを表す。
// バックエンドAPIの /users/me が返すプロフィールレコードと同じ形。
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Role       Role      `json:"role"`
	IsActive   bool      `json:"isActive"`
	IsVerified bool      `json:"isVerified"`
	Profile    *Profile  `json:"profile,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitzero"`
	UpdatedAt  time.Time `json:"updatedAt,omitzero"`
}

// Profile はユーザーのプロフィール詳細。
type Profile struct {
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	AvatarURL  string `json:"avatarUrl,omitempty"`
}

// Session はゲートウェイが発行するログインセッションを表す。
// Email、Name、Roleはサインイン時点のクレームで、プロフィール取得前の表示に使う。
type Session struct {
	ID          string
	UserID      string
	Email       string
	Name        string
	Role        Role
	AccessToken string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// ClaimsUser はセッションのクレームから最小限のUserを組み立てる。
func (s *Session) ClaimsUser() *User {
	if s == nil || s.UserID == "" {
		return nil
	}
	return &User{
		ID:    s.UserID,
		Email: s.Email,
		Name:  s.Name,
		Role:  s.Role,
	}
}
