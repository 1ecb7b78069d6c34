package model

import "time"

// Role はユーザーの権限ロールを表す。
type Role string

const (
	// RoleUser は一般ユーザーのロール。
	RoleUser Role = "user"
	// RoleAdmin は特権ロール。全てのロールチェックを通過する。
	RoleAdmin Role = "admin"
)

// Valid はロールが定義済みの値かどうかを返す。
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User はサービス利用ユーザーを表す。
// PasswordHashは一方向のbcryptハッシュであり、レスポンスやログに含めてはならない。
type User struct {
	ID              string
	Email           string
	Name            string
	PasswordHash    string
	Role            Role
	ProfileImageURL string
	EmailVerified   bool
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastLogin       *time.Time
}

// PublicUser はクライアントに返すユーザーの公開プロジェクション。
// パスワードハッシュを含まない。
type PublicUser struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	Role            Role       `json:"role"`
	ProfileImageURL string     `json:"profile_image_url,omitempty"`
	EmailVerified   bool       `json:"email_verified"`
	CreatedAt       time.Time  `json:"created_at"`
	LastLogin       *time.Time `json:"last_login,omitempty"`
}

// Public はUserの公開プロジェクションを返す。
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		Role:            u.Role,
		ProfileImageURL: u.ProfileImageURL,
		EmailVerified:   u.EmailVerified,
		CreatedAt:       u.CreatedAt,
		LastLogin:       u.LastLogin,
	}
}

// Session は発行済みトークンの監査用レコードを表す。
// トークン本体は保持せず、SHA-256ハッシュのみを保存する。
// IDはトークンのjtiクレームと一致する。
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	IPAddress string
	UserAgent string
	CreatedAt time.Time
	RevokedAt *time.Time
}

// Revoked はセッションが失効済みかどうかを返す。
func (s *Session) Revoked() bool {
	return s.RevokedAt != nil
}
