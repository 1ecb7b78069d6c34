package auth

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/hitoshi/csaccess/internal/security"
)

// 入力値の制約
const (
	NameMinLength     = 2
	NameMaxLength     = 50
	PasswordMinLength = 6
)

// RegisterInput はユーザー登録の入力値。
type RegisterInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Validate は登録入力の形式を検証する。
func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Name, validation.Required, validation.RuneLength(NameMinLength, NameMaxLength)),
		validation.Field(&in.Password, passwordRules...),
	)
}

// LoginInput はログインの入力値。
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate はログイン入力の形式を検証する。
func (in LoginInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Password, validation.Required),
	)
}

var passwordRules = []validation.Rule{
	validation.Required,
	validation.RuneLength(PasswordMinLength, 0),
	validation.By(maxBytes(security.MaxPasswordBytes)),
}

// maxBytes は文字列のバイト長の上限を検証するルールを返す。
func maxBytes(limit int) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if len(s) > limit {
			return fmt.Errorf("must be no more than %d bytes", limit)
		}
		return nil
	}
}

// NormalizeEmail はメールアドレスを比較用に正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
