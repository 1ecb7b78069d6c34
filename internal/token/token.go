// Package token はHS256署名のベアラートークンの発行と検証を提供する。
// 共有シークレットは起動時に構築したConfigで受け取り、環境変数は参照しない。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/csaccess/internal/model"
)

// Status はトークン検証結果の分類を表す。
type Status int

const (
	// StatusInvalid は署名不正・形式不正・必須クレーム欠落のいずれか。
	StatusInvalid Status = iota
	// StatusExpired は署名は正しいが有効期限を過ぎている。
	StatusExpired
	// StatusValid は署名・有効期限ともに正しい。
	StatusValid
)

// String はログ出力用の文字列表現を返す。
func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// Claims はトークンに埋め込むアイデンティティクレーム。
// SessionIDはjtiとして埋め込まれ、セッションレコードのIDと一致する。
type Claims struct {
	UserID    string
	Email     string
	Role      model.Role
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Result はVerifyの結果。ClaimsはStatusValidの場合のみ設定される。
type Result struct {
	Status Status
	Claims *Claims
}

// Config はトークンサービスの設定。
type Config struct {
	Secret string
	Issuer string
	// Now は現在時刻を返す。nilの場合はtime.Nowを使用する。
	Now func() time.Time
}

// Service はトークンの発行と検証を行う。
type Service struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// ErrEmptySecret はシークレット未指定でサービスを生成しようとした場合のエラー。
var ErrEmptySecret = errors.New("token: secret must not be empty")

// jwtClaims はJWTペイロードの構造。
type jwtClaims struct {
	UserID string     `json:"userId"`
	Email  string     `json:"email"`
	Role   model.Role `json:"role"`
	jwt.RegisteredClaims
}

// NewService はConfigからServiceを生成する。
func NewService(cfg Config) (*Service, error) {
	if cfg.Secret == "" {
		return nil, ErrEmptySecret
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		now:    now,
	}, nil
}

// Issue はクレームに署名したトークンと有効期限を返す。
// 有効期限は現在時刻+ttl。SessionIDが空の場合は新しいUUIDを採番する。
func (s *Service) Issue(claims Claims, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("token: ttl must be positive: %v", ttl)
	}
	if claims.UserID == "" {
		return "", time.Time{}, errors.New("token: user id must not be empty")
	}

	sessionID := claims.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// NumericDateは秒精度のため、発行時刻も秒単位に揃える
	now := s.now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	payload := jwtClaims{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   claims.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify はトークンの署名と有効期限を検証し、分類済みの結果を返す。
// 信頼できない入力に対してもpanicやエラーを返さない。
func (s *Service) Verify(tokenString string) Result {
	if tokenString == "" {
		return Result{Status: StatusInvalid}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	payload := &jwtClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, payload, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Result{Status: StatusExpired}
		}
		return Result{Status: StatusInvalid}
	}
	if !tok.Valid || payload.UserID == "" || payload.ID == "" {
		return Result{Status: StatusInvalid}
	}

	claims := &Claims{
		UserID:    payload.UserID,
		Email:     payload.Email,
		Role:      payload.Role,
		SessionID: payload.ID,
	}
	if payload.IssuedAt != nil {
		claims.IssuedAt = payload.IssuedAt.Time
	}
	if payload.ExpiresAt != nil {
		claims.ExpiresAt = payload.ExpiresAt.Time
	}
	return Result{Status: StatusValid, Claims: claims}
}
