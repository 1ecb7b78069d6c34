// Package auth はメールアドレスとパスワードによる登録・ログイン、
// トークン発行とセッションレコードの記録を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/csaccess/internal/database"
	"github.com/hitoshi/csaccess/internal/metrics"
	"github.com/hitoshi/csaccess/internal/model"
	"github.com/hitoshi/csaccess/internal/repository"
	"github.com/hitoshi/csaccess/internal/security"
	"github.com/hitoshi/csaccess/internal/token"
)

// TokenIssuer はトークンを発行するインターフェース。
type TokenIssuer interface {
	Issue(claims token.Claims, ttl time.Duration) (string, time.Time, error)
}

// PasswordHasher はパスワードのハッシュと照合を行うインターフェース。
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
	CompareDummy(password string)
}

// TextSanitizer は表示名からHTMLを除去するインターフェース。
type TextSanitizer interface {
	PlainText(in string) string
}

// Origin はリクエスト元の情報。セッションレコードに記録される。
type Origin struct {
	IPAddress string
	UserAgent string
}

// Result は登録・ログイン成功時の結果。
type Result struct {
	User      model.PublicUser
	Token     string
	ExpiresAt time.Time
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	TokenTTL time.Duration
	// Now は現在時刻を返す。nilの場合はtime.Nowを使用する。
	Now func() time.Time
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users     repository.UserRepository
	sessions  repository.SessionRepository
	tokens    TokenIssuer
	hasher    PasswordHasher
	sanitizer TextSanitizer
	metrics   metrics.MetricsCollector
	config    ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens TokenIssuer,
	hasher PasswordHasher,
	sanitizer TextSanitizer,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if config.Now == nil {
		config.Now = time.Now
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		hasher:    hasher,
		sanitizer: sanitizer,
		metrics:   collector,
		config:    config,
	}
}

// Register はユーザーを登録し、トークンを発行する。
// 入力不正はバリデーションエラー、メールアドレス重複はUSER_EXISTSを返し、いずれも状態を変更しない。
func (s *Service) Register(ctx context.Context, in RegisterInput, origin Origin) (*Result, error) {
	in.Email = NormalizeEmail(in.Email)
	// 長さの検証はタグ除去後のプレーンテキストに対して行う
	in.Name = s.sanitizer.PlainText(in.Name)

	if err := in.Validate(); err != nil {
		s.metrics.RecordAuthAttempt(metrics.OperationRegister, metrics.OutcomeInvalid)
		if apiErr := model.FieldValidationError(err); apiErr != nil {
			return nil, apiErr
		}
		return nil, fmt.Errorf("failed to validate register input: %w", err)
	}

	existing, err := s.users.FindActiveByEmail(ctx, in.Email)
	if err != nil {
		s.metrics.RecordAuthAttempt(metrics.OperationRegister, metrics.OutcomeError)
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		s.metrics.RecordAuthAttempt(metrics.OperationRegister, metrics.OutcomeConflict)
		return nil, model.NewUserExistsError()
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.metrics.RecordAuthAttempt(metrics.OperationRegister, metrics.OutcomeError)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.config.Now()
	user := &model.User{
		ID:            uuid.NewString(),
		Email:         in.Email,
		Name:          in.Name,
		PasswordHash:  hash,
		Role:          model.RoleUser,
		EmailVerified: false,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// 同時登録は一意制約で決着する
		if database.IsUniqueViolation(err) {
			s.metrics.RecordAuthAttempt(metrics.OperationRegister, metrics.OutcomeConflict)
			return nil, model.NewUserExistsError()
		}
		s.metrics.RecordAuthAttempt(metrics.OperationRegister, metrics.OutcomeError)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	result, err := s.startSession(ctx, user, origin)
	if err != nil {
		s.metrics.RecordAuthAttempt(metrics.OperationRegister, metrics.OutcomeError)
		return nil, err
	}

	s.metrics.RecordAuthAttempt(metrics.OperationRegister, metrics.OutcomeSuccess)
	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return result, nil
}

// Login はメールアドレスとパスワードで認証し、トークンを発行する。
// ユーザー不在・無効化・パスワード不一致は同一のINVALID_CREDENTIALSを返す。
func (s *Service) Login(ctx context.Context, in LoginInput, origin Origin) (*Result, error) {
	in.Email = NormalizeEmail(in.Email)

	if err := in.Validate(); err != nil {
		s.metrics.RecordAuthAttempt(metrics.OperationLogin, metrics.OutcomeInvalid)
		if apiErr := model.FieldValidationError(err); apiErr != nil {
			return nil, apiErr
		}
		return nil, fmt.Errorf("failed to validate login input: %w", err)
	}

	user, err := s.users.FindActiveByEmail(ctx, in.Email)
	if err != nil {
		s.metrics.RecordAuthAttempt(metrics.OperationLogin, metrics.OutcomeError)
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		// 照合コストを揃えるため、存在しない場合もハッシュ照合を1回行う
		s.hasher.CompareDummy(in.Password)
		s.metrics.RecordAuthAttempt(metrics.OperationLogin, metrics.OutcomeFailure)
		slog.Warn("login failed", slog.String("reason", "unknown_email"))
		return nil, model.NewInvalidCredentialsError()
	}

	if err := s.hasher.Compare(user.PasswordHash, in.Password); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			s.metrics.RecordAuthAttempt(metrics.OperationLogin, metrics.OutcomeFailure)
			slog.Warn("login failed",
				slog.String("user_id", user.ID),
				slog.String("reason", "password_mismatch"),
			)
			return nil, model.NewInvalidCredentialsError()
		}
		s.metrics.RecordAuthAttempt(metrics.OperationLogin, metrics.OutcomeError)
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}

	result, err := s.startSession(ctx, user, origin)
	if err != nil {
		s.metrics.RecordAuthAttempt(metrics.OperationLogin, metrics.OutcomeError)
		return nil, err
	}

	s.metrics.RecordAuthAttempt(metrics.OperationLogin, metrics.OutcomeSuccess)
	slog.Info("user logged in", slog.String("user_id", user.ID))
	return result, nil
}

// Logout はトークンに対応するセッションレコードを失効済みにする。
// レコードが存在しない、または失効済みの場合もエラーにしない。
func (s *Service) Logout(ctx context.Context, claims *token.Claims) error {
	if claims == nil || claims.SessionID == "" {
		return model.NewAuthRequiredError()
	}

	revoked, err := s.sessions.Revoke(ctx, claims.SessionID, s.config.Now())
	if err != nil {
		s.metrics.RecordAuthAttempt(metrics.OperationLogout, metrics.OutcomeError)
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	s.metrics.RecordAuthAttempt(metrics.OperationLogout, metrics.OutcomeSuccess)
	slog.Info("user logged out",
		slog.String("user_id", claims.UserID),
		slog.String("session_id", claims.SessionID),
		slog.Bool("revoked", revoked),
	)
	return nil
}

// CurrentUser は指定IDの有効なユーザーの公開情報を返す。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.PublicUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, model.NewUserNotFoundError()
	}
	public := user.Public()
	return &public, nil
}

// startSession はトークンを発行し、セッションレコードを記録して最終ログイン日時を更新する。
// 各ステップはトランザクションで囲まない。セッションレコードはトークンの有効性に影響しない。
func (s *Service) startSession(ctx context.Context, user *model.User, origin Origin) (*Result, error) {
	sessionID := uuid.NewString()

	signed, expiresAt, err := s.tokens.Issue(token.Claims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		SessionID: sessionID,
	}, s.config.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	now := s.config.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    user.ID,
		TokenHash: security.TokenFingerprint(signed),
		ExpiresAt: expiresAt,
		IPAddress: origin.IPAddress,
		UserAgent: origin.UserAgent,
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to record session: %w", err)
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to update last login: %w", err)
	}
	user.LastLogin = &now

	return &Result{
		User:      user.Public(),
		Token:     signed,
		ExpiresAt: expiresAt,
	}, nil
}
