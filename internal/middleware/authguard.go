// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/csaccess/internal/metrics"
	"github.com/hitoshi/csaccess/internal/model"
	"github.com/hitoshi/csaccess/internal/token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// claimsContextKey はリクエストコンテキストに認証済みクレームを格納するためのキー。
var claimsContextKey = contextKey("claims")

// errNoIdentity はコンテキストに認証情報がない場合のエラー。
var errNoIdentity = errors.New("identity not found in context")

// ガード拒否理由（メトリクスのラベル）
const (
	RejectTokenRequired = "token_required"
	RejectTokenExpired  = "token_expired"
	RejectTokenInvalid  = "token_invalid"
	RejectTokenRevoked  = "token_revoked"
	RejectAuthRequired  = "auth_required"
	RejectForbidden     = "forbidden"
)

// TokenVerifier はトークンを検証するインターフェース。
type TokenVerifier interface {
	Verify(tokenString string) token.Result
}

// RevocationChecker はセッションが失効済みかどうかを判定するインターフェース。
// レコードが存在しない場合はfalseを返す。
type RevocationChecker interface {
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// AuthGuard はBearerトークンによるアクセス制御を行う。
type AuthGuard struct {
	verifier    TokenVerifier
	revocations RevocationChecker
	metrics     metrics.MetricsCollector
}

// NewAuthGuard はAuthGuardを生成する。
// revocationsがnilの場合、失効チェックは行わない。
func NewAuthGuard(verifier TokenVerifier, revocations RevocationChecker, collector metrics.MetricsCollector) *AuthGuard {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &AuthGuard{
		verifier:    verifier,
		revocations: revocations,
		metrics:     collector,
	}
}

// Required は有効なトークンを必須とするミドルウェアを返す。
// トークンなし・期限切れ・失効済みは401、署名不正・形式不正は403で拒否する。
func (g *AuthGuard) Required() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				g.reject(w, RejectTokenRequired, model.NewTokenRequiredError())
				return
			}

			result := g.verifier.Verify(raw)
			g.metrics.RecordTokenVerification(result.Status.String())

			switch result.Status {
			case token.StatusValid:
			case token.StatusExpired:
				g.reject(w, RejectTokenExpired, model.NewTokenExpiredError())
				return
			default:
				g.reject(w, RejectTokenInvalid, model.NewInvalidTokenError())
				return
			}

			if g.revoked(r.Context(), result.Claims) {
				g.reject(w, RejectTokenRevoked, model.NewTokenRevokedError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), result.Claims)))
		})
	}
}

// Optional はトークンが有効な場合のみクレームを注入し、それ以外は匿名のまま通過させるミドルウェアを返す。
func (g *AuthGuard) Optional() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			result := g.verifier.Verify(raw)
			g.metrics.RecordTokenVerification(result.Status.String())
			if result.Status != token.StatusValid {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), result.Claims)))
		})
	}
}

// RequireRole は指定ロールまたはadminロールのみ通過させるミドルウェアを返す。
// Required または Optional の後に配置する。
func (g *AuthGuard) RequireRole(role model.Role) func(next http.Handler) http.Handler {
	return g.requireRole(func(r model.Role) bool {
		return r == role || r == model.RoleAdmin
	}, "Insufficient permissions")
}

// RequireAdmin はadminロールのみ通過させるミドルウェアを返す。
func (g *AuthGuard) RequireAdmin() func(next http.Handler) http.Handler {
	return g.requireRole(func(r model.Role) bool {
		return r == model.RoleAdmin
	}, "Admin access required")
}

func (g *AuthGuard) requireRole(allowed func(model.Role) bool, message string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := ClaimsFromContext(r.Context())
			if err != nil {
				g.reject(w, RejectAuthRequired, model.NewAuthRequiredError())
				return
			}
			if !allowed(claims.Role) {
				slog.Warn("role check failed",
					slog.String("user_id", claims.UserID),
					slog.String("role", string(claims.Role)),
					slog.String("path", r.URL.Path),
				)
				g.reject(w, RejectForbidden, model.NewForbiddenError(message))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// revoked はセッションが失効済みかどうかを判定する。
// セッションレコードは監査用のため、ストアの障害時は失効していないものとして扱う。
func (g *AuthGuard) revoked(ctx context.Context, claims *token.Claims) bool {
	if g.revocations == nil {
		return false
	}
	revoked, err := g.revocations.IsRevoked(ctx, claims.SessionID)
	if err != nil {
		slog.Error("failed to check session revocation",
			slog.String("session_id", claims.SessionID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return revoked
}

func (g *AuthGuard) reject(w http.ResponseWriter, reason string, apiErr *model.APIError) {
	g.metrics.RecordGuardRejection(reason)
	WriteAPIError(w, apiErr)
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// スキーム名の大文字小文字は区別しない。
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, value, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// ContextWithClaims はコンテキストに認証済みクレームを注入する。
func ContextWithClaims(ctx context.Context, claims *token.Claims) context.Context {
	if claims != nil {
		noteUserID(ctx, claims.UserID)
	}
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext はリクエストコンテキストから認証済みクレームを取得する。
func ClaimsFromContext(ctx context.Context) (*token.Claims, error) {
	claims, ok := ctx.Value(claimsContextKey).(*token.Claims)
	if !ok || claims == nil {
		return nil, errNoIdentity
	}
	return claims, nil
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	claims, err := ClaimsFromContext(ctx)
	if err != nil || claims.UserID == "" {
		return "", errNoIdentity
	}
	return claims.UserID, nil
}
