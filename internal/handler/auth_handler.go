package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/csaccess/internal/auth"
	"github.com/hitoshi/csaccess/internal/middleware"
	"github.com/hitoshi/csaccess/internal/model"
	"github.com/hitoshi/csaccess/internal/token"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput, origin auth.Origin) (*auth.Result, error)
	Login(ctx context.Context, in auth.LoginInput, origin auth.Origin) (*auth.Result, error)
	Logout(ctx context.Context, claims *token.Claims) error
	CurrentUser(ctx context.Context, userID string) (*model.PublicUser, error)
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	errorWriter
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, production bool) *AuthHandler {
	return &AuthHandler{
		service:     service,
		errorWriter: errorWriter{production: production},
	}
}

type registeredUser struct {
	ID    string     `json:"id"`
	Email string     `json:"email"`
	Name  string     `json:"name"`
	Role  model.Role `json:"role"`
}

type loggedInUser struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	Role            model.Role `json:"role"`
	ProfileImageURL string     `json:"profile_image_url"`
}

type tokenUser struct {
	ID    string     `json:"id"`
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
}

// Register はユーザー登録を行い、トークンを返す。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if !decodeJSON(w, r, &in) {
		return
	}

	result, err := h.service.Register(r.Context(), in, originOf(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user": registeredUser{
			ID:    result.User.ID,
			Email: result.User.Email,
			Name:  result.User.Name,
			Role:  result.User.Role,
		},
		"token": result.Token,
	})
}

// Login はメールアドレスとパスワードで認証し、トークンを返す。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in auth.LoginInput
	if !decodeJSON(w, r, &in) {
		return
	}

	result, err := h.service.Login(r.Context(), in, originOf(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user": loggedInUser{
			ID:              result.User.ID,
			Email:           result.User.Email,
			Name:            result.User.Name,
			Role:            result.User.Role,
			ProfileImageURL: result.User.ProfileImageURL,
		},
		"token": result.Token,
	})
}

// Me は認証済みユーザーの情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewAuthRequiredError())
		return
	}

	user, err := h.service.CurrentUser(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// Logout はトークンに対応するセッションを失効させる。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewAuthRequiredError())
		return
	}

	if err := h.service.Logout(r.Context(), claims); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

// Verify はトークンが有効であることを確認し、埋め込まれたアイデンティティを返す。
// GET /api/auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewAuthRequiredError())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"user": tokenUser{
			ID:    claims.UserID,
			Email: claims.Email,
			Role:  claims.Role,
		},
	})
}

// originOf はセッションレコードに記録するリクエスト元情報を返す。
func originOf(r *http.Request) auth.Origin {
	return auth.Origin{
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}
