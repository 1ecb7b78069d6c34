package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/csaccess/internal/middleware"
	"github.com/hitoshi/csaccess/internal/model"
	"github.com/hitoshi/csaccess/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Profile(ctx context.Context, userID string) (*user.Profile, error)
	// UpdateProfile は変更された行数を返す。
	UpdateProfile(ctx context.Context, userID string, in user.ProfileInput) (int64, error)
	Dashboard(ctx context.Context, userID string) (*user.Dashboard, error)
	Progress(ctx context.Context, userID, courseID string) (*user.Progress, error)
}

// UserHandler はプロフィール・ダッシュボードのHTTPハンドラー。
// 全てのルートで必須認証を前提とする。
type UserHandler struct {
	service UserServiceInterface
	errorWriter
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, production bool) *UserHandler {
	return &UserHandler{
		service:     service,
		errorWriter: errorWriter{production: production},
	}
}

// Profile は受講状況の集計と直近のアクティビティを返す。
// GET /api/users/profile
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewAuthRequiredError())
		return
	}

	profile, err := h.service.Profile(r.Context(), claims.UserID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":           tokenUser{ID: claims.UserID, Email: claims.Email, Role: claims.Role},
		"stats":          profile.Stats,
		"recentActivity": orEmpty(profile.RecentActivity),
	})
}

// UpdateProfile は表示名・プロフィール画像URLを更新する。
// PUT /api/users/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewAuthRequiredError())
		return
	}

	var in user.ProfileInput
	if !decodeJSON(w, r, &in) {
		return
	}

	changes, err := h.service.UpdateProfile(r.Context(), userID, in)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Profile updated successfully",
		"changes": changes,
	})
}

// Dashboard はダッシュボード表示用の集計値を返す。
// GET /api/users/dashboard
func (h *UserHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewAuthRequiredError())
		return
	}

	dashboard, err := h.service.Dashboard(r.Context(), claims.UserID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stats":              dashboard.Stats,
		"recentActivity":     orEmpty(dashboard.RecentActivity),
		"currentEnrollments": orEmpty(dashboard.CurrentEnrollments),
		"user":               tokenUser{ID: claims.UserID, Email: claims.Email, Role: claims.Role},
	})
}

// Progress はコースの受講登録とレッスンごとの進捗を返す。
// GET /api/users/progress/{courseId}
func (h *UserHandler) Progress(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewAuthRequiredError())
		return
	}

	progress, err := h.service.Progress(r.Context(), userID, chi.URLParam(r, "courseId"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"enrollment":       progress.Enrollment,
		"lessonProgress":   orEmpty(progress.LessonProgress),
		"totalLessons":     progress.TotalLessons,
		"completedLessons": progress.CompletedLessons,
	})
}
