package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/csaccess/internal/course"
	"github.com/hitoshi/csaccess/internal/middleware"
	"github.com/hitoshi/csaccess/internal/model"
)

// CourseServiceInterface はコースハンドラーが必要とするサービスインターフェース。
type CourseServiceInterface interface {
	ListCategories(ctx context.Context) ([]model.Category, error)
	ListCourses(ctx context.Context, filter model.CourseFilter) ([]model.Course, error)
	GetCourse(ctx context.Context, courseID, userID string) (*course.Detail, error)
	ListLessons(ctx context.Context, courseID string) ([]model.Lesson, error)
	Enroll(ctx context.Context, userID, courseID string) (*model.Enrollment, error)
	ListEnrollments(ctx context.Context, userID string) ([]model.EnrollmentWithCourse, error)
	CreateCourse(ctx context.Context, in course.CreateInput) (*model.Course, error)
}

// CourseHandler はコースカタログと受講登録のHTTPハンドラー。
type CourseHandler struct {
	service CourseServiceInterface
	errorWriter
}

// NewCourseHandler はCourseHandlerを生成する。
func NewCourseHandler(service CourseServiceInterface, production bool) *CourseHandler {
	return &CourseHandler{
		service:     service,
		errorWriter: errorWriter{production: production},
	}
}

// ListCategories はカテゴリ一覧を返す。
// GET /api/courses/meta/categories
func (h *CourseHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": orEmpty(categories)})
}

// ListCourses は公開中のコース一覧を返す。
// GET /api/courses?category=&difficulty=&search=&limit=
func (h *CourseHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.CourseFilter{
		Category:   q.Get("category"),
		Difficulty: q.Get("difficulty"),
		Search:     q.Get("search"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			middleware.WriteAPIError(w, model.NewValidationError(map[string]string{
				"limit": "must be a positive integer",
			}))
			return
		}
		filter.Limit = limit
	}

	courses, err := h.service.ListCourses(r.Context(), filter)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"courses": orEmpty(courses),
		"total":   len(courses),
		"filters": filter,
	})
}

// GetCourse はコース詳細を返す。認証済みの場合は受講状況を含める。
// GET /api/courses/{courseId}
func (h *CourseHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	// 任意認証のため、アイデンティティがなければ空のまま進める
	userID, _ := middleware.UserIDFromContext(r.Context())

	detail, err := h.service.GetCourse(r.Context(), chi.URLParam(r, "courseId"), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"course":     detail.Course,
		"lessons":    orEmpty(detail.Lessons),
		"enrollment": detail.Enrollment,
		"isEnrolled": detail.IsEnrolled(),
	})
}

// ListLessons はコースのレッスン一覧を返す。
// GET /api/courses/{courseId}/lessons
func (h *CourseHandler) ListLessons(w http.ResponseWriter, r *http.Request) {
	lessons, err := h.service.ListLessons(r.Context(), chi.URLParam(r, "courseId"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lessons": orEmpty(lessons),
		"total":   len(lessons),
	})
}

// Enroll は認証済みユーザーをコースに受講登録する。
// POST /api/courses/{courseId}/enroll
func (h *CourseHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewAuthRequiredError())
		return
	}

	enrollment, err := h.service.Enroll(r.Context(), userID, chi.URLParam(r, "courseId"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Successfully enrolled in course",
		"enrollment": map[string]any{
			"id":         enrollment.ID,
			"courseId":   enrollment.CourseID,
			"progress":   enrollment.Progress,
			"enrolledAt": enrollment.EnrolledAt,
		},
	})
}

// ListEnrollments は認証済みユーザーの受講登録一覧を返す。
// GET /api/courses/user/enrollments
func (h *CourseHandler) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewAuthRequiredError())
		return
	}

	enrollments, err := h.service.ListEnrollments(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enrollments": orEmpty(enrollments),
		"total":       len(enrollments),
	})
}

// CreateCourse はコースを作成する。管理者ロールが必要。
// POST /api/courses
func (h *CourseHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var in course.CreateInput
	if !decodeJSON(w, r, &in) {
		return
	}

	created, err := h.service.CreateCourse(r.Context(), in)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Course created successfully",
		"course":  created,
	})
}
