package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/csaccess/internal/auth"
	"github.com/hitoshi/csaccess/internal/course"
	"github.com/hitoshi/csaccess/internal/middleware"
	"github.com/hitoshi/csaccess/internal/model"
	"github.com/hitoshi/csaccess/internal/token"
	"github.com/hitoshi/csaccess/internal/user"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn    func(ctx context.Context, in auth.RegisterInput, origin auth.Origin) (*auth.Result, error)
	loginFn       func(ctx context.Context, in auth.LoginInput, origin auth.Origin) (*auth.Result, error)
	logoutFn      func(ctx context.Context, claims *token.Claims) error
	currentUserFn func(ctx context.Context, userID string) (*model.PublicUser, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput, origin auth.Origin) (*auth.Result, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in, origin)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, in auth.LoginInput, origin auth.Origin) (*auth.Result, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, in, origin)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, claims *token.Claims) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, claims)
	}
	return nil
}

func (m *mockAuthService) CurrentUser(ctx context.Context, userID string) (*model.PublicUser, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, userID)
	}
	return nil, nil
}

type mockCourseService struct {
	listCategoriesFn  func(ctx context.Context) ([]model.Category, error)
	listCoursesFn     func(ctx context.Context, filter model.CourseFilter) ([]model.Course, error)
	getCourseFn       func(ctx context.Context, courseID, userID string) (*course.Detail, error)
	listLessonsFn     func(ctx context.Context, courseID string) ([]model.Lesson, error)
	enrollFn          func(ctx context.Context, userID, courseID string) (*model.Enrollment, error)
	listEnrollmentsFn func(ctx context.Context, userID string) ([]model.EnrollmentWithCourse, error)
	createCourseFn    func(ctx context.Context, in course.CreateInput) (*model.Course, error)
}

func (m *mockCourseService) ListCategories(ctx context.Context) ([]model.Category, error) {
	if m.listCategoriesFn != nil {
		return m.listCategoriesFn(ctx)
	}
	return nil, nil
}

func (m *mockCourseService) ListCourses(ctx context.Context, filter model.CourseFilter) ([]model.Course, error) {
	if m.listCoursesFn != nil {
		return m.listCoursesFn(ctx, filter)
	}
	return nil, nil
}

func (m *mockCourseService) GetCourse(ctx context.Context, courseID, userID string) (*course.Detail, error) {
	if m.getCourseFn != nil {
		return m.getCourseFn(ctx, courseID, userID)
	}
	return &course.Detail{Course: &model.Course{ID: courseID}}, nil
}

func (m *mockCourseService) ListLessons(ctx context.Context, courseID string) ([]model.Lesson, error) {
	if m.listLessonsFn != nil {
		return m.listLessonsFn(ctx, courseID)
	}
	return nil, nil
}

func (m *mockCourseService) Enroll(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
	if m.enrollFn != nil {
		return m.enrollFn(ctx, userID, courseID)
	}
	return &model.Enrollment{ID: "enrollment-1", UserID: userID, CourseID: courseID}, nil
}

func (m *mockCourseService) ListEnrollments(ctx context.Context, userID string) ([]model.EnrollmentWithCourse, error) {
	if m.listEnrollmentsFn != nil {
		return m.listEnrollmentsFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockCourseService) CreateCourse(ctx context.Context, in course.CreateInput) (*model.Course, error) {
	if m.createCourseFn != nil {
		return m.createCourseFn(ctx, in)
	}
	return &model.Course{ID: "course-new", Title: in.Title}, nil
}

type mockUserService struct {
	profileFn       func(ctx context.Context, userID string) (*user.Profile, error)
	updateProfileFn func(ctx context.Context, userID string, in user.ProfileInput) (int64, error)
	dashboardFn     func(ctx context.Context, userID string) (*user.Dashboard, error)
	progressFn      func(ctx context.Context, userID, courseID string) (*user.Progress, error)
}

func (m *mockUserService) Profile(ctx context.Context, userID string) (*user.Profile, error) {
	if m.profileFn != nil {
		return m.profileFn(ctx, userID)
	}
	return &user.Profile{Stats: &model.UserStats{}}, nil
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID string, in user.ProfileInput) (int64, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, in)
	}
	return 1, nil
}

func (m *mockUserService) Dashboard(ctx context.Context, userID string) (*user.Dashboard, error) {
	if m.dashboardFn != nil {
		return m.dashboardFn(ctx, userID)
	}
	return &user.Dashboard{Stats: &model.UserStats{}}, nil
}

func (m *mockUserService) Progress(ctx context.Context, userID, courseID string) (*user.Progress, error) {
	if m.progressFn != nil {
		return m.progressFn(ctx, userID, courseID)
	}
	return &user.Progress{Enrollment: &model.Enrollment{UserID: userID, CourseID: courseID}}, nil
}

// --- テストヘルパー ---

var testClaims = &token.Claims{
	UserID:    "user-123",
	Email:     "learner@example.com",
	Role:      model.RoleUser,
	SessionID: "session-123",
	IssuedAt:  time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
	ExpiresAt: time.Date(2026, 4, 8, 10, 0, 0, 0, time.UTC),
}

// withClaims はガード通過後と同じ状態のリクエストを返す。
func withClaims(r *http.Request, claims *token.Claims) *http.Request {
	return r.WithContext(middleware.ContextWithClaims(r.Context(), claims))
}

func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if w.Code != wantStatus {
		t.Errorf("status = %d, want %d (body: %s)", w.Code, wantStatus, w.Body.String())
	}
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Code != wantCode {
		t.Errorf("code = %q, want %q", body.Code, wantCode)
	}
}
