// Package course はコースカタログと受講登録のドメインロジックを提供する。
package course

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"

	"github.com/hitoshi/csaccess/internal/database"
	"github.com/hitoshi/csaccess/internal/model"
	"github.com/hitoshi/csaccess/internal/repository"
)

// 入力値の制約
const (
	MaxListLimit = 100 // コース一覧で指定できる件数の上限
	MaxTags      = 20
	MaxTagLength = 50
)

// Sanitizer はユーザー入力のテキストを無害化するインターフェース。
type Sanitizer interface {
	PlainText(in string) string
	RichText(in string) string
}

// Detail はコース詳細と、認証済みの場合の受講状況。
type Detail struct {
	Course     *model.Course
	Lessons    []model.Lesson
	Enrollment *model.Enrollment
}

// IsEnrolled は受講登録済みかどうかを返す。
func (d *Detail) IsEnrolled() bool {
	return d.Enrollment != nil
}

// CreateInput は管理者によるコース作成の入力値。
type CreateInput struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	InstructorID string   `json:"instructor_id"`
	CategoryID   string   `json:"category_id"`
	Difficulty   string   `json:"difficulty"`
	Duration     int      `json:"duration"`
	ImageURL     string   `json:"image_url"`
	Tags         []string `json:"tags"`
	Price        float64  `json:"price"`
	IsPublished  bool     `json:"is_published"`
}

// Validate はコース作成入力を検証する。
func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.RuneLength(3, 200)),
		validation.Field(&in.Description, validation.Required, validation.RuneLength(1, 5000)),
		validation.Field(&in.InstructorID, validation.Required, is.UUID),
		validation.Field(&in.CategoryID, validation.Required, is.UUID),
		validation.Field(&in.Difficulty, validation.Required, validation.In(
			string(model.DifficultyBeginner), string(model.DifficultyIntermediate), string(model.DifficultyAdvanced),
		)),
		validation.Field(&in.Duration, validation.Min(0)),
		validation.Field(&in.ImageURL, is.URL),
		validation.Field(&in.Tags, validation.Length(0, MaxTags), validation.By(validTags)),
		validation.Field(&in.Price, validation.Min(0.0)),
	)
}

// validTags は各タグが空でなくMaxTagLength文字以内であることを検証する。
func validTags(value any) error {
	tags, _ := value.([]string)
	for _, tag := range tags {
		if n := utf8.RuneCountInString(tag); n == 0 || n > MaxTagLength {
			return fmt.Errorf("each tag must be between 1 and %d characters", MaxTagLength)
		}
	}
	return nil
}

// Service はコースカタログと受講登録のサービス層。
type Service struct {
	courses     repository.CourseRepository
	enrollments repository.EnrollmentRepository
	sanitizer   Sanitizer
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(courses repository.CourseRepository, enrollments repository.EnrollmentRepository, sanitizer Sanitizer) *Service {
	return &Service{
		courses:     courses,
		enrollments: enrollments,
		sanitizer:   sanitizer,
		now:         time.Now,
	}
}

// ListCategories はカテゴリ一覧を返す。
func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	categories, err := s.courses.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// ListCourses は公開中のコースを絞り込み条件で検索する。
func (s *Service) ListCourses(ctx context.Context, filter model.CourseFilter) ([]model.Course, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Category = strings.TrimSpace(filter.Category)

	details := map[string]string{}
	if filter.Difficulty != "" && !model.Difficulty(filter.Difficulty).Valid() {
		details["difficulty"] = "must be one of beginner, intermediate, advanced"
	}
	if filter.Limit < 0 || filter.Limit > MaxListLimit {
		details["limit"] = fmt.Sprintf("must be between 1 and %d", MaxListLimit)
	}
	if len(details) > 0 {
		return nil, model.NewValidationError(details)
	}

	courses, err := s.courses.ListPublished(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	return courses, nil
}

// GetCourse はコース詳細を取得する。userIDが空でない場合は受講状況も含める。
func (s *Service) GetCourse(ctx context.Context, courseID, userID string) (*Detail, error) {
	course, err := s.findCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	lessons, err := s.courses.ListLessons(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons: %w", err)
	}

	detail := &Detail{Course: course, Lessons: lessons}
	if userID != "" {
		enrollment, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID)
		if err != nil {
			return nil, fmt.Errorf("failed to find enrollment: %w", err)
		}
		detail.Enrollment = enrollment
	}
	return detail, nil
}

// ListLessons はコースのレッスン一覧を返す。
func (s *Service) ListLessons(ctx context.Context, courseID string) ([]model.Lesson, error) {
	if _, err := s.findCourse(ctx, courseID); err != nil {
		return nil, err
	}
	lessons, err := s.courses.ListLessons(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons: %w", err)
	}
	return lessons, nil
}

// Enroll はユーザーをコースに受講登録する。
// 未公開・存在しないコースはCOURSE_NOT_FOUND、登録済みはALREADY_ENROLLEDを返す。
func (s *Service) Enroll(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
	if _, err := s.findCourse(ctx, courseID); err != nil {
		return nil, err
	}

	existing, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to find enrollment: %w", err)
	}
	if existing != nil {
		return nil, model.NewAlreadyEnrolledError()
	}

	now := s.now()
	enrollment := &model.Enrollment{
		ID:           uuid.NewString(),
		UserID:       userID,
		CourseID:     courseID,
		Progress:     0,
		EnrolledAt:   now,
		LastAccessed: &now,
	}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, model.NewAlreadyEnrolledError()
		}
		return nil, fmt.Errorf("failed to create enrollment: %w", err)
	}

	slog.Info("user enrolled in course",
		slog.String("user_id", userID),
		slog.String("course_id", courseID),
	)
	return enrollment, nil
}

// ListEnrollments はユーザーの受講登録一覧を返す。
func (s *Service) ListEnrollments(ctx context.Context, userID string) ([]model.EnrollmentWithCourse, error) {
	enrollments, err := s.enrollments.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	return enrollments, nil
}

// CreateCourse はコースを作成する。タイトルはタグを除去し、説明文は許可リストのHTMLのみ残す。
// 講師・カテゴリが存在しない場合は外部キー制約違反のエラーがそのまま返る。
func (s *Service) CreateCourse(ctx context.Context, in CreateInput) (*model.Course, error) {
	in.Title = s.sanitizer.PlainText(in.Title)
	in.Description = strings.TrimSpace(s.sanitizer.RichText(in.Description))
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	tags := make([]string, 0, len(in.Tags))
	for _, tag := range in.Tags {
		tags = append(tags, s.sanitizer.PlainText(tag))
	}
	in.Tags = tags

	if err := in.Validate(); err != nil {
		if apiErr := model.FieldValidationError(err); apiErr != nil {
			return nil, apiErr
		}
		return nil, fmt.Errorf("failed to validate course input: %w", err)
	}

	now := s.now()
	course := &model.Course{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Description:  in.Description,
		InstructorID: in.InstructorID,
		CategoryID:   in.CategoryID,
		Difficulty:   model.Difficulty(in.Difficulty),
		Duration:     in.Duration,
		ImageURL:     in.ImageURL,
		Tags:         tags,
		IsPublished:  in.IsPublished,
		Price:        in.Price,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, fmt.Errorf("failed to create course: %w", err)
	}

	slog.Info("course created",
		slog.String("course_id", course.ID),
		slog.Bool("is_published", course.IsPublished),
	)
	return course, nil
}

func (s *Service) findCourse(ctx context.Context, courseID string) (*model.Course, error) {
	course, err := s.courses.FindPublishedByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to find course: %w", err)
	}
	if course == nil {
		return nil, model.NewCourseNotFoundError()
	}
	return course, nil
}
