// Package user はプロフィールとダッシュボードのドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/hitoshi/csaccess/internal/model"
	"github.com/hitoshi/csaccess/internal/repository"
)

// 取得件数
const (
	ProfileActivityLimit   = 5
	DashboardActivityLimit = 10
	InProgressLimit        = 5
)

// TextSanitizer は表示名からHTMLを除去するインターフェース。
type TextSanitizer interface {
	PlainText(in string) string
}

// ProfileInput はプロフィール更新の入力値。nilのフィールドは更新しない。
type ProfileInput struct {
	Name            *string `json:"name"`
	ProfileImageURL *string `json:"profile_image_url"`
}

// Validate はプロフィール更新入力を検証する。
func (in ProfileInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.NilOrNotEmpty, validation.RuneLength(2, 50)),
		validation.Field(&in.ProfileImageURL, is.URL, validation.RuneLength(0, 2048)),
	)
}

// Profile はプロフィール画面の集計値。
type Profile struct {
	Stats          *model.UserStats
	RecentActivity []model.Activity
}

// Dashboard はダッシュボード画面の集計値。
type Dashboard struct {
	Stats              *model.UserStats
	RecentActivity     []model.Activity
	CurrentEnrollments []model.EnrollmentWithCourse
}

// Progress はコースごとの学習進捗。
type Progress struct {
	Enrollment       *model.Enrollment
	LessonProgress   []model.LessonProgress
	TotalLessons     int
	CompletedLessons int
}

// Service はユーザー向け画面のサービス層。
type Service struct {
	userRepo       repository.UserRepository
	enrollmentRepo repository.EnrollmentRepository
	sanitizer      TextSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	enrollmentRepo repository.EnrollmentRepository,
	sanitizer TextSanitizer,
) *Service {
	return &Service{
		userRepo:       userRepo,
		enrollmentRepo: enrollmentRepo,
		sanitizer:      sanitizer,
	}
}

// Profile は受講状況の集計と直近のアクティビティを返す。
func (s *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	stats, err := s.enrollmentRepo.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}
	activity, err := s.enrollmentRepo.RecentActivity(ctx, userID, ProfileActivityLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent activity: %w", err)
	}
	return &Profile{Stats: stats, RecentActivity: activity}, nil
}

// UpdateProfile は指定されたフィールドのみ更新し、更新行数を返す。
// nameは指定された場合、空白のみやタグ除去後に空になる値も含めて長さを検証する。
// 更新対象がない場合はNO_FIELDS_TO_UPDATEを返す。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (int64, error) {
	if in.Name != nil {
		name := s.sanitizer.PlainText(*in.Name)
		in.Name = &name
	}
	if in.ProfileImageURL != nil {
		url := strings.TrimSpace(*in.ProfileImageURL)
		in.ProfileImageURL = &url
	}

	if err := in.Validate(); err != nil {
		if apiErr := model.FieldValidationError(err); apiErr != nil {
			return 0, apiErr
		}
		return 0, fmt.Errorf("failed to validate profile input: %w", err)
	}

	update := repository.ProfileUpdate{Name: in.Name, ProfileImageURL: in.ProfileImageURL}
	if update.Empty() {
		return 0, model.NewNoFieldsToUpdateError()
	}

	changes, err := s.userRepo.UpdateProfile(ctx, userID, update)
	if err != nil {
		return 0, fmt.Errorf("failed to update profile: %w", err)
	}
	if changes == 0 {
		return 0, model.NewNoFieldsToUpdateError()
	}

	slog.Info("profile updated",
		slog.String("user_id", userID),
		slog.Bool("name", update.Name != nil),
		slog.Bool("profile_image_url", update.ProfileImageURL != nil),
	)
	return changes, nil
}

// Dashboard は集計値、直近のアクティビティ、受講中のコースを返す。
func (s *Service) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	stats, err := s.enrollmentRepo.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}
	activity, err := s.enrollmentRepo.RecentActivity(ctx, userID, DashboardActivityLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent activity: %w", err)
	}
	current, err := s.enrollmentRepo.ListInProgress(ctx, userID, InProgressLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list current enrollments: %w", err)
	}
	return &Dashboard{
		Stats:              stats,
		RecentActivity:     activity,
		CurrentEnrollments: current,
	}, nil
}

// Progress はコースの受講登録とレッスンごとの進捗を返す。
// 受講登録がない場合はENROLLMENT_NOT_FOUNDを返す。
func (s *Service) Progress(ctx context.Context, userID, courseID string) (*Progress, error) {
	enrollment, err := s.enrollmentRepo.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to find enrollment: %w", err)
	}
	if enrollment == nil {
		return nil, model.NewEnrollmentNotFoundError()
	}

	lessons, err := s.enrollmentRepo.LessonProgress(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get lesson progress: %w", err)
	}

	completed := 0
	for _, lp := range lessons {
		if lp.Completed {
			completed++
		}
	}
	return &Progress{
		Enrollment:       enrollment,
		LessonProgress:   lessons,
		TotalLessons:     len(lessons),
		CompletedLessons: completed,
	}, nil
}
