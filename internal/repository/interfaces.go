// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/csaccess/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindActiveByEmail は正規化済みメールアドレスで有効なユーザーを検索する。
	// 見つからない場合、または無効化されている場合はnilを返す。
	FindActiveByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレス重複時は一意制約違反のエラーを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateLastLogin は最終ログイン日時を更新する。
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// UpdateProfile は指定されたフィールドのみ更新し、更新行数を返す。
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (int64, error)
}

// ProfileUpdate はプロフィール更新の対象フィールド。nilのフィールドは更新しない。
type ProfileUpdate struct {
	Name            *string
	ProfileImageURL *string
}

// Empty は更新対象のフィールドがないかどうかを返す。
func (u ProfileUpdate) Empty() bool {
	return u.Name == nil && u.ProfileImageURL == nil
}

// SessionRepository は発行済みセッションレコードの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションレコードを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。失効済み・期限切れでも返す。
	// 見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// Revoke はセッションを失効済みにする。
	// 未失効のレコードを更新した場合にtrueを返す。
	Revoke(ctx context.Context, id string, at time.Time) (bool, error)

	// DeleteExpired はbefore以前に期限切れとなったセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// CourseRepository はコースカタログの永続化インターフェース。
type CourseRepository interface {
	// ListCategories はカテゴリを名前順で返す。
	ListCategories(ctx context.Context) ([]model.Category, error)

	// ListPublished は公開中のコースを作成日時の降順で返す。
	ListPublished(ctx context.Context, filter model.CourseFilter) ([]model.Course, error)

	// FindPublishedByID は公開中のコースを講師・カテゴリ情報付きで取得する。
	// 見つからない場合はnilを返す。
	FindPublishedByID(ctx context.Context, id string) (*model.Course, error)

	// ListLessons はコースのレッスンをorder_index順で返す。
	ListLessons(ctx context.Context, courseID string) ([]model.Lesson, error)

	// Create はコースを作成する。講師・カテゴリが存在しない場合は外部キー制約違反のエラーを返す。
	Create(ctx context.Context, course *model.Course) error
}

// EnrollmentRepository は受講登録と学習進捗の永続化インターフェース。
type EnrollmentRepository interface {
	// FindByUserAndCourse はユーザーとコースの受講登録を取得する。見つからない場合はnilを返す。
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*model.Enrollment, error)

	// Create は受講登録を作成する。登録済みの場合は一意制約違反のエラーを返す。
	Create(ctx context.Context, enrollment *model.Enrollment) error

	// ListByUser はユーザーの受講登録をコース情報付きで登録日時の降順に返す。
	ListByUser(ctx context.Context, userID string) ([]model.EnrollmentWithCourse, error)

	// ListInProgress は未完了の受講登録を最終アクセス日時の降順でlimit件返す。
	ListInProgress(ctx context.Context, userID string, limit int) ([]model.EnrollmentWithCourse, error)

	// Stats はユーザーの受講状況を集計する。
	Stats(ctx context.Context, userID string) (*model.UserStats, error)

	// RecentActivity は受講登録とレッスン完了のアクティビティを新しい順にlimit件返す。
	RecentActivity(ctx context.Context, userID string, limit int) ([]model.Activity, error)

	// LessonProgress はコース内のレッスン進捗をorder_index順で返す。
	LessonProgress(ctx context.Context, userID, courseID string) ([]model.LessonProgress, error)
}
