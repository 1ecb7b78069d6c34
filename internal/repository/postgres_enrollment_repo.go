package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/csaccess/internal/model"
)

// PostgresEnrollmentRepo はPostgreSQLを使用した受講登録のリポジトリ。
type PostgresEnrollmentRepo struct {
	db *sql.DB
}

// NewPostgresEnrollmentRepo はPostgresEnrollmentRepoを生成する。
func NewPostgresEnrollmentRepo(db *sql.DB) *PostgresEnrollmentRepo {
	return &PostgresEnrollmentRepo{db: db}
}

// FindByUserAndCourse はユーザーとコースの受講登録を取得する。見つからない場合はnilを返す。
func (r *PostgresEnrollmentRepo) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
	if !validID(userID) || !validID(courseID) {
		return nil, nil
	}
	var e model.Enrollment
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, course_id, progress, enrolled_at, completed_at, last_accessed
		 FROM enrollments
		 WHERE user_id = $1 AND course_id = $2`,
		userID, courseID,
	).Scan(&e.ID, &e.UserID, &e.CourseID, &e.Progress, &e.EnrolledAt, &e.CompletedAt, &e.LastAccessed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find enrollment: %w", err)
	}
	return &e, nil
}

// Create は受講登録を作成する。
func (r *PostgresEnrollmentRepo) Create(ctx context.Context, e *model.Enrollment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO enrollments (id, user_id, course_id, progress, enrolled_at, last_accessed)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.UserID, e.CourseID, e.Progress, e.EnrolledAt, e.LastAccessed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert enrollment: %w", err)
	}
	return nil
}

const enrollmentWithCourseQuery = `
	SELECT e.id, e.user_id, e.course_id, e.progress, e.enrolled_at, e.completed_at, e.last_accessed,
		c.title, c.description, c.difficulty, c.duration, c.image_url,
		i.name, cat.name, cat.color
	FROM enrollments e
	JOIN courses c ON e.course_id = c.id
	JOIN instructors i ON c.instructor_id = i.id
	JOIN categories cat ON c.category_id = cat.id
	WHERE e.user_id = $1`

// ListByUser はユーザーの受講登録をコース情報付きで登録日時の降順に返す。
func (r *PostgresEnrollmentRepo) ListByUser(ctx context.Context, userID string) ([]model.EnrollmentWithCourse, error) {
	if !validID(userID) {
		return []model.EnrollmentWithCourse{}, nil
	}
	return r.queryEnrollments(ctx, enrollmentWithCourseQuery+` ORDER BY e.enrolled_at DESC`, userID)
}

// ListInProgress は未完了の受講登録を最終アクセス日時の降順でlimit件返す。
func (r *PostgresEnrollmentRepo) ListInProgress(ctx context.Context, userID string, limit int) ([]model.EnrollmentWithCourse, error) {
	if !validID(userID) {
		return []model.EnrollmentWithCourse{}, nil
	}
	return r.queryEnrollments(ctx,
		enrollmentWithCourseQuery+` AND e.completed_at IS NULL ORDER BY e.last_accessed DESC NULLS LAST LIMIT $2`,
		userID, limit,
	)
}

func (r *PostgresEnrollmentRepo) queryEnrollments(ctx context.Context, query string, args ...any) ([]model.EnrollmentWithCourse, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	out := []model.EnrollmentWithCourse{}
	for rows.Next() {
		var e model.EnrollmentWithCourse
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.CourseID, &e.Progress, &e.EnrolledAt, &e.CompletedAt, &e.LastAccessed,
			&e.CourseTitle, &e.CourseDescription, &e.CourseDifficulty, &e.CourseDuration, &e.CourseImageURL,
			&e.InstructorName, &e.CategoryName, &e.CategoryColor,
		); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate enrollments: %w", err)
	}
	return out, nil
}

// Stats はユーザーの受講状況を集計する。
func (r *PostgresEnrollmentRepo) Stats(ctx context.Context, userID string) (*model.UserStats, error) {
	stats := &model.UserStats{}
	if !validID(userID) {
		return stats, nil
	}
	err := r.db.QueryRowContext(ctx,
		`SELECT
			COUNT(id),
			COUNT(completed_at),
			COALESCE(AVG(progress), 0),
			MAX(last_accessed)
		 FROM enrollments
		 WHERE user_id = $1`,
		userID,
	).Scan(&stats.TotalEnrollments, &stats.CompletedCourses, &stats.AverageProgress, &stats.LastCourseAccess)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate enrollment stats: %w", err)
	}
	return stats, nil
}

// RecentActivity は受講登録とレッスン完了のアクティビティを新しい順にlimit件返す。
func (r *PostgresEnrollmentRepo) RecentActivity(ctx context.Context, userID string, limit int) ([]model.Activity, error) {
	activities := []model.Activity{}
	if !validID(userID) {
		return activities, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT activity_type, course_title, course_id, activity_date, description FROM (
			SELECT 'enrollment' AS activity_type, c.title AS course_title, c.id AS course_id,
				e.enrolled_at AS activity_date, 'Enrolled in course' AS description
			FROM enrollments e
			JOIN courses c ON e.course_id = c.id
			WHERE e.user_id = $1

			UNION ALL

			SELECT 'lesson_progress', c.title, c.id,
				lp.completed_at, 'Completed lesson: ' || l.title
			FROM lesson_progress lp
			JOIN lessons l ON lp.lesson_id = l.id
			JOIN courses c ON l.course_id = c.id
			WHERE lp.user_id = $1 AND lp.completed = TRUE
		) activity
		ORDER BY activity_date DESC NULLS LAST
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent activity: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a model.Activity
		if err := rows.Scan(&a.ActivityType, &a.CourseTitle, &a.CourseID, &a.ActivityDate, &a.Description); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity: %w", err)
	}
	return activities, nil
}

// LessonProgress はコース内のレッスン進捗をorder_index順で返す。
func (r *PostgresEnrollmentRepo) LessonProgress(ctx context.Context, userID, courseID string) ([]model.LessonProgress, error) {
	progress := []model.LessonProgress{}
	if !validID(userID) || !validID(courseID) {
		return progress, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT lp.id, lp.user_id, lp.lesson_id, lp.completed, lp.completed_at, lp.time_spent,
			l.title, l.order_index, l.duration
		 FROM lesson_progress lp
		 JOIN lessons l ON lp.lesson_id = l.id
		 WHERE lp.user_id = $1 AND l.course_id = $2
		 ORDER BY l.order_index ASC`,
		userID, courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list lesson progress: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p model.LessonProgress
		if err := rows.Scan(&p.ID, &p.UserID, &p.LessonID, &p.Completed, &p.CompletedAt, &p.TimeSpent,
			&p.LessonTitle, &p.OrderIndex, &p.Duration); err != nil {
			return nil, fmt.Errorf("failed to scan lesson progress: %w", err)
		}
		progress = append(progress, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lesson progress: %w", err)
	}
	return progress, nil
}

// compile-time interface check
var _ EnrollmentRepository = (*PostgresEnrollmentRepo)(nil)
