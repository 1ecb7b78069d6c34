package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/csaccess/internal/model"
)

// PostgresCourseRepo はPostgreSQLを使用したコースカタログのリポジトリ。
type PostgresCourseRepo struct {
	db *sql.DB
}

// NewPostgresCourseRepo はPostgresCourseRepoを生成する。
func NewPostgresCourseRepo(db *sql.DB) *PostgresCourseRepo {
	return &PostgresCourseRepo{db: db}
}

// ListCategories はカテゴリを名前順で返す。
func (r *PostgresCourseRepo) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, icon, color, created_at FROM categories ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []model.Category{}
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Icon, &c.Color, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

// ListPublished は公開中のコースを作成日時の降順で返す。
// カテゴリは名前で、検索語はタイトルと説明の部分一致で絞り込む。
func (r *PostgresCourseRepo) ListPublished(ctx context.Context, filter model.CourseFilter) ([]model.Course, error) {
	query := `
		SELECT c.id, c.title, c.description, c.instructor_id, c.category_id, c.difficulty,
			c.duration, c.rating, c.total_students, c.image_url, c.tags, c.is_published,
			c.price, c.created_at, c.updated_at,
			i.name, i.rating, cat.name, cat.color
		FROM courses c
		JOIN instructors i ON c.instructor_id = i.id
		JOIN categories cat ON c.category_id = cat.id
		WHERE c.is_published = TRUE`

	var args []any
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND cat.name = $%d", len(args))
	}
	if filter.Difficulty != "" {
		args = append(args, filter.Difficulty)
		query += fmt.Sprintf(" AND c.difficulty = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		query += fmt.Sprintf(" AND (c.title ILIKE $%d OR c.description ILIKE $%d)", len(args), len(args))
	}
	query += " ORDER BY c.created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	defer rows.Close()

	courses := []model.Course{}
	for rows.Next() {
		var c model.Course
		var tags []byte
		if err := rows.Scan(
			&c.ID, &c.Title, &c.Description, &c.InstructorID, &c.CategoryID, &c.Difficulty,
			&c.Duration, &c.Rating, &c.TotalStudents, &c.ImageURL, &tags, &c.IsPublished,
			&c.Price, &c.CreatedAt, &c.UpdatedAt,
			&c.InstructorName, &c.InstructorRating, &c.CategoryName, &c.CategoryColor,
		); err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		if c.Tags, err = decodeStringList(tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags of course %s: %w", c.ID, err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate courses: %w", err)
	}
	return courses, nil
}

// FindPublishedByID は公開中のコースを講師・カテゴリ情報付きで取得する。見つからない場合はnilを返す。
func (r *PostgresCourseRepo) FindPublishedByID(ctx context.Context, id string) (*model.Course, error) {
	if !validID(id) {
		return nil, nil
	}

	var c model.Course
	var tags, expertise []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT c.id, c.title, c.description, c.instructor_id, c.category_id, c.difficulty,
			c.duration, c.rating, c.total_students, c.image_url, c.tags, c.is_published,
			c.price, c.created_at, c.updated_at,
			i.name, i.bio, i.rating, i.expertise,
			cat.name, cat.description, cat.color
		FROM courses c
		JOIN instructors i ON c.instructor_id = i.id
		JOIN categories cat ON c.category_id = cat.id
		WHERE c.id = $1 AND c.is_published = TRUE`,
		id,
	).Scan(
		&c.ID, &c.Title, &c.Description, &c.InstructorID, &c.CategoryID, &c.Difficulty,
		&c.Duration, &c.Rating, &c.TotalStudents, &c.ImageURL, &tags, &c.IsPublished,
		&c.Price, &c.CreatedAt, &c.UpdatedAt,
		&c.InstructorName, &c.InstructorBio, &c.InstructorRating, &expertise,
		&c.CategoryName, &c.CategoryDescription, &c.CategoryColor,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find course: %w", err)
	}

	if c.Tags, err = decodeStringList(tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags of course %s: %w", c.ID, err)
	}
	if c.InstructorExpertise, err = decodeStringList(expertise); err != nil {
		return nil, fmt.Errorf("failed to decode instructor expertise of course %s: %w", c.ID, err)
	}
	return &c, nil
}

// ListLessons はコースのレッスンをorder_index順で返す。
func (r *PostgresCourseRepo) ListLessons(ctx context.Context, courseID string) ([]model.Lesson, error) {
	lessons := []model.Lesson{}
	if !validID(courseID) {
		return lessons, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, course_id, title, description, content_type, duration, order_index, is_preview, created_at
		 FROM lessons
		 WHERE course_id = $1
		 ORDER BY order_index ASC`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l model.Lesson
		if err := rows.Scan(&l.ID, &l.CourseID, &l.Title, &l.Description, &l.ContentType,
			&l.Duration, &l.OrderIndex, &l.IsPreview, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		lessons = append(lessons, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lessons: %w", err)
	}
	return lessons, nil
}

// Create はコースを作成する。
func (r *PostgresCourseRepo) Create(ctx context.Context, course *model.Course) error {
	tags := course.Tags
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO courses (id, title, description, instructor_id, category_id, difficulty,
			duration, image_url, tags, is_published, price, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		course.ID, course.Title, course.Description, course.InstructorID, course.CategoryID,
		string(course.Difficulty), course.Duration, course.ImageURL, string(encoded),
		course.IsPublished, course.Price, course.CreatedAt, course.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert course: %w", err)
	}
	return nil
}

// decodeStringList はJSON配列カラムを文字列スライスに変換する。空・nullは空スライスとする。
func decodeStringList(raw []byte) ([]string, error) {
	out := []string{}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike はLIKEパターンのメタ文字をエスケープする。
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// compile-time interface check
var _ CourseRepository = (*PostgresCourseRepo)(nil)
