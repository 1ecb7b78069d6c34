package model

import "time"

// Category はコースのカテゴリを表す。
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Color       string    `json:"color"`
	CreatedAt   time.Time `json:"created_at"`
}

// Difficulty はコースの難易度を表す。
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Valid は難易度が定義済みの値かどうかを返す。
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// Course は公開コースとその講師・カテゴリ情報を表す。
type Course struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	InstructorID        string     `json:"instructor_id"`
	CategoryID          string     `json:"category_id"`
	Difficulty          Difficulty `json:"difficulty"`
	Duration            int        `json:"duration"` // 分
	Rating              float64    `json:"rating"`
	TotalStudents       int        `json:"total_students"`
	ImageURL            string     `json:"image_url,omitempty"`
	Tags                []string   `json:"tags"`
	IsPublished         bool       `json:"is_published"`
	Price               float64    `json:"price"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	InstructorName      string     `json:"instructor_name,omitempty"`
	InstructorBio       string     `json:"instructor_bio,omitempty"`
	InstructorRating    float64    `json:"instructor_rating,omitempty"`
	InstructorExpertise []string   `json:"instructor_expertise,omitempty"`
	CategoryName        string     `json:"category_name,omitempty"`
	CategoryDescription string     `json:"category_description,omitempty"`
	CategoryColor       string     `json:"category_color,omitempty"`
}

// CourseFilter はコース一覧の絞り込み条件を表す。
type CourseFilter struct {
	Category   string `json:"category,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Search     string `json:"search,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// Lesson はコース内のレッスンを表す。
type Lesson struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ContentType string    `json:"content_type"`
	Duration    int       `json:"duration"`
	OrderIndex  int       `json:"order_index"`
	IsPreview   bool      `json:"is_preview"`
	CreatedAt   time.Time `json:"created_at"`
}

// Enrollment はユーザーのコース受講登録を表す。
type Enrollment struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	CourseID     string     `json:"course_id"`
	Progress     float64    `json:"progress"`
	EnrolledAt   time.Time  `json:"enrolled_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
}

// EnrollmentWithCourse は受講登録とコース情報を結合した構造体。
type EnrollmentWithCourse struct {
	Enrollment
	CourseTitle       string     `json:"course_title"`
	CourseDescription string     `json:"course_description"`
	CourseDifficulty  Difficulty `json:"course_difficulty"`
	CourseDuration    int        `json:"course_duration"`
	CourseImageURL    string     `json:"course_image_url,omitempty"`
	InstructorName    string     `json:"instructor_name,omitempty"`
	CategoryName      string     `json:"category_name,omitempty"`
	CategoryColor     string     `json:"category_color,omitempty"`
}

// LessonProgress はレッスンごとの学習進捗を表す。
type LessonProgress struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	LessonID    string     `json:"lesson_id"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	TimeSpent   int        `json:"time_spent"`
	LessonTitle string     `json:"lesson_title"`
	OrderIndex  int        `json:"order_index"`
	Duration    int        `json:"duration"`
}

// UserStats はユーザーの受講状況の集計値を表す。
type UserStats struct {
	TotalEnrollments int        `json:"totalEnrollments"`
	CompletedCourses int        `json:"completedCourses"`
	AverageProgress  float64    `json:"averageProgress"`
	LastCourseAccess *time.Time `json:"lastCourseAccess"`
}

// Activity はダッシュボードに表示する学習アクティビティを表す。
type Activity struct {
	ActivityType string     `json:"activity_type"`
	CourseTitle  string     `json:"course_title"`
	CourseID     string     `json:"course_id"`
	ActivityDate *time.Time `json:"activity_date"`
	Description  string     `json:"description"`
}
