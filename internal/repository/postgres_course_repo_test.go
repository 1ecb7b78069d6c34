package repository

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/csaccess/internal/database"
	"github.com/hitoshi/csaccess/internal/model"
)

func TestDecodeStringList(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want []string
	}{
		{"nil", nil, []string{}},
		{"null", []byte("null"), []string{}},
		{"empty array", []byte("[]"), []string{}},
		{"values", []byte(`["go","sql"]`), []string{"go", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeStringList(tt.raw)
			if err != nil {
				t.Fatalf("decodeStringList returned error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("decodeStringList(%s) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}

	if _, err := decodeStringList([]byte("{")); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`100%_off\`); got != `100\%\_off\\` {
		t.Errorf("escapeLike = %q", got)
	}
}

func TestPostgresCourseRepo_ListAndFind(t *testing.T) {
	db := setupRepoDB(t)
	repo := NewPostgresCourseRepo(db)
	ctx := context.Background()
	f := insertCatalog(t, db)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	older := insertTestCourse(t, repo, f, "Graph Theory", true, base)
	newer := insertTestCourse(t, repo, f, "Dynamic Programming", true, base.Add(time.Hour))
	draft := insertTestCourse(t, repo, f, "Unreleased Draft", false, base.Add(2*time.Hour))

	courses, err := repo.ListPublished(ctx, model.CourseFilter{})
	if err != nil {
		t.Fatalf("ListPublished returned error: %v", err)
	}
	if len(courses) != 2 {
		t.Fatalf("len(courses) = %d, want 2", len(courses))
	}
	if courses[0].ID != newer.ID || courses[1].ID != older.ID {
		t.Errorf("courses not ordered by created_at desc: %s, %s", courses[0].Title, courses[1].Title)
	}
	if courses[0].InstructorName != "Dr. Lee" || courses[0].CategoryName != "Algorithms" {
		t.Errorf("joined fields missing: %+v", courses[0])
	}
	if !reflect.DeepEqual(courses[0].Tags, []string{"cs", "intro"}) {
		t.Errorf("Tags = %v", courses[0].Tags)
	}

	t.Run("検索語で絞り込む", func(t *testing.T) {
		got, err := repo.ListPublished(ctx, model.CourseFilter{Search: "graph"})
		if err != nil {
			t.Fatalf("ListPublished returned error: %v", err)
		}
		if len(got) != 1 || got[0].ID != older.ID {
			t.Errorf("search result = %+v", got)
		}
	})

	t.Run("カテゴリと件数で絞り込む", func(t *testing.T) {
		got, err := repo.ListPublished(ctx, model.CourseFilter{Category: "Algorithms", Limit: 1})
		if err != nil {
			t.Fatalf("ListPublished returned error: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("len = %d, want 1", len(got))
		}
		none, err := repo.ListPublished(ctx, model.CourseFilter{Category: "Biology"})
		if err != nil {
			t.Fatalf("ListPublished returned error: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("unknown category returned %d courses", len(none))
		}
	})

	t.Run("公開中のコースを詳細付きで取得する", func(t *testing.T) {
		got, err := repo.FindPublishedByID(ctx, older.ID)
		if err != nil {
			t.Fatalf("FindPublishedByID returned error: %v", err)
		}
		if got == nil {
			t.Fatal("expected course, got nil")
		}
		if !reflect.DeepEqual(got.InstructorExpertise, []string{"graphs", "dp"}) {
			t.Errorf("InstructorExpertise = %v", got.InstructorExpertise)
		}
		if got.CategoryDescription != "Sorting and searching" {
			t.Errorf("CategoryDescription = %q", got.CategoryDescription)
		}
	})

	t.Run("非公開と不正IDはnil", func(t *testing.T) {
		for _, id := range []string{draft.ID, uuid.NewString(), "bogus"} {
			got, err := repo.FindPublishedByID(ctx, id)
			if err != nil {
				t.Fatalf("FindPublishedByID(%q) returned error: %v", id, err)
			}
			if got != nil {
				t.Errorf("FindPublishedByID(%q) = %+v, want nil", id, got)
			}
		}
	})
}

func TestPostgresCourseRepo_Lessons(t *testing.T) {
	db := setupRepoDB(t)
	repo := NewPostgresCourseRepo(db)
	ctx := context.Background()
	f := insertCatalog(t, db)
	course := insertTestCourse(t, repo, f, "Graph Theory", true, time.Now())

	for i, title := range []string{"Second", "First"} {
		order := 2 - i
		if _, err := db.Exec(
			`INSERT INTO lessons (id, course_id, title, order_index) VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), course.ID, title, order,
		); err != nil {
			t.Fatalf("レッスン作成に失敗: %v", err)
		}
	}

	lessons, err := repo.ListLessons(ctx, course.ID)
	if err != nil {
		t.Fatalf("ListLessons returned error: %v", err)
	}
	if len(lessons) != 2 || lessons[0].Title != "First" || lessons[1].Title != "Second" {
		t.Errorf("lessons not ordered by order_index: %+v", lessons)
	}
}

func TestPostgresCourseRepo_Create_UnknownInstructor(t *testing.T) {
	db := setupRepoDB(t)
	repo := NewPostgresCourseRepo(db)
	f := insertCatalog(t, db)
	f.instructorID = uuid.NewString()

	now := time.Now()
	err := repo.Create(context.Background(), &model.Course{
		ID: uuid.NewString(), Title: "Orphan", InstructorID: f.instructorID, CategoryID: f.categoryID,
		Difficulty: model.DifficultyAdvanced, CreatedAt: now, UpdatedAt: now,
	})
	if !database.IsForeignKeyViolation(err) {
		t.Errorf("expected foreign key violation, got %v", err)
	}
}
