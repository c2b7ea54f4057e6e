package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/Clark-Hu/teacher-ratings/internal/domain"
	"github.com/Clark-Hu/teacher-ratings/internal/logging"
	"github.com/Clark-Hu/teacher-ratings/internal/repository"
)

type fixture struct {
	db       *memDB
	cache    *memCache
	teachers *TeacherService
	ratings  *RatingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newMemDB()
	cache := newMemCache()
	st := db.stores()
	logger := logging.Discard()
	return &fixture{
		db:       db,
		cache:    cache,
		teachers: NewTeacherService(st.Teachers, st.Ratings, cache, logger),
		ratings:  NewRatingService(st, db, cache, nil, logger),
	}
}

func (f *fixture) mustCreateTeacher(t *testing.T, name, description string) uuid.UUID {
	t.Helper()
	teacher, err := f.teachers.CreateTeacher(context.Background(), CreateTeacherInput{Name: name, Description: description})
	if err != nil {
		t.Fatalf("create teacher %q: %v", name, err)
	}
	return teacher.ID
}

func assertCode(t *testing.T, err error, want Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", want)
	}
	if got := CodeOf(err); got != want {
		t.Fatalf("expected %s, got %v", want, err)
	}
}

func ptr[T any](v T) *T { return &v }

func TestCreateTeacher_Success(t *testing.T) {
	f := newFixture(t)
	teacher, err := f.teachers.CreateTeacher(context.Background(), CreateTeacherInput{
		Name:        "  Jane Doe ",
		Description: " Math teacher ",
	})
	if err != nil {
		t.Fatalf("create teacher: %v", err)
	}
	if teacher.Name != "Jane Doe" || teacher.Description != "Math teacher" {
		t.Fatalf("expected trimmed values, got %+v", teacher)
	}
	if teacher.AvgRating != 0 {
		t.Fatalf("expected avgRating 0, got %v", teacher.AvgRating)
	}
	if teacher.ID == uuid.Nil {
		t.Fatalf("expected id to be assigned")
	}
}

func TestCreateTeacher_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input CreateTeacherInput
		field string
	}{
		{"empty name", CreateTeacherInput{Name: "", Description: "d"}, "name"},
		{"blank name", CreateTeacherInput{Name: "   ", Description: "d"}, "name"},
		{"long name", CreateTeacherInput{Name: strings.Repeat("a", 101), Description: "d"}, "name"},
		{"empty description", CreateTeacherInput{Name: "A", Description: ""}, "description"},
		{"blank description", CreateTeacherInput{Name: "A", Description: " \t"}, "description"},
		{"long description", CreateTeacherInput{Name: "A", Description: strings.Repeat("d", 256)}, "description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.teachers.CreateTeacher(context.Background(), tt.input)
			assertCode(t, err, CodeValidation)
			var svcErr *Error
			if !errors.As(err, &svcErr) || svcErr.Field != tt.field {
				t.Fatalf("expected field %q, got %v", tt.field, err)
			}
			all, _ := f.teachers.GetAllTeachers(context.Background(), repository.TeacherListFilters{})
			if len(all) != 0 {
				t.Fatalf("expected nothing persisted, got %d teachers", len(all))
			}
		})
	}
}

func TestCreateTeacher_BoundaryLengths(t *testing.T) {
	f := newFixture(t)
	// 100 runes of a multi-byte character is still within bounds.
	name := strings.Repeat("é", 100)
	if _, err := f.teachers.CreateTeacher(context.Background(), CreateTeacherInput{
		Name:        name,
		Description: strings.Repeat("d", 255),
	}); err != nil {
		t.Fatalf("expected boundary values to pass, got %v", err)
	}
}

func TestCreateTeacher_Duplicate(t *testing.T) {
	tests := []struct {
		name   string
		second string
	}{
		{"same", "Jane Doe"},
		{"same after trim", "  Jane Doe  "},
		{"different case", "jane doe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.mustCreateTeacher(t, "Jane Doe", "Math teacher")
			_, err := f.teachers.CreateTeacher(context.Background(), CreateTeacherInput{Name: tt.second, Description: "Other"})
			assertCode(t, err, CodeDuplicateTeacher)
		})
	}
}

func TestGetTeacherByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mustCreateTeacher(t, "Jane Doe", "Math teacher")

	got, err := f.teachers.GetTeacherByID(ctx, id)
	if err != nil {
		t.Fatalf("get teacher: %v", err)
	}
	if got.Name != "Jane Doe" {
		t.Fatalf("unexpected teacher %+v", got)
	}
	if _, ok, _ := f.cache.Get(ctx, id); !ok {
		t.Fatalf("expected teacher to be cached after read")
	}

	_, err = f.teachers.GetTeacherByID(ctx, uuid.New())
	assertCode(t, err, CodeTeacherNotFound)
}

func TestUpdateTeacher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jane := f.mustCreateTeacher(t, "Jane Doe", "Math teacher")
	f.mustCreateTeacher(t, "John Roe", "History teacher")

	t.Run("rename into itself", func(t *testing.T) {
		got, err := f.teachers.UpdateTeacher(ctx, jane, UpdateTeacherInput{Name: ptr("Jane Doe")})
		if err != nil {
			t.Fatalf("rename into itself: %v", err)
		}
		if got.Name != "Jane Doe" {
			t.Fatalf("unexpected name %q", got.Name)
		}
	})

	t.Run("rename into other", func(t *testing.T) {
		_, err := f.teachers.UpdateTeacher(ctx, jane, UpdateTeacherInput{Name: ptr("JOHN ROE")})
		assertCode(t, err, CodeDuplicateTeacher)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		_, err := f.teachers.UpdateTeacher(ctx, jane, UpdateTeacherInput{Name: ptr("  ")})
		assertCode(t, err, CodeValidation)
	})

	t.Run("empty description accepted", func(t *testing.T) {
		got, err := f.teachers.UpdateTeacher(ctx, jane, UpdateTeacherInput{Description: ptr("")})
		if err != nil {
			t.Fatalf("empty description: %v", err)
		}
		if got.Description != "" {
			t.Fatalf("expected empty description, got %q", got.Description)
		}
	})

	t.Run("long description rejected", func(t *testing.T) {
		_, err := f.teachers.UpdateTeacher(ctx, jane, UpdateTeacherInput{Description: ptr(strings.Repeat("x", 256))})
		assertCode(t, err, CodeValidation)
	})

	t.Run("missing teacher", func(t *testing.T) {
		_, err := f.teachers.UpdateTeacher(ctx, uuid.New(), UpdateTeacherInput{Name: ptr("Ghost")})
		assertCode(t, err, CodeTeacherNotFound)
	})
}

func TestUpdateTeacher_VanishedRowIsNotFound(t *testing.T) {
	db := newMemDB()
	st := db.stores()
	vanishing := &vanishingTeachers{TeacherStore: st.Teachers}
	svc := NewTeacherService(vanishing, st.Ratings, nil, logging.Discard())

	teacher, err := svc.CreateTeacher(context.Background(), CreateTeacherInput{Name: "Jane Doe", Description: "Math"})
	if err != nil {
		t.Fatalf("create teacher: %v", err)
	}
	_, err = svc.UpdateTeacher(context.Background(), teacher.ID, UpdateTeacherInput{Description: ptr("Physics")})
	assertCode(t, err, CodeTeacherNotFound)
}

// vanishingTeachers deletes the row right before Update runs, emulating a
// delete racing an update.
type vanishingTeachers struct {
	TeacherStore
}

func (v *vanishingTeachers) Update(ctx context.Context, id uuid.UUID, params repository.TeacherUpdateParams) (domain.Teacher, error) {
	if _, err := v.TeacherStore.Delete(ctx, id); err != nil {
		return domain.Teacher{}, err
	}
	return v.TeacherStore.Update(ctx, id, params)
}

func TestDeleteTeacher_CascadesRatings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mustCreateTeacher(t, "Jane Doe", "Math teacher")
	rating, err := f.ratings.CreateRating(ctx, CreateRatingInput{Rating: 4, Description: "Good", TeacherID: id})
	if err != nil {
		t.Fatalf("create rating: %v", err)
	}

	if err := f.teachers.DeleteTeacher(ctx, id); err != nil {
		t.Fatalf("delete teacher: %v", err)
	}

	_, err = f.teachers.GetTeacherByID(ctx, id)
	assertCode(t, err, CodeTeacherNotFound)
	_, err = f.ratings.GetRating(ctx, rating.ID)
	assertCode(t, err, CodeRatingNotFound)
	_, err = f.ratings.ListRatingsByTeacher(ctx, id)
	assertCode(t, err, CodeTeacherNotFound)

	err = f.teachers.DeleteTeacher(ctx, id)
	assertCode(t, err, CodeTeacherNotFound)
}

func TestGetTeacherDetail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mustCreateTeacher(t, "Jane Doe", "Math teacher")
	for _, v := range []int{5, 4} {
		if _, err := f.ratings.CreateRating(ctx, CreateRatingInput{Rating: v, Description: "ok", TeacherID: id}); err != nil {
			t.Fatalf("create rating: %v", err)
		}
	}

	detail, err := f.teachers.GetTeacherDetail(ctx, id)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}
	if detail.Teacher.AvgRating != 4.5 {
		t.Fatalf("expected avgRating 4.5, got %v", detail.Teacher.AvgRating)
	}
	if len(detail.Ratings) != 2 {
		t.Fatalf("expected 2 ratings, got %d", len(detail.Ratings))
	}

	_, err = f.teachers.GetTeacherDetail(ctx, uuid.New())
	assertCode(t, err, CodeTeacherNotFound)
}

// Jane Doe walkthrough: manual propagation through UpdateTeacherAvgRating.
func TestJaneDoeScenario(t *testing.T) {
	db := newMemDB()
	st := db.stores()
	svc := NewTeacherService(st.Teachers, st.Ratings, nil, logging.Discard())
	ctx := context.Background()

	teacher, err := svc.CreateTeacher(ctx, CreateTeacherInput{Name: "Jane Doe", Description: "Math teacher"})
	if err != nil {
		t.Fatalf("create teacher: %v", err)
	}
	if teacher.AvgRating != 0 {
		t.Fatalf("expected 0.00, got %v", teacher.AvgRating)
	}

	for _, v := range []int{5, 4} {
		if _, err := st.Ratings.Create(ctx, repository.RatingCreateParams{Rating: v, Description: "review", TeacherID: teacher.ID}); err != nil {
			t.Fatalf("create rating: %v", err)
		}
	}
	avg, err := st.Ratings.GetAverageRatingForTeacher(ctx, teacher.ID)
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if avg != 4.5 {
		t.Fatalf("expected 4.5, got %v", avg)
	}
	again, _ := st.Ratings.GetAverageRatingForTeacher(ctx, teacher.ID)
	if again != avg {
		t.Fatalf("average not idempotent: %v then %v", avg, again)
	}

	if _, err := svc.UpdateTeacherAvgRating(ctx, teacher.ID, avg); err != nil {
		t.Fatalf("update avg: %v", err)
	}
	got, err := svc.GetTeacherByID(ctx, teacher.ID)
	if err != nil {
		t.Fatalf("get teacher: %v", err)
	}
	if got.AvgRating != 4.5 {
		t.Fatalf("expected avgRating 4.5, got %v", got.AvgRating)
	}

	_, err = svc.UpdateTeacherAvgRating(ctx, uuid.New(), 3)
	assertCode(t, err, CodeTeacherNotFound)
}

func TestGetAllTeachers_Filter(t *testing.T) {
	f := newFixture(t)
	f.mustCreateTeacher(t, "Jane Doe", "Math")
	f.mustCreateTeacher(t, "John Roe", "History")

	all, err := f.teachers.GetAllTeachers(context.Background(), repository.TeacherListFilters{})
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 teachers, got %d (%v)", len(all), err)
	}
	filtered, err := f.teachers.GetAllTeachers(context.Background(), repository.TeacherListFilters{Query: ptr("jane")})
	if err != nil || len(filtered) != 1 || filtered[0].Name != "Jane Doe" {
		t.Fatalf("unexpected filter result %+v (%v)", filtered, err)
	}
}
