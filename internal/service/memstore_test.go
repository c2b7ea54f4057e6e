package service

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Clark-Hu/teacher-ratings/internal/domain"
	"github.com/Clark-Hu/teacher-ratings/internal/repository"
)

// memDB is an in-memory stand-in for the postgres schema. It mirrors the
// storage constraints the services rely on: case-insensitive unique teacher
// names, one rating per (teacher, user), cascade delete of ratings.
type memDB struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	teachers map[uuid.UUID]domain.Teacher
	ratings  map[uuid.UUID]domain.Rating
	users    map[uuid.UUID]domain.User

	// skipRefresh makes RefreshAvgRating a no-op, simulating a writer that
	// bypasses the average refresh.
	skipRefresh bool
}

func newMemDB() *memDB {
	return &memDB{
		teachers: map[uuid.UUID]domain.Teacher{},
		ratings:  map[uuid.UUID]domain.Rating{},
		users:    map[uuid.UUID]domain.User{},
	}
}

func (db *memDB) stores() Stores {
	return Stores{
		Teachers: &memTeachers{db: db},
		Ratings:  &memRatings{db: db},
		Users:    &memUsers{db: db},
	}
}

// InTx serializes transactions and restores a snapshot when fn fails.
func (db *memDB) InTx(ctx context.Context, fn func(Stores) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	teachers := cloneMap(db.teachers)
	ratings := cloneMap(db.ratings)
	users := cloneMap(db.users)
	db.mu.Unlock()

	if err := fn(db.stores()); err != nil {
		db.mu.Lock()
		db.teachers, db.ratings, db.users = teachers, ratings, users
		db.mu.Unlock()
		return err
	}
	return nil
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (db *memDB) average(teacherID uuid.UUID) (float64, int64) {
	var sum, n int64
	for _, r := range db.ratings {
		if r.TeacherID == teacherID {
			sum += int64(r.Rating)
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return math.Round(float64(sum)/float64(n)*100) / 100, n
}

type memTeachers struct{ db *memDB }

func (m *memTeachers) FindAll(_ context.Context, filters repository.TeacherListFilters) ([]domain.Teacher, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []domain.Teacher{}
	for _, t := range m.db.teachers {
		if filters.Query != nil && !strings.Contains(strings.ToLower(t.Name), strings.ToLower(*filters.Query)) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memTeachers) FindByID(_ context.Context, id uuid.UUID) (domain.Teacher, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.teachers[id]
	if !ok {
		return domain.Teacher{}, repository.ErrNotFound
	}
	return t, nil
}

func (m *memTeachers) FindByName(_ context.Context, name string) (domain.Teacher, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, t := range m.db.teachers {
		if strings.EqualFold(t.Name, name) {
			return t, nil
		}
	}
	return domain.Teacher{}, repository.ErrNotFound
}

func (m *memTeachers) nameTaken(name string, self uuid.UUID) bool {
	for _, t := range m.db.teachers {
		if t.ID != self && strings.EqualFold(t.Name, name) {
			return true
		}
	}
	return false
}

func (m *memTeachers) Create(_ context.Context, params repository.TeacherCreateParams) (domain.Teacher, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.nameTaken(params.Name, uuid.Nil) {
		return domain.Teacher{}, &repository.ConstraintError{Kind: repository.ErrConflict, Constraint: "teachers_name_lower_key"}
	}
	t := domain.Teacher{ID: uuid.New(), Name: params.Name, Description: params.Description, UpdatedAt: time.Now()}
	m.db.teachers[t.ID] = t
	return t, nil
}

func (m *memTeachers) Update(_ context.Context, id uuid.UUID, params repository.TeacherUpdateParams) (domain.Teacher, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.teachers[id]
	if !ok {
		return domain.Teacher{}, repository.ErrNotFound
	}
	if params.Name != nil {
		if m.nameTaken(*params.Name, id) {
			return domain.Teacher{}, &repository.ConstraintError{Kind: repository.ErrConflict, Constraint: "teachers_name_lower_key"}
		}
		t.Name = *params.Name
	}
	if params.Description != nil {
		t.Description = *params.Description
	}
	t.UpdatedAt = time.Now()
	m.db.teachers[id] = t
	return t, nil
}

func (m *memTeachers) UpdateAvgRating(_ context.Context, id uuid.UUID, avgRating float64) (domain.Teacher, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.teachers[id]
	if !ok {
		return domain.Teacher{}, repository.ErrNotFound
	}
	t.AvgRating = avgRating
	t.UpdatedAt = time.Now()
	m.db.teachers[id] = t
	return t, nil
}

func (m *memTeachers) RefreshAvgRating(_ context.Context, id uuid.UUID) (domain.Teacher, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.teachers[id]
	if !ok {
		return domain.Teacher{}, repository.ErrNotFound
	}
	if m.db.skipRefresh {
		return t, nil
	}
	t.AvgRating, _ = m.db.average(id)
	t.UpdatedAt = time.Now()
	m.db.teachers[id] = t
	return t, nil
}

func (m *memTeachers) LockByID(ctx context.Context, id uuid.UUID) (domain.Teacher, error) {
	return m.FindByID(ctx, id)
}

func (m *memTeachers) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.teachers[id]; !ok {
		return false, nil
	}
	delete(m.db.teachers, id)
	for rid, r := range m.db.ratings {
		if r.TeacherID == id {
			delete(m.db.ratings, rid)
		}
	}
	return true, nil
}

func (m *memTeachers) ListIDs(context.Context) ([]uuid.UUID, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(m.db.teachers))
	for id := range m.db.teachers {
		ids = append(ids, id)
	}
	return ids, nil
}

type memRatings struct{ db *memDB }

func (m *memRatings) filter(keep func(domain.Rating) bool) []domain.Rating {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []domain.Rating{}
	for _, r := range m.db.ratings {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memRatings) FindAll(context.Context) ([]domain.Rating, error) {
	return m.filter(func(domain.Rating) bool { return true }), nil
}

func (m *memRatings) FindByID(_ context.Context, id uuid.UUID) (domain.Rating, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	r, ok := m.db.ratings[id]
	if !ok {
		return domain.Rating{}, repository.ErrNotFound
	}
	return r, nil
}

func (m *memRatings) FindByTeacherID(_ context.Context, teacherID uuid.UUID) ([]domain.Rating, error) {
	return m.filter(func(r domain.Rating) bool { return r.TeacherID == teacherID }), nil
}

func (m *memRatings) FindByUserID(_ context.Context, userID uuid.UUID) ([]domain.Rating, error) {
	return m.filter(func(r domain.Rating) bool { return r.UserID != nil && *r.UserID == userID }), nil
}

func (m *memRatings) FindByTeacherAndUser(_ context.Context, teacherID, userID uuid.UUID) (domain.Rating, error) {
	found := m.filter(func(r domain.Rating) bool {
		return r.TeacherID == teacherID && r.UserID != nil && *r.UserID == userID
	})
	if len(found) == 0 {
		return domain.Rating{}, repository.ErrNotFound
	}
	return found[0], nil
}

func (m *memRatings) Create(_ context.Context, params repository.RatingCreateParams) (domain.Rating, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if params.Rating < domain.MinRatingValue || params.Rating > domain.MaxRatingValue {
		return domain.Rating{}, &repository.ConstraintError{Kind: repository.ErrConstraint, Constraint: "ratings_rating_check"}
	}
	if _, ok := m.db.teachers[params.TeacherID]; !ok {
		return domain.Rating{}, &repository.ConstraintError{Kind: repository.ErrReference, Constraint: "ratings_teacher_id_fkey"}
	}
	if params.UserID != nil {
		if _, ok := m.db.users[*params.UserID]; !ok {
			return domain.Rating{}, &repository.ConstraintError{Kind: repository.ErrReference, Constraint: "ratings_user_id_fkey"}
		}
		for _, r := range m.db.ratings {
			if r.TeacherID == params.TeacherID && r.UserID != nil && *r.UserID == *params.UserID {
				return domain.Rating{}, &repository.ConstraintError{Kind: repository.ErrConflict, Constraint: "ratings_teacher_user_key"}
			}
		}
	}
	r := domain.Rating{
		ID:          uuid.New(),
		Rating:      params.Rating,
		Description: params.Description,
		TeacherID:   params.TeacherID,
		UserID:      params.UserID,
		CreatedAt:   time.Now(),
	}
	m.db.ratings[r.ID] = r
	return r, nil
}

func (m *memRatings) Update(_ context.Context, id uuid.UUID, params repository.RatingUpdateParams) (domain.Rating, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	r, ok := m.db.ratings[id]
	if !ok {
		return domain.Rating{}, repository.ErrNotFound
	}
	if params.Rating != nil {
		r.Rating = *params.Rating
	}
	if params.Description != nil {
		r.Description = *params.Description
	}
	m.db.ratings[id] = r
	return r, nil
}

func (m *memRatings) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.ratings[id]; !ok {
		return false, nil
	}
	delete(m.db.ratings, id)
	return true, nil
}

func (m *memRatings) GetAverageRatingForTeacher(_ context.Context, teacherID uuid.UUID) (float64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	avg, _ := m.db.average(teacherID)
	return avg, nil
}

func (m *memRatings) StatsForTeacher(_ context.Context, teacherID uuid.UUID) (domain.RatingAggregate, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	avg, n := m.db.average(teacherID)
	return domain.RatingAggregate{Average: avg, Count: n}, nil
}

type memUsers struct{ db *memDB }

func (m *memUsers) Upsert(_ context.Context, id uuid.UUID, name string) (domain.User, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	u, ok := m.db.users[id]
	if !ok {
		u = domain.User{ID: id, CreatedAt: time.Now()}
	}
	u.Name = name
	m.db.users[id] = u
	return u, nil
}

func (m *memUsers) FindByID(_ context.Context, id uuid.UUID) (domain.User, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	u, ok := m.db.users[id]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return u, nil
}

// memCache records invalidations so tests can assert on them.
type memCache struct {
	mu          sync.Mutex
	entries     map[uuid.UUID]domain.Teacher
	invalidated []uuid.UUID
}

func newMemCache() *memCache {
	return &memCache{entries: map[uuid.UUID]domain.Teacher{}}
}

func (c *memCache) Get(_ context.Context, id uuid.UUID) (domain.Teacher, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.entries[id]
	return t, ok, nil
}

func (c *memCache) Set(_ context.Context, teacher domain.Teacher) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[teacher.ID] = teacher
	return nil
}

func (c *memCache) Invalidate(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}
