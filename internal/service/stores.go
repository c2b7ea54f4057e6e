package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/Clark-Hu/teacher-ratings/internal/domain"
	"github.com/Clark-Hu/teacher-ratings/internal/repository"
)

// TeacherStore is the persistence contract the services need for teachers.
type TeacherStore interface {
	FindAll(ctx context.Context, filters repository.TeacherListFilters) ([]domain.Teacher, error)
	FindByID(ctx context.Context, id uuid.UUID) (domain.Teacher, error)
	FindByName(ctx context.Context, name string) (domain.Teacher, error)
	Create(ctx context.Context, params repository.TeacherCreateParams) (domain.Teacher, error)
	Update(ctx context.Context, id uuid.UUID, params repository.TeacherUpdateParams) (domain.Teacher, error)
	UpdateAvgRating(ctx context.Context, id uuid.UUID, avgRating float64) (domain.Teacher, error)
	RefreshAvgRating(ctx context.Context, id uuid.UUID) (domain.Teacher, error)
	LockByID(ctx context.Context, id uuid.UUID) (domain.Teacher, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// RatingStore is the persistence contract the services need for ratings.
type RatingStore interface {
	FindAll(ctx context.Context) ([]domain.Rating, error)
	FindByID(ctx context.Context, id uuid.UUID) (domain.Rating, error)
	FindByTeacherID(ctx context.Context, teacherID uuid.UUID) ([]domain.Rating, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Rating, error)
	FindByTeacherAndUser(ctx context.Context, teacherID, userID uuid.UUID) (domain.Rating, error)
	Create(ctx context.Context, params repository.RatingCreateParams) (domain.Rating, error)
	Update(ctx context.Context, id uuid.UUID, params repository.RatingUpdateParams) (domain.Rating, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	GetAverageRatingForTeacher(ctx context.Context, teacherID uuid.UUID) (float64, error)
	StatsForTeacher(ctx context.Context, teacherID uuid.UUID) (domain.RatingAggregate, error)
}

// UserStore is the persistence contract for the local user mirror.
type UserStore interface {
	Upsert(ctx context.Context, id uuid.UUID, name string) (domain.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (domain.User, error)
}

// Stores groups stores that share one connection or transaction.
type Stores struct {
	Teachers TeacherStore
	Ratings  RatingStore
	Users    UserStore
}

// Transactor runs fn with Stores bound to a single transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(Stores) error) error
}

// FromRepository exposes a repository.Repository through the service contracts.
func FromRepository(repo *repository.Repository) (Stores, Transactor) {
	return storesOf(repo), repoTransactor{repo: repo}
}

func storesOf(repo *repository.Repository) Stores {
	return Stores{Teachers: repo.Teachers, Ratings: repo.Ratings, Users: repo.Users}
}

type repoTransactor struct {
	repo *repository.Repository
}

func (t repoTransactor) InTx(ctx context.Context, fn func(Stores) error) error {
	return t.repo.InTx(ctx, func(tx *repository.Repository) error {
		return fn(storesOf(tx))
	})
}

// TeacherCache caches teacher records by id. Implementations must be safe for
// concurrent use; a miss is reported with ok == false and a nil error.
type TeacherCache interface {
	Get(ctx context.Context, id uuid.UUID) (teacher domain.Teacher, ok bool, err error)
	Set(ctx context.Context, teacher domain.Teacher) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}

type nopCache struct{}

func (nopCache) Get(context.Context, uuid.UUID) (domain.Teacher, bool, error) {
	return domain.Teacher{}, false, nil
}
func (nopCache) Set(context.Context, domain.Teacher) error   { return nil }
func (nopCache) Invalidate(context.Context, uuid.UUID) error { return nil }
