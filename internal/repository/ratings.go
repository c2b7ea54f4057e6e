package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/teacher-ratings/internal/domain"
)

// RatingsRepository provides helpers for teacher ratings.
type RatingsRepository struct {
	db DBTX
}

// expand selects which relations are attached to scanned ratings.
type expand uint8

const (
	expandTeacher expand = 1 << iota
	expandUser
)

const ratingSelect = `
    SELECT r.id, r.rating, r.description, r.teacher_id, r.user_id, r.created_at,
           t.name, t.avg_rating::float8, u.name
    FROM ratings r
    JOIN teachers t ON t.id = r.teacher_id
    LEFT JOIN users u ON u.id = r.user_id
`

const ratingReturning = `RETURNING id, rating, description, teacher_id, user_id, created_at`

// RatingCreateParams captures the payload required to create a rating.
type RatingCreateParams struct {
	Rating      int
	Description string
	TeacherID   uuid.UUID
	UserID      *uuid.UUID
}

// RatingUpdateParams carries a partial edit; nil fields are left untouched.
type RatingUpdateParams struct {
	Rating      *int
	Description *string
}

// FindAll returns every rating with its teacher and user.
func (r *RatingsRepository) FindAll(ctx context.Context) ([]domain.Rating, error) {
	return r.list(ctx, expandTeacher|expandUser, ratingSelect+` ORDER BY r.created_at DESC, r.id`)
}

// FindByID fetches a rating with its teacher and user.
func (r *RatingsRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.Rating, error) {
	row := r.db.QueryRow(ctx, ratingSelect+` WHERE r.id = $1`, id)
	rating, err := scanExpandedRating(row, expandTeacher|expandUser)
	if err != nil {
		return domain.Rating{}, mapError(err)
	}
	return rating, nil
}

// FindByTeacherID returns the ratings of a teacher with users expanded.
func (r *RatingsRepository) FindByTeacherID(ctx context.Context, teacherID uuid.UUID) ([]domain.Rating, error) {
	return r.list(ctx, expandUser, ratingSelect+` WHERE r.teacher_id = $1 ORDER BY r.created_at DESC, r.id`, teacherID)
}

// FindByUserID returns the ratings written by a user with teachers expanded.
func (r *RatingsRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Rating, error) {
	return r.list(ctx, expandTeacher, ratingSelect+` WHERE r.user_id = $1 ORDER BY r.created_at DESC, r.id`, userID)
}

// FindByTeacherAndUser retrieves the rating a user left for a teacher.
func (r *RatingsRepository) FindByTeacherAndUser(ctx context.Context, teacherID, userID uuid.UUID) (domain.Rating, error) {
	const query = `
        SELECT id, rating, description, teacher_id, user_id, created_at
        FROM ratings
        WHERE teacher_id = $1 AND user_id = $2
    `
	rating, err := scanRating(r.db.QueryRow(ctx, query, teacherID, userID))
	if err != nil {
		return domain.Rating{}, mapError(err)
	}
	return rating, nil
}

// Create inserts a rating. Range and length rules are enforced by the table's
// CHECK constraints and surface as ErrConstraint.
func (r *RatingsRepository) Create(ctx context.Context, params RatingCreateParams) (domain.Rating, error) {
	query := `
        INSERT INTO ratings (id, rating, description, teacher_id, user_id)
        VALUES ($1,$2,$3,$4,$5)
    ` + ratingReturning

	rating, err := scanRating(r.db.QueryRow(ctx, query, uuid.New(), params.Rating, params.Description, params.TeacherID, params.UserID))
	if err != nil {
		return domain.Rating{}, mapError(err)
	}
	return rating, nil
}

// Update applies a partial edit and returns ErrNotFound when the rating is absent.
func (r *RatingsRepository) Update(ctx context.Context, id uuid.UUID, params RatingUpdateParams) (domain.Rating, error) {
	query := `
        UPDATE ratings
        SET rating = COALESCE($2::smallint, rating),
            description = COALESCE($3::varchar, description)
        WHERE id = $1
    ` + ratingReturning

	rating, err := scanRating(r.db.QueryRow(ctx, query, id, params.Rating, params.Description))
	if err != nil {
		return domain.Rating{}, mapError(err)
	}
	return rating, nil
}

// Delete removes a rating and reports whether a row existed.
func (r *RatingsRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM ratings WHERE id = $1`, id)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetAverageRatingForTeacher returns the mean rating rounded to two decimals,
// or 0 when the teacher has no ratings.
func (r *RatingsRepository) GetAverageRatingForTeacher(ctx context.Context, teacherID uuid.UUID) (float64, error) {
	agg, err := r.StatsForTeacher(ctx, teacherID)
	if err != nil {
		return 0, err
	}
	return agg.Average, nil
}

// StatsForTeacher returns the rating average and count for a teacher.
func (r *RatingsRepository) StatsForTeacher(ctx context.Context, teacherID uuid.UUID) (domain.RatingAggregate, error) {
	const query = `
        SELECT COALESCE(ROUND(AVG(rating)::numeric, 2), 0)::float8 AS average,
               COUNT(*)::int8 AS count
        FROM ratings
        WHERE teacher_id = $1
    `

	var agg domain.RatingAggregate
	err := r.db.QueryRow(ctx, query, teacherID).Scan(&agg.Average, &agg.Count)
	if err != nil {
		return domain.RatingAggregate{}, fmt.Errorf("aggregate ratings: %w", err)
	}
	return agg, nil
}

func (r *RatingsRepository) list(ctx context.Context, exp expand, query string, args ...any) ([]domain.Rating, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ratings := make([]domain.Rating, 0)
	for rows.Next() {
		rating, err := scanExpandedRating(rows, exp)
		if err != nil {
			return nil, err
		}
		ratings = append(ratings, rating)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ratings, nil
}

func scanRating(row pgx.Row) (domain.Rating, error) {
	var (
		rating    domain.Rating
		value     int16
		createdAt time.Time
	)
	err := row.Scan(
		&rating.ID,
		&value,
		&rating.Description,
		&rating.TeacherID,
		&rating.UserID,
		&createdAt,
	)
	if err != nil {
		return domain.Rating{}, err
	}
	rating.Rating = int(value)
	rating.CreatedAt = createdAt
	return rating, nil
}

func scanExpandedRating(row pgx.Row, exp expand) (domain.Rating, error) {
	var (
		rating           domain.Rating
		value            int16
		createdAt        time.Time
		teacherName      string
		teacherAvgRating float64
		userName         *string
	)
	err := row.Scan(
		&rating.ID,
		&value,
		&rating.Description,
		&rating.TeacherID,
		&rating.UserID,
		&createdAt,
		&teacherName,
		&teacherAvgRating,
		&userName,
	)
	if err != nil {
		return domain.Rating{}, err
	}
	rating.Rating = int(value)
	rating.CreatedAt = createdAt

	if exp&expandTeacher != 0 {
		rating.Teacher = &domain.TeacherSummary{
			ID:        rating.TeacherID,
			Name:      teacherName,
			AvgRating: teacherAvgRating,
		}
	}
	if exp&expandUser != 0 && rating.UserID != nil && userName != nil {
		rating.User = &domain.UserSummary{ID: *rating.UserID, Name: *userName}
	}
	return rating, nil
}
