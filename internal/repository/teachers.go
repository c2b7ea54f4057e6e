package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/teacher-ratings/internal/domain"
)

// TeachersRepository provides persistence helpers for teacher entities.
type TeachersRepository struct {
	db DBTX
}

const teacherColumns = `
    id,
    name,
    description,
    avg_rating::float8,
    updated_at
`

// TeacherCreateParams bundles the fields required to create a teacher.
type TeacherCreateParams struct {
	Name        string
	Description string
}

// TeacherUpdateParams carries a partial edit; nil fields are left untouched.
type TeacherUpdateParams struct {
	Name        *string
	Description *string
}

// TeacherListFilters narrows FindAll. Query matches a name substring, ignoring case.
type TeacherListFilters struct {
	Query *string
}

// FindAll returns teachers ordered by name.
func (r *TeachersRepository) FindAll(ctx context.Context, filters TeacherListFilters) ([]domain.Teacher, error) {
	query := fmt.Sprintf(`SELECT %s FROM teachers`, teacherColumns)
	args := make([]any, 0, 1)
	if filters.Query != nil && strings.TrimSpace(*filters.Query) != "" {
		args = append(args, "%"+strings.TrimSpace(*filters.Query)+"%")
		query += ` WHERE name ILIKE $1`
	}
	query += ` ORDER BY name, id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teachers := make([]domain.Teacher, 0)
	for rows.Next() {
		teacher, err := scanTeacher(rows)
		if err != nil {
			return nil, err
		}
		teachers = append(teachers, teacher)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return teachers, nil
}

// FindByID fetches a teacher by its identifier.
func (r *TeachersRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.Teacher, error) {
	query := fmt.Sprintf(`SELECT %s FROM teachers WHERE id = $1`, teacherColumns)
	teacher, err := scanTeacher(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Teacher{}, mapError(err)
	}
	return teacher, nil
}

// FindByName fetches the teacher whose name matches exactly, ignoring case.
func (r *TeachersRepository) FindByName(ctx context.Context, name string) (domain.Teacher, error) {
	query := fmt.Sprintf(`SELECT %s FROM teachers WHERE lower(name) = lower($1)`, teacherColumns)
	teacher, err := scanTeacher(r.db.QueryRow(ctx, query, name))
	if err != nil {
		return domain.Teacher{}, mapError(err)
	}
	return teacher, nil
}

// Create inserts a new teacher with an average of zero.
func (r *TeachersRepository) Create(ctx context.Context, params TeacherCreateParams) (domain.Teacher, error) {
	query := fmt.Sprintf(`
        INSERT INTO teachers (id, name, description)
        VALUES ($1,$2,$3)
        RETURNING %s
    `, teacherColumns)

	teacher, err := scanTeacher(r.db.QueryRow(ctx, query, uuid.New(), params.Name, params.Description))
	if err != nil {
		return domain.Teacher{}, mapError(err)
	}
	return teacher, nil
}

// Update applies a partial edit. It returns ErrNotFound when the row is gone.
func (r *TeachersRepository) Update(ctx context.Context, id uuid.UUID, params TeacherUpdateParams) (domain.Teacher, error) {
	query := fmt.Sprintf(`
        UPDATE teachers
        SET name = COALESCE($2::varchar, name),
            description = COALESCE($3::varchar, description),
            updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, teacherColumns)

	teacher, err := scanTeacher(r.db.QueryRow(ctx, query, id, params.Name, params.Description))
	if err != nil {
		return domain.Teacher{}, mapError(err)
	}
	return teacher, nil
}

// UpdateAvgRating writes the cached average only.
func (r *TeachersRepository) UpdateAvgRating(ctx context.Context, id uuid.UUID, avgRating float64) (domain.Teacher, error) {
	query := fmt.Sprintf(`
        UPDATE teachers
        SET avg_rating = $2,
            updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, teacherColumns)

	teacher, err := scanTeacher(r.db.QueryRow(ctx, query, id, avgRating))
	if err != nil {
		return domain.Teacher{}, mapError(err)
	}
	return teacher, nil
}

// RefreshAvgRating recomputes the average from the ratings table and stores it
// in the same statement.
func (r *TeachersRepository) RefreshAvgRating(ctx context.Context, id uuid.UUID) (domain.Teacher, error) {
	query := fmt.Sprintf(`
        UPDATE teachers
        SET avg_rating = (
                SELECT COALESCE(ROUND(AVG(rating)::numeric, 2), 0)
                FROM ratings
                WHERE teacher_id = $1
            ),
            updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, teacherColumns)

	teacher, err := scanTeacher(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Teacher{}, mapError(err)
	}
	return teacher, nil
}

// LockByID fetches a teacher and holds a row lock until the surrounding
// transaction ends. Outside a transaction the lock is released immediately.
func (r *TeachersRepository) LockByID(ctx context.Context, id uuid.UUID) (domain.Teacher, error) {
	query := fmt.Sprintf(`SELECT %s FROM teachers WHERE id = $1 FOR UPDATE`, teacherColumns)
	teacher, err := scanTeacher(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Teacher{}, mapError(err)
	}
	return teacher, nil
}

// Delete removes a teacher; ratings go with it through ON DELETE CASCADE.
func (r *TeachersRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM teachers WHERE id = $1`, id)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListIDs returns every teacher id.
func (r *TeachersRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM teachers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func scanTeacher(row pgx.Row) (domain.Teacher, error) {
	var (
		teacher   domain.Teacher
		updatedAt time.Time
	)
	err := row.Scan(
		&teacher.ID,
		&teacher.Name,
		&teacher.Description,
		&teacher.AvgRating,
		&updatedAt,
	)
	if err != nil {
		return domain.Teacher{}, err
	}
	teacher.UpdatedAt = updatedAt
	return teacher, nil
}
