package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Clark-Hu/teacher-ratings/internal/domain"
	"github.com/Clark-Hu/teacher-ratings/internal/repository"
	"github.com/Clark-Hu/teacher-ratings/internal/userdir"
)

const maxUserNameLen = 100

// CreateRatingInput is the payload for CreateRating. UserID is optional.
type CreateRatingInput struct {
	Rating      int    `validate:"min=1,max=5"`
	Description string `validate:"required,max=400"`
	TeacherID   uuid.UUID
	UserID      *uuid.UUID
}

// UpdateRatingInput is a partial edit; nil fields are left untouched.
type UpdateRatingInput struct {
	Rating      *int    `validate:"omitnil,min=1,max=5"`
	Description *string `validate:"omitnil,min=1,max=400"`
}

// ReconcileReport summarises a ReconcileAverages run.
type ReconcileReport struct {
	Checked  int
	Repaired int
}

// RatingService validates rating writes and keeps each teacher's cached
// average in step with its ratings. Every mutation locks the teacher row,
// writes the rating and recomputes the average in one transaction.
type RatingService struct {
	stores    Stores
	tx        Transactor
	cache     TeacherCache
	directory userdir.Client
	validate  *validator.Validate
	logger    logrus.FieldLogger
}

// NewRatingService wires a RatingService. cache, directory and logger may be nil.
func NewRatingService(stores Stores, tx Transactor, cache TeacherCache, directory userdir.Client, logger logrus.FieldLogger) *RatingService {
	if cache == nil {
		cache = nopCache{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RatingService{
		stores:    stores,
		tx:        tx,
		cache:     cache,
		directory: directory,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.WithField("service", "ratings"),
	}
}

// CreateRating stores a rating and refreshes the teacher's average.
func (s *RatingService) CreateRating(ctx context.Context, in CreateRatingInput) (domain.Rating, error) {
	in.Description = strings.TrimSpace(in.Description)
	if err := s.validateStruct(in); err != nil {
		return domain.Rating{}, err
	}
	if in.UserID != nil {
		if err := s.ensureUser(ctx, *in.UserID); err != nil {
			return domain.Rating{}, err
		}
	}

	var created domain.Rating
	err := s.tx.InTx(ctx, func(st Stores) error {
		if err := lockTeacher(ctx, st, in.TeacherID); err != nil {
			return err
		}
		if in.UserID != nil {
			_, err := st.Ratings.FindByTeacherAndUser(ctx, in.TeacherID, *in.UserID)
			if err == nil {
				return duplicateRating(nil)
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("check existing rating: %w", err)
			}
		}

		rating, err := st.Ratings.Create(ctx, repository.RatingCreateParams{
			Rating:      in.Rating,
			Description: in.Description,
			TeacherID:   in.TeacherID,
			UserID:      in.UserID,
		})
		if err != nil {
			return mapRatingWriteError(err)
		}
		if _, err := st.Teachers.RefreshAvgRating(ctx, in.TeacherID); err != nil {
			return fmt.Errorf("refresh average rating: %w", err)
		}
		created = rating
		return nil
	})
	if err != nil {
		return domain.Rating{}, err
	}

	s.invalidate(ctx, in.TeacherID)
	s.logger.WithFields(logrus.Fields{
		"rating_id":  created.ID,
		"teacher_id": created.TeacherID,
		"rating":     created.Rating,
	}).Info("rating created")
	return created, nil
}

// UpdateRating edits a rating and refreshes the teacher's average.
func (s *RatingService) UpdateRating(ctx context.Context, id uuid.UUID, in UpdateRatingInput) (domain.Rating, error) {
	if in.Description != nil {
		trimmed := strings.TrimSpace(*in.Description)
		in.Description = &trimmed
	}
	if err := s.validateStruct(in); err != nil {
		return domain.Rating{}, err
	}

	existing, err := s.GetRating(ctx, id)
	if err != nil {
		return domain.Rating{}, err
	}

	var updated domain.Rating
	err = s.tx.InTx(ctx, func(st Stores) error {
		if err := lockTeacher(ctx, st, existing.TeacherID); err != nil {
			return err
		}
		rating, err := st.Ratings.Update(ctx, id, repository.RatingUpdateParams{
			Rating:      in.Rating,
			Description: in.Description,
		})
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ratingNotFound(err)
			}
			return mapRatingWriteError(err)
		}
		if _, err := st.Teachers.RefreshAvgRating(ctx, existing.TeacherID); err != nil {
			return fmt.Errorf("refresh average rating: %w", err)
		}
		updated = rating
		return nil
	})
	if err != nil {
		return domain.Rating{}, err
	}
	s.invalidate(ctx, existing.TeacherID)
	return updated, nil
}

// DeleteRating removes a rating and refreshes the teacher's average.
func (s *RatingService) DeleteRating(ctx context.Context, id uuid.UUID) error {
	existing, err := s.GetRating(ctx, id)
	if err != nil {
		return err
	}

	err = s.tx.InTx(ctx, func(st Stores) error {
		if err := lockTeacher(ctx, st, existing.TeacherID); err != nil {
			return err
		}
		removed, err := st.Ratings.Delete(ctx, id)
		if err != nil {
			return fmt.Errorf("delete rating: %w", err)
		}
		if !removed {
			return ratingNotFound(nil)
		}
		if _, err := st.Teachers.RefreshAvgRating(ctx, existing.TeacherID); err != nil {
			return fmt.Errorf("refresh average rating: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, existing.TeacherID)
	s.logger.WithFields(logrus.Fields{"rating_id": id, "teacher_id": existing.TeacherID}).Info("rating deleted")
	return nil
}

// GetRating returns a rating with its teacher and user.
func (s *RatingService) GetRating(ctx context.Context, id uuid.UUID) (domain.Rating, error) {
	rating, err := s.stores.Ratings.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Rating{}, ratingNotFound(err)
		}
		return domain.Rating{}, fmt.Errorf("find rating: %w", err)
	}
	return rating, nil
}

// ListRatings returns every rating.
func (s *RatingService) ListRatings(ctx context.Context) ([]domain.Rating, error) {
	return s.stores.Ratings.FindAll(ctx)
}

// ListRatingsByTeacher returns a teacher's ratings; the teacher must exist.
func (s *RatingService) ListRatingsByTeacher(ctx context.Context, teacherID uuid.UUID) ([]domain.Rating, error) {
	if err := s.ensureTeacher(ctx, teacherID); err != nil {
		return nil, err
	}
	return s.stores.Ratings.FindByTeacherID(ctx, teacherID)
}

// ListRatingsByUser returns the ratings written by a user.
func (s *RatingService) ListRatingsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Rating, error) {
	return s.stores.Ratings.FindByUserID(ctx, userID)
}

// GetAverageRatingForTeacher recomputes the mean from the ratings table
// without touching the cached value.
func (s *RatingService) GetAverageRatingForTeacher(ctx context.Context, teacherID uuid.UUID) (float64, error) {
	agg, err := s.GetRatingStats(ctx, teacherID)
	if err != nil {
		return 0, err
	}
	return agg.Average, nil
}

// GetRatingStats recomputes the mean and count for a teacher.
func (s *RatingService) GetRatingStats(ctx context.Context, teacherID uuid.UUID) (domain.RatingAggregate, error) {
	if err := s.ensureTeacher(ctx, teacherID); err != nil {
		return domain.RatingAggregate{}, err
	}
	return s.stores.Ratings.StatsForTeacher(ctx, teacherID)
}

// RegisterUser mirrors a user locally. A nil id gets a fresh one.
func (s *RatingService) RegisterUser(ctx context.Context, id *uuid.UUID, name string) (domain.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.User{}, validationError("name", "user name is required")
	}
	if utf8.RuneCountInString(name) > maxUserNameLen {
		return domain.User{}, validationError("name", fmt.Sprintf("user name must not exceed %d characters", maxUserNameLen))
	}
	userID := uuid.New()
	if id != nil {
		userID = *id
	}
	user, err := s.stores.Users.Upsert(ctx, userID, name)
	if err != nil {
		return domain.User{}, fmt.Errorf("register user: %w", err)
	}
	return user, nil
}

// ReconcileAverages recomputes every teacher's cached average and reports how
// many had drifted from their ratings.
func (s *RatingService) ReconcileAverages(ctx context.Context) (ReconcileReport, error) {
	ids, err := s.stores.Teachers.ListIDs(ctx)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("list teachers: %w", err)
	}

	var report ReconcileReport
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		var before, after domain.Teacher
		err := s.tx.InTx(ctx, func(st Stores) error {
			var err error
			if before, err = st.Teachers.LockByID(ctx, id); err != nil {
				return err
			}
			after, err = st.Teachers.RefreshAvgRating(ctx, id)
			return err
		})
		if errors.Is(err, repository.ErrNotFound) {
			// Deleted since ListIDs.
			continue
		}
		if err != nil {
			return report, fmt.Errorf("reconcile teacher %s: %w", id, err)
		}
		report.Checked++
		if before.AvgRating != after.AvgRating {
			report.Repaired++
			s.invalidate(ctx, id)
			s.logger.WithFields(logrus.Fields{
				"teacher_id": id,
				"cached":     before.AvgRating,
				"recomputed": after.AvgRating,
			}).Warn("average rating drift repaired")
		}
	}
	return report, nil
}

func (s *RatingService) ensureTeacher(ctx context.Context, id uuid.UUID) error {
	if _, err := s.stores.Teachers.FindByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return teacherNotFound(err)
		}
		return fmt.Errorf("find teacher: %w", err)
	}
	return nil
}

// ensureUser makes sure the user is mirrored locally, consulting the
// directory for ids seen for the first time.
func (s *RatingService) ensureUser(ctx context.Context, id uuid.UUID) error {
	_, err := s.stores.Users.FindByID(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("find user: %w", err)
	}
	if s.directory == nil {
		return userNotFound(err)
	}

	profile, err := s.directory.Lookup(ctx, id)
	if err != nil {
		if errors.Is(err, userdir.ErrNotFound) {
			return userNotFound(err)
		}
		return fmt.Errorf("lookup user in directory: %w", err)
	}
	if _, err := s.stores.Users.Upsert(ctx, profile.ID, profile.Name); err != nil {
		return fmt.Errorf("mirror user: %w", err)
	}
	return nil
}

func (s *RatingService) validateStruct(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate input: %w", err)
	}
	fe := fieldErrs[0]
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return validationError(field, field+" is required")
	case "min", "max":
		if field == "rating" {
			return validationError(field, fmt.Sprintf("rating must be between %d and %d", domain.MinRatingValue, domain.MaxRatingValue))
		}
		if fe.Tag() == "min" {
			return validationError(field, field+" must not be empty")
		}
		return validationError(field, fmt.Sprintf("%s must not exceed %s characters", field, fe.Param()))
	default:
		return validationError(field, field+" is invalid")
	}
}

func (s *RatingService) invalidate(ctx context.Context, teacherID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, teacherID); err != nil {
		s.logger.WithError(err).WithField("teacher_id", teacherID).Warn("teacher cache invalidation failed")
	}
}

func lockTeacher(ctx context.Context, st Stores, id uuid.UUID) error {
	if _, err := st.Teachers.LockByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return teacherNotFound(err)
		}
		return fmt.Errorf("lock teacher: %w", err)
	}
	return nil
}

func mapRatingWriteError(err error) error {
	switch {
	case errors.Is(err, repository.ErrConflict):
		return duplicateRating(err)
	case errors.Is(err, repository.ErrConstraint):
		return &Error{Code: CodeValidation, Message: "rating violates storage constraints", Err: err}
	case errors.Is(err, repository.ErrReference):
		if repository.ConstraintName(err) == "ratings_user_id_fkey" {
			return userNotFound(err)
		}
		return teacherNotFound(err)
	default:
		return fmt.Errorf("write rating: %w", err)
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
