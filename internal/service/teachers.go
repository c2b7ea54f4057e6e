package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Clark-Hu/teacher-ratings/internal/domain"
	"github.com/Clark-Hu/teacher-ratings/internal/repository"
)

const (
	maxTeacherNameLen        = 100
	maxTeacherDescriptionLen = 255
)

// CreateTeacherInput is the payload for CreateTeacher.
type CreateTeacherInput struct {
	Name        string
	Description string
}

// UpdateTeacherInput is a partial edit; nil fields are left untouched.
type UpdateTeacherInput struct {
	Name        *string
	Description *string
}

// TeacherService owns the business rules around the teacher lifecycle.
type TeacherService struct {
	teachers TeacherStore
	ratings  RatingStore
	cache    TeacherCache
	logger   logrus.FieldLogger
}

// NewTeacherService wires a TeacherService. cache and logger may be nil.
func NewTeacherService(teachers TeacherStore, ratings RatingStore, cache TeacherCache, logger logrus.FieldLogger) *TeacherService {
	if cache == nil {
		cache = nopCache{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TeacherService{
		teachers: teachers,
		ratings:  ratings,
		cache:    cache,
		logger:   logger.WithField("service", "teachers"),
	}
}

// GetAllTeachers lists teachers.
func (s *TeacherService) GetAllTeachers(ctx context.Context, filters repository.TeacherListFilters) ([]domain.Teacher, error) {
	return s.teachers.FindAll(ctx, filters)
}

// GetTeacherByID returns the teacher or a TEACHER_NOT_FOUND error.
func (s *TeacherService) GetTeacherByID(ctx context.Context, id uuid.UUID) (domain.Teacher, error) {
	teacher, ok, err := s.cache.Get(ctx, id)
	if err != nil {
		s.logger.WithError(err).WithField("teacher_id", id).Warn("teacher cache read failed")
	} else if ok {
		return teacher, nil
	}

	teacher, err = s.findTeacher(ctx, id)
	if err != nil {
		return domain.Teacher{}, err
	}
	if err := s.cache.Set(ctx, teacher); err != nil {
		s.logger.WithError(err).WithField("teacher_id", id).Warn("teacher cache write failed")
	}
	return teacher, nil
}

// GetTeacherDetail returns the teacher together with its ratings.
func (s *TeacherService) GetTeacherDetail(ctx context.Context, id uuid.UUID) (domain.TeacherDetail, error) {
	var detail domain.TeacherDetail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		teacher, err := s.GetTeacherByID(gctx, id)
		if err != nil {
			return err
		}
		detail.Teacher = teacher
		return nil
	})
	g.Go(func() error {
		ratings, err := s.ratings.FindByTeacherID(gctx, id)
		if err != nil {
			return fmt.Errorf("list ratings for teacher: %w", err)
		}
		detail.Ratings = ratings
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.TeacherDetail{}, err
	}
	return detail, nil
}

// CreateTeacher validates and persists a new teacher.
func (s *TeacherService) CreateTeacher(ctx context.Context, in CreateTeacherInput) (domain.Teacher, error) {
	name := strings.TrimSpace(in.Name)
	if err := validateTeacherName(name); err != nil {
		return domain.Teacher{}, err
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return domain.Teacher{}, validationError("description", "teacher description is required")
	}
	if err := validateTeacherDescription(description); err != nil {
		return domain.Teacher{}, err
	}

	if err := s.ensureNameFree(ctx, name, uuid.Nil); err != nil {
		return domain.Teacher{}, err
	}

	teacher, err := s.teachers.Create(ctx, repository.TeacherCreateParams{
		Name:        name,
		Description: description,
	})
	if err != nil {
		return domain.Teacher{}, mapTeacherWriteError(err)
	}
	s.logger.WithFields(logrus.Fields{"teacher_id": teacher.ID, "name": teacher.Name}).Info("teacher created")
	return teacher, nil
}

// UpdateTeacher applies a partial edit. An empty description is accepted on
// update; only its length is checked.
func (s *TeacherService) UpdateTeacher(ctx context.Context, id uuid.UUID, in UpdateTeacherInput) (domain.Teacher, error) {
	if _, err := s.findTeacher(ctx, id); err != nil {
		return domain.Teacher{}, err
	}

	var params repository.TeacherUpdateParams
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validateTeacherName(name); err != nil {
			return domain.Teacher{}, err
		}
		if err := s.ensureNameFree(ctx, name, id); err != nil {
			return domain.Teacher{}, err
		}
		params.Name = &name
	}
	if in.Description != nil {
		description := strings.TrimSpace(*in.Description)
		if err := validateTeacherDescription(description); err != nil {
			return domain.Teacher{}, err
		}
		params.Description = &description
	}

	teacher, err := s.teachers.Update(ctx, id, params)
	if err != nil {
		return domain.Teacher{}, mapTeacherWriteError(err)
	}
	s.invalidate(ctx, id)
	return teacher, nil
}

// DeleteTeacher removes a teacher. Its ratings are deleted with it.
func (s *TeacherService) DeleteTeacher(ctx context.Context, id uuid.UUID) error {
	if _, err := s.findTeacher(ctx, id); err != nil {
		return err
	}
	removed, err := s.teachers.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete teacher: %w", err)
	}
	s.invalidate(ctx, id)
	if !removed {
		return teacherNotFound(nil)
	}
	s.logger.WithField("teacher_id", id).Info("teacher deleted")
	return nil
}

// UpdateTeacherAvgRating writes an already computed average onto the teacher.
// The value is stored as given.
func (s *TeacherService) UpdateTeacherAvgRating(ctx context.Context, id uuid.UUID, avgRating float64) (domain.Teacher, error) {
	if _, err := s.findTeacher(ctx, id); err != nil {
		return domain.Teacher{}, err
	}
	teacher, err := s.teachers.UpdateAvgRating(ctx, id, avgRating)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Teacher{}, teacherNotFound(err)
		}
		return domain.Teacher{}, fmt.Errorf("update average rating: %w", err)
	}
	s.invalidate(ctx, id)
	return teacher, nil
}

func (s *TeacherService) findTeacher(ctx context.Context, id uuid.UUID) (domain.Teacher, error) {
	teacher, err := s.teachers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Teacher{}, teacherNotFound(err)
		}
		return domain.Teacher{}, fmt.Errorf("find teacher: %w", err)
	}
	return teacher, nil
}

// ensureNameFree rejects names held by a teacher other than self.
func (s *TeacherService) ensureNameFree(ctx context.Context, name string, self uuid.UUID) error {
	existing, err := s.teachers.FindByName(ctx, name)
	switch {
	case err == nil:
		if existing.ID != self {
			return duplicateTeacher(nil)
		}
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("check duplicate teacher: %w", err)
	}
}

func (s *TeacherService) invalidate(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WithError(err).WithField("teacher_id", id).Warn("teacher cache invalidation failed")
	}
}

func validateTeacherName(name string) error {
	if name == "" {
		return validationError("name", "teacher name is required")
	}
	if utf8.RuneCountInString(name) > maxTeacherNameLen {
		return validationError("name", fmt.Sprintf("teacher name must not exceed %d characters", maxTeacherNameLen))
	}
	return nil
}

func validateTeacherDescription(description string) error {
	if utf8.RuneCountInString(description) > maxTeacherDescriptionLen {
		return validationError("description", fmt.Sprintf("description must not exceed %d characters", maxTeacherDescriptionLen))
	}
	return nil
}

func mapTeacherWriteError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return teacherNotFound(err)
	case errors.Is(err, repository.ErrConflict):
		return duplicateTeacher(err)
	case errors.Is(err, repository.ErrConstraint):
		return &Error{Code: CodeValidation, Message: "teacher violates storage constraints", Err: err}
	default:
		return fmt.Errorf("write teacher: %w", err)
	}
}
