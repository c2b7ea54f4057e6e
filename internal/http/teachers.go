package httpserver

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Clark-Hu/teacher-ratings/internal/domain"
	"github.com/Clark-Hu/teacher-ratings/internal/repository"
	"github.com/Clark-Hu/teacher-ratings/internal/service"
)

const maxQueryLen = 100

type teacherCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type teacherUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type teacherResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	AvgRating   float64   `json:"avgRating"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type teacherListResponse struct {
	Items []teacherResponse `json:"items"`
}

type teacherDetailResponse struct {
	teacherResponse
	Ratings []ratingResponse `json:"ratings"`
}

func (s *Server) handleListTeachers(w http.ResponseWriter, r *http.Request) {
	filters, err := buildTeacherFilters(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	teachers, err := s.teachers.GetAllTeachers(r.Context(), filters)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to list teachers")
		return
	}

	items := make([]teacherResponse, 0, len(teachers))
	for _, teacher := range teachers {
		items = append(items, toTeacherResponse(teacher))
	}
	s.respondJSON(w, http.StatusOK, teacherListResponse{Items: items})
}

func buildTeacherFilters(query url.Values) (repository.TeacherListFilters, error) {
	var filters repository.TeacherListFilters
	if q := strings.TrimSpace(query.Get("q")); q != "" {
		if !utf8.ValidString(q) {
			return filters, fmt.Errorf("invalid q value")
		}
		if utf8.RuneCountInString(q) > maxQueryLen {
			return filters, fmt.Errorf("q must not exceed %d characters", maxQueryLen)
		}
		filters.Query = &q
	}
	return filters, nil
}

func (s *Server) handleCreateTeacher(w http.ResponseWriter, r *http.Request) {
	if !s.requireBearer(w, r) {
		return
	}

	var req teacherCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	teacher, err := s.teachers.CreateTeacher(r.Context(), service.CreateTeacherInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to create teacher")
		return
	}

	w.Header().Set("Location", "/teachers/"+teacher.ID.String())
	s.respondJSON(w, http.StatusCreated, toTeacherResponse(teacher))
}

func (s *Server) handleGetTeacher(w http.ResponseWriter, r *http.Request) {
	id, err := decodeIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	detail, err := s.teachers.GetTeacherDetail(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to fetch teacher")
		return
	}

	resp := teacherDetailResponse{
		teacherResponse: toTeacherResponse(detail.Teacher),
		Ratings:         make([]ratingResponse, 0, len(detail.Ratings)),
	}
	for _, rating := range detail.Ratings {
		resp.Ratings = append(resp.Ratings, toRatingResponse(rating))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateTeacher(w http.ResponseWriter, r *http.Request) {
	if !s.requireBearer(w, r) {
		return
	}
	id, err := decodeIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var req teacherUpdateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	teacher, err := s.teachers.UpdateTeacher(r.Context(), id, service.UpdateTeacherInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to update teacher")
		return
	}
	s.respondJSON(w, http.StatusOK, toTeacherResponse(teacher))
}

func (s *Server) handleDeleteTeacher(w http.ResponseWriter, r *http.Request) {
	if !s.requireBearer(w, r) {
		return
	}
	id, err := decodeIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	if err := s.teachers.DeleteTeacher(r.Context(), id); err != nil {
		s.respondServiceError(w, r, err, "Failed to delete teacher")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toTeacherResponse(teacher domain.Teacher) teacherResponse {
	return teacherResponse{
		ID:          teacher.ID.String(),
		Name:        teacher.Name,
		Description: teacher.Description,
		AvgRating:   teacher.AvgRating,
		UpdatedAt:   teacher.UpdatedAt,
	}
}
