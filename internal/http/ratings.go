package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Clark-Hu/teacher-ratings/internal/domain"
	"github.com/Clark-Hu/teacher-ratings/internal/service"
)

type ratingCreateRequest struct {
	Rating      int     `json:"rating"`
	Description string  `json:"description"`
	UserID      *string `json:"userId"`
}

type ratingUpdateRequest struct {
	Rating      *int    `json:"rating"`
	Description *string `json:"description"`
}

type ratingResponse struct {
	ID          string                  `json:"id"`
	Rating      int                     `json:"rating"`
	Description string                  `json:"description"`
	TeacherID   string                  `json:"teacherId"`
	UserID      *string                 `json:"userId"`
	CreatedAt   time.Time               `json:"createdAt"`
	Teacher     *teacherSummaryResponse `json:"teacher,omitempty"`
	User        *userSummaryResponse    `json:"user,omitempty"`
}

type teacherSummaryResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	AvgRating float64 `json:"avgRating"`
}

type userSummaryResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ratingListResponse struct {
	Items []ratingResponse `json:"items"`
}

type ratingAggregateResponse struct {
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

func (s *Server) handleCreateRating(w http.ResponseWriter, r *http.Request) {
	teacherID, err := decodeIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var req ratingCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	input := service.CreateRatingInput{
		Rating:      req.Rating,
		Description: req.Description,
		TeacherID:   teacherID,
	}
	if req.UserID != nil && strings.TrimSpace(*req.UserID) != "" {
		userID, err := uuid.Parse(strings.TrimSpace(*req.UserID))
		if err != nil {
			s.respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Code:    string(service.CodeValidation),
				Message: "userId must be a UUID",
				Details: fieldDetails{Field: "userId"},
			})
			return
		}
		input.UserID = &userID
	}

	rating, err := s.ratings.CreateRating(r.Context(), input)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to create rating")
		return
	}

	w.Header().Set("Location", "/ratings/"+rating.ID.String())
	s.respondJSON(w, http.StatusCreated, toRatingResponse(rating))
}

func (s *Server) handleListTeacherRatings(w http.ResponseWriter, r *http.Request) {
	teacherID, err := decodeIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	ratings, err := s.ratings.ListRatingsByTeacher(r.Context(), teacherID)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to list ratings")
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingListResponse(ratings))
}

func (s *Server) handleGetRatingAggregate(w http.ResponseWriter, r *http.Request) {
	teacherID, err := decodeIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	agg, err := s.ratings.GetRatingStats(r.Context(), teacherID)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to fetch rating")
		return
	}
	s.respondJSON(w, http.StatusOK, ratingAggregateResponse{Average: agg.Average, Count: agg.Count})
}

func (s *Server) handleListRatings(w http.ResponseWriter, r *http.Request) {
	ratings, err := s.ratings.ListRatings(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to list ratings")
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingListResponse(ratings))
}

func (s *Server) handleGetRating(w http.ResponseWriter, r *http.Request) {
	id, err := decodeIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	rating, err := s.ratings.GetRating(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to fetch rating")
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingResponse(rating))
}

func (s *Server) handleUpdateRating(w http.ResponseWriter, r *http.Request) {
	if !s.requireBearer(w, r) {
		return
	}
	id, err := decodeIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var req ratingUpdateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	rating, err := s.ratings.UpdateRating(r.Context(), id, service.UpdateRatingInput{
		Rating:      req.Rating,
		Description: req.Description,
	})
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to update rating")
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingResponse(rating))
}

func (s *Server) handleDeleteRating(w http.ResponseWriter, r *http.Request) {
	if !s.requireBearer(w, r) {
		return
	}
	id, err := decodeIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	if err := s.ratings.DeleteRating(r.Context(), id); err != nil {
		s.respondServiceError(w, r, err, "Failed to delete rating")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toRatingListResponse(ratings []domain.Rating) ratingListResponse {
	items := make([]ratingResponse, 0, len(ratings))
	for _, rating := range ratings {
		items = append(items, toRatingResponse(rating))
	}
	return ratingListResponse{Items: items}
}

func toRatingResponse(rating domain.Rating) ratingResponse {
	resp := ratingResponse{
		ID:          rating.ID.String(),
		Rating:      rating.Rating,
		Description: rating.Description,
		TeacherID:   rating.TeacherID.String(),
		CreatedAt:   rating.CreatedAt,
	}
	if rating.UserID != nil {
		userID := rating.UserID.String()
		resp.UserID = &userID
	}
	if rating.Teacher != nil {
		resp.Teacher = &teacherSummaryResponse{
			ID:        rating.Teacher.ID.String(),
			Name:      rating.Teacher.Name,
			AvgRating: rating.Teacher.AvgRating,
		}
	}
	if rating.User != nil {
		resp.User = &userSummaryResponse{
			ID:   rating.User.ID.String(),
			Name: rating.User.Name,
		}
	}
	return resp
}
