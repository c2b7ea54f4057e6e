package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Clark-Hu/teacher-ratings/internal/service"
)

type userCreateRequest struct {
	ID   *string `json:"id"`
	Name string  `json:"name"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// handleCreateUser registers or renames a local user mirror.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if !s.requireBearer(w, r) {
		return
	}

	var req userCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	var id *uuid.UUID
	if req.ID != nil && strings.TrimSpace(*req.ID) != "" {
		parsed, err := uuid.Parse(strings.TrimSpace(*req.ID))
		if err != nil {
			s.respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Code:    string(service.CodeValidation),
				Message: "id must be a UUID",
				Details: fieldDetails{Field: "id"},
			})
			return
		}
		id = &parsed
	}

	user, err := s.ratings.RegisterUser(r.Context(), id, req.Name)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to register user")
		return
	}
	s.respondJSON(w, http.StatusCreated, userResponse{
		ID:        user.ID.String(),
		Name:      user.Name,
		CreatedAt: user.CreatedAt,
	})
}

func (s *Server) handleListUserRatings(w http.ResponseWriter, r *http.Request) {
	id, err := decodeIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	ratings, err := s.ratings.ListRatingsByUser(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to list ratings")
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingListResponse(ratings))
}
