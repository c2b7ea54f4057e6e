package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	MinRatingValue = 1
	MaxRatingValue = 5
)

// Rating represents a single review of a teacher. UserID is nil for
// anonymous ratings.
type Rating struct {
	ID          uuid.UUID
	Rating      int
	Description string
	TeacherID   uuid.UUID
	UserID      *uuid.UUID
	CreatedAt   time.Time

	// Expanded relations; populated depending on the query.
	Teacher *TeacherSummary
	User    *UserSummary
}

// RatingAggregate provides average and count for a teacher's ratings.
type RatingAggregate struct {
	Average float64
	Count   int64
}
