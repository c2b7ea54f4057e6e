package domain

import (
	"time"

	"github.com/google/uuid"
)

// Teacher is a rateable entry in the directory. AvgRating is a cached mean of
// the teacher's ratings, rounded to two decimals.
type Teacher struct {
	ID          uuid.UUID
	Name        string
	Description string
	AvgRating   float64
	UpdatedAt   time.Time
}

// TeacherSummary is the slice of a teacher embedded in rating read models.
type TeacherSummary struct {
	ID        uuid.UUID
	Name      string
	AvgRating float64
}

// TeacherDetail bundles a teacher with its ratings.
type TeacherDetail struct {
	Teacher Teacher
	Ratings []Rating
}
