package domain

import (
	"time"

	"github.com/google/uuid"
)

// User mirrors an account owned by an external system. Only the id and the
// display name are kept locally.
type User struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// UserSummary is the slice of a user embedded in rating read models.
type UserSummary struct {
	ID   uuid.UUID
	Name string
}
