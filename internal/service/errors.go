package service

import (
	"errors"
	"fmt"
)

// Code discriminates the typed failures a service can return.
type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeDuplicateTeacher Code = "DUPLICATE_TEACHER"
	CodeTeacherNotFound  Code = "TEACHER_NOT_FOUND"
	CodeDuplicateRating  Code = "DUPLICATE_RATING"
	CodeRatingNotFound   Code = "RATING_NOT_FOUND"
	CodeUserNotFound     Code = "USER_NOT_FOUND"
)

// Error is a business-rule failure. Field is set for validation errors.
type Error struct {
	Code    Code
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the code carried by err, or "" when err is not a service error.
func CodeOf(err error) Code {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return ""
}

func validationError(field, message string) *Error {
	return &Error{Code: CodeValidation, Field: field, Message: message}
}

func teacherNotFound(err error) *Error {
	return &Error{Code: CodeTeacherNotFound, Message: "teacher not found", Err: err}
}

func duplicateTeacher(err error) *Error {
	return &Error{Code: CodeDuplicateTeacher, Field: "name", Message: "a teacher with the same name already exists", Err: err}
}

func ratingNotFound(err error) *Error {
	return &Error{Code: CodeRatingNotFound, Message: "rating not found", Err: err}
}

func duplicateRating(err error) *Error {
	return &Error{Code: CodeDuplicateRating, Field: "userId", Message: "user has already rated this teacher", Err: err}
}

func userNotFound(err error) *Error {
	return &Error{Code: CodeUserNotFound, Field: "userId", Message: "user not found", Err: err}
}
