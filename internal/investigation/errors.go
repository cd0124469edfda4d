/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package investigation

import (
	"errors"
	"fmt"
)

// ErrorCategory groups failures by how they are shown to the player.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConflict      ErrorCategory = "conflict"
	CategoryRemote        ErrorCategory = "remote"
)

// UniqueViolationCode is the conflict code reported for a unique constraint
// failure.
const UniqueViolationCode = "23505"

var (
	ErrNotConfigured = &Error{Category: CategoryConfiguration, Message: "The backend is not configured."}
	ErrNotFound      = &Error{Category: CategoryNotFound, Message: "Not found."}
	ErrConflict      = &Error{Category: CategoryConflict, Message: "Already exists."}
)

// Error is a categorized, user-presentable failure. Field names the column
// involved in a conflict, when known.
type Error struct {
	Category ErrorCategory
	Code     string
	Field    string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Category)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same category, so errors.Is(err, ErrNotFound)
// holds for every not-found failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Category == e.Category
}

func Validation(format string, args ...any) error {
	return &Error{Category: CategoryValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(message string) error {
	return &Error{Category: CategoryNotFound, Message: message}
}

func Conflict(field, message string) error {
	return &Error{Category: CategoryConflict, Code: UniqueViolationCode, Field: field, Message: message}
}

// Remote wraps a backend failure whose message is shown verbatim.
func Remote(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Category: CategoryRemote, Err: err}
}

// CategoryOf returns the category of err, treating uncategorized errors as
// remote failures.
func CategoryOf(err error) ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return CategoryRemote
}

// StatusText turns err into the single status line shown to the player.
// Unique conflicts on alias color and identity get a friendlier message.
func StatusText(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) && e.Category == CategoryConflict && e.Code == UniqueViolationCode {
		switch e.Field {
		case "alias_color":
			return "That color is already taken."
		case "identity":
			return "That identity is already taken."
		}
	}

	return err.Error()
}
