package store

import (
	"fmt"

	"github.com/bourracho/chat-registry/internal/model"
)

// InvalidArgumentError indicates a missing or empty required identifier.
type InvalidArgumentError struct {
	Field   string
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Message)
}

// NotFoundError indicates the resource was not found.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError indicates an entity that fails schema validation.
type ValidationError = model.ValidationError

// ConflictError indicates a uniqueness/conflict violation.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// Required returns an InvalidArgumentError when value is empty.
func Required(field, value string) error {
	if value == "" {
		return &InvalidArgumentError{Field: field, Message: "is required"}
	}
	return nil
}
