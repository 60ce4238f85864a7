package services

import (
	"errors"

	"github.com/focusguard/backend/internal/storage"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateSite = errors.New("domain already blocked")
	ErrSessionActive = errors.New("a focus session is already running")
	ErrSessionEnded  = errors.New("focus session already ended")
	ErrInvalidDay    = errors.New("day must be YYYY-MM-DD")
)

// ValidationError carries per-field messages produced by a request's
// Validate method.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "validation failed" }

func validate(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// translate maps storage sentinels to service sentinels.
func translate(err error, conflict error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrConflict) && conflict != nil:
		return conflict
	}
	return err
}
