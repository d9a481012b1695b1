package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidPosition        = errors.New("invalid position")
	ErrInvalidCompletionValue = errors.New("invalid completion value")
	ErrPersistence            = errors.New("persistence failure")

	ErrEmptyContent = errors.New("content is required")
	ErrEmptyTagName = errors.New("tag name is required")

	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("unauthorized")
)

// PersistenceError reports a store failure during Op. It matches ErrPersistence
// with errors.Is and unwraps to the underlying store error.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

var domainErrors = []error{
	ErrNotFound,
	ErrForbidden,
	ErrInvalidPosition,
	ErrInvalidCompletionValue,
	ErrPersistence,
	ErrEmptyContent,
	ErrEmptyTagName,
	ErrEmailTaken,
	ErrInvalidCredentials,
	ErrUnauthorized,
}

// storeErr lifts a raw store error into a *PersistenceError.
// Errors that already belong to the service taxonomy pass through untouched.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range domainErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	return &PersistenceError{Op: op, Err: err}
}

// ParseCompletionValue decodes a raw completion flag from a request body.
// Absent or null input yields nil. JSON booleans and boolean strings are accepted.
func ParseCompletionValue(raw json.RawMessage) (*bool, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var flag bool
	if err := json.Unmarshal([]byte(trimmed), &flag); err == nil {
		return &flag, nil
	}

	var text string
	if err := json.Unmarshal([]byte(trimmed), &text); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCompletionValue, trimmed)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty string", ErrInvalidCompletionValue)
	}
	return ParseCompletionText(text)
}

// ParseCompletionText decodes a completion flag given as text, e.g. a query parameter.
// Empty input yields nil.
func ParseCompletionText(text string) (*bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	flag, err := strconv.ParseBool(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCompletionValue, text)
	}
	return &flag, nil
}
