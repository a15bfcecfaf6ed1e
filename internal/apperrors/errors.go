package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can decide between responding,
// dropping a message, or surfacing an HTTP status.
type Kind string

const (
	// KindTransientInfra is a queue, cache or store connection problem.
	KindTransientInfra Kind = "TRANSIENT_INFRA"

	// KindMalformedMessage is a queue payload that could not be decoded.
	KindMalformedMessage Kind = "MALFORMED_MESSAGE"

	// KindGeneration is a failure of the language-model collaborator.
	KindGeneration Kind = "GENERATION_FAILURE"

	// KindPersistence is a failure to write a report or user.
	KindPersistence Kind = "PERSISTENCE_FAILURE"

	KindValidation Kind = "VALIDATION"
	KindNotFound   Kind = "NOT_FOUND"
)

// AppError carries a Kind alongside a human-readable message.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

func TransientInfra(message string, err error) *AppError {
	return New(KindTransientInfra, message, err)
}

func MalformedMessage(message string, err error) *AppError {
	return New(KindMalformedMessage, message, err)
}

func Generation(message string, err error) *AppError {
	return New(KindGeneration, message, err)
}

func Persistence(message string, err error) *AppError {
	return New(KindPersistence, message, err)
}

func Validation(message string) *AppError {
	return New(KindValidation, message, nil)
}

func NotFound(resource string) *AppError {
	return New(KindNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// KindOf returns the Kind of the first AppError in err's chain, or "".
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
