package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	goerrors "github.com/go-errors/errors"
)

type ErrorType string

const (
	ErrTypeAuthRequired ErrorType = "AUTH_REQUIRED"
	ErrTypeFetch        ErrorType = "FETCH"
	ErrTypeWrite        ErrorType = "WRITE"
	ErrTypeValidation   ErrorType = "VALIDATION"
	ErrTypeNotFound     ErrorType = "NOT_FOUND"
	ErrTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrTypeConflict     ErrorType = "CONFLICT"
	ErrTypeInternal     ErrorType = "INTERNAL"
	ErrTypeUnavailable  ErrorType = "UNAVAILABLE"
)

type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Fields  map[string]string
	Stack   []byte
}

func (e *DomainError) Error() string {
	msg := e.Message
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + e.Fields[k]
		}
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(parts, "; "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func (e *DomainError) StackTrace() []byte {
	return e.Stack
}

func New(errType ErrorType, message string, err error) *DomainError {
	var stack []byte
	if err != nil {
		if stackErr, ok := err.(*goerrors.Error); ok {
			stack = stackErr.Stack()
		} else {
			stack = goerrors.Wrap(err, 2).Stack()
		}
	} else {
		stack = goerrors.New(message).Stack()
	}

	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Stack:   stack,
	}
}

// TypeOf returns the type of the outermost DomainError in err's chain.
func TypeOf(err error) ErrorType {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Type
	}
	return ""
}

// FieldsOf returns the per-field messages of a validation error, if any.
func FieldsOf(err error) map[string]string {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Fields
	}
	return nil
}

// MessageOf returns the outermost DomainError's message without its cause,
// suitable for showing to a client.
func MessageOf(err error) string {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Message
	}
	return ""
}

func Is(err error, errType ErrorType) bool {
	return TypeOf(err) == errType
}

func AuthRequired(message string) *DomainError {
	return New(ErrTypeAuthRequired, message, nil)
}

func Fetch(message string, err error) *DomainError {
	return New(ErrTypeFetch, message, err)
}

func Write(message string, err error) *DomainError {
	return New(ErrTypeWrite, message, err)
}

// Validation builds an error carrying one message per offending field.
func Validation(message string, fields map[string]string) *DomainError {
	e := New(ErrTypeValidation, message, nil)
	e.Fields = fields
	return e
}

func NotFound(message string, err error) *DomainError {
	return New(ErrTypeNotFound, message, err)
}

func Unauthorized(message string, err error) *DomainError {
	return New(ErrTypeUnauthorized, message, err)
}

func Conflict(message string, err error) *DomainError {
	return New(ErrTypeConflict, message, err)
}

func Internal(message string, err error) *DomainError {
	return New(ErrTypeInternal, message, err)
}

func Unavailable(message string, err error) *DomainError {
	return New(ErrTypeUnavailable, message, err)
}
