// Package apperr defines the error taxonomy shared by services and the HTTP
// layer. Services return *Error values; the HTTP boundary maps the Kind to a
// status code and renders the response envelope.
package apperr

import (
	"errors"
	"net/http"
	"sort"

	"gorm.io/gorm"
)

type Kind int

const (
	Internal Kind = iota
	InvalidArgument
	Unauthenticated
	Forbidden
	NotFound
	Conflict
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    Kind
	Message string
	// Fields holds per-field validation messages keyed by field name.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NewInvalidArgument(message string) *Error { return New(InvalidArgument, message) }
func NewUnauthenticated(message string) *Error { return New(Unauthenticated, message) }
func NewForbidden(message string) *Error       { return New(Forbidden, message) }
func NewNotFound(message string) *Error        { return New(NotFound, message) }
func NewConflict(message string) *Error        { return New(Conflict, message) }

// Validation builds an InvalidArgument error carrying field messages.
func Validation(fields map[string]string) *Error {
	return &Error{Kind: InvalidArgument, Message: "Invalid Data", Fields: fields}
}

// Field is a single-field validation error.
func Field(field, message string) *Error {
	return Validation(map[string]string{field: message})
}

// KindOf returns the Kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to its response status code.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case InvalidArgument:
		if len(e.Fields) > 0 {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message safe to show a client. Internal errors never
// leak their cause.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	return "Internal server error"
}

// FieldList renders field errors as [{field: message}] sorted by field.
func FieldList(err error) []map[string]string {
	var e *Error
	if !errors.As(err, &e) || len(e.Fields) == 0 {
		return []map[string]string{}
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]map[string]string, 0, len(names))
	for _, name := range names {
		out = append(out, map[string]string{name: e.Fields[name]})
	}
	return out
}

// FromDB translates store errors. Record-not-found becomes NotFound with the
// given message and unique violations become Conflict. Anything else is
// wrapped as Internal.
func FromDB(err error, notFoundMessage string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NewNotFound(notFoundMessage)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return Wrap(Conflict, "Resource already exists", err)
	default:
		return Wrap(Internal, "database error", err)
	}
}
