// Package fault defines the error kinds shared by every layer of the advisor.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Compare with errors.Is.
var (
	ErrInput        = errors.New("invalid input")
	ErrAnalyzer     = errors.New("analyzer failure")
	ErrParse        = errors.New("unparseable analysis")
	ErrStore        = errors.New("template store failure")
	ErrSuperseded   = errors.New("superseded by a newer request")
	ErrNotFound     = errors.New("not found")
	ErrBackpressure = errors.New("queue full")
)

var kinds = []error{ErrInput, ErrAnalyzer, ErrParse, ErrStore, ErrSuperseded, ErrNotFound, ErrBackpressure}

// Error carries the failing operation and its kind alongside the cause.
type Error struct {
	Op     string
	Kind   error
	Err    error
	Detail string
}

// Error renders op, kind, detail and cause. The kind is omitted when the
// cause already names it.
func (e *Error) Error() string {
	msg := e.Op
	if e.Kind != nil && (e.Err == nil || !errors.Is(e.Err, e.Kind)) {
		msg += ": " + e.Kind.Error()
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns an error of kind with a detail message.
func New(op string, kind error, detail string) error {
	return &Error{Op: op, Kind: kind, Detail: detail}
}

// Newf is New with formatting.
func Newf(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind. A nil err yields nil.
func Wrap(op string, kind error, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf returns the kind of err, or nil when err carries none. The
// outermost *Error decides when several are chained.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Kind != nil {
		return fe.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindName returns a short label for metrics and API error codes.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrInput:
		return "input"
	case ErrAnalyzer:
		return "analyzer"
	case ErrParse:
		return "parse"
	case ErrStore:
		return "store"
	case ErrSuperseded:
		return "superseded"
	case ErrNotFound:
		return "not_found"
	case ErrBackpressure:
		return "backpressure"
	default:
		return "internal"
	}
}

// UserMessage returns the fixed end-user text for err. Analyzer output is
// never part of it.
func UserMessage(err error) string {
	switch KindOf(err) {
	case ErrInput:
		var fe *Error
		if errors.As(err, &fe) && fe.Detail != "" {
			return fe.Detail
		}
		return "image and mode are required"
	case ErrAnalyzer:
		return "analysis failed, check connectivity"
	case ErrParse:
		return "could not interpret analysis"
	case ErrStore:
		return "template storage is unavailable, try again later"
	case ErrSuperseded:
		return "a newer analysis replaced this one"
	case ErrNotFound:
		return "not found"
	case ErrBackpressure:
		return "too many pending analyses, try again later"
	default:
		return "internal error"
	}
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ErrInput:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrAnalyzer:
		return http.StatusBadGateway
	case ErrParse:
		return http.StatusUnprocessableEntity
	case ErrStore:
		return http.StatusServiceUnavailable
	case ErrSuperseded:
		return http.StatusConflict
	case ErrBackpressure:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
