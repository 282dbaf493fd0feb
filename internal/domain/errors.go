package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures for propagation and reporting.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindUpstream       Kind = "upstream"
	KindParse          Kind = "parse"
	KindDelivery       Kind = "delivery"
	KindLockContention Kind = "lock_contention"
	KindInternal       Kind = "internal"
)

// Code is the wire representation used in webhook payloads.
func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindUpstream:
		return "UPSTREAM_ERROR"
	case KindParse:
		return "PARSE_ERROR"
	case KindDelivery:
		return "DELIVERY_ERROR"
	case KindLockContention:
		return "LOCK_CONTENTION"
	default:
		return "INTERNAL_ERROR"
	}
}

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskExists   = errors.New("task already exists")
	ErrTaskTerminal = errors.New("task already finished")
)

// Error attaches a Kind to an operation failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified error from a message.
func NewError(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Wrap classifies err; nil stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the outermost classification of err.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ToTaskError converts any error into its reportable form.
func ToTaskError(err error) *TaskError {
	if err == nil {
		return nil
	}
	return &TaskError{Code: KindOf(err).Code(), Message: err.Error()}
}
