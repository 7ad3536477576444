// Package rterrors provides basic utilities to construct errors.
//
// Use this package rather than the standard errors/fmt.Errorf, or any other
// third-party error package, to construct and wrap engine errors: it records
// stack traces and error chains, which makes fixture/test failures easier to
// diagnose when they are reported up to a reporter sink.
//
// To construct a new error, use New or Errorf:
//
//	rterrors.New("unknown fixture")
//	rterrors.Errorf("unknown fixture %q", name)
//
// To add context to an existing error, use Wrap or Wrapf:
//
//	rterrors.Wrap(err, "failed to set up fixture")
//	rterrors.Wrapf(err, "failed to set up fixture %q", name)
//
// A stack trace can be printed by formatting an error with the "%+v" verb.
package rterrors

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/apexrun/fixrunner/rterrors/stack"
)

// E is the error implementation used by this package.
type E struct {
	msg   string
	stk   stack.Stack
	cause error
}

// Error implements the error interface.
func (e *E) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.msg, e.cause.Error())
}

// Unwrap implements the error Unwrap interface.
func (e *E) Unwrap() error {
	return e.cause
}

type unwrapper interface {
	unwrap() (msg string, stk stack.Stack, cause error)
}

func (e *E) unwrap() (msg string, stk stack.Stack, cause error) {
	return e.msg, e.stk, e.cause
}

func formatChain(err error) string {
	var chain []string
	for err != nil {
		if e, ok := err.(unwrapper); ok {
			msg, stk, cause := e.unwrap()
			chain = append(chain, fmt.Sprintf("%s\n%v", msg, stk))
			err = cause
		} else {
			chain = append(chain, fmt.Sprintf("%s\n\tat ???", err.Error()))
			err = nil
		}
	}
	return strings.Join(chain, "\n")
}

// Format implements the fmt.Formatter interface. "%+v" prints the full error
// chain with stack traces; any other verb prints Error().
func (e *E) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		io.WriteString(s, formatChain(e))
	} else {
		io.WriteString(s, e.Error())
	}
}

// New creates a new error with the given message, recording the call site.
func New(msg string) *E {
	return &E{msg, stack.New(1), nil}
}

// Errorf creates a new error with the given message, recording the call site.
func Errorf(format string, args ...interface{}) *E {
	return &E{fmt.Sprintf(format, args...), stack.New(1), nil}
}

// Wrap creates a new error with the given message, wrapping cause. If cause
// is nil this behaves like New.
func Wrap(cause error, msg string) *E {
	return &E{msg, stack.New(1), cause}
}

// Wrapf creates a new error with the given message, wrapping cause. If cause
// is nil this behaves like Errorf.
func Wrapf(cause error, format string, args ...interface{}) *E {
	return &E{fmt.Sprintf(format, args...), stack.New(1), cause}
}

// Unwrap wraps the standard errors.Unwrap.
func Unwrap(err error) error { return errors.Unwrap(err) }

// As wraps the standard errors.As.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is wraps the standard errors.Is.
func Is(err, target error) bool { return errors.Is(err, target) }
