// Package errors provides the error-handling primitives used throughout the
// proxy: wrapping with context via github.com/pkg/errors, plus a Fatal
// marker for errors that should abort startup rather than be handled as a
// request-scoped failure.
package errors

import (
	goerrors "errors"

	"github.com/pkg/errors"
)

// re-export the pkg/errors surface this repo relies on so call sites only
// ever import this package.
var (
	New    = errors.New
	Errorf = errors.Errorf
	Wrap   = errors.Wrap
	Wrapf  = errors.Wrapf
)

// Is and As defer to the standard library so they work on errors produced
// by any package, not just ones wrapped with pkg/errors.
func Is(err, target error) bool         { return goerrors.Is(err, target) }
func As(err error, target interface{}) bool { return goerrors.As(err, target) }

type fatalError struct {
	msg string
}

func (e *fatalError) Error() string { return e.msg }

// Fatal returns an error marked fatal: IsFatal(Fatal(s)) is true.
func Fatal(s string) error {
	return &fatalError{msg: s}
}

// Fatalf is like Fatal but with fmt.Sprintf-style formatting.
func Fatalf(format string, args ...interface{}) error {
	return &fatalError{msg: errors.Errorf(format, args...).Error()}
}

// IsFatal returns true if err was produced by Fatal or Fatalf.
func IsFatal(err error) bool {
	var f *fatalError
	return goerrors.As(err, &f)
}
