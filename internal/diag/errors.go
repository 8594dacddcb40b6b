// Package diag implements the errno-style error taxonomy shared by every
// package in the module: codes, wrapping with call-site context, and
// recovery of the original code from a wrapped error.
package diag

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is one of the small set of result codes every operation in the
// module returns on failure.
type Code int

const (
	// EOK indicates success; operations that can fail return nil, not EOK.
	EOK Code = iota
	// ENOMEM indicates an allocation could not be satisfied.
	ENOMEM
	// EINVAL indicates a type mismatch, structural invariant violation, or
	// format error.
	EINVAL
	// ENOTSUP indicates the operation is not implemented by this variant.
	ENOTSUP
	// ENOENT indicates a missing child or key.
	ENOENT
	// ELIMIT indicates an offset or length beyond a blob's extent.
	ELIMIT
	// EIO indicates an I/O failure from a source adapter.
	EIO
	// EEXIST is used internally by for_each-based get fallbacks to signal
	// "found, stop iterating" without it being a real error.
	EEXIST
)

func (c Code) String() string {
	switch c {
	case EOK:
		return "EOK"
	case ENOMEM:
		return "ENOMEM"
	case EINVAL:
		return "EINVAL"
	case ENOTSUP:
		return "ENOTSUP"
	case ENOENT:
		return "ENOENT"
	case ELIMIT:
		return "ELIMIT"
	case EIO:
		return "EIO"
	case EEXIST:
		return "EEXIST"
	default:
		return "EUNKNOWN"
	}
}

// codedError carries only a taxonomy code; Errorf and New wrap it with
// github.com/pkg/errors, so it sits at the root (Cause) of the error chain
// and the context message lives in the wrapping layer.
type codedError struct {
	code Code
}

func (e *codedError) Error() string { return e.code.String() }

// Errorf builds an error tagged with code, formatted like fmt.Errorf, wrapped
// with github.com/pkg/errors so Cause()/StackTrace() work at call sites.
func Errorf(code Code, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return errors.Wrap(&codedError{code: code}, msg)
}

// New builds a bare coded error with no extra message.
func New(code Code) error {
	return errors.WithStack(&codedError{code: code})
}

// CodeOf recovers the taxonomy code from an error built by Errorf or New. It
// returns EOK if err is nil, and EIO (treated as an opaque external failure)
// if err carries no code of its own.
func CodeOf(err error) Code {
	if err == nil {
		return EOK
	}
	if ce, ok := errors.Cause(err).(*codedError); ok {
		return ce.code
	}
	return EIO
}

// Is reports whether err was built with the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
