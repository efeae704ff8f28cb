// Package rpaerr defines the error kinds shared by the archive codec, the
// pickle codec, and the runtime classifier. Wrap annotates an underlying
// error with luci-go's errors.Annotate builder.
package rpaerr

import (
	"errors"
	"fmt"

	luciErrors "github.com/luci/luci-go/common/errors"
)

// Kind classifies a failure the way callers need to branch on it. Kind
// values are logical, not wire values -- they never appear on disk.
type Kind int

// The error kinds the core can produce. See SPEC_FULL.md section 7.
const (
	_ Kind = iota
	IOError
	BadHeader
	BadPickle
	BadIndex
	Unsupported
	NotFound
	LayoutMismatch
	EmptyInput
	DecompileError
)

func (k Kind) String() string {
	switch k {
	case IOError:
		return "IOError"
	case BadHeader:
		return "BadHeader"
	case BadPickle:
		return "BadPickle"
	case BadIndex:
		return "BadIndex"
	case Unsupported:
		return "Unsupported"
	case NotFound:
		return "NotFound"
	case LayoutMismatch:
		return "LayoutMismatch"
	case EmptyInput:
		return "EmptyInput"
	case DecompileError:
		return "DecompileError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the concrete error type returned by this module's public APIs.
// It carries a Kind plus whatever byte offset or index key the failure
// pertains to, when one is known.
type Error struct {
	Kind   Kind
	Offset int64 // -1 when not applicable
	Key    string
	inner  error
}

func (e *Error) Error() string {
	switch {
	case e.Key != "":
		return fmt.Sprintf("%s: %s (entry %q)", e.Kind, e.inner, e.Key)
	case e.Offset >= 0:
		return fmt.Sprintf("%s: %s (offset 0x%x)", e.Kind, e.inner, e.Offset)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.inner)
	}
}

func (e *Error) Unwrap() error { return e.inner }

// KindOf reports the Kind of err, or false if err is not (or does not
// wrap) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// New builds an *Error of the given kind from a format string and args,
// in the style of errors.Reason.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Offset: -1, inner: fmt.Errorf(format, args...)}
}

// AtOffset is like New but records the byte offset the failure occurred
// at (e.g. an index offset that lies beyond the end of the archive).
func AtOffset(kind Kind, offset int64, format string, args ...interface{}) error {
	return &Error{Kind: kind, Offset: offset, inner: fmt.Errorf(format, args...)}
}

// ForKey is like New but records the index entry key the failure
// pertains to (e.g. a path rejected during extraction).
func ForKey(kind Kind, key string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Offset: -1, Key: key, inner: fmt.Errorf(format, args...)}
}

// Wrap annotates err with a Kind and a reason, using luci-go's
// Annotate().Reason() builder so the original error chain (and any
// %(key)s-style detail already attached upstream) is preserved.
func Wrap(err error, kind Kind, reason string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Offset: -1, inner: luciErrors.Annotate(err).Reason(reason).Err()}
}
