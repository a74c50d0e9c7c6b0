// Package skerr wraps errors with a short contextual message while
// preserving the original error for errors.Is/errors.As, matching the
// wrapping idiom used throughout the teacher's codebase
// (skerr.Wrapf/skerr.Fmt/skerr.Wrap call sites).
package skerr

import "fmt"

// Wrap returns nil if err is nil, otherwise an error that still unwraps to
// err.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w", err)
}

// Wrapf annotates err with a formatted message. Returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Fmt builds a new error from a format string, with no wrapped cause.
func Fmt(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
