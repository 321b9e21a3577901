package wsi

import (
	"errors"
	"fmt"
)

// Error kinds.  Errors returned by the slide, deepzoom, datastore and converter packages
// wrap one of these so callers can classify failures with errors.Is.
var (
	// ErrNotFound covers missing files, unresolved names and out-of-range tile addresses.
	ErrNotFound = errors.New("not found")

	// ErrDecode covers corrupt or unsupported slides and image encode failures.
	ErrDecode = errors.New("decode failed")

	// ErrIO covers failures reading from or writing to storage.
	ErrIO = errors.New("i/o failed")
)

// NotFoundf returns an error wrapping ErrNotFound.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// DecodeError wraps err as ErrDecode with a description of what was being decoded.
func DecodeError(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w: %v", fmt.Sprintf(format, args...), ErrDecode, err)
}

// IOError wraps err as ErrIO with a description of the failed operation.
func IOError(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w: %v", fmt.Sprintf(format, args...), ErrIO, err)
}

// ErrorKind returns the sentinel error classifying err or nil if err doesn't
// wrap any of them.
func ErrorKind(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrDecode):
		return ErrDecode
	case errors.Is(err, ErrIO):
		return ErrIO
	}
	return nil
}
