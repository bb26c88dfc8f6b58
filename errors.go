package vidoxide

import (
	"errors"
	"fmt"
)

var (
	// ErrInvariant is wrapped by errors for states that earlier validation
	// should have excluded.
	ErrInvariant = errors.New("internal invariant violated")

	// ErrIndexOutOfRange is wrapped by an IOError when an image index is not
	// below NumImages.
	ErrIndexOutOfRange = errors.New("image index out of range")
)

// FormatError is a malformed or unsupported header or pixel encoding. A source
// that fails to open with a FormatError is never usable.
type FormatError struct {
	Msg string
	Err error // Optional underlying error.
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("format: %s: %v", e.Msg, e.Err)
	}
	return "format: " + e.Msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// IOError is a failure to read one image of a sequence. Other indices may
// still be readable.
type IOError struct {
	Index int
	Err   error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("reading image %d: %v", e.Index, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
