package spt

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingColumns is wrapped by a FormatError when the header lacks required columns
	ErrMissingColumns = errors.New("required columns missing")
	// ErrNoDelimiter is wrapped by a FormatError when no field delimiter fits the sample
	ErrNoDelimiter = errors.New("field delimiter could not be determined")
	// ErrHeaderlessInvalid is wrapped when a header-less first row fails the positional check
	ErrHeaderlessInvalid = errors.New("header-less input failed positional check")
	// ErrBadValue is wrapped when a data field is not a number
	ErrBadValue = errors.New("invalid numeric value")
	// ErrEmptySource is returned for input without any rows
	ErrEmptySource = errors.New("empty input")
	// ErrEmptyResult reports that no track survived filtering. The engine
	// surfaces it as a status message rather than a run failure.
	ErrEmptyResult = errors.New("no tracks survived filtering")
	// ErrPolygonTooSmall is returned for a region with fewer than 3 vertices
	ErrPolygonTooSmall = errors.New("polygon needs at least 3 vertices")
)

// FormatError describes input that cannot be read as position records
type FormatError struct {
	Path     string
	Line     int
	Reason   string
	Expected []string
	Missing  []string
	Err      error
}

func (e *FormatError) Error() string {
	var b strings.Builder
	b.WriteString("format error")
	if e.Path != "" {
		fmt.Fprintf(&b, " in %s", e.Path)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " (line %d)", e.Line)
	}
	b.WriteString(": ")
	if e.Reason != "" {
		b.WriteString(e.Reason)
	} else if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, "; missing [%s]", strings.Join(e.Missing, ", "))
	}
	if len(e.Expected) > 0 {
		fmt.Fprintf(&b, "; expected columns [%s]", strings.Join(e.Expected, ", "))
	}
	return b.String()
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// WriteError reports an output destination that could not be written. The
// computation that preceded the write is unaffected.
type WriteError struct {
	Path string
	Op   string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// IsFormatError reports whether err carries a FormatError
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// IsWriteError reports whether err carries a WriteError
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}
