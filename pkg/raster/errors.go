package raster

import (
	"errors"
	"fmt"
)

// The four error kinds every codec reports through. A multi-format prober
// treats FormatError as "try the next codec"; everything else aborts.

// FormatError reports that the leading bytes do not belong to the codec at
// all. It is the only recoverable kind.
type FormatError struct {
	Codec string
	Msg   string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: not a %s stream: %s", e.Codec, e.Codec, e.Msg)
}

// StructureError reports a recognized format whose structure is violated: a
// bad size field, checksum mismatch, over-length run, or EOF mid-structure.
// Row and Col are -1 when the failure is not tied to a pixel position.
type StructureError struct {
	Codec string
	Msg   string
	Row   int
	Col   int
	Err   error // underlying cause, usually an I/O error
}

func (e *StructureError) Error() string {
	s := e.Msg
	if e.Codec != "" {
		s = e.Codec + ": " + s
	}
	if e.Row >= 0 || e.Col >= 0 {
		s = fmt.Sprintf("%s (row %d, col %d)", s, e.Row, e.Col)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *StructureError) Unwrap() error { return e.Err }

// UnsupportedError reports well-formed input using a variant (bit depth,
// color mode, compression id) this codec does not implement.
type UnsupportedError struct {
	Codec string
	Msg   string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: unsupported: %s", e.Codec, e.Msg)
}

// MissingParameterError reports a required input the caller never supplied.
type MissingParameterError struct {
	Param string
}

func (e *MissingParameterError) Error() string {
	return "missing parameter: " + e.Param
}

// Formatf builds a FormatError.
func Formatf(codec, format string, args ...any) error {
	return &FormatError{Codec: codec, Msg: fmt.Sprintf(format, args...)}
}

// Structuref builds a StructureError with no pixel position.
func Structuref(codec, format string, args ...any) error {
	return &StructureError{Codec: codec, Msg: fmt.Sprintf(format, args...), Row: -1, Col: -1}
}

// StructureAt builds a StructureError pinned to a row/column.
func StructureAt(codec string, row, col int, format string, args ...any) error {
	return &StructureError{Codec: codec, Msg: fmt.Sprintf(format, args...), Row: row, Col: col}
}

// WrapIO rewraps a low-level read error as a StructureError so callers never
// have to match raw I/O error types.
func WrapIO(codec, context string, err error) error {
	return &StructureError{Codec: codec, Msg: context, Row: -1, Col: -1, Err: err}
}

// Unsupportedf builds an UnsupportedError.
func Unsupportedf(codec, format string, args ...any) error {
	return &UnsupportedError{Codec: codec, Msg: fmt.Sprintf(format, args...)}
}

// IsFormatMismatch reports whether err is a FormatError, i.e. whether a
// prober may continue with the next codec.
func IsFormatMismatch(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
