package lasformat

import (
	"errors"
	"fmt"
)

var (
	ErrNotRecognizedFormat   = errors.New("not a recognized LAS file")
	ErrUnsupportedVersion    = errors.New("unsupported LAS version")
	ErrUnknownPointFormat    = errors.New("unknown point data record format")
	ErrIncompatibleFieldType = errors.New("incompatible field type")
	ErrUnsupportedCast       = errors.New("unsupported cast")
	ErrInvalidStride         = errors.New("invalid record stride")
	ErrUnsupportedType       = errors.New("unsupported type")
	ErrShortBuffer           = errors.New("buffer too short")
	ErrRecordLength          = errors.New("point record length shorter than point format")
)

// IncompatibleFieldTypeError reports two same-named fields whose types cannot
// be reconciled. Name is dotted for nested fields.
type IncompatibleFieldTypeError struct {
	Name  string
	Left  DataType
	Right DataType
}

func (e *IncompatibleFieldTypeError) Error() string {
	return fmt.Sprintf("incompatible field type for %q: %s vs %s", e.Name, e.Left, e.Right)
}

func (e *IncompatibleFieldTypeError) Unwrap() error { return ErrIncompatibleFieldType }

// UnsupportedCastError reports a stored type that cannot be widened to a
// requested target type.
type UnsupportedCastError struct {
	From DataType
	To   DataType
}

func (e *UnsupportedCastError) Error() string {
	return fmt.Sprintf("unsupported cast from %s to %s", e.From, e.To)
}

func (e *UnsupportedCastError) Unwrap() error { return ErrUnsupportedCast }

// IsFileLocal reports whether err is a structural problem confined to one
// file: a bad signature, version, point format or record length, or a file too
// short to hold its own header. Such files are skipped; the rest of a
// multi-file query proceeds.
func IsFileLocal(err error) bool {
	return errors.Is(err, ErrNotRecognizedFormat) ||
		errors.Is(err, ErrUnsupportedVersion) ||
		errors.Is(err, ErrUnknownPointFormat) ||
		errors.Is(err, ErrShortBuffer) ||
		errors.Is(err, ErrRecordLength)
}

// ErrorKind returns a short stable label for the error, suitable for metric
// labels and log fields.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotRecognizedFormat):
		return "not_recognized_format"
	case errors.Is(err, ErrUnsupportedVersion):
		return "unsupported_version"
	case errors.Is(err, ErrUnknownPointFormat):
		return "unknown_point_format"
	case errors.Is(err, ErrIncompatibleFieldType):
		return "incompatible_field_type"
	case errors.Is(err, ErrUnsupportedCast):
		return "unsupported_cast"
	case errors.Is(err, ErrInvalidStride):
		return "invalid_stride"
	case errors.Is(err, ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, ErrShortBuffer):
		return "short_buffer"
	case errors.Is(err, ErrRecordLength):
		return "record_length"
	default:
		return "other"
	}
}
