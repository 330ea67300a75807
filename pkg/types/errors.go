package types

import "errors"

// Error classes a subset run can recover from. Anything else aborts the run.
var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
)

const (
	CodeNotFound = "not_found"
	CodeInvalid  = "invalid"
	CodeUnknown  = "unknown"
)

// Recoverable reports whether err belongs to a class the driver records and skips.
func Recoverable(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalid)
}

func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalid):
		return CodeInvalid
	default:
		return CodeUnknown
	}
}
