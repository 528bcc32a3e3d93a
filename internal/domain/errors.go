package domain

import "errors"

var (
	// ErrUnknownPositionID is returned when a close references an id with no open position.
	ErrUnknownPositionID = errors.New("unknown position id")

	// ErrInsufficientPositionQuantity is returned when a close asks for more than remains open.
	ErrInsufficientPositionQuantity = errors.New("insufficient position quantity")

	// ErrPairMismatch is returned when a close pair differs from the located position's pair.
	ErrPairMismatch = errors.New("pair mismatch")

	// ErrInvalidRequest is returned for malformed input at the wire boundary.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)

// PositionError describes a rejected position operation.
// A rejected operation never changes ledger state.
type PositionError struct {
	Op         string // "close"
	PositionID string
	Err        error
}

func (e *PositionError) Error() string {
	return e.Op + " " + e.PositionID + ": " + e.Err.Error()
}

func (e *PositionError) Unwrap() error {
	return e.Err
}

// RequestError reports a bad field in a wire request.
type RequestError struct {
	Field string
	Err   error
}

func (e *RequestError) Error() string {
	return "request error [" + e.Field + "]: " + e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsRejection reports whether err is one of the recoverable ledger rejections.
func IsRejection(err error) bool {
	return errors.Is(err, ErrUnknownPositionID) ||
		errors.Is(err, ErrInsufficientPositionQuantity) ||
		errors.Is(err, ErrPairMismatch)
}
