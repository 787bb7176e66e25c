package service

import "errors"

// Error taxonomy surfaced to handlers. Wrap these with fmt.Errorf and
// match with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrStorage    = errors.New("storage unavailable")
)
