package submission

import "errors"

var (
	ErrInvalid  = errors.New("invalid submission")
	ErrNotFound = errors.New("submission not found")
)
