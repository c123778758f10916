package cli

import "errors"

// Error variables for command handling.
var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrFieldRequired  = errors.New("field is required")
	ErrFieldNotFound  = errors.New("field not found")
	ErrValueRequired  = errors.New("value is required")
	ErrInvalidValue   = errors.New("value is not valid JSON (use --raw to store a string)")
	ErrTooManyArgs    = errors.New("too many arguments")
)
