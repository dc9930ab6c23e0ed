package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Dataset lifecycle errors
	ErrNotFound        = fmt.Errorf("not found")
	ErrValidation      = fmt.Errorf("validation failed")
	ErrTransientWorker = fmt.Errorf("worker status unavailable")
	ErrParse           = fmt.Errorf("dataset could not be parsed")
	ErrNotReady        = fmt.Errorf("dataset is not ready")

	// Worker and transport errors
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrUnknownJob         = fmt.Errorf("unknown job kind")
	ErrUnsupportedArchive = fmt.Errorf("unsupported archive format")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
