package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrUserNotFound     = fmt.Errorf("user not found")

	// Provider errors
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrBillingRequest     = fmt.Errorf("billing request failed")
	ErrEmailSend          = fmt.Errorf("email send failed")
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrInvalidAPIKey      = fmt.Errorf("API key invalid")
	ErrAllModelsFailed    = fmt.Errorf("all models failed")
	ErrEmptyResponse      = fmt.Errorf("empty response")

	// Data errors
	ErrNotFound     = fmt.Errorf("document not found")
	ErrBatchCommit  = fmt.Errorf("batch commit failed")
	ErrLockHeld     = fmt.Errorf("lock already held")
	ErrMissingField = fmt.Errorf("missing required field")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
