package domain

import "fmt"

// NotFoundError represents a missing user or call.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// ConflictError represents a request that clashes with current call state,
// e.g. dialling a receiver that is already in a live call.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string {
	if e.Reason == "" {
		return "conflict"
	}
	return e.Reason
}

func (e ConflictError) Is(target error) bool {
	_, ok := target.(ConflictError)
	if ok {
		return true
	}
	_, ok = target.(*ConflictError)
	return ok
}

// ErrConflict is the sentinel error for state conflicts.
var ErrConflict = ConflictError{}

// InvalidArgumentError represents a malformed request.
type InvalidArgumentError struct {
	Reason string
}

func (e InvalidArgumentError) Error() string {
	if e.Reason == "" {
		return "invalid argument"
	}
	return e.Reason
}

func (e InvalidArgumentError) Is(target error) bool {
	_, ok := target.(InvalidArgumentError)
	if ok {
		return true
	}
	_, ok = target.(*InvalidArgumentError)
	return ok
}

// ErrInvalidArgument is the sentinel error for malformed requests.
var ErrInvalidArgument = InvalidArgumentError{}

// MisconfiguredError represents missing server-side credentials.
type MisconfiguredError struct {
	Missing string
}

func (e MisconfiguredError) Error() string {
	if e.Missing == "" {
		return "server misconfigured"
	}
	return fmt.Sprintf("server misconfigured: %s is not set", e.Missing)
}

func (e MisconfiguredError) Is(target error) bool {
	_, ok := target.(MisconfiguredError)
	if ok {
		return true
	}
	_, ok = target.(*MisconfiguredError)
	return ok
}

// ErrMisconfigured is the sentinel error for missing server configuration.
var ErrMisconfigured = MisconfiguredError{}
