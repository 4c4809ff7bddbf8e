package engine

import "fmt"

// loadInProgressError signals that a concurrent Load is already running.
type loadInProgressError struct{}

func (loadInProgressError) Error() string { return "model load already in progress" }

// ErrLoadInProgress constructs a loadInProgressError.
func ErrLoadInProgress() error { return loadInProgressError{} }

// IsLoadInProgress reports whether err indicates a concurrent load attempt.
func IsLoadInProgress(err error) bool {
	_, ok := err.(loadInProgressError)
	return ok
}

// notLoadedError signals generation was requested while no session is live.
type notLoadedError struct{}

func (notLoadedError) Error() string { return "model is not loaded" }

// ErrNotLoaded constructs a notLoadedError.
func ErrNotLoaded() error { return notLoadedError{} }

// IsNotLoaded reports whether err indicates a missing session.
func IsNotLoaded(err error) bool {
	_, ok := err.(notLoadedError)
	return ok
}

// insufficientMemoryError signals the host lacks memory to hold the model.
type insufficientMemoryError struct {
	needed    uint64
	available uint64
}

func (e insufficientMemoryError) Error() string {
	return fmt.Sprintf("insufficient memory to load model: need %d bytes, %d available", e.needed, e.available)
}

// IsInsufficientMemory reports whether err indicates a failed memory check.
func IsInsufficientMemory(err error) bool {
	_, ok := err.(insufficientMemoryError)
	return ok
}

// dependencyUnavailableError signals a missing external dependency (e.g., the
// llama runtime) so callers can degrade instead of erroring hard.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing or failed
// runtime dependency.
func IsDependencyUnavailable(err error) bool {
	_, ok := err.(dependencyUnavailableError)
	return ok
}
