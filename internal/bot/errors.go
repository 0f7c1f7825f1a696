package bot

import "errors"

// modelLoadFailedError signals a stored model that could not be installed.
// The orchestrator treats it as stale and retrains.
type modelLoadFailedError struct {
	id  string
	err error
}

func (e modelLoadFailedError) Error() string {
	if e.err == nil {
		return "model load failed: " + e.id
	}
	return "model load failed: " + e.id + ": " + e.err.Error()
}

func (e modelLoadFailedError) Unwrap() error { return e.err }

// ErrModelLoadFailed wraps the cause of a failed load of model id.
func ErrModelLoadFailed(id string, cause error) error {
	return modelLoadFailedError{id: id, err: cause}
}

// IsModelLoadFailed reports whether err came from a failed model load.
func IsModelLoadFailed(err error) bool {
	var e modelLoadFailedError
	return errors.As(err, &e)
}

// dependencyUnavailableError signals a missing trainable backend so the HTTP
// layer can return 503 Service Unavailable instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}
