package engine

import (
	"errors"
	"fmt"
)

// modelNotLoadedError signals a prediction against a language without a model.
type modelNotLoadedError struct{ lang string }

func (e modelNotLoadedError) Error() string { return "model not loaded for language: " + e.lang }

// ErrModelNotLoaded constructs a modelNotLoadedError.
func ErrModelNotLoaded(lang string) error { return modelNotLoadedError{lang: lang} }

// IsModelNotLoaded reports whether err indicates a missing model for a language.
func IsModelNotLoaded(err error) bool {
	var e modelNotLoadedError
	return errors.As(err, &e)
}

// invalidModelError signals a serialized model that cannot be installed.
type invalidModelError struct{ reason string }

func (e invalidModelError) Error() string { return "invalid model: " + e.reason }

// IsInvalidModel reports whether err came from rejecting a serialized model.
func IsInvalidModel(err error) bool {
	var e invalidModelError
	return errors.As(err, &e)
}

func errInvalidModel(format string, args ...any) error {
	return invalidModelError{reason: fmt.Sprintf(format, args...)}
}

// ErrBackendUnavailable is returned by Train when no trainable backend is configured.
var ErrBackendUnavailable = errors.New("no trainable backend configured")
