// Package modelstore persists trained models keyed by model id.
package modelstore

import (
	"context"
	"errors"

	"nlud/pkg/types"
)

// Store is content-addressed storage of serialized models.
type Store interface {
	// HasModel reports whether id is stored.
	HasModel(ctx context.Context, id string) (bool, error)
	// GetModel returns the model stored under id or a not-found error.
	GetModel(ctx context.Context, id string) (*types.Model, error)
	// PutModel stores m under id, replacing any previous value.
	PutModel(ctx context.Context, id string, m types.Model) error
	// DeleteModel removes id. Deleting an unknown id is not an error.
	DeleteModel(ctx context.Context, id string) error
	// ListModels returns the stored ids starting with prefix, sorted.
	ListModels(ctx context.Context, prefix string) ([]string, error)
}

type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound returns an error for a missing model id.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether err indicates a missing model id.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// Drivers accepted by Open.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open builds the backend named by driver.
func Open(driver, path string, cacheSize int) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(cacheSize)
	case DriverFile:
		return NewFileStore(path)
	case DriverSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, errors.New("unknown model store driver: " + driver)
	}
}
