package modelstore

import (
	"context"
	"strings"

	"nlud/pkg/types"
)

// scopedStore namespaces every id with a bot id so bots can share a backend.
type scopedStore struct {
	inner  Store
	prefix string
}

// Scoped returns a view of inner restricted to botID.
func Scoped(inner Store, botID string) Store {
	return &scopedStore{inner: inner, prefix: botID + "/"}
}

func (s *scopedStore) key(id string) string { return s.prefix + id }

func (s *scopedStore) HasModel(ctx context.Context, id string) (bool, error) {
	return s.inner.HasModel(ctx, s.key(id))
}

func (s *scopedStore) GetModel(ctx context.Context, id string) (*types.Model, error) {
	m, err := s.inner.GetModel(ctx, s.key(id))
	if IsModelNotFound(err) {
		return nil, ErrModelNotFound(id)
	}
	return m, err
}

func (s *scopedStore) PutModel(ctx context.Context, id string, m types.Model) error {
	return s.inner.PutModel(ctx, s.key(id), m)
}

func (s *scopedStore) DeleteModel(ctx context.Context, id string) error {
	return s.inner.DeleteModel(ctx, s.key(id))
}

func (s *scopedStore) ListModels(ctx context.Context, prefix string) ([]string, error) {
	ids, err := s.inner.ListModels(ctx, s.key(prefix))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, strings.TrimPrefix(id, s.prefix))
	}
	return out, nil
}
