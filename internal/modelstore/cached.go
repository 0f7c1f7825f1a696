package modelstore

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"nlud/pkg/types"
)

// CachedStore fronts a slower backend with a local LRU of decoded models.
// Other replicas sharing the backend must call Invalidate when they delete
// a model; see events.ModelDeleted.
type CachedStore struct {
	inner Store
	cache *lru.Cache[string, types.Model]
}

// NewCachedStore wraps inner with an LRU of size entries.
func NewCachedStore(inner Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = defaultMemoryCapacity
	}
	c, err := lru.New[string, types.Model](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{inner: inner, cache: c}, nil
}

// Invalidate drops id from the local cache only.
func (s *CachedStore) Invalidate(id string) { s.cache.Remove(id) }

// Purge empties the local cache.
func (s *CachedStore) Purge() { s.cache.Purge() }

func (s *CachedStore) HasModel(ctx context.Context, id string) (bool, error) {
	if s.cache.Contains(id) {
		return true, nil
	}
	return s.inner.HasModel(ctx, id)
}

func (s *CachedStore) GetModel(ctx context.Context, id string) (*types.Model, error) {
	if m, ok := s.cache.Get(id); ok {
		return &m, nil
	}
	m, err := s.inner.GetModel(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, *m)
	return m, nil
}

func (s *CachedStore) PutModel(ctx context.Context, id string, m types.Model) error {
	if err := s.inner.PutModel(ctx, id, m); err != nil {
		return err
	}
	s.cache.Add(id, m)
	return nil
}

func (s *CachedStore) DeleteModel(ctx context.Context, id string) error {
	s.cache.Remove(id)
	return s.inner.DeleteModel(ctx, id)
}

func (s *CachedStore) ListModels(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.ListModels(ctx, prefix)
}
