package modelstore

import (
	"context"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"nlud/pkg/types"
)

const defaultMemoryCapacity = 256

// MemoryStore keeps models in a bounded LRU; the least recently used model
// is dropped when capacity is reached.
type MemoryStore struct {
	cache *lru.Cache[string, types.Model]
}

// NewMemoryStore returns a store holding at most capacity models.
func NewMemoryStore(capacity int) (*MemoryStore, error) {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	c, err := lru.New[string, types.Model](capacity)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: c}, nil
}

func (s *MemoryStore) HasModel(_ context.Context, id string) (bool, error) {
	return s.cache.Contains(id), nil
}

func (s *MemoryStore) GetModel(_ context.Context, id string) (*types.Model, error) {
	m, ok := s.cache.Get(id)
	if !ok {
		return nil, ErrModelNotFound(id)
	}
	return &m, nil
}

func (s *MemoryStore) PutModel(_ context.Context, id string, m types.Model) error {
	s.cache.Add(id, m)
	return nil
}

func (s *MemoryStore) DeleteModel(_ context.Context, id string) error {
	s.cache.Remove(id)
	return nil
}

func (s *MemoryStore) ListModels(_ context.Context, prefix string) ([]string, error) {
	var out []string
	for _, k := range s.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}
