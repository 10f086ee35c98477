package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jrsteele09/go-session-identity/kvstore"
)

var _ kvstore.Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of kvstore.Repo.
// Its lifetime is the process, which is what a tab-scoped lifetime needs.
type InMemoryRepo struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewInMemoryRepo creates a new empty in-memory repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		values: make(map[string]string),
	}
}

func (r *InMemoryRepo) Get(_ context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	return v, ok, nil
}

func (r *InMemoryRepo) Upsert(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}

func (r *InMemoryRepo) Delete(_ context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.values, k)
	}
	return nil
}

func (r *InMemoryRepo) Apply(_ context.Context, b *kvstore.Batch) error {
	if b.Empty() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range b.Upserts {
		r.values[k] = v
	}
	for _, k := range b.Deletes {
		delete(r.values, k)
	}
	return nil
}

func (r *InMemoryRepo) Keys(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
