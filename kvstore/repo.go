// Package kvstore defines the string key-value persistence the credential store is built on.
package kvstore

import "context"

// Batch is a group of writes applied together by Repo.Apply
type Batch struct {
	Upserts map[string]string
	Deletes []string
}

// NewBatch returns an empty batch ready for Put and Remove
func NewBatch() *Batch {
	return &Batch{Upserts: map[string]string{}}
}

// Put queues key=value, replacing a queued delete of the same key
func (b *Batch) Put(key, value string) {
	b.Deletes = without(b.Deletes, key)
	b.Upserts[key] = value
}

// Remove queues the deletion of key, replacing a queued upsert of the same key
func (b *Batch) Remove(key string) {
	delete(b.Upserts, key)
	if !contains(b.Deletes, key) {
		b.Deletes = append(b.Deletes, key)
	}
}

func (b *Batch) Empty() bool {
	return b == nil || (len(b.Upserts) == 0 && len(b.Deletes) == 0)
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func without(keys []string, key string) []string {
	out := keys[:0]
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}

// Repo is a flat string key-value store. Absence is reported with ok=false, never an error.
type Repo interface {
	// Get returns the value for key and whether it was present
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Upsert creates or replaces the value for key
	Upsert(ctx context.Context, key, value string) error

	// Delete removes the keys; missing keys are ignored
	Delete(ctx context.Context, keys ...string) error

	// Apply writes every upsert and delete in b, or none of them when it fails
	Apply(ctx context.Context, b *Batch) error

	// Keys lists every key currently stored
	Keys(ctx context.Context) ([]string, error)
}
