package filekv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/jrsteele09/go-session-identity/kvstore"
	"gopkg.in/yaml.v3"
)

var _ kvstore.Repo = (*FileRepo)(nil)

// FileRepo persists keys as a flat YAML mapping in a single file.
// Every write rewrites the file through a temp file and rename so readers in
// other processes never observe a partial document. Read-modify-write cycles
// hold an advisory lock on "<path>.lock", so processes sharing the file do not
// lose each other's keys.
type FileRepo struct {
	mu   sync.Mutex
	path string
}

// NewFileRepo returns a repo stored at path. The directory is created on first use.
func NewFileRepo(path string) *FileRepo {
	return &FileRepo{path: path}
}

func (r *FileRepo) Get(_ context.Context, key string) (string, bool, error) {
	var (
		v  string
		ok bool
	)
	err := r.view(func(values map[string]string) {
		v, ok = values[key]
	})
	return v, ok, err
}

func (r *FileRepo) Upsert(_ context.Context, key, value string) error {
	return r.update(func(values map[string]string) bool {
		values[key] = value
		return true
	})
}

func (r *FileRepo) Delete(_ context.Context, keys ...string) error {
	return r.update(func(values map[string]string) bool {
		changed := false
		for _, k := range keys {
			if _, ok := values[k]; ok {
				delete(values, k)
				changed = true
			}
		}
		return changed
	})
}

// Apply loads the file once, applies the whole batch and writes it back once
func (r *FileRepo) Apply(_ context.Context, b *kvstore.Batch) error {
	if b.Empty() {
		return nil
	}
	return r.update(func(values map[string]string) bool {
		for k, v := range b.Upserts {
			values[k] = v
		}
		for _, k := range b.Deletes {
			delete(values, k)
		}
		return true
	})
}

func (r *FileRepo) Keys(_ context.Context) ([]string, error) {
	var keys []string
	err := r.view(func(values map[string]string) {
		keys = make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *FileRepo) view(fn func(values map[string]string)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	unlock, err := r.lock(false)
	if err != nil {
		return err
	}
	defer unlock()

	values, err := r.load()
	if err != nil {
		return err
	}
	fn(values)
	return nil
}

// update runs fn on the current values and saves them when fn reports a change
func (r *FileRepo) update(fn func(values map[string]string) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	unlock, err := r.lock(true)
	if err != nil {
		return err
	}
	defer unlock()

	values, err := r.load()
	if err != nil {
		return err
	}
	if !fn(values) {
		return nil
	}
	return r.save(values)
}

func (r *FileRepo) lock(exclusive bool) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return nil, fmt.Errorf("[FileRepo.lock] %w", err)
	}
	f, err := os.OpenFile(r.path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("[FileRepo.lock] %w", err)
	}
	if err := lockFile(f, exclusive); err != nil {
		f.Close()
		return nil, fmt.Errorf("[FileRepo.lock] %s: %w", f.Name(), err)
	}
	return func() {
		_ = unlockFile(f)
		f.Close()
	}, nil
}

func (r *FileRepo) load() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[FileRepo.load] %w", err)
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("[FileRepo.load] decode %s: %w", r.path, err)
	}
	if values == nil {
		values = make(map[string]string)
	}
	return values, nil
}

func (r *FileRepo) save(values map[string]string) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("[FileRepo.save] encode: %w", err)
	}
	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("[FileRepo.save] %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("[FileRepo.save] write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[FileRepo.save] close: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("[FileRepo.save] chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("[FileRepo.save] rename: %w", err)
	}
	return nil
}
