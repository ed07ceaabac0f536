package powerdata

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"smefit/domain/core"
	"smefit/domain/sme"
	"smefit/internal"
	"smefit/internal/errors"
	"smefit/ports"
)

// Policy controls how LoadOrCompute treats the cache
type Policy int

const (
	// LoadIfExists reads the cache when present and computes otherwise
	LoadIfExists Policy = iota
	// ForceRecompute ignores any cached copy and overwrites it
	ForceRecompute
	// DoNotCompute fails on a cache miss instead of computing
	DoNotCompute
)

// Cache stores subject power tensors as gob files under one directory.
// Tensors are large and rebuilt rarely, so a binary cache beats re-deriving
// them from raw recordings on every run.
type Cache struct {
	dir string
	log *internal.Logger
}

var _ ports.SubjectSource = (*Cache)(nil)

// NewCache creates a cache rooted at dir
func NewCache(dir string, log *internal.Logger) *Cache {
	if log == nil {
		log = internal.DefaultLogger
	}
	return &Cache{dir: dir, log: log.WithTag("Cache")}
}

// Path returns the cache file for a subject key
func (c *Cache) Path(key ports.SubjectKey) string {
	name := fmt.Sprintf("%s_%s_%d.gob", key.Subject, key.Task, key.Montage)
	return filepath.Join(c.dir, name)
}

// Exists reports whether the subject is cached
func (c *Cache) Exists(key ports.SubjectKey) bool {
	_, err := os.Stat(c.Path(key))
	return err == nil
}

// Load reads a cached subject
func (c *Cache) Load(ctx context.Context, key ports.SubjectKey) (*sme.SubjectData, error) {
	path := c.Path(key)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: subject %s", core.ErrNotFound, key.Subject)
	}
	if err != nil {
		return nil, errors.Wrap(err, "open cache file")
	}
	defer f.Close()

	var data sme.SubjectData
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return nil, errors.Wrapf(err, "decode cache file %s", path)
	}
	if err := data.Validate(); err != nil {
		return nil, errors.Wrapf(err, "cached subject %s is corrupt", key.Subject)
	}
	c.log.Debug("loaded %s from cache", key.Subject)
	return &data, nil
}

// Save writes a subject to the cache. The write goes through a temp file
// and rename so readers never observe a partial tensor.
func (c *Cache) Save(ctx context.Context, data *sme.SubjectData) error {
	if err := data.Validate(); err != nil {
		return errors.Wrap(err, "refusing to cache invalid subject")
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return errors.Wrap(err, "create cache directory")
	}

	key := ports.SubjectKey{Subject: data.Subject, Task: data.Task, Montage: data.Montage}
	path := c.Path(key)

	tmp, err := os.CreateTemp(c.dir, ".cache-*")
	if err != nil {
		return errors.Wrap(err, "create temp cache file")
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "encode subject")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp cache file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "publish cache file")
	}
	c.log.Debug("cached %s at %s", data.Subject, path)
	return nil
}

// LoadOrCompute resolves a subject through the cache under the given
// policy. The compute callback only runs when the policy allows it, and a
// computed subject is always written back.
func (c *Cache) LoadOrCompute(ctx context.Context, key ports.SubjectKey, policy Policy,
	compute func(ctx context.Context) (*sme.SubjectData, error)) (*sme.SubjectData, error) {

	if policy != ForceRecompute && c.Exists(key) {
		return c.Load(ctx, key)
	}
	if policy == DoNotCompute {
		return nil, fmt.Errorf("%w: subject %s is not cached", core.ErrNotFound, key.Subject)
	}
	if compute == nil {
		return nil, errors.InternalError("no compute callback for cache miss")
	}

	c.log.Info("computing %s (policy=%d)", key.Subject, policy)
	data, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Save(ctx, data); err != nil {
		return nil, err
	}
	return data, nil
}
