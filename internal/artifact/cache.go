package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrCacheMiss is returned by Lookup when no usable precomputed artifact
// exists for a key.
var ErrCacheMiss = errors.New("artifact not cached")

// Key identifies a job's cacheable identity.
type Key struct {
	Subject string
	Kind    string
	Focus   string
}

// Filename maps a Key to its file name within the cache directory, e.g.
// {acme/widgets, quick, ""} -> "acme-widgets--quick.json".
func (k Key) Filename() string {
	name := slug(k.Subject) + "--" + slug(k.Kind)

	if k.Focus != "" {
		name += "--" + slug(k.Focus)
	}

	return name + ".json"
}

// Cache looks up precomputed artifacts in a read-only directory populated
// out of band. The directory is never written at request time, so lookups
// need no locking.
type Cache struct {
	dir string
}

// NewCache creates a Cache over dir. An empty dir disables the cache; every
// lookup misses.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Lookup returns the precomputed artifact for key, or ErrCacheMiss if no
// valid artifact exists. A present but malformed file is treated as a miss
// rather than served.
func (c *Cache) Lookup(key Key) (json.RawMessage, string, error) {
	if c.dir == "" {
		return nil, "", ErrCacheMiss
	}

	path := filepath.Join(c.dir, key.Filename())

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrCacheMiss
		}

		return nil, "", fmt.Errorf("read cached artifact: %w", err)
	}

	if !json.Valid(data) {
		return nil, "", fmt.Errorf("%w: %s is not valid JSON", ErrCacheMiss, path)
	}

	return json.RawMessage(data), path, nil
}

// slug normalises a key component for use in a file name. Anything outside
// [a-z0-9.] maps to '-'.
func slug(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}

	return b.String()
}
