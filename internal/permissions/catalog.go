// Package permissions holds the permission catalog, the permission
// expression language and submission validation.
package permissions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
)

// Config declares one permission kind and the kinds it includes.
// Includes may reference kinds that are not defined in the same catalog;
// referential integrity is enforced at submission time by the Validator,
// not at construction time.
type Config struct {
	Kind     string   `json:"kind"`
	Includes []string `json:"includes"`
}

// Catalog is the immutable set of known permission kinds. Safe for
// unsynchronized concurrent reads after construction.
type Catalog struct {
	configs []Config
	byKind  map[string]Config
}

// NewCatalog builds a Catalog from the given configs. It fails on an empty
// kind, a duplicate kind or an empty include entry.
func NewCatalog(configs []Config) (*Catalog, error) {
	byKind := make(map[string]Config, len(configs))
	for _, cfg := range configs {
		if cfg.Kind == "" {
			return nil, fmt.Errorf("permissions: %w: empty permission kind", ErrInvalidArgument)
		}
		if _, ok := byKind[cfg.Kind]; ok {
			return nil, fmt.Errorf("permissions: %w: duplicate permission kind %q", ErrInvalidArgument, cfg.Kind)
		}
		for _, include := range cfg.Includes {
			if include == "" {
				return nil, fmt.Errorf("permissions: %w: permission %q has an empty include", ErrInvalidArgument, cfg.Kind)
			}
		}
		byKind[cfg.Kind] = cfg
	}
	return &Catalog{configs: configs, byKind: byKind}, nil
}

// Has reports whether the kind is known.
func (c *Catalog) Has(kind string) bool {
	_, ok := c.byKind[kind]
	return ok
}

// ByKind returns the configuration for kind.
func (c *Catalog) ByKind(kind string) (Config, error) {
	cfg, ok := c.byKind[kind]
	if !ok {
		return Config{}, fmt.Errorf("permissions: %w: unknown permission kind %q", ErrNotFound, kind)
	}
	return cfg, nil
}

// Configs returns the catalog entries in construction order.
func (c *Catalog) Configs() []Config {
	out := make([]Config, len(c.configs))
	copy(out, c.configs)
	return out
}

// Source supplies a permission catalog, either from static in-process
// configuration or a remote document.
type Source interface {
	Load(ctx context.Context) (*Catalog, error)
}

// StaticSource serves a fixed catalog.
type StaticSource struct {
	catalog *Catalog
}

// NewStaticSource wraps an already-built catalog.
func NewStaticSource(catalog *Catalog) *StaticSource {
	return &StaticSource{catalog: catalog}
}

// Load returns the wrapped catalog.
func (s *StaticSource) Load(ctx context.Context) (*Catalog, error) {
	return s.catalog, nil
}

// FileSource reads the catalog from a JSON file holding a list of Config
// entries. Re-read on every Load so Holder.Reload picks up edits.
type FileSource struct {
	path string
}

// NewFileSource builds a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Load parses the file into a catalog.
func (s *FileSource) Load(ctx context.Context) (*Catalog, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("permissions: read %s: %w", s.path, err)
	}
	var configs []Config
	if err := json.Unmarshal(raw, &configs); err != nil {
		return nil, fmt.Errorf("permissions: parse %s: %w", s.path, err)
	}
	return NewCatalog(configs)
}

// Holder publishes the current catalog to concurrent readers. Reload
// replaces the whole catalog in one atomic swap, so a reader observes
// either the previous or the next catalog, never a partial one.
type Holder struct {
	source  Source
	current atomic.Pointer[Catalog]
}

// NewHolder loads the initial catalog from source.
func NewHolder(ctx context.Context, source Source) (*Holder, error) {
	h := &Holder{source: source}
	if err := h.Reload(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Current returns the active catalog.
func (h *Holder) Current() *Catalog {
	return h.current.Load()
}

// Reload fetches a fresh catalog from the source and swaps it in.
func (h *Holder) Reload(ctx context.Context) error {
	catalog, err := h.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("permissions: reload catalog: %w", err)
	}
	h.current.Store(catalog)
	return nil
}
