package chatconfig

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/botrelay/internal/logging"
)

// Cache holds loaded configs by name. It is safe for concurrent use.
type Cache struct {
	src Source
	log *logging.Logger

	mu        sync.RWMutex
	entries   map[string]ChatConfig
	onRefresh []func()
}

// NewCache creates a cache backed by src.
func NewCache(src Source, log *logging.Logger) *Cache {
	return &Cache{
		src:     src,
		log:     log.Sub("chatconfig"),
		entries: make(map[string]ChatConfig),
	}
}

// Get returns the named config, loading it on first use. Unknown names
// return ErrNotFound and are not cached.
func (c *Cache) Get(ctx context.Context, name string) (ChatConfig, error) {
	c.mu.RLock()
	cfg, ok := c.entries[name]
	c.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	cfg, err := c.src.Load(ctx, name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[name] = cfg
	c.mu.Unlock()
	c.log.Debug().Str("config", name).Msg("chat config loaded")
	return cfg, nil
}

// Invalidate drops one cached config.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}

// InvalidateAll drops every cached config and notifies OnRefresh listeners.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]ChatConfig)
	c.mu.Unlock()
	c.notify()
}

// Names returns the cached config names in sorted order.
func (c *Cache) Names() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	c.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Available lists every config name the source knows, cached or not.
// Sources that cannot list contribute the cached names only.
func (c *Cache) Available(ctx context.Context) ([]string, error) {
	names := c.Names()
	if l, ok := c.src.(Lister); ok {
		more, err := l.List(ctx)
		if err != nil {
			return nil, err
		}
		names = append(names, more...)
		slices.Sort(names)
		names = slices.Compact(names)
	}
	return names, nil
}

// OnRefresh registers fn to run after every Refresh or InvalidateAll.
func (c *Cache) OnRefresh(fn func()) {
	c.mu.Lock()
	c.onRefresh = append(c.onRefresh, fn)
	c.mu.Unlock()
}

// Refresh reloads every cached config. A config that fails to reload, or
// has vanished from its source, keeps its previous value.
func (c *Cache) Refresh(ctx context.Context) {
	for _, name := range c.Names() {
		cfg, err := c.src.Load(ctx, name)
		switch {
		case err != nil:
			c.log.Warn().Err(err).Str("config", name).Msg("chat config reload failed, keeping cached copy")
		case cfg != nil:
			c.mu.Lock()
			c.entries[name] = cfg
			c.mu.Unlock()
		}
	}
	c.notify()
}

// Run refreshes on every tick until ctx is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Refresh(ctx)
		}
	}
}

func (c *Cache) notify() {
	c.mu.RLock()
	fns := slices.Clone(c.onRefresh)
	c.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
