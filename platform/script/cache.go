package script

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/robbyt/go-scriptsvc/internal/helpers"
)

// Cache maps source URLs to compiled programs. It is safe for concurrent use. With Watch enabled,
// entries backed by files are evicted when the file is written, removed or renamed, so the next
// evaluation recompiles from disk.
type Cache struct {
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*Executable
	paths   map[string]string

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// NewCache creates an empty cache.
func NewCache(handler slog.Handler) *Cache {
	_, logger := helpers.SetupLogger(handler, "script", "Cache")
	return &Cache{
		logger:  logger,
		entries: make(map[string]*Executable),
		paths:   make(map[string]string),
	}
}

// Get returns the cached executable for name.
func (c *Cache) Get(name string) (*Executable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	return e, ok
}

// Put stores e, replacing any previous entry with the same name.
func (c *Cache) Put(e *Executable) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[e.Name] = e
	if e.Path == "" {
		return
	}
	c.paths[e.Path] = e.Name
	if c.watcher != nil {
		c.watchLocked(e.Path)
	}
}

// Evict drops the entry for name.
func (c *Cache) Evict(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[name]; ok && e.Path != "" {
		delete(c.paths, e.Path)
	}
	delete(c.entries, name)
}

// Len returns the number of cached programs.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Watch starts evicting entries when their files change. Calling it twice is a no-op.
func (c *Cache) Watch() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	c.watcher = w
	for path := range c.paths {
		c.watchLocked(path)
	}

	c.wg.Add(1)
	go c.run(w)
	return nil
}

func (c *Cache) watchLocked(path string) {
	if err := c.watcher.Add(path); err != nil {
		c.logger.Debug("cannot watch script", "path", path, "error", err)
	}
}

func (c *Cache) run(w *fsnotify.Watcher) {
	defer c.wg.Done()
	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Create) {
				continue
			}
			c.evictPath(event.Name)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			c.logger.Warn("script watcher error", "error", err)
		}
	}
}

func (c *Cache) evictPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.paths[path]
	if !ok {
		return
	}
	delete(c.paths, path)
	delete(c.entries, name)
	c.logger.Info("script changed, evicted compiled program", "path", path, "op", "evict")
}

// Close stops the watcher and empties the cache.
func (c *Cache) Close() error {
	c.mu.Lock()
	w := c.watcher
	c.watcher = nil
	c.entries = make(map[string]*Executable)
	c.paths = make(map[string]string)
	c.mu.Unlock()

	if w == nil {
		return nil
	}
	err := w.Close()
	c.wg.Wait()
	if errors.Is(err, fsnotify.ErrClosed) {
		return nil
	}
	return err
}
