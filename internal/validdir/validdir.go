// Package validdir is the valid-storage-directory gate: a process-wide
// set of directories every storage file path must fall under, with a
// bounded LRU accelerating repeated membership checks (spec.md §5).
package validdir

import (
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 100_000

// Gate enforces membership of file paths in a set of valid directories.
// Mutations (Add/Remove) are exclusive; Check is shared-read and backed
// by a bounded LRU, mirroring the original's module-level
// rwlock.RWLockWrite plus its bounded lru_cache; the cache here holds
// defaultCacheSize entries.
type Gate struct {
	mu    sync.RWMutex
	dirs  map[string]bool
	cache *lru.Cache[string, bool]
}

// New constructs an empty gate.
func New() *Gate {
	cache, _ := lru.New[string, bool](defaultCacheSize)
	return &Gate{dirs: make(map[string]bool), cache: cache}
}

// Add registers dir as valid. Existing cache entries are invalidated
// since a previously-rejected path may now be included.
func (g *Gate) Add(dir string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dirs[filepath.Clean(dir)] = true
	g.cache.Purge()
}

// Remove deregisters dir.
func (g *Gate) Remove(dir string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.dirs, filepath.Clean(dir))
	g.cache.Purge()
}

// Check reports whether path lies under any registered directory.
func (g *Gate) Check(path string) bool {
	path = filepath.Clean(path)

	if v, ok := g.cache.Get(path); ok {
		return v
	}

	g.mu.RLock()
	included := false
	for dir := range g.dirs {
		if isInclude(dir, path) {
			included = true
			break
		}
	}
	g.mu.RUnlock()

	g.cache.Add(path, included)
	return included
}

// isInclude reports whether path lies under dir, via the same
// common-path comparison the original used.
func isInclude(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}
