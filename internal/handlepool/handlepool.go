// Package handlepool maps opaque external handles to an acquired
// chain plus the opaque endpoint returned by the image-service daemon
// (spec.md §4.7, §6 "Handle protocol"), grounded on the original's
// handle_pool.py.
package handlepool

import (
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snapvault/vaultkeeper/internal/chain"
)

// Handle binds an external caller's opaque id to its acquired chain
// and the endpoint the image-service daemon returned for it.
type Handle struct {
	ID       string
	Chain    *chain.Chain
	Endpoint string

	mu     sync.Mutex
	closed bool
}

func (h *Handle) markClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.closed = true
	return true
}

// Pool is the process-wide handle registry.
type Pool struct {
	mu      sync.Mutex
	handles map[string]*Handle
	log     zerolog.Logger
}

// New constructs an empty pool. log is used for the "lost handle"
// warning emitted when a handle is garbage-collected without ever
// being closed (spec.md §5, §7).
func New(log zerolog.Logger) *Pool {
	return &Pool{handles: make(map[string]*Handle), log: log}
}

// Register mints a new handle id for an acquired chain and endpoint,
// and arms a finalizer so a dropped handle still releases its chain.
func (p *Pool) Register(c *chain.Chain, endpoint string) *Handle {
	h := &Handle{ID: uuid.NewString(), Chain: c, Endpoint: endpoint}

	p.mu.Lock()
	p.handles[h.ID] = h
	p.mu.Unlock()

	log := p.log
	runtime.SetFinalizer(h, func(h *Handle) {
		if !h.markClosed() {
			return
		}
		log.Warn().Str("handle_id", h.ID).Msg("handle garbage-collected without close, releasing chain")
		h.Chain.Release()
	})

	return h
}

// Get looks up a handle without removing it.
func (p *Pool) Get(id string) (*Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handles[id]
	return h, ok
}

// Pop removes and returns a handle, for use by Close.
func (p *Pool) Pop(id string) (*Handle, bool) {
	p.mu.Lock()
	h, ok := p.handles[id]
	if ok {
		delete(p.handles, id)
	}
	p.mu.Unlock()

	if ok {
		runtime.SetFinalizer(h, nil)
		h.markClosed()
	}
	return h, ok
}
