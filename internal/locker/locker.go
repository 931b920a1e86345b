// Package locker implements the per-root exclusive lock with caller
// identity tracking (spec.md §4.3), grounded on the original's
// LockWithTrace plus its per-root locker registry.
package locker

import (
	"sync"

	"github.com/snapvault/vaultkeeper/internal/xerrors"
)

// rootLocker is one root's exclusive lock plus the identity of its
// current holder, if any.
type rootLocker struct {
	mu       sync.Mutex
	holderMu sync.Mutex
	holder   string
}

// Registry is the process-wide set of root lockers. All metadata
// mutation for a root must be performed while holding its locker
// (spec.md §4.3); the registry itself is guarded by an RWMutex so
// registration never blocks unrelated roots' acquire/release calls.
type Registry struct {
	mu      sync.RWMutex
	lockers map[string]*rootLocker
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{lockers: make(map[string]*rootLocker)}
}

// Register creates a locker for rootID if one does not already exist.
func (r *Registry) Register(rootID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lockers[rootID]; !ok {
		r.lockers[rootID] = &rootLocker{}
	}
}

// Deregister removes rootID's locker, e.g. when its root is
// invalidated. Callers must not hold the locker when deregistering.
func (r *Registry) Deregister(rootID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lockers, rootID)
}

func (r *Registry) lookup(rootID string) (*rootLocker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rl, ok := r.lockers[rootID]
	return rl, ok
}

// Acquire blocks until caller holds rootID's lock. It fails fast (no
// blocking) with StorageLockerNotExist for an unregistered root, and
// with StorageLockerRepeatGet if caller already holds the lock.
// Acquisition is non-cancellable, per spec.md §5: a timeout is not
// part of the contract.
func (r *Registry) Acquire(rootID, caller string) error {
	rl, ok := r.lookup(rootID)
	if !ok {
		return xerrors.New("locker.Acquire", xerrors.StorageLockerNotExist, "root locker does not exist: "+rootID)
	}

	rl.holderMu.Lock()
	if rl.holder == caller {
		rl.holderMu.Unlock()
		return xerrors.New("locker.Acquire", xerrors.StorageLockerRepeatGet, "caller already holds root locker: "+caller)
	}
	rl.holderMu.Unlock()

	rl.mu.Lock()

	rl.holderMu.Lock()
	rl.holder = caller
	rl.holderMu.Unlock()
	return nil
}

// Release releases rootID's lock. It is idempotent: releasing a lock
// not currently held by anyone is a no-op.
func (r *Registry) Release(rootID, caller string) {
	rl, ok := r.lookup(rootID)
	if !ok {
		return
	}

	rl.holderMu.Lock()
	if rl.holder != caller {
		rl.holderMu.Unlock()
		return
	}
	rl.holder = ""
	rl.holderMu.Unlock()

	rl.mu.Unlock()
}

// Holder returns the current holder of rootID's lock, or "" if free
// or unregistered. Useful for diagnostics.
func (r *Registry) Holder(rootID string) string {
	rl, ok := r.lookup(rootID)
	if !ok {
		return ""
	}
	rl.holderMu.Lock()
	defer rl.holderMu.Unlock()
	return rl.holder
}
