// Package chain wraps a key-storage list with the reference-manager
// reservations needed to safely open it, implementing the three chain
// flavours of spec.md §4.4.
package chain

import (
	"fmt"
	"sync"

	"github.com/snapvault/vaultkeeper/internal/domain"
	"github.com/snapvault/vaultkeeper/internal/refmanager"
)

// Kind is which of the three chain flavours a Chain represents.
type Kind int

const (
	Read Kind = iota
	Write
	ReadWrite
)

// Chain is an acquired (or acquirable) sequence of key storages. Read
// chains register a reader record; Write chains register a writer
// record on the tail; ReadWrite chains register both. Acquire/Release
// must be called in pairs; Release is safe to call multiple times and
// on a chain that never finished acquiring.
type Chain struct {
	mu    sync.Mutex
	kind  Kind
	caller string

	keyStorages   []*domain.Storage
	writeStorages []*domain.Storage // tail's same-file siblings; only for Write/ReadWrite

	refs *refmanager.Manager

	acquiredReading bool
	acquiredWriting bool
}

// New constructs a chain for the given kind. key is the chain's full
// key list (root-first); write is the write-narrowed subset, required
// for Write and ReadWrite.
func New(kind Kind, caller string, key, write []*domain.Storage, refs *refmanager.Manager) (*Chain, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("chain.New: empty key chain")
	}
	if kind != Read && len(write) == 0 {
		return nil, fmt.Errorf("chain.New: write chain required for kind %v", kind)
	}
	return &Chain{kind: kind, caller: caller, keyStorages: key, writeStorages: write, refs: refs}, nil
}

// Key returns the chain's key storage list.
func (c *Chain) Key() []*domain.Storage { return c.keyStorages }

// Tail returns the chain's last (target) key storage.
func (c *Chain) Tail() *domain.Storage { return c.keyStorages[len(c.keyStorages)-1] }

// Acquire registers this chain's reservations. It must not be called
// twice on the same chain (spec.md §4.4: acquire is idempotent-
// rejected). On partial failure (e.g. the writer reservation fails
// after the reader one succeeded) any reservation already taken is
// released before the error is returned.
func (c *Chain) Acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.acquiredReading || c.acquiredWriting {
		return fmt.Errorf("chain.Acquire: chain already acquired")
	}

	if c.kind == Read || c.kind == ReadWrite {
		recs := make([]refmanager.Record, len(c.keyStorages))
		for i, s := range c.keyStorages {
			recs[i] = refmanager.Record{StorageIdent: s.Ident, ImagePath: s.ImagePath}
		}
		if err := c.refs.AddReading(c.caller, recs); err != nil {
			return err
		}
		c.acquiredReading = true
	}

	if c.kind == Write || c.kind == ReadWrite {
		tail := c.writeStorages[len(c.writeStorages)-1]
		rec := refmanager.Record{StorageIdent: tail.Ident, ImagePath: tail.ImagePath}
		if err := c.refs.AddWriting(c.caller, rec); err != nil {
			if c.acquiredReading {
				c.refs.RemoveReading(c.caller)
				c.acquiredReading = false
			}
			return err
		}
		c.acquiredWriting = true
	}

	return nil
}

// Release clears any reservations this chain holds. It is idempotent
// and safe to call on a chain that was never (fully) acquired.
func (c *Chain) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.acquiredReading {
		c.refs.RemoveReading(c.caller)
		c.acquiredReading = false
	}
	if c.acquiredWriting {
		c.refs.RemoveWriting(c.caller)
		c.acquiredWriting = false
	}
}
