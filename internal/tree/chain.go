// chain.go implements the chain builder: the minimal key-storage list
// needed to open a read, write, or read-write chain (spec.md §4.1,
// tested by the key-chain minimality property in §8).
package tree

import (
	"fmt"

	"github.com/snapvault/vaultkeeper/internal/domain"
)

// Intent is the purpose a chain is being opened for.
type Intent int

const (
	IntentRead Intent = iota
	IntentWrite
	IntentReadWrite
)

// FullChain walks from ident to the tree root and returns the real
// (non-virtual) storages along that path, root-first. Virtual nodes
// (unconsumed journal entries) are skipped: they are not yet openable
// on disk (spec.md §4.6).
func (t *Tree) FullChain(ident string) ([]*domain.Storage, error) {
	ancestors, err := t.DFSToRoot(ident)
	if err != nil {
		return nil, err
	}

	full := make([]*domain.Storage, 0, len(ancestors))
	for i := len(ancestors) - 1; i >= 0; i-- {
		if n := ancestors[i]; !n.Virtual() {
			full = append(full, n.Storage)
		}
	}
	return full, nil
}

// KeyChain computes the minimal key-storage subset of a full,
// root-first chain, per the rules in spec.md §4.1:
//   - the last element is always kept;
//   - index 0 is kept if it is a file-level-dedup root;
//   - index i is kept if its image path differs from chain[i+1]'s
//     (a file boundary);
//   - index i is kept if chain[i+1]'s status is a writing status
//     (its successor file is still being mutated, so the reader needs
//     this one too).
func KeyChain(full []*domain.Storage) []*domain.Storage {
	n := len(full)
	if n == 0 {
		return nil
	}

	keep := make([]bool, n)
	keep[n-1] = true
	if full[0].FileLevelDedup {
		keep[0] = true
	}
	for i := 0; i < n-1; i++ {
		if full[i].ImagePath != full[i+1].ImagePath {
			keep[i] = true
		}
		if domain.StatusWriting[full[i+1].Status] {
			keep[i] = true
		}
	}

	out := make([]*domain.Storage, 0, n)
	for i, k := range keep {
		if k {
			out = append(out, full[i])
		}
	}
	return out
}

// WriteChain narrows a key chain to the nodes sharing the image path
// of the last (tail) element, which must be in Creating status, per
// spec.md §4.1's write-intent rule.
func WriteChain(key []*domain.Storage) ([]*domain.Storage, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("tree.WriteChain: empty key chain")
	}
	tail := key[len(key)-1]
	if tail.Status != domain.StatusCreating {
		return nil, fmt.Errorf("tree.WriteChain: tail storage %s is not in Creating status", tail.Ident)
	}

	out := make([]*domain.Storage, 0, len(key))
	for _, s := range key {
		if s.ImagePath == tail.ImagePath {
			out = append(out, s)
		}
	}
	return out, nil
}

// BuildChain computes the key (and, for Write/ReadWrite, the
// write-narrowed) storage list needed to satisfy intent for the node
// identified by ident.
func (t *Tree) BuildChain(ident string, intent Intent) (key []*domain.Storage, write []*domain.Storage, err error) {
	full, err := t.FullChain(ident)
	if err != nil {
		return nil, nil, err
	}
	if len(full) == 0 {
		return nil, nil, fmt.Errorf("tree.BuildChain: no real storage found on path to %s", ident)
	}

	key = KeyChain(full)

	switch intent {
	case IntentWrite, IntentReadWrite:
		write, err = WriteChain(key)
		if err != nil {
			return nil, nil, err
		}
	}
	return key, write, nil
}
