// Package tree builds and traverses per-root storage trees from
// persisted storage rows plus unconsumed creation journals (spec.md
// §4.1). Nodes live in an arena keyed by ident rather than as
// pointer-linked objects (design note: cyclic parent references),
// since Go values have no equivalent of Python's anytree node
// identity — a plain map of idents is simpler and GC-friendly.
package tree

import (
	"fmt"

	"github.com/snapvault/vaultkeeper/internal/domain"
)

// Node is one tree position. Storage is nil for a node that exists
// only because of an unconsumed creation journal (a "virtual" node) —
// it has not yet been materialised as a persisted Storage row.
type Node struct {
	Ident          string
	ParentIdent    string // "" if this is the tree's root node
	ChildrenIdents []string
	Storage        *domain.Storage
}

func (n *Node) Virtual() bool { return n.Storage == nil }

// Tree is the in-memory, per-root view built by Build. It is immutable
// after construction: callers that need a different prospective view
// (e.g. after a journal is consumed) must rebuild.
type Tree struct {
	RootID    string
	RootIdent string // ident of the node with no parent

	nodes     map[string]*Node
	insertion []string // ident insertion order, for deterministic Leaves()
}

// Build constructs the tree for one root from its non-Recycled
// storages plus its unconsumed create-kind journals, applied in
// append order. It must not be called for the distinguished recycle
// root, which holds unrelated orphans rather than one connected tree.
func Build(rootID string, storages []*domain.Storage, journals []*domain.Journal) (*Tree, error) {
	if rootID == domain.RecycleRootID {
		return nil, fmt.Errorf("tree.Build: recycle root has no single tree")
	}

	t := &Tree{RootID: rootID, nodes: make(map[string]*Node)}

	for _, s := range storages {
		parent := ""
		if s.ParentID != nil {
			parent = *s.ParentID
		}
		t.addNode(&Node{Ident: s.Ident, ParentIdent: parent, Storage: s})
	}
	for _, n := range t.nodes {
		if n.ParentIdent != "" {
			if p, ok := t.nodes[n.ParentIdent]; ok {
				p.ChildrenIdents = append(p.ChildrenIdents, n.Ident)
			}
		}
	}

	for _, j := range journals {
		if err := t.applyJournal(j); err != nil {
			return nil, err
		}
	}

	rootCount := 0
	for ident, n := range t.nodes {
		if n.ParentIdent == "" {
			t.RootIdent = ident
			rootCount++
		}
	}
	if rootCount > 1 {
		return nil, fmt.Errorf("tree.Build: root %s has %d disconnected nodes, expected 1", rootID, rootCount)
	}

	return t, nil
}

func (t *Tree) addNode(n *Node) {
	t.nodes[n.Ident] = n
	t.insertion = append(t.insertion, n.Ident)
}

// applyJournal implements the three creation layout rules from
// spec.md §4.1.
func (t *Tree) applyJournal(j *domain.Journal) error {
	switch j.Kind {
	case domain.JournalNormalCreate:
		n := &Node{Ident: j.Payload.NewIdent, ParentIdent: j.Payload.ParentIdent}
		t.addNode(n)
		if n.ParentIdent != "" {
			p, ok := t.nodes[n.ParentIdent]
			if !ok {
				return fmt.Errorf("tree.applyJournal: NormalCreate parent %s not found", n.ParentIdent)
			}
			p.ChildrenIdents = append(p.ChildrenIdents, n.Ident)
		}
		return nil

	case domain.JournalCreateFromQcow:
		return t.spliceBetween(j.Payload.NewIdent, j.Payload.SourceIdent)

	case domain.JournalCreateFromCdp:
		if len(j.Payload.SourceIdents) == 0 {
			return fmt.Errorf("tree.applyJournal: CreateFromCdp has no source idents")
		}
		source := j.Payload.SourceIdents[len(j.Payload.SourceIdents)-1]
		return t.spliceBetween(j.Payload.NewIdent, source)

	default:
		return nil // Destroy and other non-create kinds are not applied during build
	}
}

// spliceBetween inserts newIdent as source's sole child, reparenting
// source's former children onto it — the shared layout rule for
// CreateFromQcow and CreateFromCdp.
func (t *Tree) spliceBetween(newIdent, sourceIdent string) error {
	source, ok := t.nodes[sourceIdent]
	if !ok {
		return fmt.Errorf("tree.spliceBetween: source %s not found", sourceIdent)
	}

	n := &Node{Ident: newIdent, ParentIdent: sourceIdent, ChildrenIdents: source.ChildrenIdents}
	t.addNode(n)

	for _, childIdent := range n.ChildrenIdents {
		if c, ok := t.nodes[childIdent]; ok {
			c.ParentIdent = newIdent
		}
	}
	source.ChildrenIdents = []string{newIdent}
	return nil
}

// GetByIdent returns the node for ident, if present.
func (t *Tree) GetByIdent(ident string) (*Node, bool) {
	n, ok := t.nodes[ident]
	return n, ok
}

// Leaves returns nodes with no children, in insertion order.
func (t *Tree) Leaves() []*Node {
	var out []*Node
	for _, ident := range t.insertion {
		n := t.nodes[ident]
		if len(n.ChildrenIdents) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// BFS returns every node, root first, breadth-first.
func (t *Tree) BFS() []*Node {
	if t.RootIdent == "" {
		return nil
	}
	var out []*Node
	queue := []string{t.RootIdent}
	for len(queue) > 0 {
		ident := queue[0]
		queue = queue[1:]
		n, ok := t.nodes[ident]
		if !ok {
			continue
		}
		out = append(out, n)
		queue = append(queue, n.ChildrenIdents...)
	}
	return out
}

// DFSToRoot returns ident's node followed by its ancestors, leaf-to-root.
func (t *Tree) DFSToRoot(ident string) ([]*Node, error) {
	var out []*Node
	cur := ident
	for cur != "" {
		n, ok := t.nodes[cur]
		if !ok {
			return nil, fmt.Errorf("tree.DFSToRoot: node %s not found", cur)
		}
		out = append(out, n)
		cur = n.ParentIdent
	}
	return out, nil
}

// Parent returns n's parent node, if any.
func (t *Tree) Parent(n *Node) (*Node, bool) {
	if n.ParentIdent == "" {
		return nil, false
	}
	p, ok := t.nodes[n.ParentIdent]
	return p, ok
}
