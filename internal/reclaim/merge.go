package reclaim

import (
	"github.com/snapvault/vaultkeeper/internal/domain"
	"github.com/snapvault/vaultkeeper/internal/tree"
)

// analyzeMerges runs the BFS root-to-leaves merge analysis of
// spec.md §4.8. It is only invoked when analyzeDeletes produced no
// work for this pass. It returns at most one merge work: the moment it
// finds the first eligible internal node it marks that node Recycling
// and returns, mirroring the original's one-merge-per-pass cadence.
// Emitting every eligible merge in a single pass is unsafe, since
// analyzing a node never marks it Recycling until it is chosen — a
// same-file chain root -> A -> B(leaf) would otherwise let both the
// root and A be analyzed as eligible TypeA merges in the same BFS,
// each blind to the other's pending reparenting, and together split
// the tree or strand a child under a recycled node. The next pass
// re-evaluates from the mutated state.
func (a *analysis) analyzeMerges() ([]*Work, error) {
	for _, n := range a.tree.BFS() {
		if n.Virtual() {
			continue
		}
		if len(n.ChildrenIdents) == 0 {
			continue // leaves are handled by the delete path
		}
		if n.ParentIdent == "" && len(n.ChildrenIdents) >= 2 {
			continue // would split the tree
		}
		if n.Storage.FileLevelDedup {
			continue
		}

		var parentStorage *domain.Storage
		if p, ok := a.tree.Parent(n); ok && !p.Virtual() {
			parentStorage = p.Storage
		}

		ok, err := a.canMerge(n, parentStorage)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		var w *Work
		if n.Storage.Kind == domain.KindCDP {
			w, err = a.analyzeCDPMerge(n, parentStorage)
		} else {
			w, err = a.analyzeQcowMerge(n, parentStorage)
		}
		if err != nil {
			return nil, err
		}
		if w == nil {
			continue
		}

		n.Storage.Status = domain.StatusRecycling
		return []*Work{w}, nil
	}

	return nil, nil
}

// analyzeCDPMerge walks the consecutive run of CDP descendants
// starting at n, stopping at the first node that breaks the chain: a
// non-CDP node, a node with a recorded parent_timestamp (a
// mid-chain dependency), or a descendant that fails canMerge against
// its predecessor in the run. No merge is produced at all while the
// QCOW parent's file is being written.
func (a *analysis) analyzeCDPMerge(n *tree.Node, parent *domain.Storage) (*Work, error) {
	if parent != nil && parent.Kind == domain.KindQCOW && a.refs.IsStorageWriting(parent.ImagePath) {
		return nil, nil
	}

	var chain []*domain.Storage
	last := n
	cur := n
	for {
		s := cur.Storage
		if s.Kind != domain.KindCDP || s.ParentTimestamp != nil {
			break
		}
		if cur != n {
			ok, err := a.canMerge(cur, last.Storage)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
		}
		chain = append(chain, s)
		last = cur

		if len(cur.ChildrenIdents) != 1 {
			break
		}
		next, ok := a.tree.GetByIdent(cur.ChildrenIdents[0])
		if !ok || next.Virtual() {
			break
		}
		cur = next
	}

	if len(chain) == 0 {
		return nil, nil
	}

	var children []*domain.Storage
	for _, childIdent := range last.ChildrenIdents {
		c, ok := a.tree.GetByIdent(childIdent)
		if ok && !c.Virtual() {
			children = append(children, c.Storage)
		}
	}

	return &Work{
		Kind:       MergeCdp,
		MergeChain: chain,
		Parent:     parent,
		Children:   children,
	}, nil
}

// analyzeQcowMerge distinguishes the in-file (TypeA) and
// cross-file (TypeB) QCOW merges.
func (a *analysis) analyzeQcowMerge(n *tree.Node, parent *domain.Storage) (*Work, error) {
	s := n.Storage

	crossFile := false
	var children []*domain.Storage
	for _, childIdent := range n.ChildrenIdents {
		c, ok := a.tree.GetByIdent(childIdent)
		if !ok || c.Virtual() {
			continue
		}
		children = append(children, c.Storage)
		if c.Storage.ImagePath != s.ImagePath {
			crossFile = true
		}
	}

	if a.refs.IsStorageWriting(s.ImagePath) {
		return nil, nil
	}

	if crossFile {
		if parent == nil || parent.Kind != domain.KindQCOW || parent.DiskBytes != s.DiskBytes || parent.Status != domain.StatusStorage {
			return nil, nil
		}
		if !a.onlyStorageInFile(s) {
			return nil, nil
		}
		if a.refs.IsStorageWriting(parent.ImagePath) {
			return nil, nil
		}
		return &Work{Kind: MergeQcowTypeB, MergeChain: []*domain.Storage{s}, Parent: parent, Children: children}, nil
	}

	return &Work{Kind: MergeQcowTypeA, MergeChain: []*domain.Storage{s}, Parent: parent, Children: children}, nil
}

func (a *analysis) onlyStorageInFile(s *domain.Storage) bool {
	all, err := a.store.ListStoragesByImagePath(s.ImagePath)
	if err != nil {
		return false
	}
	for _, other := range all {
		if other.Ident != s.Ident && other.Status != domain.StatusRecycled {
			return false
		}
	}
	return true
}
