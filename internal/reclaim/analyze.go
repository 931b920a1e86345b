package reclaim

import (
	"github.com/snapvault/vaultkeeper/internal/domain"
	"github.com/snapvault/vaultkeeper/internal/refmanager"
	"github.com/snapvault/vaultkeeper/internal/store"
	"github.com/snapvault/vaultkeeper/internal/tree"
)

// analysis holds the per-pass scratch state: the store for locator
// lookups, the reference manager for liveness checks, and the tree
// being walked.
type analysis struct {
	store store.Store
	refs  *refmanager.Manager
	tree  *tree.Tree
}

// canDelete implements spec.md §4.8's deletability predicate. Children
// statuses are read from the in-memory tree, which analyzeDeletes
// mutates bottom-up, so a child marked Recycling earlier in the same
// pass is already visible to its parent's check.
func (a *analysis) canDelete(n *tree.Node) (bool, error) {
	s := n.Storage
	if !domain.StatusCanDelete[s.Status] {
		return false, nil
	}

	invalid, err := a.allLocatorsInvalid(n)
	if err != nil {
		return false, err
	}
	if !invalid {
		return false, nil
	}

	if a.refs.IsStorageUsing(s.Ident) {
		return false, nil
	}
	if s.Kind == domain.KindQCOW && a.refs.IsStorageWriting(s.ImagePath) {
		return false, nil
	}

	for _, childIdent := range n.ChildrenIdents {
		child, ok := a.tree.GetByIdent(childIdent)
		if !ok || child.Virtual() {
			continue
		}
		if !domain.StatusRecycle[child.Storage.Status] {
			return false, nil
		}
	}
	return true, nil
}

// canMerge implements spec.md §4.8's can_merge(S, parent) predicate.
func (a *analysis) canMerge(n *tree.Node, parent *domain.Storage) (bool, error) {
	s := n.Storage
	if !domain.StatusCanMerge[s.Status] {
		return false, nil
	}
	if parent != nil && parent.Kind == domain.KindQCOW && parent.Status == domain.StatusRecycling {
		return false, nil
	}
	return a.allLocatorsInvalid(n)
}

// allLocatorsInvalid implements spec.md §4.8's all_locators_invalid,
// including the CDP still-referenced exception.
func (a *analysis) allLocatorsInvalid(n *tree.Node) (bool, error) {
	s := n.Storage
	if s.LocatorID == nil {
		return true, nil
	}

	diskSnapshots, err := a.store.ListDiskSnapshotsByLocator(*s.LocatorID)
	if err != nil {
		return false, err
	}

	for _, ds := range diskSnapshots {
		hs, err := a.store.GetHostSnapshot(ds.HostSnapshotID)
		if err != nil {
			continue
		}
		if !hs.Valid {
			continue
		}
		if s.Overlaps(hs.Begin, hs.End) {
			return false, nil
		}
		if hs.Kind == domain.HostSnapshotCDP && !anyChildSharesLocator(a.tree, n, *s.LocatorID) {
			return false, nil
		}
	}
	return true, nil
}

func anyChildSharesLocator(t *tree.Tree, n *tree.Node, locatorID string) bool {
	for _, childIdent := range n.ChildrenIdents {
		child, ok := t.GetByIdent(childIdent)
		if !ok || child.Virtual() {
			continue
		}
		if child.Storage.LocatorID != nil && *child.Storage.LocatorID == locatorID {
			return true
		}
	}
	return false
}

// analyzeDeletes runs the DFS-from-every-leaf delete analysis. It
// mutates the in-memory tree's storage statuses to Recycling as it
// decides to recycle a node, and returns one Work per recycled node,
// deduplicated per spec.md's "delete-work dedup" rule: a QCOW file
// whose every snapshot is being deleted yields one DeleteFile instead
// of one DeleteQcowSnapshot per snapshot.
func (a *analysis) analyzeDeletes() ([]*Work, error) {
	recycling := make(map[string]*domain.Storage) // ident -> storage, marked this pass

	for _, leaf := range a.tree.Leaves() {
		ident := leaf.Ident
		for {
			n, ok := a.tree.GetByIdent(ident)
			if !ok || n.Virtual() {
				break
			}
			if _, already := recycling[n.Ident]; already {
				break
			}
			ok2, err := a.canDelete(n)
			if err != nil {
				return nil, err
			}
			if !ok2 {
				break
			}
			n.Storage.Status = domain.StatusRecycling
			recycling[n.Ident] = n.Storage

			if n.ParentIdent == "" {
				break
			}
			ident = n.ParentIdent
		}
	}

	if len(recycling) == 0 {
		return nil, nil
	}
	return a.dedupDeleteWork(recycling), nil
}

// dedupDeleteWork groups recycled storages by image path: if every
// storage sharing a QCOW file is being recycled, emit one DeleteFile;
// otherwise emit DeleteQcowSnapshot per recycled snapshot in that file.
func (a *analysis) dedupDeleteWork(recycling map[string]*domain.Storage) []*Work {
	byPath := make(map[string][]*domain.Storage)
	for _, s := range recycling {
		byPath[s.ImagePath] = append(byPath[s.ImagePath], s)
	}

	var out []*Work
	for path, recycled := range byPath {
		if recycled[0].Kind == domain.KindCDP {
			out = append(out, &Work{Kind: DeleteFile, ImagePath: path, MergeChain: recycled})
			continue
		}

		all, err := a.store.ListStoragesByImagePath(path)
		wholeFile := err == nil && allRecycling(all, recycling)
		if wholeFile {
			out = append(out, &Work{Kind: DeleteFile, ImagePath: path, MergeChain: recycled})
			continue
		}
		for _, s := range recycled {
			out = append(out, &Work{Kind: DeleteQcowSnapshot, Target: s})
		}
	}
	return out
}

func allRecycling(all []*domain.Storage, recycling map[string]*domain.Storage) bool {
	for _, s := range all {
		if s.Status == domain.StatusRecycled {
			continue // already gone, doesn't block whole-file delete
		}
		if _, ok := recycling[s.Ident]; !ok {
			return false
		}
	}
	return true
}
