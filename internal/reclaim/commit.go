package reclaim

import (
	"github.com/snapvault/vaultkeeper/internal/domain"
	"github.com/snapvault/vaultkeeper/internal/store"
)

// commitAll applies every work item's result transactionally, per
// spec.md §4.8 step 3 / save_work_result. A work item that failed its
// execute() leaves its Recycling markers in place for the next pass to
// retry, rather than rolling anything back.
func (e *Engine) commitAll(work []*Work) error {
	return e.store.Tx(func(m store.Mutator) error {
		for _, w := range work {
			if err := commitOne(m, w); err != nil {
				return err
			}
		}
		return nil
	})
}

func commitOne(m store.Mutator, w *Work) error {
	switch w.Kind {
	case DeleteFile, DeleteQcowSnapshot:
		return commitDelete(m, w)
	case MergeCdp:
		return commitMergeCdp(m, w)
	case MergeQcowTypeA:
		return commitMergeQcowTypeA(m, w)
	case MergeQcowTypeB:
		return commitMergeQcowTypeB(m, w)
	}
	return nil
}

func commitDelete(m store.Mutator, w *Work) error {
	if !w.Successful {
		return nil
	}
	for _, s := range w.MergeChain {
		s.Status = domain.StatusRecycled
		if err := m.UpdateStorage(s); err != nil {
			return err
		}
	}
	if w.Target != nil {
		w.Target.Status = domain.StatusRecycled
		if err := m.UpdateStorage(w.Target); err != nil {
			return err
		}
	}
	return nil
}

func commitMergeCdp(m store.Mutator, w *Work) error {
	if !w.Successful {
		w.NewStorage.Status = domain.StatusException
		return m.UpdateStorage(w.NewStorage)
	}

	for _, child := range w.Children {
		parent := w.NewStorage.Ident
		child.ParentID = &parent
		if err := m.UpdateStorage(child); err != nil {
			return err
		}
	}
	for _, s := range w.MergeChain {
		s.LocatorID = nil
		if err := m.UpdateStorage(s); err != nil {
			return err
		}
	}
	w.NewStorage.Status = domain.StatusStorage
	return m.UpdateStorage(w.NewStorage)
}

// commitMergeQcowTypeA folds the merged node's children onto its
// parent with no new file, or — when the merged node was itself the
// tree's root — relocates it to the recycle root so the remaining
// subtree keeps a single connected root (spec.md §4.8, §8 "no tree
// split"). The non-root case leaves the merged node Recycling rather
// than Recycled: its snapshot data still lives inside the shared QCOW
// file, and only the next pass's DeleteQcowSnapshot work actually
// strips it via delete_snapshot_in_qcow_file.
func commitMergeQcowTypeA(m store.Mutator, w *Work) error {
	if !w.Successful {
		return nil
	}

	merged := w.MergeChain[0]
	merged.LocatorID = nil

	if w.Parent != nil {
		for _, child := range w.Children {
			parentIdent := w.Parent.Ident
			child.ParentID = &parentIdent
			if err := m.UpdateStorage(child); err != nil {
				return err
			}
		}
		return m.UpdateStorage(merged)
	}

	if len(w.Children) == 1 {
		w.Children[0].ParentID = nil
		if err := m.UpdateStorage(w.Children[0]); err != nil {
			return err
		}
	}
	merged.RootID = domain.RecycleRootID
	merged.ParentID = nil
	return m.UpdateStorage(merged)
}

func commitMergeQcowTypeB(m store.Mutator, w *Work) error {
	if !w.Successful {
		w.NewStorage.Status = domain.StatusException
		return m.UpdateStorage(w.NewStorage)
	}

	for _, child := range w.Children {
		parent := w.NewStorage.Ident
		child.ParentID = &parent
		if err := m.UpdateStorage(child); err != nil {
			return err
		}
	}
	merged := w.MergeChain[0]
	merged.LocatorID = nil
	merged.Status = domain.StatusRecycled
	if err := m.UpdateStorage(merged); err != nil {
		return err
	}
	w.NewStorage.Status = domain.StatusStorage
	return m.UpdateStorage(w.NewStorage)
}
