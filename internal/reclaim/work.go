// Package reclaim is the reclamation engine: the per-root scanner that
// produces delete/merge work under the root locker, executes it
// outside the critical section, and commits results atomically
// (spec.md §4.8), grounded on the original's storage_collection.py.
package reclaim

import "github.com/snapvault/vaultkeeper/internal/domain"

// Kind distinguishes the five work-item shapes spec.md §4.8 names.
type Kind int

const (
	DeleteFile Kind = iota
	DeleteQcowSnapshot
	MergeCdp
	MergeQcowTypeA
	MergeQcowTypeB
)

func (k Kind) String() string {
	switch k {
	case DeleteFile:
		return "delete_file"
	case DeleteQcowSnapshot:
		return "delete_qcow_snapshot"
	case MergeCdp:
		return "merge_cdp"
	case MergeQcowTypeA:
		return "merge_qcow_type_a"
	case MergeQcowTypeB:
		return "merge_qcow_type_b"
	default:
		return "unknown"
	}
}

// Work is one unit of reclamation work produced by analysis, executed
// outside the root locker, and committed back under it.
type Work struct {
	Kind Kind

	// Delete
	ImagePath string          // DeleteFile: the whole file to remove
	Target    *domain.Storage // DeleteQcowSnapshot: the single snapshot to remove

	// Merge
	MergeChain []*domain.Storage // the node(s) being folded away (root-first)
	Parent     *domain.Storage   // the surviving parent (TypeA) or the chain's parent (CDP/TypeB)
	NewStorage *domain.Storage   // pre-created Creating-status node for MergeCdp/TypeB
	Children   []*domain.Storage // children to reparent onto the merge's surviving node

	Successful bool
}
