// Package snapshot is the snapshot creator: it consumes a normal-create
// journal entry, derives the new storage's file path, inserts its
// tree row, and opens its write chain (spec.md §4.5).
package snapshot

import (
	"path/filepath"

	"github.com/snapvault/vaultkeeper/internal/domain"
)

// derivePath implements the file-reuse-vs-new-file decision from the
// original's NewPathBase/NewQcowPathWithParent/NewRootQcowPath/
// NewCdpImagePath: a CDP storage always gets its own file; a QCOW
// child reuses its parent's physical file iff all four hold: same
// disk size, same target folder, the parent is itself QCOW, and the
// parent is not still being ingested.
func derivePath(folder, newIdent string, kind domain.StorageKind, parent *domain.Storage, diskBytes int64) string {
	if kind == domain.KindCDP {
		return filepath.Join(folder, newIdent+".cdp")
	}

	if parent == nil {
		return filepath.Join(folder, newIdent+".qcow")
	}

	sameFolder := filepath.Dir(parent.ImagePath) == filepath.Clean(folder)
	reusable := parent.Kind == domain.KindQCOW &&
		parent.DiskBytes == diskBytes &&
		sameFolder &&
		parent.Status != domain.StatusCreating &&
		parent.Status != domain.StatusDataWriting

	if reusable {
		return parent.ImagePath
	}
	return filepath.Join(folder, newIdent+".qcow")
}
