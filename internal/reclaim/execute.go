package reclaim

import (
	"github.com/snapvault/vaultkeeper/internal/domain"
	"github.com/snapvault/vaultkeeper/internal/imageservice"
)

// executeAll runs every work item's file IO/RPC outside the root
// locker (spec.md §5: "work items inside work() must never take the
// root locker"). Work items never raise: failures are recorded on the
// item and handled by the commit phase (spec.md §7).
func (e *Engine) executeAll(work []*Work, hashType domain.HashType) {
	for _, w := range work {
		e.execute(w, hashType)
	}
}

func (e *Engine) execute(w *Work, hashType domain.HashType) {
	var err error
	switch w.Kind {
	case DeleteFile:
		if w.MergeChain[0].Kind == domain.KindCDP {
			err = e.images.RemoveCdpFile(w.ImagePath)
		} else {
			err = e.images.RemoveQcowFile(w.ImagePath)
		}

	case DeleteQcowSnapshot:
		var code int
		code, err = e.images.DeleteSnapshotInQcowFile(w.Target.ImagePath, w.Target.Ident)
		if err == nil && imageservice.IsInUse(code) {
			err = errInUse
		}

	case MergeCdp:
		paths := make([]string, len(w.MergeChain))
		for i, s := range w.MergeChain {
			paths[i] = s.ImagePath
		}
		err = e.images.MergeCdpToQcow(hashType, w.NewStorage.ImagePath, paths)

	case MergeQcowTypeA:
		var parentPath string
		if w.Parent != nil {
			parentPath = w.Parent.ImagePath
		}
		err = e.images.MergeQcowSnapshotTypeA(parentPath, w.MergeChain[0].ImagePath)

	case MergeQcowTypeB:
		err = e.images.MergeQcowHashFile(w.MergeChain[0].ImagePath, w.NewStorage.ImagePath, w.NewStorage.DiskBytes)
	}

	if err != nil {
		e.log.Warn().Err(err).Str("kind", w.Kind.String()).Msg("reclamation work item failed")
		w.Successful = false
		return
	}
	w.Successful = true
}

var errInUse = &inUseError{}

type inUseError struct{}

func (*inUseError) Error() string { return "image file in use, retriable" }
