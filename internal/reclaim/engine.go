package reclaim

import (
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snapvault/vaultkeeper/internal/domain"
	"github.com/snapvault/vaultkeeper/internal/imageservice"
	"github.com/snapvault/vaultkeeper/internal/locker"
	"github.com/snapvault/vaultkeeper/internal/metrics"
	"github.com/snapvault/vaultkeeper/internal/refmanager"
	"github.com/snapvault/vaultkeeper/internal/store"
	"github.com/snapvault/vaultkeeper/internal/tree"
)

// reclaimCaller is the fixed caller identity the reclamation engine
// presents to the root locker; it never needs a per-call trace since
// it is the only privileged system actor that runs collect passes.
const reclaimCaller = "reclaim-engine"

// Engine runs collect passes over roots, per spec.md §4.8.
type Engine struct {
	store   store.Store
	lockers *locker.Registry
	refs    *refmanager.Manager
	images  imageservice.Client
	log     zerolog.Logger
}

// New constructs a reclamation engine.
func New(s store.Store, lockers *locker.Registry, refs *refmanager.Manager, images imageservice.Client, log zerolog.Logger) *Engine {
	return &Engine{store: s, lockers: lockers, refs: refs, images: images, log: log}
}

// CollectAll runs one collect pass over every valid root, in the
// manner of the teacher's reconciler's ticker loop.
func (e *Engine) CollectAll() {
	roots, err := e.store.ListValidRoots()
	if err != nil {
		e.log.Error().Err(err).Msg("list valid roots")
		return
	}
	for _, r := range roots {
		if r.HashType == domain.HashTypeUnknown {
			continue
		}
		timer := metrics.NewReclaimTimer(r.ID)
		didWork, err := e.Collect(r.ID)
		timer.ObserveDuration()
		if err != nil {
			metrics.ReclaimPassErrors.Inc()
			e.log.Error().Err(err).Str("root_id", r.ID).Msg("collect pass failed")
			continue
		}
		if didWork {
			metrics.ReclaimPassesWithWork.Inc()
		}
	}
}

// Collect runs a single collect pass for rootID and reports whether it
// produced any work. It is safe to call repeatedly: a pass that
// produces no work is a no-op.
func (e *Engine) Collect(rootID string) (bool, error) {
	if rootID == domain.RecycleRootID {
		return e.collectRecycleRoot()
	}

	if err := e.lockers.Acquire(rootID, reclaimCaller); err != nil {
		return false, err
	}

	work, root, empty, err := e.analyzeUnderLock(rootID)
	if empty {
		e.lockers.Release(rootID, reclaimCaller)
		if err == nil {
			e.lockers.Deregister(rootID)
		}
		return false, err
	}
	e.lockers.Release(rootID, reclaimCaller)
	if err != nil {
		return false, err
	}
	if len(work) == 0 {
		return false, nil
	}

	e.executeAll(work, root.HashType)

	if err := e.lockers.Acquire(rootID, reclaimCaller); err != nil {
		return false, err
	}
	defer e.lockers.Release(rootID, reclaimCaller)

	if err := e.commitAll(work); err != nil {
		return false, err
	}
	return true, nil
}

// analyzeUnderLock computes a root's work list and, for merge work,
// pre-creates the new Creating-status storage rows the commit phase
// will later promote or fail. It runs fully inside the root locker.
func (e *Engine) analyzeUnderLock(rootID string) (work []*Work, root *domain.Root, empty bool, err error) {
	root, err = e.store.GetRoot(rootID)
	if err != nil {
		return nil, nil, true, err
	}

	storages, err := e.store.ListNonRecycledStorages(rootID)
	if err != nil {
		return nil, nil, true, err
	}
	if len(storages) == 0 {
		root.Valid = false
		if uerr := e.store.UpdateRoot(root); uerr != nil {
			return nil, nil, true, uerr
		}
		return nil, root, true, nil
	}

	t, err := tree.Build(rootID, storages, nil)
	if err != nil {
		return nil, nil, true, err
	}

	an := &analysis{store: e.store, refs: e.refs, tree: t}

	deleteWork, err := an.analyzeDeletes()
	if err != nil {
		return nil, nil, true, err
	}

	work = deleteWork
	if len(work) == 0 {
		work, err = an.analyzeMerges()
		if err != nil {
			return nil, nil, true, err
		}
	}
	if len(work) == 0 {
		return nil, root, false, nil
	}

	if err := e.persistAnalysis(work, root); err != nil {
		return nil, nil, true, err
	}
	return work, root, false, nil
}

// persistAnalysis writes the in-memory status changes and pre-created
// merge nodes analysis decided on, as a single transaction.
func (e *Engine) persistAnalysis(work []*Work, root *domain.Root) error {
	return e.store.Tx(func(m store.Mutator) error {
		for _, w := range work {
			switch w.Kind {
			case DeleteFile, DeleteQcowSnapshot:
				for _, s := range w.MergeChain {
					if err := m.UpdateStorage(s); err != nil {
						return err
					}
				}
				if w.Target != nil {
					if err := m.UpdateStorage(w.Target); err != nil {
						return err
					}
				}

			case MergeCdp:
				for _, s := range w.MergeChain {
					s.Status = domain.StatusRecycling
					if err := m.UpdateStorage(s); err != nil {
						return err
					}
				}
				w.NewStorage = newMergedQcowStorage(w.MergeChain[0], w.Parent, root.HashType)
				if err := m.CreateStorage(w.NewStorage); err != nil {
					return err
				}

			case MergeQcowTypeA:
				w.MergeChain[0].Status = domain.StatusRecycling
				if err := m.UpdateStorage(w.MergeChain[0]); err != nil {
					return err
				}

			case MergeQcowTypeB:
				w.MergeChain[0].Status = domain.StatusRecycling
				if err := m.UpdateStorage(w.MergeChain[0]); err != nil {
					return err
				}
				w.NewStorage = newMergedQcowStorage(w.MergeChain[0], w.Parent, root.HashType)
				if err := m.CreateStorage(w.NewStorage); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// newMergedQcowStorage mints the pre-created Creating-status node a
// CDP or cross-file QCOW merge produces, living alongside its
// to-be-merged source in the same directory.
func newMergedQcowStorage(source, parent *domain.Storage, hashType domain.HashType) *domain.Storage {
	_ = hashType // hash policy is opaque to the core; carried for the image-service call
	diskBytes := source.DiskBytes
	var parentIdent *string
	if parent != nil {
		p := parent.Ident
		parentIdent = &p
		diskBytes = parent.DiskBytes
	}

	ident := uuid.NewString()
	return &domain.Storage{
		Ident:     ident,
		RootID:    source.RootID,
		ParentID:  parentIdent,
		Kind:      domain.KindQCOW,
		DiskBytes: diskBytes,
		Status:    domain.StatusCreating,
		ImagePath: filepath.Join(filepath.Dir(source.ImagePath), ident+".qcow"),
	}
}

// collectRecycleRoot implements spec.md §4.8's recycle-root branch:
// every non-Recycled storage not currently in use is deleted, with no
// tree and no merge analysis.
func (e *Engine) collectRecycleRoot() (bool, error) {
	if err := e.lockers.Acquire(domain.RecycleRootID, reclaimCaller); err != nil {
		return false, err
	}

	storages, err := e.store.ListNonRecycledStorages(domain.RecycleRootID)
	if err != nil {
		e.lockers.Release(domain.RecycleRootID, reclaimCaller)
		return false, err
	}

	recycling := make(map[string]*domain.Storage)
	for _, s := range storages {
		if !e.refs.IsStorageUsing(s.Ident) {
			s.Status = domain.StatusRecycling
			recycling[s.Ident] = s
		}
	}
	if len(recycling) == 0 {
		e.lockers.Release(domain.RecycleRootID, reclaimCaller)
		return false, nil
	}

	an := &analysis{store: e.store, refs: e.refs}
	work := an.dedupDeleteWork(recycling)

	if err := e.persistAnalysis(work, &domain.Root{HashType: domain.HashTypeNone}); err != nil {
		e.lockers.Release(domain.RecycleRootID, reclaimCaller)
		return false, err
	}
	e.lockers.Release(domain.RecycleRootID, reclaimCaller)

	e.executeAll(work, domain.HashTypeNone)

	if err := e.lockers.Acquire(domain.RecycleRootID, reclaimCaller); err != nil {
		return false, err
	}
	defer e.lockers.Release(domain.RecycleRootID, reclaimCaller)

	if err := e.commitAll(work); err != nil {
		return false, err
	}
	return true, nil
}
