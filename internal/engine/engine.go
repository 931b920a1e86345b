// Package engine wires together every subsystem into the process-wide
// service surface, grounded on the composition style of the teacher's
// manager.Manager and the original's disk_snapshot_service.py request
// objects (CreateDiskSnapshotStorage / OpenDiskSnapshotStorage /
// CloseDiskSnapshotStorage).
package engine

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/snapvault/vaultkeeper/internal/chain"
	"github.com/snapvault/vaultkeeper/internal/config"
	"github.com/snapvault/vaultkeeper/internal/domain"
	"github.com/snapvault/vaultkeeper/internal/events"
	"github.com/snapvault/vaultkeeper/internal/handlepool"
	"github.com/snapvault/vaultkeeper/internal/imageservice"
	"github.com/snapvault/vaultkeeper/internal/journal"
	"github.com/snapvault/vaultkeeper/internal/locker"
	"github.com/snapvault/vaultkeeper/internal/logging"
	"github.com/snapvault/vaultkeeper/internal/metrics"
	"github.com/snapvault/vaultkeeper/internal/reclaim"
	"github.com/snapvault/vaultkeeper/internal/refmanager"
	"github.com/snapvault/vaultkeeper/internal/snapshot"
	"github.com/snapvault/vaultkeeper/internal/store"
	"github.com/snapvault/vaultkeeper/internal/tree"
	"github.com/snapvault/vaultkeeper/internal/validdir"
	"github.com/snapvault/vaultkeeper/internal/xerrors"
)

// Engine is the top-level service: it owns the store, every in-memory
// coordination structure, and the reclamation loop.
type Engine struct {
	cfg *config.Config
	log zerolog.Logger

	store    store.Store
	gate     *validdir.Gate
	lockers  *locker.Registry
	refs     *refmanager.Manager
	journals *journal.Manager
	creator  *snapshot.Creator
	handles  *handlepool.Pool
	images   imageservice.Client
	reclaim  *reclaim.Engine
	broker   *events.Broker

	stopCh chan struct{}
}

// New constructs an Engine from cfg, opening the bolt store and
// registering a locker for every root already on disk.
func New(cfg *config.Config) (*Engine, error) {
	log := logging.New(logging.Config{Level: logging.Level(cfg.Logging.Level), JSONOutput: cfg.Logging.JSONOutput})

	s, err := store.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, xerrors.Wrap("engine.New", xerrors.Internal, "open store", err)
	}
	if err := s.EnsureRecycleRoot(); err != nil {
		return nil, xerrors.Wrap("engine.New", xerrors.Internal, "ensure recycle root", err)
	}

	gate := validdir.New()
	for _, dir := range cfg.ValidDirectories {
		gate.Add(dir)
	}

	lockers := locker.NewRegistry()
	lockers.Register(domain.RecycleRootID)
	roots, err := s.ListValidRoots()
	if err != nil {
		return nil, xerrors.Wrap("engine.New", xerrors.Internal, "list roots", err)
	}
	for _, r := range roots {
		lockers.Register(r.ID)
	}

	refs := refmanager.New()
	journals := journal.New(s)
	images := imageservice.NewLocalFileClient(gate)
	creator := snapshot.New(s, journals, lockers, refs, logging.WithComponent(log, "snapshot"))
	handles := handlepool.New(logging.WithComponent(log, "handlepool"))
	reclaimEngine := reclaim.New(s, lockers, refs, images, logging.WithComponent(log, "reclaim"))

	broker := events.NewBroker()
	broker.Start()
	metrics.SubscribeBroker(broker)

	return &Engine{
		cfg: cfg, log: log,
		store: s, gate: gate, lockers: lockers, refs: refs,
		journals: journals, creator: creator, handles: handles,
		images: images, reclaim: reclaimEngine, broker: broker,
		stopCh: make(chan struct{}),
	}, nil
}

// RunReclaim starts the periodic collect loop, grounded on the
// teacher's metrics.Collector ticker idiom. It returns immediately;
// call Stop to halt it.
func (e *Engine) RunReclaim() {
	ticker := time.NewTicker(e.cfg.Reclaim.Interval)
	go func() {
		e.reclaim.CollectAll()
		for {
			select {
			case <-ticker.C:
				e.reclaim.CollectAll()
			case <-e.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the reclamation loop and the event broker, then closes
// the store.
func (e *Engine) Stop() error {
	close(e.stopCh)
	e.broker.Stop()
	return e.store.Close()
}

// EnsureRoot creates rootID's Root row with hashType if it does not
// already exist, and registers its locker, matching the original's
// lazy root-creation on first storage insert.
func (e *Engine) EnsureRoot(rootID string, hashType domain.HashType) error {
	if _, err := e.store.GetRoot(rootID); err == nil {
		return nil
	}
	if err := e.store.CreateRoot(&domain.Root{ID: rootID, HashType: hashType, Valid: true}); err != nil {
		return xerrors.Wrap("engine.EnsureRoot", xerrors.Internal, "create root", err)
	}
	e.lockers.Register(rootID)
	return nil
}

// AppendCreateJournal ensures rootID exists, then mints a pending
// create journal for it, returning the token a later Create call
// consumes (spec.md §3, §4.5 step 1).
func (e *Engine) AppendCreateJournal(rootID string, hashType domain.HashType, kind domain.JournalKind, payload domain.JournalPayload) (string, error) {
	if err := e.EnsureRoot(rootID, hashType); err != nil {
		return "", err
	}
	return e.journals.Append(rootID, kind, payload)
}

// CollectRoot runs a single reclamation collect pass for rootID,
// bypassing the periodic ticker. Useful for an operator-triggered
// one-off pass.
func (e *Engine) CollectRoot(rootID string) (bool, error) {
	return e.reclaim.Collect(rootID)
}

// CreateRequest is what a caller presents to Create.
type CreateRequest struct {
	Token     string
	CallerPID int
	Trace     string
	Folder    string
}

// CreateResponse carries the new storage's identity and the handle
// the caller must later Close.
type CreateResponse struct {
	StorageIdent string
	HandleID     string
	Endpoint     string
}

// Create consumes a pending create journal and opens a writable handle,
// backed by a read-write chain, onto the freshly inserted storage,
// mirroring CreateDiskSnapshotStorage.execute.
func (e *Engine) Create(req CreateRequest) (*CreateResponse, error) {
	result, err := e.creator.Create(snapshot.Request{
		Token: req.Token, CallerPID: req.CallerPID, Trace: req.Trace, Folder: req.Folder,
	})
	if err != nil {
		return nil, err
	}

	if err := e.ensureImageFile(result.Storage); err != nil {
		result.Chain.Release()
		return nil, xerrors.Wrap("engine.Create", xerrors.Internal, "create image file", err)
	}

	tail := result.Chain.Tail()
	writable := true
	endpoint, ierr := e.images.Open(tail.ImagePath, writable)
	if ierr != nil {
		result.Chain.Release()
		return nil, xerrors.Wrap("engine.Create", xerrors.Internal, "open image file", ierr)
	}

	h := e.handles.Register(result.Chain, endpoint)
	e.broker.Publish(&events.Event{Type: events.StorageCreated, RootID: result.Storage.RootID, StorageID: result.Storage.Ident})
	e.broker.Publish(&events.Event{Type: events.ChainAcquired, Detail: "write"})

	return &CreateResponse{StorageIdent: result.Storage.Ident, HandleID: h.ID, Endpoint: h.Endpoint}, nil
}

// ensureImageFile creates the new storage's underlying image file
// unless it reuses its parent's file verbatim (derivePath's reuse
// case), mirroring the original's NewDiskSnapshotStorage call into
// storage_action before the write handle is opened.
func (e *Engine) ensureImageFile(s *domain.Storage) error {
	if s.ParentID != nil {
		parent, err := e.store.GetStorage(*s.ParentID)
		if err == nil && parent.ImagePath == s.ImagePath {
			return nil
		}
	}
	if s.Kind == domain.KindCDP {
		return e.images.CreateCdpFile(s.ImagePath)
	}
	return e.images.CreateQcowFile(s.ImagePath, s.DiskBytes)
}

// OpenRequest describes a read-chain request for an existing storage,
// either by direct storage identity, or — when HostSnapshotID is set —
// by spec.md §4.6's read-by-host-snapshot variant, which resolves the
// storage to open from the host snapshot's disk snapshots and the
// requested Timestamp instead.
type OpenRequest struct {
	RootID       string
	StorageIdent string
	CallerPID    int
	Trace        string

	HostSnapshotID string // read-by-host-snapshot variant; RootID/StorageIdent are ignored
	Timestamp      *int64 // required when HostSnapshotID is set
}

// OpenResponse carries the handle and endpoint for a read.
type OpenResponse struct {
	HandleID string
	Endpoint string
}

// Open builds and acquires a read chain and opens it read-only through
// the image service, mirroring OpenDiskSnapshotStorage.execute.
func (e *Engine) Open(req OpenRequest) (*OpenResponse, error) {
	if req.HostSnapshotID != "" {
		return e.openByHostSnapshot(req)
	}

	caller := domain.CallerFlag(req.CallerPID, req.Trace)

	if err := e.lockers.Acquire(req.RootID, caller); err != nil {
		return nil, err
	}

	storages, err := e.store.ListNonRecycledStorages(req.RootID)
	if err != nil {
		e.lockers.Release(req.RootID, caller)
		return nil, err
	}
	t, err := tree.Build(req.RootID, storages, nil)
	if err != nil {
		e.lockers.Release(req.RootID, caller)
		return nil, err
	}

	key, _, err := t.BuildChain(req.StorageIdent, tree.IntentRead)
	if err != nil {
		e.lockers.Release(req.RootID, caller)
		return nil, err
	}

	ch, err := chain.New(chain.Read, caller, key, nil, e.refs)
	if err != nil {
		e.lockers.Release(req.RootID, caller)
		return nil, err
	}
	if err := ch.Acquire(); err != nil {
		e.lockers.Release(req.RootID, caller)
		return nil, err
	}
	e.lockers.Release(req.RootID, caller)

	endpoint, err := e.images.Open(ch.Tail().ImagePath, false)
	if err != nil {
		ch.Release()
		return nil, xerrors.Wrap("engine.Open", xerrors.Internal, "open image file", err)
	}

	h := e.handles.Register(ch, endpoint)
	e.broker.Publish(&events.Event{Type: events.ChainAcquired, Detail: "read"})
	return &OpenResponse{HandleID: h.ID, Endpoint: h.Endpoint}, nil
}

// openByHostSnapshot implements spec.md §4.6's read-by-host-snapshot
// variant: resolve the host snapshot, walk its disk snapshots, and
// find the storage whose interval contains the requested timestamp
// (CDP) or whose begin=end=timestamp (normal), then delegate to the
// same direct-identity Open path to build and acquire the read chain.
func (e *Engine) openByHostSnapshot(req OpenRequest) (*OpenResponse, error) {
	if req.Timestamp == nil {
		return nil, xerrors.New("engine.Open", xerrors.HostSnapshotInvalid, "timestamp required for host-snapshot open")
	}

	hs, err := e.store.GetHostSnapshot(req.HostSnapshotID)
	if err != nil {
		return nil, xerrors.Wrap("engine.Open", xerrors.HostSnapshotInvalid, "get host snapshot", err)
	}
	ts := *req.Timestamp
	if !hs.Valid || ts < hs.Begin || ts > hs.End {
		return nil, xerrors.New("engine.Open", xerrors.HostSnapshotInvalid, "host snapshot invalid or timestamp outside its range: "+hs.ID)
	}

	diskSnapshots, err := e.store.ListDiskSnapshotsByHostSnapshot(hs.ID)
	if err != nil {
		return nil, xerrors.Wrap("engine.Open", xerrors.Internal, "list disk snapshots", err)
	}

	for _, ds := range diskSnapshots {
		storages, err := e.store.ListStoragesByLocator(ds.LocatorID)
		if err != nil {
			return nil, xerrors.Wrap("engine.Open", xerrors.Internal, "list storages by locator", err)
		}
		for _, s := range storages {
			if !storageContainsTimestamp(s, hs.Kind, ts) {
				continue
			}
			return e.Open(OpenRequest{RootID: s.RootID, StorageIdent: s.Ident, CallerPID: req.CallerPID, Trace: req.Trace})
		}
	}
	return nil, xerrors.New("engine.OpenByHostSnapshot", xerrors.DiskSnapshotStorageInvalid, "no readable storage for host snapshot: "+hs.ID)
}

// storageContainsTimestamp implements spec.md §4.6's containment
// rule: a CDP storage is eligible when its interval contains
// timestamp; a normal (point-in-time) storage only when begin = end =
// timestamp. A Recycled or not-yet-readable storage is never eligible.
func storageContainsTimestamp(s *domain.Storage, kind domain.HostSnapshotKind, timestamp int64) bool {
	if domain.StatusNotReadable[s.Status] {
		return false
	}
	if kind == domain.HostSnapshotCDP {
		return s.BeginTimestamp <= timestamp && timestamp <= s.EndTimestamp
	}
	return s.BeginTimestamp == timestamp && s.EndTimestamp == timestamp
}

// Close releases handleID's chain and closes its image-service
// endpoint, mirroring CloseDiskSnapshotStorage.execute.
func (e *Engine) Close(handleID string) error {
	h, ok := e.handles.Pop(handleID)
	if !ok {
		return xerrors.New("engine.Close", xerrors.HandleNotExist, "handle does not exist: "+handleID)
	}
	if err := e.images.Close(h.Endpoint); err != nil {
		h.Chain.Release()
		return xerrors.Wrap("engine.Close", xerrors.Internal, "close image endpoint", err)
	}
	h.Chain.Release()
	e.broker.Publish(&events.Event{Type: events.ChainReleased})
	return nil
}
