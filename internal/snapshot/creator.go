package snapshot

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/snapvault/vaultkeeper/internal/chain"
	"github.com/snapvault/vaultkeeper/internal/domain"
	"github.com/snapvault/vaultkeeper/internal/journal"
	"github.com/snapvault/vaultkeeper/internal/locker"
	"github.com/snapvault/vaultkeeper/internal/refmanager"
	"github.com/snapvault/vaultkeeper/internal/store"
	"github.com/snapvault/vaultkeeper/internal/tree"
	"github.com/snapvault/vaultkeeper/internal/xerrors"
)

// Creator implements spec.md §4.5.
type Creator struct {
	store    store.Store
	journals *journal.Manager
	lockers  *locker.Registry
	refs     *refmanager.Manager
	log      zerolog.Logger
}

// New constructs a snapshot creator.
func New(s store.Store, j *journal.Manager, lockers *locker.Registry, refs *refmanager.Manager, log zerolog.Logger) *Creator {
	return &Creator{store: s, journals: j, lockers: lockers, refs: refs, log: log}
}

// Request describes a snapshot-creation call.
type Request struct {
	Token     string
	CallerPID int
	Trace     string
	Folder    string // target directory for a newly allocated file
}

// Result is what Create hands back: the new storage row and its
// acquired read-write chain, ready to be wrapped in a handle.
type Result struct {
	Storage *domain.Storage
	Chain   *chain.Chain
}

// Create consumes req's journal, derives the new storage's path,
// inserts it, and acquires its read-write chain.
func (c *Creator) Create(req Request) (*Result, error) {
	j, err := c.journals.Lookup(req.Token)
	if err != nil {
		return nil, xerrors.Wrap("snapshot.Create", xerrors.Validation, "journal not found", err)
	}
	if j.Kind != domain.JournalNormalCreate {
		return nil, xerrors.New("snapshot.Create", xerrors.Validation, "snapshot creator only consumes normal-create journals")
	}
	if j.Consumed() {
		return nil, xerrors.New("snapshot.Create", xerrors.TaskIdentDuplicate, "journal already consumed: "+req.Token)
	}

	caller := domain.CallerFlag(req.CallerPID, req.Trace)
	if err := c.lockers.Acquire(j.RootID, caller); err != nil {
		return nil, err
	}
	defer c.lockers.Release(j.RootID, caller)

	var parent *domain.Storage
	if j.Payload.ParentIdent != "" {
		t, err := c.buildProspectiveTree(j.RootID)
		if err != nil {
			return nil, err
		}
		full, err := t.FullChain(j.Payload.ParentIdent)
		if err != nil {
			return nil, xerrors.Wrap("snapshot.Create", xerrors.DiskSnapshotStorageInvalid, "declared parent not found", err)
		}
		if len(full) == 0 {
			return nil, xerrors.New("snapshot.Create", xerrors.DiskSnapshotStorageInvalid, "declared parent has no real storage on its path")
		}
		parent = full[len(full)-1]
	}

	imagePath := derivePath(req.Folder, j.Payload.NewIdent, j.Payload.Kind, parent, j.Payload.DiskBytes)

	var parentID *string
	if j.Payload.ParentIdent != "" {
		p := j.Payload.ParentIdent
		parentID = &p
	}

	newStorage := &domain.Storage{
		Ident:          j.Payload.NewIdent,
		RootID:         j.RootID,
		ParentID:       parentID,
		Kind:           j.Payload.Kind,
		DiskBytes:      j.Payload.DiskBytes,
		Status:         domain.StatusCreating,
		ImagePath:      imagePath,
		FileLevelDedup: j.Payload.FileLevelDedup,
	}

	if err := c.store.Tx(func(m store.Mutator) error {
		if err := m.CreateStorage(newStorage); err != nil {
			return err
		}
		return m.ConsumeJournal(req.Token)
	}); err != nil {
		return nil, fmt.Errorf("snapshot.Create: commit: %w", err)
	}

	t, err := c.buildProspectiveTree(j.RootID)
	if err != nil {
		return nil, err
	}
	key, write, err := t.BuildChain(newStorage.Ident, tree.IntentReadWrite)
	if err != nil {
		return nil, err
	}

	ch, err := chain.New(chain.ReadWrite, caller, key, write, c.refs)
	if err != nil {
		return nil, err
	}
	if err := ch.Acquire(); err != nil {
		return nil, err
	}

	return &Result{Storage: newStorage, Chain: ch}, nil
}

func (c *Creator) buildProspectiveTree(rootID string) (*tree.Tree, error) {
	storages, err := c.store.ListNonRecycledStorages(rootID)
	if err != nil {
		return nil, err
	}
	journals, err := c.journals.ListUnconsumedCreate(rootID)
	if err != nil {
		return nil, err
	}
	return tree.Build(rootID, storages, journals)
}
