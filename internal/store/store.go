// Package store is the persistence adapter. It provides transactional
// CRUD for the journal, storage, root, locator, host-snapshot and
// disk-snapshot tables spec.md §6 requires ACID semantics for.
package store

import "github.com/snapvault/vaultkeeper/internal/domain"

// Store is the persistence contract consumed by every other package.
// A Tx groups multiple mutations into one atomic commit, used by the
// reclamation engine's commit phase (spec.md §4.8 step 3) and by the
// snapshot creator's insert-plus-journal-consume sequence (spec.md §4.5).
type Store interface {
	// Journal
	AppendJournal(j *domain.Journal) error
	GetJournalByToken(token string) (*domain.Journal, error)
	ListUnconsumedCreateJournals(rootID string) ([]*domain.Journal, error)
	ConsumeJournal(token string) error

	// Storage
	CreateStorage(s *domain.Storage) error
	GetStorage(ident string) (*domain.Storage, error)
	ListNonRecycledStorages(rootID string) ([]*domain.Storage, error)
	ListStoragesByImagePath(imagePath string) ([]*domain.Storage, error)
	ListAllStoragesForRoot(rootID string) ([]*domain.Storage, error)
	UpdateStorage(s *domain.Storage) error

	// Root
	CreateRoot(r *domain.Root) error
	GetRoot(id string) (*domain.Root, error)
	ListValidRoots() ([]*domain.Root, error)
	UpdateRoot(r *domain.Root) error
	EnsureRecycleRoot() error

	// Locator / HostSnapshot / DiskSnapshot
	GetLocator(id string) (*domain.Locator, error)
	ListDiskSnapshotsByLocator(locatorID string) ([]*domain.DiskSnapshot, error)
	ListDiskSnapshotsByHostSnapshot(hostSnapshotID string) ([]*domain.DiskSnapshot, error)
	ListStoragesByLocator(locatorID string) ([]*domain.Storage, error)
	GetHostSnapshot(id string) (*domain.HostSnapshot, error)

	// Tx runs fn inside a single read-write transaction; any error
	// aborts the whole batch.
	Tx(fn func(Mutator) error) error

	Close() error
}

// Mutator is the subset of Store usable inside a Tx callback; it
// exists so write batches cannot accidentally nest another Tx.
type Mutator interface {
	CreateStorage(s *domain.Storage) error
	UpdateStorage(s *domain.Storage) error
	UpdateRoot(r *domain.Root) error
	ConsumeJournal(token string) error
	AppendJournal(j *domain.Journal) error
}
