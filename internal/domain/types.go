// Package domain holds the core data model shared by every subsystem:
// storages, journals, roots, and the external locator/host-snapshot
// concepts consulted by reclamation.
package domain

import (
	"fmt"
	"time"
)

// StorageKind distinguishes the two physical storage shapes.
type StorageKind string

const (
	KindQCOW StorageKind = "qcow"
	KindCDP  StorageKind = "cdp"
)

// Status is the lifecycle state of a Storage row.
type Status string

const (
	StatusCreating    Status = "creating"
	StatusDataWriting Status = "data_writing"
	StatusHashing     Status = "hashing"
	StatusStorage     Status = "storage"
	StatusException   Status = "exception"
	StatusRecycling   Status = "recycling"
	StatusRecycled    Status = "recycled"
)

// StatusWriting holds the statuses in which a storage is still being
// ingested, and therefore must be treated as a writer by chain and
// reclamation analysis alike (Hashing included, per design note c).
var StatusWriting = map[Status]bool{
	StatusCreating:    true,
	StatusDataWriting: true,
	StatusHashing:     true,
}

// StatusCanDelete holds the statuses eligible for delete analysis.
var StatusCanDelete = map[Status]bool{
	StatusHashing:   true,
	StatusStorage:   true,
	StatusException: true,
	StatusRecycling: true,
}

// StatusCanMerge holds the statuses eligible for merge analysis.
var StatusCanMerge = map[Status]bool{
	StatusStorage:   true,
	StatusException: true,
	StatusRecycling: true,
}

// StatusNotReadable holds the statuses that may not back a read chain.
var StatusNotReadable = map[Status]bool{
	StatusCreating: true,
	StatusRecycled: true,
}

// StatusRecycle holds the statuses that are terminal-or-heading-there.
var StatusRecycle = map[Status]bool{
	StatusRecycling: true,
	StatusRecycled:  true,
}

// RecycleRootID is the fixed identity of the distinguished recycle
// root that absorbs detached nodes during type-A merges, matching the
// original implementation's well-known UUID.
const RecycleRootID = "00000000-0000-0000-0000-000000000001"

// Storage is a persisted storage tree node.
type Storage struct {
	Ident           string
	RootID          string
	ParentID        *string
	ParentTimestamp *int64
	Kind            StorageKind
	DiskBytes       int64
	Status          Status
	ImagePath       string
	FullHashPath    *string
	IncHashPath     *string
	BeginTimestamp  int64
	EndTimestamp    int64
	LocatorID       *string
	FileLevelDedup  bool
}

// Overlaps reports whether [begin,end] intersects the storage's own
// validity interval, inclusive on both ends.
func (s *Storage) Overlaps(begin, end int64) bool {
	return s.BeginTimestamp <= end && begin <= s.EndTimestamp
}

// JournalKind is the tagged-variant discriminant replacing the
// original's per-kind journal classes (design note: dynamic journal
// polymorphism).
type JournalKind string

const (
	JournalNormalCreate   JournalKind = "normal_create"
	JournalCreateFromQcow JournalKind = "create_from_qcow"
	JournalCreateFromCdp  JournalKind = "create_from_cdp"
	JournalDestroy        JournalKind = "destroy"
)

// CreateJournalKinds are the journal kinds consumed by tree construction.
var CreateJournalKinds = map[JournalKind]bool{
	JournalNormalCreate:   true,
	JournalCreateFromQcow: true,
	JournalCreateFromCdp:  true,
}

// JournalPayload carries the kind-specific fields for a journal entry.
// Only the fields relevant to Kind are populated.
type JournalPayload struct {
	NewIdent       string
	ParentIdent    string      // NormalCreate: optional parent; empty means new root
	SourceIdent    string      // CreateFromQcow: source node to splice under
	SourceIdents   []string    // CreateFromCdp: source chain; last entry is spliced under
	Kind           StorageKind // NormalCreate: requested kind of the new storage
	DiskBytes      int64
	FileLevelDedup bool
}

// Journal is a pending tree mutation awaiting consumption.
type Journal struct {
	AppendID         int64 // totally orders journals per root
	Token            string
	RootID           string
	Kind             JournalKind
	Payload          JournalPayload
	CreatedAt        time.Time
	ConsumedTimestamp *time.Time
}

// Consumed reports whether the journal has already been applied.
func (j *Journal) Consumed() bool { return j.ConsumedTimestamp != nil }

// HashType is a root's configured hashing policy; reclamation skips
// roots with an unknown hash type (spec 4.8: "known hash type").
type HashType string

const (
	HashTypeUnknown  HashType = "unknown"
	HashTypeNone     HashType = "none"
	HashTypeMD4CRC32 HashType = "md4_crc32"
)

// Root identifies a connected component of the storage tree.
type Root struct {
	ID       string
	HashType HashType
	Valid    bool
}

// IsRecycleRoot reports whether r is the distinguished recycle root.
func (r *Root) IsRecycleRoot() bool { return r.ID == RecycleRootID }

// HostSnapshotKind distinguishes a point-in-time snapshot from a
// continuous-data-protection interval.
type HostSnapshotKind string

const (
	HostSnapshotNormal HostSnapshotKind = "normal"
	HostSnapshotCDP    HostSnapshotKind = "cdp"
)

// HostSnapshot is the external validity/interval record consulted by
// reclamation's locator-validity check.
type HostSnapshot struct {
	ID    string
	Kind  HostSnapshotKind
	Valid bool
	Begin int64
	End   int64
}

// DiskSnapshot is the logical disk-snapshot a Locator cross-references
// against one or more backing Storage rows.
type DiskSnapshot struct {
	ID             string
	HostSnapshotID string
	LocatorID      string
}

// Locator is the cross-reference key between a DiskSnapshot and the
// Storage rows that back it.
type Locator struct {
	ID             string
	DiskSnapshotID string
}

// CallerFlag formats a human-readable caller identity for the
// reference manager and root locker, mirroring the original
// generate_flag helper (pid + trace, capped for log hygiene).
func CallerFlag(pid int, trace string) string {
	flag := fmt.Sprintf("pid%x %s", pid, trace)
	const max = 255
	if len(flag) > max {
		flag = flag[:max]
	}
	return flag
}
