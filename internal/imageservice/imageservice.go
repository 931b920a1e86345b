// Package imageservice is the façade onto the external image/logic
// daemon (spec.md §6), grounded on the RPC surface the original calls
// through storage_action.py. Physical QCOW/CDP formats and the
// hashing algorithm are explicit spec Non-goals; Client only names the
// operations the engine's core depends on.
package imageservice

import "github.com/snapvault/vaultkeeper/internal/domain"

// TimestampDirection selects which way QueryCdpFileTimestamp searches.
type TimestampDirection int

const (
	Forwards TimestampDirection = iota
	Backwards
)

// deleteInUse is the daemon's "in use" return code for
// DeleteSnapshotInQcowFile, surfaced by callers as retriable.
const deleteInUse = -2

// Client is the synchronous façade onto the image/logic daemon.
type Client interface {
	// Open opens path for read or read-write and returns an opaque
	// endpoint used by subsequent operations and returned to the
	// caller's handle.
	Open(path string, writable bool) (endpoint string, err error)
	Close(endpoint string) error

	CreateQcowFile(path string, diskBytes int64) error
	CreateCdpFile(path string) error

	DeleteSnapshotInQcowFile(path, snapshotName string) (code int, err error)
	RemoveCdpFile(path string) error
	RemoveQcowFile(path string) error

	QueryCdpFileTimestampRange(path string, discardDirty bool) (begin, end *int64, err error)
	QueryCdpFileTimestamp(path string, t int64, dir TimestampDirection) (int64, error)
	FormatCdpFileTimestamp(t int64) string

	MergeCdpToQcow(hashType domain.HashType, newQcowPath string, cdpPaths []string) error
	MergeQcowHashFile(srcPath, dstPath string, diskBytes int64) error
	MergeQcowSnapshotTypeA(parentPath, childPath string) error
	MergeQcowSnapshotTypeB(srcPath, dstPath string, diskBytes int64) error
}

// IsInUse reports whether a DeleteSnapshotInQcowFile code means the
// file is currently in use and the delete should be retried later.
func IsInUse(code int) bool { return code == deleteInUse }
