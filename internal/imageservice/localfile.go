package imageservice

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snapvault/vaultkeeper/internal/domain"
	"github.com/snapvault/vaultkeeper/internal/validdir"
)

// qcowAuxExts and cdpAuxExts are the auxiliary file extensions
// alongside a storage file, per spec.md §6.1.
var qcowAuxExts = []string{"hash", "full_hash", "map", "snmap", "binmap"}
var cdpAuxExts = []string{"readmap", "map"}

// LocalFileClient implements Client directly against the local
// filesystem, so the engine is runnable and testable without an
// external daemon. Operations that open, create or delete files check
// the valid-directory gate before and after their IO, per spec.md §6;
// the CDP timestamp queries check it only before reading, and Close and
// FormatCdpFileTimestamp do not consult it.
type LocalFileClient struct {
	gate *validdir.Gate

	mu        sync.Mutex
	endpoints map[string]string // endpoint -> path
}

// NewLocalFileClient constructs a client gated by gate.
func NewLocalFileClient(gate *validdir.Gate) *LocalFileClient {
	return &LocalFileClient{gate: gate, endpoints: make(map[string]string)}
}

func (c *LocalFileClient) checkPath(path string) error {
	if !c.gate.Check(path) {
		return fmt.Errorf("path outside valid storage directories: %s", path)
	}
	return nil
}

func (c *LocalFileClient) Open(path string, writable bool) (string, error) {
	if err := c.checkPath(path); err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	if err := c.checkPath(path); err != nil {
		return "", err
	}

	endpoint := uuid.NewString()
	c.mu.Lock()
	c.endpoints[endpoint] = path
	c.mu.Unlock()
	return endpoint, nil
}

func (c *LocalFileClient) Close(endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.endpoints, endpoint)
	return nil
}

func (c *LocalFileClient) CreateQcowFile(path string, diskBytes int64) error {
	if err := c.checkPath(path); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.checkPath(path)
}

func (c *LocalFileClient) CreateCdpFile(path string) error {
	return c.CreateQcowFile(path, 0)
}

func (c *LocalFileClient) DeleteSnapshotInQcowFile(path, snapshotName string) (int, error) {
	if err := c.checkPath(path); err != nil {
		return 0, err
	}
	for _, ext := range qcowAuxExts {
		os.Remove(fmt.Sprintf("%s_%s.%s", path, snapshotName, ext))
	}
	if err := c.checkPath(path); err != nil {
		return 0, err
	}
	return 0, nil
}

func removeGlob(pattern string) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return
	}
	for _, m := range matches {
		os.Remove(m)
	}
}

func (c *LocalFileClient) RemoveCdpFile(path string) error {
	if err := c.checkPath(path); err != nil {
		return err
	}
	os.Remove(path)
	for _, ext := range cdpAuxExts {
		removeGlob(path + "_*." + ext)
	}
	return c.checkPath(path)
}

func (c *LocalFileClient) RemoveQcowFile(path string) error {
	if err := c.checkPath(path); err != nil {
		return err
	}
	os.Remove(path)
	for _, ext := range qcowAuxExts {
		removeGlob(path + "_*." + ext)
	}
	return c.checkPath(path)
}

// cdpIndexPath is where the local client tracks timestamp ranges for
// a CDP file, in lieu of inspecting the (out-of-scope) physical
// format. Production deployments would delegate this to the real
// image/logic daemon.
func cdpIndexPath(path string) string { return path + ".vk-cdp-index" }

func (c *LocalFileClient) QueryCdpFileTimestampRange(path string, discardDirty bool) (*int64, *int64, error) {
	if err := c.checkPath(path); err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(cdpIndexPath(path))
	if err != nil {
		return nil, nil, nil // CDP_FILE_NO_CONTENT: empty range, not an error
	}
	var begin, end int64
	if _, err := fmt.Sscanf(string(data), "%d %d", &begin, &end); err != nil {
		return nil, nil, nil
	}
	return &begin, &end, nil
}

func (c *LocalFileClient) QueryCdpFileTimestamp(path string, t int64, dir TimestampDirection) (int64, error) {
	begin, end, err := c.QueryCdpFileTimestampRange(path, false)
	if err != nil {
		return 0, err
	}
	if begin == nil || end == nil {
		return t, nil
	}
	if dir == Forwards && t < *begin {
		return *begin, nil
	}
	if dir == Backwards && t > *end {
		return *end, nil
	}
	return t, nil
}

func (c *LocalFileClient) FormatCdpFileTimestamp(t int64) string {
	return time.Unix(t, 0).UTC().Format(time.RFC3339)
}

func (c *LocalFileClient) MergeCdpToQcow(hashType domain.HashType, newQcowPath string, cdpPaths []string) error {
	if err := c.checkPath(newQcowPath); err != nil {
		return err
	}
	if err := c.CreateQcowFile(newQcowPath, 0); err != nil {
		return err
	}
	for _, p := range cdpPaths {
		if err := c.checkPath(p); err != nil {
			return err
		}
	}
	return nil
}

func (c *LocalFileClient) MergeQcowHashFile(srcPath, dstPath string, diskBytes int64) error {
	if err := c.checkPath(srcPath); err != nil {
		return err
	}
	return c.checkPath(dstPath)
}

func (c *LocalFileClient) MergeQcowSnapshotTypeA(parentPath, childPath string) error {
	if err := c.checkPath(parentPath); err != nil {
		return err
	}
	return c.checkPath(childPath)
}

func (c *LocalFileClient) MergeQcowSnapshotTypeB(srcPath, dstPath string, diskBytes int64) error {
	if err := c.checkPath(srcPath); err != nil {
		return err
	}
	if err := c.CreateQcowFile(dstPath, diskBytes); err != nil {
		return err
	}
	return c.checkPath(dstPath)
}
