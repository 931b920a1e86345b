package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snapvault/vaultkeeper/internal/domain"
)

func TestDerivePathCdpAlwaysNewFile(t *testing.T) {
	parent := &domain.Storage{Kind: domain.KindQCOW, ImagePath: "/data/a.qcow", DiskBytes: 100, Status: domain.StatusStorage}
	path := derivePath("/data", "new-ident", domain.KindCDP, parent, 100)
	assert.Equal(t, "/data/new-ident.cdp", path)
}

func TestDerivePathNoParentIsNewFile(t *testing.T) {
	path := derivePath("/data", "root-ident", domain.KindQCOW, nil, 100)
	assert.Equal(t, "/data/root-ident.qcow", path)
}

func TestDerivePathReusesParentFile(t *testing.T) {
	parent := &domain.Storage{Kind: domain.KindQCOW, ImagePath: "/data/a.qcow", DiskBytes: 100, Status: domain.StatusStorage}
	path := derivePath("/data", "new-ident", domain.KindQCOW, parent, 100)
	assert.Equal(t, "/data/a.qcow", path)
}

func TestDerivePathNewFileOnDifferentFolder(t *testing.T) {
	parent := &domain.Storage{Kind: domain.KindQCOW, ImagePath: "/other/a.qcow", DiskBytes: 100, Status: domain.StatusStorage}
	path := derivePath("/data", "new-ident", domain.KindQCOW, parent, 100)
	assert.Equal(t, "/data/new-ident.qcow", path)
}

func TestDerivePathNewFileOnDifferentSize(t *testing.T) {
	parent := &domain.Storage{Kind: domain.KindQCOW, ImagePath: "/data/a.qcow", DiskBytes: 100, Status: domain.StatusStorage}
	path := derivePath("/data", "new-ident", domain.KindQCOW, parent, 200)
	assert.Equal(t, "/data/new-ident.qcow", path)
}

func TestDerivePathNewFileWhileParentWriting(t *testing.T) {
	parent := &domain.Storage{Kind: domain.KindQCOW, ImagePath: "/data/a.qcow", DiskBytes: 100, Status: domain.StatusDataWriting}
	path := derivePath("/data", "new-ident", domain.KindQCOW, parent, 100)
	assert.Equal(t, "/data/new-ident.qcow", path)
}

func TestDerivePathNewFileWhenParentIsCdp(t *testing.T) {
	parent := &domain.Storage{Kind: domain.KindCDP, ImagePath: "/data/a.cdp", DiskBytes: 100, Status: domain.StatusStorage}
	path := derivePath("/data", "new-ident", domain.KindQCOW, parent, 100)
	assert.Equal(t, "/data/new-ident.qcow", path)
}
