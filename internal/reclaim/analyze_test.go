package reclaim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapvault/vaultkeeper/internal/domain"
	"github.com/snapvault/vaultkeeper/internal/refmanager"
	"github.com/snapvault/vaultkeeper/internal/store"
	"github.com/snapvault/vaultkeeper/internal/tree"
)

func newTestAnalysis(t *testing.T, storages []*domain.Storage) (*analysis, *store.BoltStore) {
	t.Helper()
	s, err := store.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	tr, err := tree.Build("root-1", storages, nil)
	require.NoError(t, err)

	return &analysis{store: s, refs: refmanager.New(), tree: tr}, s
}

func leafStorage(ident, parent string, status domain.Status, imagePath string) *domain.Storage {
	var p *string
	if parent != "" {
		p = &parent
	}
	return &domain.Storage{Ident: ident, RootID: "root-1", ParentID: p, Kind: domain.KindQCOW, Status: status, ImagePath: imagePath}
}

func TestAnalyzeDeletesWholeChainEligible(t *testing.T) {
	storages := []*domain.Storage{
		leafStorage("a", "", domain.StatusStorage, "a.qcow"),
		leafStorage("b", "a", domain.StatusStorage, "b.qcow"),
	}
	an, _ := newTestAnalysis(t, storages)

	work, err := an.analyzeDeletes()
	require.NoError(t, err)

	paths := make(map[string]bool)
	for _, w := range work {
		assert.Equal(t, DeleteFile, w.Kind)
		paths[w.ImagePath] = true
	}
	assert.Equal(t, map[string]bool{"a.qcow": true, "b.qcow": true}, paths)
}

func TestAnalyzeDeletesStopsAtWritingParent(t *testing.T) {
	storages := []*domain.Storage{
		leafStorage("a", "", domain.StatusCreating, "a.qcow"),
		leafStorage("b", "a", domain.StatusStorage, "b.qcow"),
	}
	an, _ := newTestAnalysis(t, storages)

	work, err := an.analyzeDeletes()
	require.NoError(t, err)
	require.Len(t, work, 1)
	assert.Equal(t, "b.qcow", work[0].ImagePath)
	// "a" must remain untouched since it is still in a writing status
	a, ok := an.tree.GetByIdent("a")
	require.True(t, ok)
	assert.Equal(t, domain.StatusCreating, a.Storage.Status)
}

func TestAnalyzeDeletesBlockedByLiveReference(t *testing.T) {
	storages := []*domain.Storage{
		leafStorage("a", "", domain.StatusStorage, "a.qcow"),
	}
	an, _ := newTestAnalysis(t, storages)
	require.NoError(t, an.refs.AddReading("some-caller", []refmanager.Record{{StorageIdent: "a", ImagePath: "a.qcow"}}))

	work, err := an.analyzeDeletes()
	require.NoError(t, err)
	assert.Empty(t, work)
}

func TestAnalyzeDeletesDedupsWholeFile(t *testing.T) {
	storages := []*domain.Storage{
		leafStorage("a", "", domain.StatusStorage, "shared.qcow"),
		leafStorage("b", "a", domain.StatusStorage, "shared.qcow"),
	}
	an, s := newTestAnalysis(t, storages)
	for _, st := range storages {
		require.NoError(t, s.CreateStorage(st))
	}

	work, err := an.analyzeDeletes()
	require.NoError(t, err)
	require.Len(t, work, 1)
	assert.Equal(t, DeleteFile, work[0].Kind)
	assert.Equal(t, "shared.qcow", work[0].ImagePath)
}

func TestCanDeleteRejectsNonDeletableStatus(t *testing.T) {
	storages := []*domain.Storage{leafStorage("a", "", domain.StatusCreating, "a.qcow")}
	an, _ := newTestAnalysis(t, storages)

	n, _ := an.tree.GetByIdent("a")
	ok, err := an.canDelete(n)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllLocatorsInvalidNoLocator(t *testing.T) {
	storages := []*domain.Storage{leafStorage("a", "", domain.StatusStorage, "a.qcow")}
	an, _ := newTestAnalysis(t, storages)

	n, _ := an.tree.GetByIdent("a")
	invalid, err := an.allLocatorsInvalid(n)
	require.NoError(t, err)
	assert.True(t, invalid)
}
