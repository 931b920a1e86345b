package reclaim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapvault/vaultkeeper/internal/domain"
	"github.com/snapvault/vaultkeeper/internal/refmanager"
)

func cdpStorage(ident, parent string, status domain.Status) *domain.Storage {
	var p *string
	if parent != "" {
		p = &parent
	}
	return &domain.Storage{Ident: ident, RootID: "root-1", ParentID: p, Kind: domain.KindCDP, Status: status, ImagePath: ident + ".cdp"}
}

func TestAnalyzeQcowMergeTypeASameFile(t *testing.T) {
	storages := []*domain.Storage{
		leafStorage("a", "", domain.StatusStorage, "shared.qcow"),
		leafStorage("b", "a", domain.StatusStorage, "shared.qcow"),
	}
	an, _ := newTestAnalysis(t, storages)

	n, ok := an.tree.GetByIdent("a")
	require.True(t, ok)

	w, err := an.analyzeQcowMerge(n, nil)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, MergeQcowTypeA, w.Kind)
}

func TestAnalyzeQcowMergeTypeBCrossFile(t *testing.T) {
	diskBytes := int64(100)
	p := leafStorage("p", "", domain.StatusStorage, "p.qcow")
	p.DiskBytes = diskBytes
	a := leafStorage("a", "p", domain.StatusStorage, "a.qcow")
	a.DiskBytes = diskBytes
	b := leafStorage("b", "a", domain.StatusStorage, "b.qcow")

	storages := []*domain.Storage{p, a, b}
	an, s := newTestAnalysis(t, storages)
	for _, st := range storages {
		require.NoError(t, s.CreateStorage(st))
	}

	n, ok := an.tree.GetByIdent("a")
	require.True(t, ok)

	w, err := an.analyzeQcowMerge(n, p)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, MergeQcowTypeB, w.Kind)
}

func TestAnalyzeQcowMergeBlockedByActiveWriter(t *testing.T) {
	storages := []*domain.Storage{
		leafStorage("a", "", domain.StatusStorage, "shared.qcow"),
	}
	an, _ := newTestAnalysis(t, storages)
	require.NoError(t, an.refs.AddWriting("writer", refmanager.Record{StorageIdent: "a", ImagePath: "shared.qcow"}))

	n, _ := an.tree.GetByIdent("a")
	w, err := an.analyzeQcowMerge(n, nil)
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestAnalyzeCDPMergeWalksConsecutiveRun(t *testing.T) {
	storages := []*domain.Storage{
		cdpStorage("a", "", domain.StatusStorage),
		cdpStorage("b", "a", domain.StatusStorage),
		cdpStorage("c", "b", domain.StatusStorage),
	}
	an, _ := newTestAnalysis(t, storages)

	n, ok := an.tree.GetByIdent("a")
	require.True(t, ok)

	w, err := an.analyzeCDPMerge(n, nil)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, MergeCdp, w.Kind)
	require.Len(t, w.MergeChain, 3)
	assert.Equal(t, "a", w.MergeChain[0].Ident)
	assert.Equal(t, "c", w.MergeChain[2].Ident)
}

// TestAnalyzeMergesEmitsOneWorkPerPass guards against a same-file QCOW
// chain root -> a -> b(leaf) making both root and a eligible TypeA
// merges in a single BFS: analyzing root must not also analyze a in
// the same pass, since root's merge detaches a as the new tree root and
// relocates root, which a's own (stale) analysis would contradict.
func TestAnalyzeMergesEmitsOneWorkPerPass(t *testing.T) {
	storages := []*domain.Storage{
		leafStorage("root", "", domain.StatusStorage, "shared.qcow"),
		leafStorage("a", "root", domain.StatusStorage, "shared.qcow"),
		leafStorage("b", "a", domain.StatusStorage, "shared.qcow"),
	}
	an, s := newTestAnalysis(t, storages)
	for _, st := range storages {
		require.NoError(t, s.CreateStorage(st))
	}

	work, err := an.analyzeMerges()
	require.NoError(t, err)
	require.Len(t, work, 1)

	// The node chosen for this pass must be marked Recycling so a
	// second call (simulating the next pass) no longer considers it.
	root, ok := an.tree.GetByIdent("root")
	require.True(t, ok)
	assert.Equal(t, domain.StatusRecycling, root.Storage.Status)
}

func TestAnalyzeCDPMergeStopsAtParentTimestamp(t *testing.T) {
	mid := int64(5)
	b := cdpStorage("b", "a", domain.StatusStorage)
	b.ParentTimestamp = &mid
	storages := []*domain.Storage{
		cdpStorage("a", "", domain.StatusStorage),
		b,
		cdpStorage("c", "b", domain.StatusStorage),
	}
	an, _ := newTestAnalysis(t, storages)

	n, ok := an.tree.GetByIdent("a")
	require.True(t, ok)

	w, err := an.analyzeCDPMerge(n, nil)
	require.NoError(t, err)
	require.NotNil(t, w)
	require.Len(t, w.MergeChain, 1)
	assert.Equal(t, "a", w.MergeChain[0].Ident)
}
