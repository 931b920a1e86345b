package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapvault/vaultkeeper/internal/domain"
)

func storage(ident, parent string, kind domain.StorageKind, imagePath string, status domain.Status) *domain.Storage {
	var p *string
	if parent != "" {
		p = &parent
	}
	return &domain.Storage{
		Ident: ident, RootID: "root-1", ParentID: p, Kind: kind,
		ImagePath: imagePath, Status: status,
	}
}

func TestBuildRejectsRecycleRoot(t *testing.T) {
	_, err := Build(domain.RecycleRootID, nil, nil)
	assert.Error(t, err)
}

func TestBuildRejectsMultipleRoots(t *testing.T) {
	storages := []*domain.Storage{
		storage("a", "", domain.KindQCOW, "a.qcow", domain.StatusStorage),
		storage("b", "", domain.KindQCOW, "b.qcow", domain.StatusStorage),
	}
	_, err := Build("root-1", storages, nil)
	assert.Error(t, err)
}

func TestBuildLinksChildren(t *testing.T) {
	storages := []*domain.Storage{
		storage("a", "", domain.KindQCOW, "a.qcow", domain.StatusStorage),
		storage("b", "a", domain.KindQCOW, "a.qcow", domain.StatusStorage),
		storage("c", "b", domain.KindQCOW, "c.qcow", domain.StatusStorage),
	}
	tr, err := Build("root-1", storages, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", tr.RootIdent)

	root, ok := tr.GetByIdent("a")
	require.True(t, ok)
	assert.Equal(t, []string{"b"}, root.ChildrenIdents)

	leaves := tr.Leaves()
	require.Len(t, leaves, 1)
	assert.Equal(t, "c", leaves[0].Ident)
}

func TestApplyCreateFromQcowSplices(t *testing.T) {
	storages := []*domain.Storage{
		storage("a", "", domain.KindQCOW, "a.qcow", domain.StatusStorage),
		storage("b", "a", domain.KindQCOW, "a.qcow", domain.StatusStorage),
	}
	journals := []*domain.Journal{
		{Kind: domain.JournalCreateFromQcow, Payload: domain.JournalPayload{NewIdent: "new", SourceIdent: "a"}},
	}
	tr, err := Build("root-1", storages, journals)
	require.NoError(t, err)

	a, ok := tr.GetByIdent("a")
	require.True(t, ok)
	assert.Equal(t, []string{"new"}, a.ChildrenIdents)

	n, ok := tr.GetByIdent("new")
	require.True(t, ok)
	assert.Equal(t, []string{"b"}, n.ChildrenIdents)
	assert.True(t, n.Virtual())

	b, ok := tr.GetByIdent("b")
	require.True(t, ok)
	assert.Equal(t, "new", b.ParentIdent)
}

func TestKeyChainMinimality(t *testing.T) {
	// a.qcow[a] -> a.qcow[b] -> c.qcow[c] -> c.qcow[d]
	full := []*domain.Storage{
		{Ident: "a", ImagePath: "a.qcow", Status: domain.StatusStorage},
		{Ident: "b", ImagePath: "a.qcow", Status: domain.StatusStorage},
		{Ident: "c", ImagePath: "c.qcow", Status: domain.StatusStorage},
		{Ident: "d", ImagePath: "c.qcow", Status: domain.StatusStorage},
	}
	key := KeyChain(full)

	var idents []string
	for _, s := range key {
		idents = append(idents, s.Ident)
	}
	// b is the file boundary for a.qcow, d is the tail: a is dropped
	// since it shares a.qcow with b and b isn't in a writing status.
	assert.Equal(t, []string{"b", "d"}, idents)
}

func TestKeyChainKeepsFileLevelDedupRoot(t *testing.T) {
	full := []*domain.Storage{
		{Ident: "a", ImagePath: "a.qcow", Status: domain.StatusStorage, FileLevelDedup: true},
		{Ident: "b", ImagePath: "a.qcow", Status: domain.StatusStorage},
	}
	key := KeyChain(full)
	require.Len(t, key, 2)
	assert.Equal(t, "a", key[0].Ident)
}

func TestKeyChainKeepsPredecessorOfWritingNode(t *testing.T) {
	full := []*domain.Storage{
		{Ident: "a", ImagePath: "a.qcow", Status: domain.StatusStorage},
		{Ident: "b", ImagePath: "a.qcow", Status: domain.StatusCreating},
	}
	key := KeyChain(full)
	var idents []string
	for _, s := range key {
		idents = append(idents, s.Ident)
	}
	assert.Equal(t, []string{"a", "b"}, idents)
}

func TestWriteChainRejectsNonCreatingTail(t *testing.T) {
	key := []*domain.Storage{{Ident: "a", ImagePath: "a.qcow", Status: domain.StatusStorage}}
	_, err := WriteChain(key)
	assert.Error(t, err)
}

func TestWriteChainNarrowsToTailFile(t *testing.T) {
	key := []*domain.Storage{
		{Ident: "a", ImagePath: "x.qcow", Status: domain.StatusStorage},
		{Ident: "b", ImagePath: "y.qcow", Status: domain.StatusCreating},
	}
	write, err := WriteChain(key)
	require.NoError(t, err)
	require.Len(t, write, 1)
	assert.Equal(t, "b", write[0].Ident)
}

func TestBuildChainReadIntent(t *testing.T) {
	storages := []*domain.Storage{
		storage("a", "", domain.KindQCOW, "a.qcow", domain.StatusStorage),
		storage("b", "a", domain.KindQCOW, "b.qcow", domain.StatusStorage),
	}
	tr, err := Build("root-1", storages, nil)
	require.NoError(t, err)

	key, write, err := tr.BuildChain("b", IntentRead)
	require.NoError(t, err)
	assert.Nil(t, write)
	require.Len(t, key, 2)
	assert.Equal(t, "b", key[len(key)-1].Ident)
}
