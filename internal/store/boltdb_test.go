package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapvault/vaultkeeper/internal/domain"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsureRecycleRootIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.EnsureRecycleRoot())
	require.NoError(t, s.EnsureRecycleRoot())

	r, err := s.GetRoot(domain.RecycleRootID)
	require.NoError(t, err)
	assert.True(t, r.Valid)
}

func TestStorageCreateGetUpdate(t *testing.T) {
	s := newTestStore(t)
	st := &domain.Storage{Ident: "a", RootID: "root-1", Status: domain.StatusCreating}
	require.NoError(t, s.CreateStorage(st))

	got, err := s.GetStorage("a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCreating, got.Status)

	got.Status = domain.StatusStorage
	require.NoError(t, s.UpdateStorage(got))

	again, err := s.GetStorage("a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStorage, again.Status)
}

func TestListNonRecycledStoragesFiltersByRootAndStatus(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateStorage(&domain.Storage{Ident: "a", RootID: "root-1", Status: domain.StatusStorage}))
	require.NoError(t, s.CreateStorage(&domain.Storage{Ident: "b", RootID: "root-1", Status: domain.StatusRecycled}))
	require.NoError(t, s.CreateStorage(&domain.Storage{Ident: "c", RootID: "root-2", Status: domain.StatusStorage}))

	out, err := s.ListNonRecycledStorages("root-1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Ident)
}

func TestJournalAppendLookupConsume(t *testing.T) {
	s := newTestStore(t)
	j := &domain.Journal{Token: "tok-1", RootID: "root-1", Kind: domain.JournalNormalCreate}
	require.NoError(t, s.AppendJournal(j))
	assert.NotZero(t, j.AppendID)

	got, err := s.GetJournalByToken("tok-1")
	require.NoError(t, err)
	assert.False(t, got.Consumed())

	require.NoError(t, s.ConsumeJournal("tok-1"))

	again, err := s.GetJournalByToken("tok-1")
	require.NoError(t, err)
	assert.True(t, again.Consumed())
}

func TestListUnconsumedCreateJournalsOrdersByAppendID(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendJournal(&domain.Journal{Token: "t1", RootID: "root-1", Kind: domain.JournalNormalCreate}))
	require.NoError(t, s.AppendJournal(&domain.Journal{Token: "t2", RootID: "root-1", Kind: domain.JournalCreateFromQcow}))
	require.NoError(t, s.AppendJournal(&domain.Journal{Token: "t3", RootID: "root-1", Kind: domain.JournalDestroy}))
	require.NoError(t, s.ConsumeJournal("t1"))

	out, err := s.ListUnconsumedCreateJournals("root-1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "t2", out[0].Token)
}

func TestTxCommitsAllMutationsTogether(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateStorage(&domain.Storage{Ident: "a", RootID: "root-1", Status: domain.StatusCreating}))
	require.NoError(t, s.AppendJournal(&domain.Journal{Token: "tok", RootID: "root-1", Kind: domain.JournalNormalCreate}))

	err := s.Tx(func(m Mutator) error {
		st, gerr := s.GetStorage("a")
		if gerr != nil {
			return gerr
		}
		st.Status = domain.StatusStorage
		if uerr := m.UpdateStorage(st); uerr != nil {
			return uerr
		}
		return m.ConsumeJournal("tok")
	})
	require.NoError(t, err)

	st, err := s.GetStorage("a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStorage, st.Status)

	j, err := s.GetJournalByToken("tok")
	require.NoError(t, err)
	assert.True(t, j.Consumed())
}
