package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapvault/vaultkeeper/internal/domain"
	"github.com/snapvault/vaultkeeper/internal/refmanager"
)

func TestNewRejectsEmptyKey(t *testing.T) {
	_, err := New(Read, "caller", nil, nil, refmanager.New())
	assert.Error(t, err)
}

func TestNewRejectsWriteWithoutWriteChain(t *testing.T) {
	key := []*domain.Storage{{Ident: "a"}}
	_, err := New(Write, "caller", key, nil, refmanager.New())
	assert.Error(t, err)
}

func TestReadChainAcquireRelease(t *testing.T) {
	refs := refmanager.New()
	key := []*domain.Storage{{Ident: "a", ImagePath: "a.qcow"}, {Ident: "b", ImagePath: "b.qcow"}}

	c, err := New(Read, "caller", key, nil, refs)
	require.NoError(t, err)

	require.NoError(t, c.Acquire())
	assert.True(t, refs.IsStorageUsing("a"))
	assert.True(t, refs.IsStorageUsing("b"))
	assert.Equal(t, "b", c.Tail().Ident)

	c.Release()
	assert.False(t, refs.IsStorageUsing("a"))

	// Release is idempotent
	c.Release()
}

func TestReadWriteChainRollsBackOnWriteFailure(t *testing.T) {
	refs := refmanager.New()
	// pre-occupy the tail's image path with another writer
	require.NoError(t, refs.AddWriting("other", refmanager.Record{StorageIdent: "b", ImagePath: "b.qcow"}))

	key := []*domain.Storage{{Ident: "a", ImagePath: "a.qcow"}, {Ident: "b", ImagePath: "b.qcow"}}
	write := []*domain.Storage{{Ident: "b", ImagePath: "b.qcow"}}

	c, err := New(ReadWrite, "caller", key, write, refs)
	require.NoError(t, err)

	err = c.Acquire()
	assert.Error(t, err)
	// the reader reservation must have been rolled back
	assert.False(t, refs.IsStorageUsing("a"))
}

func TestAcquireTwiceFails(t *testing.T) {
	refs := refmanager.New()
	key := []*domain.Storage{{Ident: "a", ImagePath: "a.qcow"}}

	c, err := New(Read, "caller", key, nil, refs)
	require.NoError(t, err)
	require.NoError(t, c.Acquire())

	err = c.Acquire()
	assert.Error(t, err)
	c.Release()
}
