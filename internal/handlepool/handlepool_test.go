package handlepool

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapvault/vaultkeeper/internal/chain"
	"github.com/snapvault/vaultkeeper/internal/domain"
	"github.com/snapvault/vaultkeeper/internal/refmanager"
)

func newTestChain(t *testing.T) *chain.Chain {
	t.Helper()
	refs := refmanager.New()
	key := []*domain.Storage{{Ident: "a", ImagePath: "a.qcow"}}
	c, err := chain.New(chain.Read, "caller", key, nil, refs)
	require.NoError(t, err)
	require.NoError(t, c.Acquire())
	return c
}

func TestRegisterAndGet(t *testing.T) {
	p := New(zerolog.Nop())
	c := newTestChain(t)

	h := p.Register(c, "endpoint-1")
	assert.NotEmpty(t, h.ID)

	got, ok := p.Get(h.ID)
	require.True(t, ok)
	assert.Equal(t, h, got)
}

func TestPopRemovesHandle(t *testing.T) {
	p := New(zerolog.Nop())
	c := newTestChain(t)
	h := p.Register(c, "endpoint-1")

	popped, ok := p.Pop(h.ID)
	require.True(t, ok)
	assert.Equal(t, h.ID, popped.ID)

	_, ok = p.Get(h.ID)
	assert.False(t, ok)

	_, ok = p.Pop(h.ID)
	assert.False(t, ok)
}
