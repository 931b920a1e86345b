package validdir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckAgainstRegisteredDirectory(t *testing.T) {
	g := New()
	g.Add("/data/storage")

	assert.True(t, g.Check("/data/storage/a.qcow"))
	assert.True(t, g.Check("/data/storage"))
	assert.False(t, g.Check("/data/other/a.qcow"))
	assert.False(t, g.Check("/data/storage-other/a.qcow"))
}

func TestRemoveInvalidatesCache(t *testing.T) {
	g := New()
	g.Add("/data/storage")
	assert.True(t, g.Check("/data/storage/a.qcow"))

	g.Remove("/data/storage")
	assert.False(t, g.Check("/data/storage/a.qcow"))
}

func TestCheckIsCached(t *testing.T) {
	g := New()
	g.Add("/data/storage")

	first := g.Check("/data/storage/a.qcow")
	second := g.Check("/data/storage/a.qcow")
	assert.Equal(t, first, second)
}
