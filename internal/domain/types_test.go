package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStorageOverlaps(t *testing.T) {
	tests := []struct {
		name     string
		storage  Storage
		begin    int64
		end      int64
		expected bool
	}{
		{"fully inside", Storage{BeginTimestamp: 0, EndTimestamp: 100}, 10, 20, true},
		{"exact match", Storage{BeginTimestamp: 10, EndTimestamp: 20}, 10, 20, true},
		{"touches at begin", Storage{BeginTimestamp: 10, EndTimestamp: 20}, 20, 30, true},
		{"touches at end", Storage{BeginTimestamp: 10, EndTimestamp: 20}, 0, 10, true},
		{"entirely before", Storage{BeginTimestamp: 10, EndTimestamp: 20}, 21, 30, false},
		{"entirely after", Storage{BeginTimestamp: 10, EndTimestamp: 20}, 0, 9, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.storage.Overlaps(tt.begin, tt.end))
		})
	}
}

func TestCallerFlagTruncation(t *testing.T) {
	short := CallerFlag(42, "trace")
	assert.Contains(t, short, "pid2a")
	assert.Contains(t, short, "trace")

	long := CallerFlag(1, string(make([]byte, 500)))
	assert.LessOrEqual(t, len(long), 255)
}

func TestStatusPartitions(t *testing.T) {
	assert.True(t, StatusWriting[StatusCreating])
	assert.True(t, StatusWriting[StatusHashing])
	assert.False(t, StatusWriting[StatusStorage])

	assert.True(t, StatusCanDelete[StatusStorage])
	assert.False(t, StatusCanDelete[StatusCreating])

	assert.True(t, StatusCanMerge[StatusStorage])
	assert.False(t, StatusCanMerge[StatusCreating])

	assert.True(t, StatusNotReadable[StatusRecycled])
	assert.True(t, StatusRecycle[StatusRecycling])
}

func TestJournalConsumed(t *testing.T) {
	j := &Journal{}
	assert.False(t, j.Consumed())

	j2 := &Journal{}
	now := j2.CreatedAt
	j2.ConsumedTimestamp = &now
	assert.True(t, j2.Consumed())
}

func TestRootIsRecycleRoot(t *testing.T) {
	r := &Root{ID: RecycleRootID}
	assert.True(t, r.IsRecycleRoot())

	r2 := &Root{ID: "other"}
	assert.False(t, r2.IsRecycleRoot())
}
