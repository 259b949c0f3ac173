package ballista

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackPair(t *testing.T) {
	assert.Equal(t, PackPair(3, 7), PackPair(7, 3))
	assert.NotEqual(t, PackPair(3, 7), PackPair(3, 8))

	i, j := Unpack(PackPair(42, 5))
	assert.Equal(t, 5, i)
	assert.Equal(t, 42, j)
}

func TestOverlapKeeper_Diff(t *testing.T) {
	k := NewOverlapKeeper()

	k.Set(1, 2)
	k.Set(3, 1)
	k.Set(2, 1)
	additions, removals := k.Diff(nil, nil)
	assert.Equal(t, []uint64{PackPair(1, 2), PackPair(1, 3)}, additions)
	assert.Empty(t, removals)

	k.Tick()
	assert.True(t, k.Previously(2, 1))
	assert.False(t, k.Overlapping(1, 2))
	k.Set(1, 3)
	k.Set(4, 5)
	assert.True(t, k.Overlapping(3, 1))

	additions, removals = k.Diff(additions[:0], nil)
	assert.Equal(t, []uint64{PackPair(4, 5)}, additions)
	assert.Equal(t, []uint64{PackPair(1, 2)}, removals)

	k.Tick()
	additions, removals = k.Diff(nil, nil)
	assert.Empty(t, additions)
	assert.ElementsMatch(t, []uint64{PackPair(1, 3), PackPair(4, 5)}, removals)
}

func TestOverlapKeeper_RemoveID(t *testing.T) {
	k := NewOverlapKeeper()
	k.Set(1, 2)
	k.Set(2, 3)
	k.Tick()
	k.Set(1, 2)
	k.Set(1, 4)

	k.RemoveID(2)

	assert.False(t, k.Overlapping(1, 2))
	assert.False(t, k.Previously(2, 3))
	assert.True(t, k.Overlapping(1, 4))

	additions, removals := k.Diff(nil, nil)
	assert.Equal(t, []uint64{PackPair(1, 4)}, additions)
	assert.Empty(t, removals, "a removed id never reports an end of overlap")
}
