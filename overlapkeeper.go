package ballista

import "slices"

// OverlapKeeper remembers which id pairs overlapped this step and the step
// before. Keys are packed as (min<<32)|max and kept sorted.
type OverlapKeeper struct {
	current  []uint64
	previous []uint64
}

func NewOverlapKeeper() *OverlapKeeper {
	return &OverlapKeeper{}
}

// PackPair builds the order independent key of an id pair.
func PackPair(i, j int) uint64 {
	if i > j {
		i, j = j, i
	}
	return uint64(uint32(i))<<32 | uint64(uint32(j))
}

// Unpack splits a key back into its ids, smallest first.
func Unpack(key uint64) (int, int) {
	return int(key >> 32), int(key & 0xffffffff)
}

func (k *OverlapKeeper) Set(i, j int) {
	key := PackPair(i, j)
	idx, found := slices.BinarySearch(k.current, key)
	if found {
		return
	}
	k.current = slices.Insert(k.current, idx, key)
}

// Tick starts a new generation.
func (k *OverlapKeeper) Tick() {
	k.previous, k.current = k.current, k.previous[:0]
}

// Overlapping reports whether the pair was set during the current generation.
func (k *OverlapKeeper) Overlapping(i, j int) bool {
	_, found := slices.BinarySearch(k.current, PackPair(i, j))
	return found
}

// Previously reports whether the pair overlapped during the last generation.
func (k *OverlapKeeper) Previously(i, j int) bool {
	_, found := slices.BinarySearch(k.previous, PackPair(i, j))
	return found
}

// Diff appends the keys that appeared and disappeared since the last Tick.
func (k *OverlapKeeper) Diff(additions, removals []uint64) ([]uint64, []uint64) {
	a, b := k.current, k.previous
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i] < b[j]):
			additions = append(additions, a[i])
			i++
		case i == len(a) || b[j] < a[i]:
			removals = append(removals, b[j])
			j++
		default:
			i++
			j++
		}
	}
	return additions, removals
}

// RemoveID forgets every pair involving id in both generations.
func (k *OverlapKeeper) RemoveID(id int) {
	involves := func(key uint64) bool {
		i, j := Unpack(key)
		return i == id || j == id
	}
	k.current = slices.DeleteFunc(k.current, involves)
	k.previous = slices.DeleteFunc(k.previous, involves)
}
