// Package bitset is a fixed-size set of bits packed into 64-bit words.
package bitset

import "math/bits"

// BitSet stores bit i in word i/64 at position i%64.
type BitSet []uint64

// NewBitSet returns a BitSet large enough to hold n bits.
func NewBitSet(n uint64) BitSet {
	return make(BitSet, (n+63)/64)
}

func locate(index uint64) (word uint64, mask uint64) {
	return index / 64, uint64(1) << (index % 64)
}

func (b BitSet) IsSet(index uint64) bool {
	word, mask := locate(index)
	return b[word]&mask != 0
}

func (b BitSet) Set(index uint64) {
	word, mask := locate(index)
	b[word] |= mask
}

// Flip toggles the bit at index and reports whether it is now set.
func (b BitSet) Flip(index uint64) bool {
	word, mask := locate(index)
	b[word] ^= mask
	return b[word]&mask != 0
}

// Count returns the number of set bits.
func (b BitSet) Count() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return n
}

// PrevSet returns the highest set bit at or below index.
func (b BitSet) PrevSet(index uint64) (uint64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	word := int(index / 64)
	mask := ^uint64(0) >> (63 - index%64)
	if word >= len(b) {
		word, mask = len(b)-1, ^uint64(0)
	}
	for ; word >= 0; word-- {
		if masked := b[word] & mask; masked != 0 {
			return uint64(word)*64 + uint64(bits.Len64(masked)-1), true
		}
		mask = ^uint64(0)
	}
	return 0, false
}

// NextSet returns the lowest set bit at or above index.
func (b BitSet) NextSet(index uint64) (uint64, bool) {
	word := index / 64
	if word >= uint64(len(b)) {
		return 0, false
	}
	mask := ^uint64(0) << (index % 64)
	for ; word < uint64(len(b)); word++ {
		if masked := b[word] & mask; masked != 0 {
			return word*64 + uint64(bits.TrailingZeros64(masked)), true
		}
		mask = ^uint64(0)
	}
	return 0, false
}

// Clone returns an independent copy of b.
func (b BitSet) Clone() BitSet {
	c := make(BitSet, len(b))
	copy(c, b)
	return c
}
