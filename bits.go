package koseki

import (
	"math/bits"
	"strconv"
	"strings"
)

const bitsPerWord = 32

// Bits is a growable bitset backed by 32-bit words. Bit i lives in word i/32
// at offset i%32. The word slice grows monotonically on Set and never shrinks
// except through ClearAll.
//
// Bits is the mask currency of the whole core: the component registry builds
// them, the Matcher evaluates them, and the bitmap index stores one per
// entity.
type Bits struct {
	words []uint32
}

// NewBits creates an empty bitset with capacity for the given number of bits.
// A hint of 0 is valid and allocates nothing until the first Set.
func NewBits(hint int) *Bits {
	if hint <= 0 {
		return &Bits{}
	}
	return &Bits{words: make([]uint32, 0, (hint+bitsPerWord-1)/bitsPerWord)}
}

// Set enables bit i, growing the word slice as needed.
func (b *Bits) Set(i int) {
	word := i / bitsPerWord
	b.grow(word + 1)
	b.words[word] |= 1 << (uint(i) % bitsPerWord)
}

// Clear disables bit i. Clearing a bit beyond the current capacity is a no-op.
func (b *Bits) Clear(i int) {
	word := i / bitsPerWord
	if word >= len(b.words) {
		return
	}
	b.words[word] &^= 1 << (uint(i) % bitsPerWord)
}

// Get reports whether bit i is set.
func (b *Bits) Get(i int) bool {
	word := i / bitsPerWord
	if word >= len(b.words) {
		return false
	}
	return b.words[word]&(1<<(uint(i)%bitsPerWord)) != 0
}

// ContainsAll reports whether every bit set in other is also set in b.
func (b *Bits) ContainsAll(other *Bits) bool {
	for i, w := range other.words {
		var have uint32
		if i < len(b.words) {
			have = b.words[i]
		}
		if have&w != w {
			return false
		}
	}
	return true
}

// Intersects reports whether b and other share at least one set bit.
func (b *Bits) Intersects(other *Bits) bool {
	n := min(len(b.words), len(other.words))
	for i := 0; i < n; i++ {
		if b.words[i]&other.words[i] != 0 {
			return true
		}
	}
	return false
}

// Excludes reports whether b and other have no set bit in common.
func (b *Bits) Excludes(other *Bits) bool {
	return !b.Intersects(other)
}

// Or sets every bit in b that is set in other.
func (b *Bits) Or(other *Bits) {
	b.grow(len(other.words))
	for i, w := range other.words {
		b.words[i] |= w
	}
}

// Cardinality returns the number of set bits.
func (b *Bits) Cardinality() int {
	total := 0
	for _, w := range b.words {
		total += bits.OnesCount32(w)
	}
	return total
}

// IsEmpty reports whether no bit is set.
func (b *Bits) IsEmpty() bool {
	for _, w := range b.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// ClearAll resets every bit while keeping the allocated words.
func (b *Bits) ClearAll() {
	clear(b.words)
}

// Equal reports whether b and other represent the same bit set. Trailing zero
// words are ignored, so bitsets of different capacity can still be equal.
func (b *Bits) Equal(other *Bits) bool {
	longest := max(len(b.words), len(other.words))
	for i := 0; i < longest; i++ {
		var x, y uint32
		if i < len(b.words) {
			x = b.words[i]
		}
		if i < len(other.words) {
			y = other.words[i]
		}
		if x != y {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the bitset.
func (b *Bits) Clone() *Bits {
	c := &Bits{words: make([]uint32, len(b.words))}
	copy(c.words, b.words)
	return c
}

// ForEachSet calls fn with the index of every set bit in ascending order.
func (b *Bits) ForEachSet(fn func(i int)) {
	for wi, w := range b.words {
		for w != 0 {
			bit := bits.TrailingZeros32(w)
			fn(wi*bitsPerWord + bit)
			w &^= 1 << uint(bit)
		}
	}
}

// String renders the set bit indices for debugging.
func (b *Bits) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	b.ForEachSet(func(i int) {
		if !first {
			sb.WriteByte(',')
		}
		first = false
		sb.WriteString(strconv.Itoa(i))
	})
	sb.WriteByte('}')
	return sb.String()
}

func (b *Bits) grow(words int) {
	if words <= len(b.words) {
		return
	}
	if cap(b.words) >= words {
		b.words = b.words[:words]
		return
	}
	nw := make([]uint32, words, max(words, 2*cap(b.words)))
	copy(nw, b.words)
	b.words = nw
}
