package koseki

import (
	"math/rand/v2"
	"time"
)

// HashTableSize is the bucket count of the mapper's reverse table. Power of
// two so probing can mask instead of mod.
const HashTableSize = 1 << 18

// GlobalID is a 64-bit-equivalent globally unique identifier carried as two
// 32-bit words. High is a per-process identifier, Low a per-mapper sequence.
// The zero value {0, 0} is the canonical "no mapping" sentinel.
//
// Uniqueness is process-scoped: High mixes a 16-bit timestamp with 16 random
// bits, which makes cross-process collisions unlikely but not impossible.
// This is a documented design limitation, not a bug.
type GlobalID struct {
	High uint32
	Low  uint32
}

// IsNil reports whether the identifier is the empty sentinel.
func (g GlobalID) IsNil() bool {
	return g.High == 0 && g.Low == 0
}

// GlobalIDMapper maintains a bidirectional mapping between local compressed
// entity identifiers and global identifiers. The forward direction is two
// parallel arrays indexed by slot; the reverse direction is an open-addressed
// hash table with linear probing and backward-shift deletion, which keeps
// lookups O(1) amortized after heavy churn instead of accumulating
// tombstones.
//
// Mappings are keyed off the slot index, not the full identifier: destroying
// an entity must call RemoveMapping so that a recycled slot starts with a
// clean mapping.
type GlobalIDMapper struct {
	// forward maps, indexed by slot
	highWords []uint32
	lowWords  []uint32
	localIDs  []uint32 // full compressed ID owning the mapping

	// reverse table; buckets hold slot+1, 0 means empty
	table [HashTableSize]uint32

	processID uint32
	seq       uint32
	count     int
}

// NewGlobalIDMapper constructs a mapper with a fresh process identifier.
func NewGlobalIDMapper() *GlobalIDMapper {
	ts := uint32(time.Now().Unix()) & 0xFFFF
	return &GlobalIDMapper{
		processID: ts<<16 | rand.Uint32()&0xFFFF,
		seq:       0,
	}
}

// ProcessID returns the High word this mapper stamps on new global IDs.
func (m *GlobalIDMapper) ProcessID() uint32 {
	return m.processID
}

// Count returns the number of live mappings.
func (m *GlobalIDMapper) Count() int {
	return m.count
}

// GetOrCreateGlobalID returns the global identifier mapped to the entity,
// creating one on first call. The operation is idempotent per slot: repeated
// calls for the same live entity return the same GlobalID. Returns the zero
// GlobalID if the reverse table is full; callers must check the sentinel.
func (m *GlobalIDMapper) GetOrCreateGlobalID(id EntityID) GlobalID {
	if id.IsNil() {
		return GlobalID{}
	}
	slot := id.Slot()
	m.ensureSlot(slot)
	if m.highWords[slot] != 0 || m.lowWords[slot] != 0 {
		return GlobalID{High: m.highWords[slot], Low: m.lowWords[slot]}
	}
	if m.count >= HashTableSize {
		return GlobalID{}
	}
	g := GlobalID{High: m.processID, Low: m.nextSeq()}
	if !m.insert(g, slot) {
		return GlobalID{}
	}
	m.highWords[slot] = g.High
	m.lowWords[slot] = g.Low
	m.localIDs[slot] = uint32(id)
	m.count++
	return g
}

// GlobalIDFor returns the existing mapping for the entity without creating
// one, or the zero GlobalID if none exists.
func (m *GlobalIDMapper) GlobalIDFor(id EntityID) GlobalID {
	slot := id.Slot()
	if int(slot) >= len(m.highWords) {
		return GlobalID{}
	}
	return GlobalID{High: m.highWords[slot], Low: m.lowWords[slot]}
}

// FindEntityID resolves a global identifier back to the owning local
// identifier, or 0 if no mapping exists.
func (m *GlobalIDMapper) FindEntityID(high, low uint32) EntityID {
	if high == 0 && low == 0 {
		return 0
	}
	i := hashGlobal(high, low) & (HashTableSize - 1)
	for probes := 0; probes < HashTableSize; probes++ {
		bucket := m.table[i]
		if bucket == 0 {
			return 0
		}
		slot := bucket - 1
		if m.highWords[slot] == high && m.lowWords[slot] == low {
			return EntityID(m.localIDs[slot])
		}
		i = (i + 1) & (HashTableSize - 1)
	}
	return 0
}

// RemoveMapping deletes the entity's mapping, returning false if none
// existed. Removing a non-existent mapping is a benign no-op.
func (m *GlobalIDMapper) RemoveMapping(id EntityID) bool {
	slot := id.Slot()
	if int(slot) >= len(m.highWords) {
		return false
	}
	high, low := m.highWords[slot], m.lowWords[slot]
	if high == 0 && low == 0 {
		return false
	}
	m.removeFromHashTable(high, low, slot)
	m.highWords[slot] = 0
	m.lowWords[slot] = 0
	m.localIDs[slot] = 0
	m.count--
	return true
}

// Clear drops every mapping while keeping the forward array storage.
func (m *GlobalIDMapper) Clear() {
	clear(m.highWords)
	clear(m.lowWords)
	clear(m.localIDs)
	clear(m.table[:])
	m.count = 0
}

func (m *GlobalIDMapper) nextSeq() uint32 {
	m.seq++
	if m.seq == 0 {
		// wrap past 0xFFFFFFFF back to 1, never 0
		m.seq = 1
	}
	return m.seq
}

func (m *GlobalIDMapper) ensureSlot(slot uint32) {
	need := int(slot) + 1
	if need <= len(m.highWords) {
		return
	}
	grown := make([]uint32, need)
	copy(grown, m.highWords)
	m.highWords = grown
	grown = make([]uint32, need)
	copy(grown, m.lowWords)
	m.lowWords = grown
	grown = make([]uint32, need)
	copy(grown, m.localIDs)
	m.localIDs = grown
}

func (m *GlobalIDMapper) insert(g GlobalID, slot uint32) bool {
	i := hashGlobal(g.High, g.Low) & (HashTableSize - 1)
	for probes := 0; probes < HashTableSize; probes++ {
		if m.table[i] == 0 {
			m.table[i] = slot + 1
			return true
		}
		i = (i + 1) & (HashTableSize - 1)
	}
	return false
}

// removeFromHashTable deletes the bucket holding slot and back-fills the hole
// by re-seating trailing probe-chain entries whose ideal bucket lies at or
// before the hole (standard backward-shift deletion for linear probing).
func (m *GlobalIDMapper) removeFromHashTable(high, low, slot uint32) {
	const mask = HashTableSize - 1
	i := hashGlobal(high, low) & mask
	for probes := 0; probes < HashTableSize; probes++ {
		if m.table[i] == slot+1 {
			break
		}
		if m.table[i] == 0 {
			return
		}
		i = (i + 1) & mask
	}
	hole := i
	j := i
	for {
		j = (j + 1) & mask
		bucket := m.table[j]
		if bucket == 0 {
			break
		}
		s := bucket - 1
		ideal := hashGlobal(m.highWords[s], m.lowWords[s]) & mask
		// move the entry back iff its ideal bucket is not cyclically inside
		// (hole, j]
		if cyclicBetween(hole, ideal, j) {
			continue
		}
		m.table[hole] = bucket
		hole = j
	}
	m.table[hole] = 0
}

// cyclicBetween reports whether pos lies in the half-open cyclic interval
// (from, to].
func cyclicBetween(from, pos, to uint32) bool {
	if from <= to {
		return from < pos && pos <= to
	}
	return from < pos || pos <= to
}

// hashGlobal mixes the two ID words with a xorshift/multiply finalizer so
// sequential Low values spread across the table.
func hashGlobal(high, low uint32) uint32 {
	x := high*0x85ebca6b ^ low*0xc2b2ae35
	x ^= x >> 16
	x *= 0x7feb352d
	x ^= x >> 15
	x *= 0x846ca68b
	x ^= x >> 16
	return x
}
