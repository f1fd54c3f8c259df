package permission

import "math/bits"

// Mask64 is a 64-bit permission set. Bit 63 is the root bit when the registry
// reserves it.
type Mask64 uint64

const rootBit64 = 63

// Has reports whether bit is set. With rootReserved, a set root bit satisfies
// every bit.
func (m *Mask64) Has(bit int, rootReserved bool) bool {
	if bit < 0 || bit >= 64 {
		return false
	}

	if rootReserved && (*m&(1<<rootBit64)) != 0 {
		return true
	}

	return (*m & (1 << bit)) != 0
}

func (m *Mask64) Set(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m |= (1 << bit)
}

func (m *Mask64) Clear(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m &^= (1 << bit)
}

// Union sets every bit set in other.
func (m *Mask64) Union(other Mask64) {
	*m |= other
}

// Count returns the number of set bits.
func (m *Mask64) Count() int {
	return bits.OnesCount64(uint64(*m))
}

func (m *Mask64) Raw() uint64 {
	return uint64(*m)
}
