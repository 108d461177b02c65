package dirent

import (
	"encoding/binary"

	"github.com/noxer/bytewriter"
)

// LongNameEntry is one 32-byte long-filename continuation record. A
// logical name's chain is ordinals N, N-1, ..., 1 preceding the short
// entry, with the "last" bit set on the first (highest-ordinal) record and
// every record's checksum matching the short entry that terminates the
// chain.
type LongNameEntry struct {
	Ordinal  uint8 // low 5 bits: 1-20; bit 0x40: "last" (first on disk)
	Name1    [5]uint16
	Name2    [6]uint16
	Name3    [2]uint16
	Checksum uint8
}

const lastLongNameBit = 0x40

// Sequence returns the 1-based ordinal, stripped of the "last" bit.
func (l *LongNameEntry) Sequence() int { return int(l.Ordinal & 0x1F) }

// IsLast reports whether this is the first entry of the chain on disk
// (highest ordinal, carrying the chain's final UCS-2 fragment).
func (l *LongNameEntry) IsLast() bool { return l.Ordinal&lastLongNameBit != 0 }

// IsDeleted reports whether this long-name record has been unlinked.
func (l *LongNameEntry) IsDeleted() bool { return l.Ordinal == DeletedMarker }

// DecodeLongNameEntry parses one 32-byte buffer as a long-filename record.
// Callers are expected to have already checked Attributes == AttrLongName.
func DecodeLongNameEntry(b []byte) LongNameEntry {
	_ = b[31]
	var l LongNameEntry
	l.Ordinal = b[0]
	for i := 0; i < 5; i++ {
		l.Name1[i] = leUint16(b[1+2*i : 3+2*i])
	}
	l.Checksum = b[13]
	for i := 0; i < 6; i++ {
		l.Name2[i] = leUint16(b[14+2*i : 16+2*i])
	}
	for i := 0; i < 2; i++ {
		l.Name3[i] = leUint16(b[28+2*i : 30+2*i])
	}
	return l
}

// Encode serializes l into a fresh 32-byte buffer. It assembles the three
// UCS-2 windows with a bounds-checked bytewriter.Writer rather than manual
// slice offsets, since a single off-by-two here silently corrupts the
// neighbouring field instead of panicking.
func (l *LongNameEntry) Encode() []byte {
	b := make([]byte, EntrySize)
	w := bytewriter.New(b)

	w.Write([]byte{l.Ordinal})
	writeUnits(w, l.Name1[:])
	w.Write([]byte{AttrLongName, 0, l.Checksum})
	writeUnits(w, l.Name2[:])
	w.Write([]byte{0, 0}) // FirstClusterLow, always 0 for LFN records
	writeUnits(w, l.Name3[:])

	return b
}

func writeUnits(w *bytewriter.Writer, units []uint16) {
	var tmp [2]byte
	for _, u := range units {
		binary.LittleEndian.PutUint16(tmp[:], u)
		w.Write(tmp[:])
	}
}

// units concatenates the entry's 13 UCS-2 slots in on-disk order.
func (l *LongNameEntry) units() [13]uint16 {
	var out [13]uint16
	copy(out[0:5], l.Name1[:])
	copy(out[5:11], l.Name2[:])
	copy(out[11:13], l.Name3[:])
	return out
}

// ShortNameChecksum computes the one-byte rotate-right-and-add checksum
// over the 11 raw bytes (8 name + 3 extension, space-padded, escaped) of a
// short entry.
func ShortNameChecksum(name11 [11]byte) uint8 {
	var sum uint8
	for _, b := range name11 {
		sum = (sum>>1 | sum<<7) + b
	}
	return sum
}

const longNamePaddingUnit = 0xFFFF

// packLongNameUnits splits one record's 13-slot window into the record's
// three name fields. The caller has already placed the name units, any
// terminating NUL, and the 0xFFFF padding in the window.
func packLongNameUnits(window [13]uint16) (n1 [5]uint16, n2 [6]uint16, n3 [2]uint16) {
	copy(n1[:], window[0:5])
	copy(n2[:], window[5:11])
	copy(n3[:], window[11:13])
	return
}

// BuildLongNameChain splits the UCS-2 encoding of name (without a
// terminating NUL) into the ordinal-ordered records needed to hold it,
// computes each record's checksum against shortName11, and returns them in
// on-disk order: highest ordinal (with the "last" bit set) first, ordinal 1
// last, immediately preceding the short entry.
func BuildLongNameChain(units []uint16, shortName11 [11]byte) []LongNameEntry {
	const unitsPerEntry = 13

	padded := append([]uint16{}, units...)
	if len(units)%unitsPerEntry != 0 || len(units) == 0 {
		padded = append(padded, 0)
	}
	numEntries := (len(padded) + unitsPerEntry - 1) / unitsPerEntry
	if numEntries == 0 {
		numEntries = 1
	}

	checksum := ShortNameChecksum(shortName11)
	entries := make([]LongNameEntry, numEntries)

	for i := 0; i < numEntries; i++ {
		var window [13]uint16
		for j := range window {
			window[j] = longNamePaddingUnit
		}
		start := i * unitsPerEntry
		end := start + unitsPerEntry
		if end > len(padded) {
			end = len(padded)
		}
		copy(window[:], padded[start:end])

		e := LongNameEntry{Checksum: checksum}
		e.Name1, e.Name2, e.Name3 = packLongNameUnits(window)
		e.Ordinal = uint8(i + 1)
		entries[i] = e
	}
	entries[numEntries-1].Ordinal |= lastLongNameBit

	// On-disk order is highest ordinal first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries
}

// DecodeLongNameChain reassembles the UCS-2 code units (without the
// terminating NUL or 0xFFFF padding) from a chain of LongNameEntry records
// already in on-disk order (highest ordinal first). It does not validate
// ordinal contiguity or checksum; callers do that against the following
// short entry before trusting the result.
func DecodeLongNameChain(chain []LongNameEntry) []uint16 {
	// Re-sort into logical order (ordinal 1 first) before concatenating.
	ordered := make([]LongNameEntry, len(chain))
	copy(ordered, chain)
	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}

	var out []uint16
	for _, e := range ordered {
		for _, u := range e.units() {
			if u == 0 || u == longNamePaddingUnit {
				return out
			}
			out = append(out, u)
		}
	}
	return out
}

// ChainIsConsistent reports whether chain (on-disk order: highest ordinal
// first) has contiguous ordinals starting at 1, the "last" bit set only on
// the first record, and every checksum matching shortName11.
func ChainIsConsistent(chain []LongNameEntry, shortName11 [11]byte) bool {
	if len(chain) == 0 {
		return false
	}
	want := ShortNameChecksum(shortName11)
	n := len(chain)
	for i, e := range chain {
		expectedOrdinal := n - i
		if e.Sequence() != expectedOrdinal {
			return false
		}
		if e.IsLast() != (i == 0) {
			return false
		}
		if e.Checksum != want {
			return false
		}
	}
	return true
}
