package fat

import (
	"github.com/go-fatfs/fatfs/blockcache"
	"github.com/go-fatfs/fatfs/blockdev"
	"github.com/go-fatfs/fatfs/errors"
)

// Table reads and writes logical FAT entries, propagating writes to every
// FAT copy and handling the three on-disk entry widths (12/16/32-bit),
// talking to storage exclusively through the block cache rather than
// re-reading whole clusters from the device on every lookup.
type Table struct {
	bpb   *BPB
	cache *blockcache.Cache
}

// NewTable creates a Table over an already-mounted BPB and block cache.
func NewTable(bpb *BPB, cache *blockcache.Cache) *Table {
	return &Table{bpb: bpb, cache: cache}
}

// sentinels holds the three magic values (free is always 0) for one FAT
// variant: the lowest value considered end-of-chain, the canonical value
// written as a fresh chain terminator, and the bad-sector/IO-poison value.
type sentinels struct {
	eofMin    uint32
	eofWrite  uint32
	bad       uint32
	valueMask uint32
}

func (t *Table) sentinels() sentinels {
	switch t.bpb.FATVersion {
	case 12:
		return sentinels{eofMin: 0xFF8, eofWrite: 0xFFF, bad: 0xFF7, valueMask: 0xFFF}
	case 16:
		return sentinels{eofMin: 0xFFF8, eofWrite: 0xFFFF, bad: 0xFFF7, valueMask: 0xFFFF}
	default:
		return sentinels{eofMin: 0x0FFFFFF8, eofWrite: 0x0FFFFFFF, bad: 0x0FFFFFF7, valueMask: 0x0FFFFFFF}
	}
}

// IsEndOfChain reports whether v terminates a cluster chain.
func (t *Table) IsEndOfChain(v ClusterID) bool {
	return uint32(v) >= t.sentinels().eofMin
}

// IsBadCluster reports whether v is the bad-sector/IO-poison sentinel.
func (t *Table) IsBadCluster(v ClusterID) bool {
	return uint32(v) == t.sentinels().bad
}

// EOFValue is the canonical value written to terminate a new chain.
func (t *Table) EOFValue() ClusterID {
	return ClusterID(t.sentinels().eofWrite)
}

// entryLocation identifies the byte(s) holding entry c within copy number
// copyIndex of the FAT.
type entryLocation struct {
	sector       blockdev.SectorID
	byteOffset   uint
	spansSectors bool
	nextSector   blockdev.SectorID
}

func (t *Table) locate(c ClusterID, copyIndex uint) entryLocation {
	copyBase := t.bpb.FirstFATSector + uint64(copyIndex)*uint64(t.bpb.SectorsPerFAT)
	bps := t.bpb.BytesPerSector

	var byteOffset uint
	var entrySize uint
	switch t.bpb.FATVersion {
	case 12:
		byteOffset = uint(c) + uint(c)/2
		entrySize = 2
	case 16:
		byteOffset = uint(c) * 2
		entrySize = 2
	default:
		byteOffset = uint(c) * 4
		entrySize = 4
	}

	sectorIndex := byteOffset / bps
	offsetInSector := byteOffset % bps

	loc := entryLocation{
		sector:     blockdev.SectorID(copyBase) + blockdev.SectorID(sectorIndex),
		byteOffset: offsetInSector,
	}
	if offsetInSector+entrySize > bps {
		loc.spansSectors = true
		loc.nextSector = loc.sector + 1
	}
	return loc
}

// Get reads the logical value of FAT entry c from the first FAT copy.
func (t *Table) Get(c ClusterID) (ClusterID, errors.DriverError) {
	loc := t.locate(c, 0)

	first, err := t.cache.Get(loc.sector)
	if err != nil {
		return ClusterID(t.sentinels().bad), errors.ErrIOFailed.WrapError(err)
	}
	defer t.cache.Unref(first)

	var raw uint32
	switch t.bpb.FATVersion {
	case 12:
		secondData := first.Data
		secondOffset := loc.byteOffset + 1
		if loc.spansSectors {
			second, gerr := t.cache.Get(loc.nextSector)
			if gerr != nil {
				return ClusterID(t.sentinels().bad), errors.ErrIOFailed.WrapError(gerr)
			}
			defer t.cache.Unref(second)
			secondData = second.Data
			secondOffset = 0
		}
		raw = uint32(read12(c, first.Data[loc.byteOffset], secondData[secondOffset]))
	case 16:
		raw = uint32(first.Data[loc.byteOffset]) | uint32(first.Data[loc.byteOffset+1])<<8
	default:
		raw = uint32(first.Data[loc.byteOffset]) |
			uint32(first.Data[loc.byteOffset+1])<<8 |
			uint32(first.Data[loc.byteOffset+2])<<16 |
			uint32(first.Data[loc.byteOffset+3])<<24
		raw &= t.sentinels().valueMask
	}

	if raw == t.sentinels().bad {
		return ClusterID(raw), errors.ErrIOFailed.WithMessage("FAT entry is the bad-sector sentinel")
	}
	return ClusterID(raw), nil
}

// read12 extracts a 12-bit entry from the two bytes a FAT12 entry for
// cluster c shares with its neighbour. For even c, b0 is byteOffset and b1
// is byteOffset+1: the entry is the low byte plus the low nibble of b1. For
// odd c, b0 is byteOffset (the shared middle byte) and b1 is byteOffset+1:
// the entry is the high nibble of b0 plus all of b1, shifted left 4.
func read12(c ClusterID, b0, b1 byte) uint16 {
	if c%2 == 0 {
		return uint16(b0) | uint16(b1&0x0F)<<8
	}
	return uint16(b0>>4) | uint16(b1)<<4
}

// Set writes FAT entry c to v, propagating the write to every FAT copy in
// order. On FAT32 the top 4 reserved bits of the existing on-disk value are
// preserved unchanged.
func (t *Table) Set(c ClusterID, v ClusterID) errors.DriverError {
	for copyIndex := uint(0); copyIndex < t.bpb.NumFATs; copyIndex++ {
		if err := t.setOneCopy(c, v, copyIndex); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) setOneCopy(c ClusterID, v ClusterID, copyIndex uint) errors.DriverError {
	loc := t.locate(c, copyIndex)

	first, err := t.cache.Get(loc.sector)
	if err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	defer t.cache.Unref(first)

	switch t.bpb.FATVersion {
	case 12:
		return t.set12(c, first, loc, v)
	case 16:
		t.cache.BeginWrite(first)
		value := uint16(v) & 0xFFFF
		first.Data[loc.byteOffset] = byte(value)
		first.Data[loc.byteOffset+1] = byte(value >> 8)
		t.cache.FinishWrite(first)
		return nil
	default:
		t.cache.BeginWrite(first)
		existing := uint32(first.Data[loc.byteOffset]) |
			uint32(first.Data[loc.byteOffset+1])<<8 |
			uint32(first.Data[loc.byteOffset+2])<<16 |
			uint32(first.Data[loc.byteOffset+3])<<24
		reservedNibble := existing & 0xF0000000
		newValue := reservedNibble | (uint32(v) & 0x0FFFFFFF)
		first.Data[loc.byteOffset] = byte(newValue)
		first.Data[loc.byteOffset+1] = byte(newValue >> 8)
		first.Data[loc.byteOffset+2] = byte(newValue >> 16)
		first.Data[loc.byteOffset+3] = byte(newValue >> 24)
		t.cache.FinishWrite(first)
		return nil
	}
}

// set12 writes a 12-bit entry, merging into the byte it shares with the
// neighbouring cluster's entry rather than overwriting it outright. For
// even c, byteOffset is written in full and only the low nibble of
// byteOffset+1 is replaced, preserving the high nibble that belongs to
// cluster c+1. For odd c, byteOffset holds the shared middle byte: only its
// high nibble is replaced (the low nibble belongs to cluster c-1), and
// byteOffset+1 is written in full. It fetches the neighbouring sector only
// if the entry straddles a sector boundary.
func (t *Table) set12(c ClusterID, first *blockcache.Block, loc entryLocation, v ClusterID) errors.DriverError {
	value12 := uint16(v) & 0x0FFF

	secondData := first.Data
	secondOffset := loc.byteOffset + 1
	second := first
	if loc.spansSectors {
		var err errors.DriverError
		second, err = t.cache.Get(loc.nextSector)
		if err != nil {
			return errors.ErrIOFailed.WrapError(err)
		}
		defer t.cache.Unref(second)
		secondData = second.Data
		secondOffset = 0
	}

	t.cache.BeginWrite(first)
	if second != first {
		t.cache.BeginWrite(second)
	}

	if c%2 == 0 {
		first.Data[loc.byteOffset] = byte(value12)
		secondData[secondOffset] = (secondData[secondOffset] & 0xF0) | byte(value12>>8)
	} else {
		first.Data[loc.byteOffset] = (first.Data[loc.byteOffset] & 0x0F) | byte(value12<<4)
		secondData[secondOffset] = byte(value12 >> 4)
	}

	t.cache.FinishWrite(first)
	if second != first {
		t.cache.FinishWrite(second)
	}
	return nil
}
