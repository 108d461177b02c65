package fat

import (
	"github.com/boljen/go-bitmap"

	"github.com/go-fatfs/fatfs/blockcache"
	"github.com/go-fatfs/fatfs/blockdev"
	"github.com/go-fatfs/fatfs/errors"
)

// freeCountUnknown is the fsinfo sentinel meaning "recompute me on mount".
const freeCountUnknown = 0xFFFFFFFF

const (
	fsInfoLeadSig  = 0x41615252
	fsInfoStrucSig = 0x61417272
	fsInfoTrailSig = 0xAA550000

	fsInfoLeadSigOffset  = 0
	fsInfoStrucSigOffset = 484
	fsInfoFreeCountOffset = 488
	fsInfoNextFreeOffset  = 492
	fsInfoTrailSigOffset  = 508
)

// Allocator tracks free-cluster state for one mounted volume: a rolling
// search cursor, a running free-cluster count, and (FAT32 only) the fsinfo
// sector those two are shadowed into. A bitmap allocator backs the
// first-fit scan, which maintains a rolling cursor across calls and
// persists its state rather than rescanning from the start every time.
type Allocator struct {
	bpb   *BPB
	table *Table
	cache *blockcache.Cache

	// used mirrors "FAT entry for cluster c+2 is nonzero" for every data
	// cluster; it is built once from the FAT at mount and kept in sync by
	// AllocateCluster/FreeCluster so a scan never has to re-read the FAT.
	used bitmap.Bitmap

	freeSearch uint
	freeCount  uint64
	freeKnown  bool

	lastPersistedFreeCount uint32
	lastPersistedNextFree  uint32
	fsInfoLoaded           bool
}

// NewAllocator builds an Allocator over an already-parsed BPB and mounted
// FAT table, seeding its free/used bitmap with one linear scan of the FAT.
func NewAllocator(bpb *BPB, cache *blockcache.Cache, table *Table) (*Allocator, errors.DriverError) {
	a := &Allocator{
		bpb:   bpb,
		table: table,
		cache: cache,
		used:  bitmap.New(int(bpb.TotalClusters)),
	}

	if err := a.buildBitmap(); err != nil {
		return nil, err
	}

	if bpb.FATVersion == 32 {
		if err := a.loadFSInfo(); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// buildBitmap scans every data cluster's FAT entry once and records whether
// it is allocated.
func (a *Allocator) buildBitmap() errors.DriverError {
	for i := uint(0); i < a.bpb.TotalClusters; i++ {
		v, err := a.table.Get(ClusterID(i + 2))
		if err != nil {
			return err
		}
		a.used.Set(int(i), v != 0)
	}
	return nil
}

func (a *Allocator) loadFSInfo() errors.DriverError {
	blk, err := a.cache.Get(a.fsInfoSector())
	if err != nil {
		return err
	}
	defer a.cache.Unref(blk)

	leadSig := readUint32(blk.Data, fsInfoLeadSigOffset)
	strucSig := readUint32(blk.Data, fsInfoStrucSigOffset)
	trailSig := readUint32(blk.Data, fsInfoTrailSigOffset)
	if leadSig != fsInfoLeadSig || strucSig != fsInfoStrucSig || trailSig != fsInfoTrailSig {
		// No valid fsinfo sector on disk yet; treat as unknown and let the
		// next WriteInfo lay one down.
		a.fsInfoLoaded = true
		return nil
	}

	persistedFreeCount := readUint32(blk.Data, fsInfoFreeCountOffset)
	persistedNextFree := readUint32(blk.Data, fsInfoNextFreeOffset)
	a.lastPersistedFreeCount = persistedFreeCount
	a.lastPersistedNextFree = persistedNextFree

	if persistedFreeCount != freeCountUnknown {
		a.freeCount = uint64(persistedFreeCount)
		a.freeKnown = true
	}
	if persistedNextFree != freeCountUnknown && persistedNextFree >= 2 {
		a.freeSearch = uint(persistedNextFree) - 2
	}
	a.fsInfoLoaded = true
	return nil
}

func (a *Allocator) fsInfoSector() blockdev.SectorID {
	return blockdev.SectorID(a.bpb.FSInfoSector)
}

// AllocateCluster returns the first free cluster found scanning forward
// from the rolling cursor, wrapping around the cluster space once. The
// cursor is left just past the returned cluster. The caller is responsible
// for writing the chain terminator (or a link from the previous cluster)
// into the FAT; AllocateCluster only marks the cluster used in the
// allocator's own bookkeeping.
func (a *Allocator) AllocateCluster() (ClusterID, errors.DriverError) {
	total := a.bpb.TotalClusters
	if total == 0 {
		return 0, errors.NewWithMessage(errors.ENOSPC, "volume has no data clusters")
	}

	start := a.freeSearch % total
	for i := uint(0); i < total; i++ {
		idx := (start + i) % total
		if !a.used.Get(int(idx)) {
			a.used.Set(int(idx), true)
			a.freeSearch = (idx + 1) % total
			if a.freeKnown {
				a.freeCount--
			}
			return ClusterID(idx + 2), nil
		}
	}

	return 0, errors.NewWithMessage(errors.ENOSPC, "no free clusters")
}

// FreeCluster marks cluster c free in the allocator's bookkeeping. If c
// precedes the current search cursor, the cursor is pulled back to c so the
// next allocation reuses it immediately instead of leaving a gap behind the
// cursor. The caller is responsible for writing 0 to the FAT entry.
func (a *Allocator) FreeCluster(c ClusterID) errors.DriverError {
	if !a.bpb.IsValidCluster(c) {
		return errors.NewWithMessage(errors.EINVAL, "cluster out of range")
	}
	idx := uint(c) - 2

	a.used.Set(int(idx), false)
	if idx < a.freeSearch {
		a.freeSearch = idx
	}
	if a.freeKnown {
		a.freeCount++
	}
	return nil
}

// CalculateFreeCount recomputes free_count from the allocator's bitmap. It
// is meant to be called once, at mount, only when the persisted fsinfo
// value was the "unknown" sentinel (or absent): a normal mount simply
// trusts the value loadFSInfo already read.
func (a *Allocator) CalculateFreeCount() {
	free := uint64(0)
	for i := 0; i < int(a.bpb.TotalClusters); i++ {
		if !a.used.Get(i) {
			free++
		}
	}
	a.freeCount = free
	a.freeKnown = true
}

// FreeCount returns the current free-cluster count and whether it is known.
func (a *Allocator) FreeCount() (uint64, bool) {
	return a.freeCount, a.freeKnown
}

// WriteInfo persists the fsinfo sector on FAT32 volumes if either counter
// has changed since the last time it was written. It is a no-op on
// FAT12/16, which have no fsinfo sector.
func (a *Allocator) WriteInfo() errors.DriverError {
	if a.bpb.FATVersion != 32 {
		return nil
	}

	nextFree := uint32(freeCountUnknown)
	if a.bpb.TotalClusters > 0 {
		nextFree = uint32(a.freeSearch) + 2
	}
	freeCountField := uint32(freeCountUnknown)
	if a.freeKnown {
		freeCountField = uint32(a.freeCount)
	}

	if freeCountField == a.lastPersistedFreeCount && nextFree == a.lastPersistedNextFree {
		return nil
	}

	blk, err := a.cache.Get(a.fsInfoSector())
	if err != nil {
		return err
	}
	defer a.cache.Unref(blk)

	a.cache.BeginWrite(blk)
	writeUint32(blk.Data, fsInfoLeadSigOffset, fsInfoLeadSig)
	writeUint32(blk.Data, fsInfoStrucSigOffset, fsInfoStrucSig)
	writeUint32(blk.Data, fsInfoFreeCountOffset, freeCountField)
	writeUint32(blk.Data, fsInfoNextFreeOffset, nextFree)
	writeUint32(blk.Data, fsInfoTrailSigOffset, fsInfoTrailSig)
	a.cache.FinishWrite(blk)

	a.lastPersistedFreeCount = freeCountField
	a.lastPersistedNextFree = nextFree
	return nil
}

func readUint32(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}

func writeUint32(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}
