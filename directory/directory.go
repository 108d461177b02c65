// Package directory implements the directory engine: entry iteration,
// long-filename-aware logical listing, free-run search, and the
// link/unlink/rename operations that keep a directory's on-disk records
// and its inodes' short entries in sync. A record-at-a-time cursor spans
// the FAT12/16 fixed root region or an ordinary cluster chain
// transparently, and assembles/consumes long-filename chains as it goes.
package directory

import (
	"github.com/go-fatfs/fatfs/blockcache"
	"github.com/go-fatfs/fatfs/blockdev"
	"github.com/go-fatfs/fatfs/dirent"
	"github.com/go-fatfs/fatfs/errors"
	"github.com/go-fatfs/fatfs/fat"
	"github.com/go-fatfs/fatfs/inode"
)

// Directory is a cursor-addressable sequence of 32-byte records: either
// the FAT12/16 fixed-size root region, or an ordinary cluster chain owned
// by a directory inode.
type Directory struct {
	bpb    *fat.BPB
	table  *fat.Table
	alloc  *fat.Allocator
	blocks *blockcache.Cache
	engine *inode.Engine
	inodes *inode.Cache

	// Inode is nil for the FAT12/16 fixed root, which isn't a cluster
	// chain and has no directory entry of its own.
	Inode *inode.Inode

	fixedRoot       bool
	fixedRootSector blockdev.SectorID
	fixedRootCount  uint
}

// New wraps an ordinary directory inode for record-level access.
func New(bpb *fat.BPB, table *fat.Table, alloc *fat.Allocator, blocks *blockcache.Cache, engine *inode.Engine, inodes *inode.Cache, dirInode *inode.Inode) *Directory {
	return &Directory{bpb: bpb, table: table, alloc: alloc, blocks: blocks, engine: engine, inodes: inodes, Inode: dirInode}
}

// NewFixedRoot wraps the FAT12/16 fixed-size root directory region.
func NewFixedRoot(bpb *fat.BPB, table *fat.Table, alloc *fat.Allocator, blocks *blockcache.Cache, engine *inode.Engine, inodes *inode.Cache) *Directory {
	return &Directory{
		bpb: bpb, table: table, alloc: alloc, blocks: blocks, engine: engine, inodes: inodes,
		fixedRoot:       true,
		fixedRootSector: blockdev.SectorID(bpb.FirstRootDirSector),
		fixedRootCount:  bpb.RootEntryCount,
	}
}

// recordCapacity returns the number of 32-byte records this directory can
// currently hold without growing (only meaningful for the fixed root;
// ordinary directories grow on demand).
func (d *Directory) recordCapacity() uint {
	if d.fixedRoot {
		return d.fixedRootCount
	}
	return 0 // unbounded; ordinary directories extend themselves
}

// recordSector locates the device sector and in-sector byte offset holding
// record index. For the fixed root this is direct arithmetic; for an
// ordinary directory it walks the cluster chain through the inode engine.
func (d *Directory) recordSector(index uint) (blockdev.SectorID, uint, errors.DriverError) {
	bps := d.bpb.BytesPerSector
	byteOffset := index * dirent.EntrySize

	if d.fixedRoot {
		if index >= d.fixedRootCount {
			return 0, 0, errors.NewWithMessage(errors.EINVAL, "record index past fixed root directory")
		}
		return d.fixedRootSector + blockdev.SectorID(byteOffset/bps), byteOffset % bps, nil
	}

	clusterSize := d.bpb.BytesPerCluster
	chainIndex := uint(byteOffset / clusterSize)
	offsetInCluster := uint(byteOffset % clusterSize)

	cluster, err := d.engine.SeekCluster(d.Inode, chainIndex)
	if err != nil {
		return 0, 0, err
	}

	sectorInCluster := offsetInCluster / bps
	offsetInSector := offsetInCluster % bps
	sector := d.bpb.FirstSectorOfCluster(cluster) + uint64(sectorInCluster)
	return blockdev.SectorID(sector), offsetInSector, nil
}

// readRecord copies the 32 raw bytes of record index into buf.
func (d *Directory) readRecord(index uint, buf []byte) errors.DriverError {
	sector, offset, err := d.recordSector(index)
	if err != nil {
		return err
	}
	blk, gerr := d.blocks.Get(sector)
	if gerr != nil {
		return gerr
	}
	copy(buf, blk.Data[offset:offset+dirent.EntrySize])
	d.blocks.Unref(blk)
	return nil
}

// writeRecord overwrites record index with the 32 bytes in buf.
func (d *Directory) writeRecord(index uint, buf []byte) errors.DriverError {
	sector, offset, err := d.recordSector(index)
	if err != nil {
		return err
	}
	blk, gerr := d.blocks.Get(sector)
	if gerr != nil {
		return gerr
	}
	d.blocks.BeginWrite(blk)
	copy(blk.Data[offset:offset+dirent.EntrySize], buf)
	d.blocks.FinishWrite(blk)
	d.blocks.Unref(blk)
	return nil
}

// Iterate returns the raw 32 bytes of record index, or ok=false if index
// is past the end of the directory: a 0x00 record in any directory, the
// fixed root's capacity for the root, or chain EOF for an ordinary
// directory.
func (d *Directory) Iterate(index uint) (raw []byte, ok bool, err errors.DriverError) {
	if d.fixedRoot && index >= d.fixedRootCount {
		return nil, false, nil
	}

	buf := make([]byte, dirent.EntrySize)
	if rerr := d.readRecord(index, buf); rerr != nil {
		if rerr == inode.ErrNoSuchCluster {
			return nil, false, nil
		}
		return nil, false, rerr
	}
	if buf[0] == dirent.FreeMarker {
		return nil, false, nil
	}
	return buf, true, nil
}
