// Package fs ties the block cache, FAT table, allocator, inode engine, and
// directory engine together into one mounted volume: the filesystem root.
// Clean-unmount tracking uses the per-variant top-bits-of-FAT-entry-1
// convention, and a latch-style corruption flag also revokes write access
// on the underlying device.
package fs

import (
	"os"

	"github.com/go-fatfs/fatfs"
	"github.com/go-fatfs/fatfs/blockcache"
	"github.com/go-fatfs/fatfs/blockdev"
	"github.com/go-fatfs/fatfs/directory"
	"github.com/go-fatfs/fatfs/dirent"
	"github.com/go-fatfs/fatfs/errors"
	"github.com/go-fatfs/fatfs/fat"
	"github.com/go-fatfs/fatfs/inode"
)

// dirtyBitEntry is the reserved FAT entry whose top bits record clean
// unmount. It is never a valid data cluster.
const dirtyBitEntry = fat.ClusterID(1)

// Filesystem owns every piece of mounted-volume state: the pinned BPB
// block, the inode cache, the allocator, and the shared block cache that
// everything else reads and writes through.
type Filesystem struct {
	device blockdev.Device
	bpb    *fat.BPB
	bpbBlk *blockcache.Block

	Blocks *blockcache.Cache
	Table  *fat.Table
	Alloc  *fat.Allocator
	Engine *inode.Engine
	Inodes *inode.Cache

	Root *directory.Directory

	corrupted      bool
	checkRequested bool
}

// Mount reads and validates the boot sector, builds the FAT table,
// allocator, inode cache, and inode engine, and pins the BPB block for the
// filesystem's lifetime. It does not itself call MarkMounted; callers
// decide whether to flag the volume dirty (a read-only mount typically
// should not).
func Mount(device blockdev.Device, cacheCapacity uint) (*Filesystem, errors.DriverError) {
	blocks := blockcache.New(device, cacheCapacity)

	bpbBlk, err := blocks.Get(0)
	if err != nil {
		return nil, err
	}

	bpb, perr := fat.Parse(bpbBlk.Data)
	if perr != nil {
		blocks.Unref(bpbBlk)
		return nil, perr
	}

	table := fat.NewTable(bpb, blocks)
	alloc, aerr := fat.NewAllocator(bpb, blocks, table)
	if aerr != nil {
		blocks.Unref(bpbBlk)
		return nil, aerr
	}
	if _, known := alloc.FreeCount(); !known {
		alloc.CalculateFreeCount()
	}

	inodes := inode.New()
	engine := inode.NewEngine(bpb, table, alloc, blocks, inodes)

	f := &Filesystem{
		device: device,
		bpb:    bpb,
		bpbBlk: bpbBlk,
		Blocks: blocks,
		Table:  table,
		Alloc:  alloc,
		Engine: engine,
		Inodes: inodes,
	}

	if bpb.FATVersion == 32 {
		f.Root = directory.New(bpb, table, alloc, blocks, engine, inodes, f.rootInode())
	} else {
		f.Root = directory.NewFixedRoot(bpb, table, alloc, blocks, engine, inodes)
	}

	return f, nil
}

// rootInode builds (or returns the cached) pseudo-inode for a FAT32
// volume's root directory, whose cluster is named in the BPB rather than
// discovered via a parent directory entry.
func (f *Filesystem) rootInode() *inode.Inode {
	if n := f.Inodes.Lookup(inode.ID(f.bpb.RootCluster)); n != nil {
		return n
	}
	short := dirent.ShortEntry{Attributes: dirent.AttrDirectory}
	short.SetFirstCluster(uint32(f.bpb.RootCluster))
	return f.Inodes.New(inode.ID(f.bpb.RootCluster), short, nil, 0, nil, true)
}

// dirtyBitFields returns the bits of FAT entry 1 that record clean-unmount
// state for this volume's variant, and whether the variant has one at all
// (FAT12 doesn't).
func (f *Filesystem) dirtyBitFields() (mask fat.ClusterID, hasFlag bool) {
	switch f.bpb.FATVersion {
	case 16:
		return 0xC000, true
	case 32:
		return 0x0C000000, true
	default:
		return 0, false
	}
}

// WasUnmountedCleanly reads FAT entry 1 and reports whether the volume's
// dirty bits are set (clean) or clear (the last session ended without a
// clean unmount). FAT12 has no such flag and is always reported clean.
func (f *Filesystem) WasUnmountedCleanly() (bool, errors.DriverError) {
	mask, hasFlag := f.dirtyBitFields()
	if !hasFlag {
		return true, nil
	}
	v, err := f.Table.Get(dirtyBitEntry)
	if err != nil {
		return false, err
	}
	return v&mask == mask, nil
}

// MarkMounted clears the dirty bits (signalling "in use") and forces a
// sync, so a crash before the next MarkUnmounted leaves them clear.
func (f *Filesystem) MarkMounted() errors.DriverError {
	mask, hasFlag := f.dirtyBitFields()
	if !hasFlag {
		return nil
	}
	v, err := f.Table.Get(dirtyBitEntry)
	if err != nil {
		return err
	}
	if err := f.Table.Set(dirtyBitEntry, v&^mask); err != nil {
		return err
	}
	return f.Sync()
}

// MarkUnmounted sets the dirty bits (signalling "cleanly closed") and
// forces a sync. It refuses if a corruption-recovery check has already
// been requested: leaving the volume flagged dirty forces the next mount
// to check it, rather than silently clearing the flag a requested check
// depends on.
func (f *Filesystem) MarkUnmounted() errors.DriverError {
	if f.checkRequested {
		return errors.NewWithMessage(errors.EBUSY, "corruption check requested; refusing clean unmount")
	}
	mask, hasFlag := f.dirtyBitFields()
	if !hasFlag {
		return nil
	}
	v, err := f.Table.Get(dirtyBitEntry)
	if err != nil {
		return err
	}
	if err := f.Table.Set(dirtyBitEntry, v|mask); err != nil {
		return err
	}
	return f.Sync()
}

// RequestCheck latches a flag requesting a consistency check on next
// mount, without itself making the volume read-only.
func (f *Filesystem) RequestCheck() {
	f.checkRequested = true
}

// CheckRequested reports whether RequestCheck has latched.
func (f *Filesystem) CheckRequested() bool {
	return f.checkRequested
}

// Corrupted latches the filesystem as corrupted and revokes write access
// on the underlying device; every subsequent write attempt surfaces
// ErrReadOnlyFileSystem.
func (f *Filesystem) Corrupted() {
	f.corrupted = true
	f.checkRequested = true
	f.device.SetWriteEnabled(false)
}

// IsCorrupted reports whether Corrupted has latched.
func (f *Filesystem) IsCorrupted() bool {
	return f.corrupted
}

// GetInode returns the live inode for id, bumping its reference count, or
// nil if it isn't cached. The directory layer's Open returns only the
// directory entry; on a cache miss the caller constructs the inode itself
// with CreateInode.
func (f *Filesystem) GetInode(id inode.ID) *inode.Inode {
	return f.Inodes.Lookup(id)
}

// CreateInode constructs and caches a new inode for a directory entry at
// dirBlock[dirOffset:dirOffset+32], taking ownership of the caller's
// reference on dirBlock.
func (f *Filesystem) CreateInode(id inode.ID, dirBlock *blockcache.Block, dirOffset uint, entry dirent.ShortEntry, parent *inode.Inode) *inode.Inode {
	isDir := entry.Attributes&dirent.AttrDirectory != 0
	return f.Inodes.New(id, entry, dirBlock, dirOffset, parent, isDir)
}

// Sync drains the dirty-inode list through the block cache, persists the
// allocator's fsinfo sector (FAT32 only), syncs the block cache to the
// device, then flushes the device itself. WriteInfo must run before
// SyncAll: it only dirties the cached fsinfo block, and SyncAll is what
// actually writes dirty blocks to the device.
func (f *Filesystem) Sync() errors.DriverError {
	f.Inodes.Sync(f.Blocks)
	if err := f.Alloc.WriteInfo(); err != nil {
		return err
	}
	if err := f.Blocks.SyncAll(); err != nil {
		return err
	}
	return f.device.Sync()
}

// Unmount marks the volume cleanly unmounted (unless a check has been
// requested), syncs it, and releases the pinned BPB block. The Filesystem
// must not be used afterward.
func (f *Filesystem) Unmount() errors.DriverError {
	if !f.checkRequested {
		if err := f.MarkUnmounted(); err != nil {
			return err
		}
	} else if err := f.Sync(); err != nil {
		return err
	}
	f.Blocks.Unref(f.bpbBlk)
	return nil
}

// BPB exposes the mounted volume's parsed boot sector.
func (f *Filesystem) BPB() *fat.BPB { return f.bpb }

// Stat builds a platform-independent snapshot of n. Size and timestamps
// come from its short directory entry; mode and ownership come from
// whatever ChangeMode/ChangeOwner last set in memory (the zero value, plus
// the directory bit, and uid/gid 0, on a fresh mount) since FAT has no
// on-disk representation for either.
func (f *Filesystem) Stat(n *inode.Inode) *fatfs.FileStat {
	mode := n.Mode()
	if n.IsDir {
		mode |= os.ModeDir
	}
	uid, gid := n.Owner()

	clusterBytes := int64(f.bpb.BytesPerCluster)
	numBlocks := (n.Size() + clusterBytes - 1) / clusterBytes

	return &fatfs.FileStat{
		InodeNumber:  uint64(n.ID),
		Nlinks:       1,
		ModeFlags:    mode,
		Uid:          uid,
		Gid:          gid,
		Size:         n.Size(),
		BlockSize:    clusterBytes,
		NumBlocks:    numBlocks,
		CreatedAt:    dirent.DecodeTimestamp(n.Short.CreatedDate, n.Short.CreatedTime, n.Short.CreatedCenti),
		LastAccessed: dirent.DecodeTimestamp(n.Short.AccessedDate, 0, 0),
		LastModified: dirent.DecodeTimestamp(n.Short.ModifiedDate, n.Short.ModifiedTime, 0),
	}
}
