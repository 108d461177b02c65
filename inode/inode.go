// Package inode implements the in-memory inode: chain traversal, byte-level
// read/write/truncate, and the hashed MRU/LRU/dirty-list cache that makes
// inodes shareable across open file handles. Inode identity is the first
// cluster of the chain it addresses. Unlike a stream over one contiguous
// buffer, a FAT inode's data lives in a non-contiguous cluster chain, so
// SeekCluster/ReadAt/WriteAt here walk the fat.Table instead of indexing a
// slice directly.
package inode

import (
	"container/list"
	"os"
	"time"

	"github.com/go-fatfs/fatfs/blockcache"
	"github.com/go-fatfs/fatfs/dirent"
	"github.com/go-fatfs/fatfs/fat"
)

// ID identifies an inode: its first cluster, except the FAT12/16 root
// directory's pseudo-inode uses cluster 1 (never a valid data cluster) and
// the FAT32 root uses the BPB's RootCluster.
type ID fat.ClusterID

// RootID is the FAT12/16 fixed-root pseudo-inode identifier.
const RootID ID = 1

// seekCacheEntry remembers the last (chain_index, cluster_id) pair reached
// by SeekCluster, so sequential access doesn't re-walk the chain from the
// start on every call.
type seekCacheEntry struct {
	valid      bool
	chainIndex uint
	cluster    fat.ClusterID
}

// Inode is the in-memory representation of one live file or directory.
type Inode struct {
	ID ID

	Parent *Inode
	IsDir  bool

	// DirentBlock is pinned in the block cache for as long as the inode
	// lives: its directory-entry block stays pinned for as long as any
	// inode referencing that entry exists.
	DirentBlock  *blockcache.Block
	DirentOffset uint
	Short        dirent.ShortEntry

	firstCluster fat.ClusterID
	size         int64
	deleted      bool
	seekCache    seekCacheEntry

	// mode/uid/gid have no FAT on-disk representation. ChangeMode and
	// ChangeOwner store them here only; they are lost on unmount.
	mode os.FileMode
	uid  uint32
	gid  uint32

	strongRefs int
	remoteRefs int
	dirty      bool

	lruElem   *list.Element
	hashElem  *list.Element
	dirtyElem *list.Element
}

// FirstCluster returns the inode's first data cluster (0 for an empty
// file, 1 for the FAT12/16 root).
func (n *Inode) FirstCluster() fat.ClusterID { return n.firstCluster }

// Size returns the inode's logical byte size, as last recorded in its
// short entry.
func (n *Inode) Size() int64 { return n.size }

// Deleted reports whether Unlink has removed this inode's directory entry
// while references to the inode are still outstanding.
func (n *Inode) Deleted() bool { return n.deleted }

// MarkDeleted flips the deleted flag; the inode's chain is not reclaimed
// until every reference (strong and remote) is gone.
func (n *Inode) MarkDeleted() { n.deleted = true }

// Dirty reports whether this inode's short entry has been modified since
// it was last written back through the block cache.
func (n *Inode) Dirty() bool { return n.dirty }

// Ref increments the strong reference count.
func (n *Inode) Ref() { n.strongRefs++ }

// RemoteRef increments the service layer's "remote" reference count,
// tracking handles held by something outside this process's direct
// control (e.g. an open file descriptor known to a kernel bridge).
func (n *Inode) RemoteRef() { n.remoteRefs++ }

// Unref decrements the strong reference count and reports the combined
// (strong + remote) count remaining.
func (n *Inode) Unref() int {
	if n.strongRefs > 0 {
		n.strongRefs--
	}
	return n.strongRefs + n.remoteRefs
}

// RemoteUnref decrements the remote reference count and reports the
// combined count remaining.
func (n *Inode) RemoteUnref() int {
	if n.remoteRefs > 0 {
		n.remoteRefs--
	}
	return n.strongRefs + n.remoteRefs
}

// RefCount returns the combined strong + remote reference count.
func (n *Inode) RefCount() int { return n.strongRefs + n.remoteRefs }

// invalidateSeekCache is called whenever the chain is mutated (truncation,
// extension) so a stale (chain_index, cluster_id) pair can't be reused.
func (n *Inode) invalidateSeekCache() { n.seekCache.valid = false }

// Mode returns whatever ChangeMode last set, or the zero value on a fresh
// mount.
func (n *Inode) Mode() os.FileMode { return n.mode }

// ChangeMode stores mode on the in-memory inode only: FAT has no
// permission bits on disk, so this is never persisted and is lost on
// unmount.
func (n *Inode) ChangeMode(mode os.FileMode) { n.mode = mode }

// Owner returns whatever ChangeOwner last set, or (0, 0) on a fresh mount.
func (n *Inode) Owner() (uid, gid uint32) { return n.uid, n.gid }

// ChangeOwner stores uid/gid on the in-memory inode only, for the same
// reason as ChangeMode.
func (n *Inode) ChangeOwner(uid, gid uint32) {
	n.uid = uid
	n.gid = gid
}

// UTimens updates this inode's accessed and modified timestamps and marks
// it dirty, so Cache.Sync writes the change back to its directory entry --
// unlike mode/ownership, FAT directory records do carry these fields.
func (n *Inode) UTimens(inodes *Cache, atime, mtime time.Time) {
	n.Short.AccessedDate = dirent.EncodeDate(atime)
	n.Short.ModifiedDate = dirent.EncodeDate(mtime)
	n.Short.ModifiedTime, _ = dirent.EncodeTime(mtime)
	inodes.MarkDirty(n)
}
