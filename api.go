// Package fatfs is the root of a user-space FAT12/16/32 file system core:
// the cluster-chain allocator and FAT table, the block cache, the inode and
// directory-entry engines, and the write-ordering discipline that keeps
// on-disk state recoverable across a crash.
//
// The service boundary that dispatches individual file system calls (a
// kernel IPC marshaller, a FUSE bridge, a CLI) is not part of this package;
// it's expected to drive the types in fs, inode, and directory directly.
package fatfs

import (
	"math"
	"os"
	"time"
)

// FileStat is a platform-independent form of syscall.Stat_t.
type FileStat struct {
	DeviceID     uint64
	InodeNumber  uint64
	Nlinks       uint64
	ModeFlags    os.FileMode
	Uid          uint32
	Gid          uint32
	Size         int64
	BlockSize    int64
	NumBlocks    int64
	CreatedAt    time.Time
	LastAccessed time.Time
	LastModified time.Time
	DeletedAt    time.Time
}

func (stat *FileStat) IsDir() bool    { return stat.ModeFlags.IsDir() }
func (stat *FileStat) IsFile() bool   { return stat.ModeFlags.IsRegular() }

// FSStat is a platform-independent form of syscall.Statfs_t.
type FSStat struct {
	BlockSize       int64
	TotalBlocks     uint64
	BlocksFree      uint64
	BlocksAvailable uint64
	Files           uint64
	FilesFree       uint64
	FileSystemID    uint64
	MaxNameLength   int64
	Label           string
}

// UndefinedTimestamp is used as an invalid/unknown timestamp value, the way
// nil is used for pointers.
var UndefinedTimestamp = time.UnixMicro(math.MaxInt64)

// MountFlags controls the permissions a mount is granted: the coarse set
// the FAT core consults, separate from the S_IF*/S_IRWX* mode bits in
// flags.go.
type MountFlags int

const (
	MountReadOnly MountFlags = 1 << iota
	MountReadWrite
	// MountNoCheck is set by the "nocheck" mount option. fs.Mount takes no
	// flags and never calls WasUnmountedCleanly or RequestCheck itself, so
	// the flag changes nothing at mount time.
	MountNoCheck
)

func (f MountFlags) CanWrite() bool { return f&MountReadWrite != 0 }
