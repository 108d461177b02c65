package fs_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-fatfs/fatfs/blockdev"
	"github.com/go-fatfs/fatfs/dirent"
	"github.com/go-fatfs/fatfs/fs"
	"github.com/go-fatfs/fatfs/inode"
)

// buildFAT16Image lays out a minimal, valid FAT16 boot sector over an
// in-memory device so Mount has something real to parse.
func buildFAT16Image(t *testing.T) blockdev.Device {
	t.Helper()
	const bytesPerSector = 512
	dev := blockdev.NewMemoryDevice(bytesPerSector, 20100, true)

	sector := make([]byte, bytesPerSector)
	sector[0] = 0xEB
	sector[1] = 0x3C
	sector[2] = 0x90
	copy(sector[3:11], []byte("MSWIN4.1"))
	putU16(sector[11:13], bytesPerSector)
	sector[13] = 4   // sectors per cluster
	putU16(sector[14:16], 4) // reserved sectors
	sector[16] = 2           // number of FATs
	putU16(sector[17:19], 512) // root entry count
	putU16(sector[19:21], 20076) // total sectors (16-bit): 5000 data clusters
	sector[21] = 0xF8
	putU16(sector[22:24], 20) // sectors per FAT
	putU16(sector[24:26], 32)
	putU16(sector[26:28], 2)
	sector[510] = 0x55
	sector[511] = 0xAA

	require.Nil(t, dev.WriteSector(0, sector))
	return dev
}

func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func TestMount_ParsesBPBAndBuildsRoot(t *testing.T) {
	dev := buildFAT16Image(t)
	filesystem, err := fs.Mount(dev, 64)
	require.Nil(t, err)
	require.NotNil(t, filesystem.Root)
	assert.Equal(t, 16, filesystem.BPB().FATVersion)
}

func TestWasUnmountedCleanly_DefaultsTrueWhenDirtyBitsSet(t *testing.T) {
	dev := buildFAT16Image(t)
	filesystem, err := fs.Mount(dev, 64)
	require.Nil(t, err)

	require.Nil(t, filesystem.Table.Set(1, 0xFFFF))
	clean, werr := filesystem.WasUnmountedCleanly()
	require.Nil(t, werr)
	assert.True(t, clean)
}

func TestMarkMountedThenUnmounted_RoundTripsDirtyBit(t *testing.T) {
	dev := buildFAT16Image(t)
	filesystem, err := fs.Mount(dev, 64)
	require.Nil(t, err)
	require.Nil(t, filesystem.Table.Set(1, 0xFFFF))

	require.Nil(t, filesystem.MarkMounted())
	clean, werr := filesystem.WasUnmountedCleanly()
	require.Nil(t, werr)
	assert.False(t, clean)

	require.Nil(t, filesystem.MarkUnmounted())
	clean, werr = filesystem.WasUnmountedCleanly()
	require.Nil(t, werr)
	assert.True(t, clean)
}

func TestCorrupted_RevokesDeviceWrites(t *testing.T) {
	dev := buildFAT16Image(t)
	filesystem, err := fs.Mount(dev, 64)
	require.Nil(t, err)

	filesystem.Corrupted()
	assert.True(t, filesystem.IsCorrupted())
	assert.False(t, dev.WriteEnabled())
}

func TestMarkUnmounted_RefusesAfterCheckRequested(t *testing.T) {
	dev := buildFAT16Image(t)
	filesystem, err := fs.Mount(dev, 64)
	require.Nil(t, err)

	filesystem.RequestCheck()
	err = filesystem.MarkUnmounted()
	assert.NotNil(t, err)
}

func TestStat_ReflectsSizeModeAndOwner(t *testing.T) {
	dev := buildFAT16Image(t)
	filesystem, err := fs.Mount(dev, 64)
	require.Nil(t, err)

	node := filesystem.Inodes.New(inode.ID(0), dirent.ShortEntry{}, nil, 0, nil, false)
	_, werr := filesystem.Engine.WriteAt(node, []byte("hello"), 0)
	require.Nil(t, werr)

	node.ChangeMode(0o644)
	node.ChangeOwner(1000, 1000)

	stat := filesystem.Stat(node)
	assert.Equal(t, int64(5), stat.Size)
	assert.Equal(t, os.FileMode(0o644), stat.ModeFlags)
	assert.Equal(t, uint32(1000), stat.Uid)
	assert.Equal(t, uint32(1000), stat.Gid)
	assert.True(t, stat.IsFile())
	assert.False(t, stat.IsDir())
}

func TestStat_DirectoryBitSetForDirInodes(t *testing.T) {
	dev := buildFAT16Image(t)
	filesystem, err := fs.Mount(dev, 64)
	require.Nil(t, err)

	dirNode := filesystem.Inodes.New(inode.ID(0), dirent.ShortEntry{Attributes: dirent.AttrDirectory}, nil, 0, nil, true)
	stat := filesystem.Stat(dirNode)
	assert.True(t, stat.IsDir())
}
