package inode_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-fatfs/fatfs/blockcache"
	"github.com/go-fatfs/fatfs/blockdev"
	"github.com/go-fatfs/fatfs/dirent"
	"github.com/go-fatfs/fatfs/inode"
)

func TestCache_LookupBumpsRefCount(t *testing.T) {
	dev := blockdev.NewMemoryDevice(512, 8, true)
	blocks := blockcache.New(dev, 4)
	blk, err := blocks.Get(0)
	require.Nil(t, err)

	cache := inode.New()
	n := cache.New(inode.ID(2), dirent.ShortEntry{}, blk, 0, nil, false)
	assert.Equal(t, 1, n.RefCount())

	found := cache.Lookup(inode.ID(2))
	require.NotNil(t, found)
	assert.Same(t, n, found)
	assert.Equal(t, 2, n.RefCount())
}

func TestCache_LookupMissReturnsNil(t *testing.T) {
	cache := inode.New()
	assert.Nil(t, cache.Lookup(inode.ID(99)))
}

func TestCache_SyncWritesDirtyShortEntry(t *testing.T) {
	dev := blockdev.NewMemoryDevice(512, 8, true)
	blocks := blockcache.New(dev, 4)
	blk, err := blocks.Get(1)
	require.Nil(t, err)

	cache := inode.New()
	short := dirent.ShortEntry{FileSize: 42}
	n := cache.New(inode.ID(3), short, blk, 0, nil, false)

	n.Short.FileSize = 99
	cache.MarkDirty(n)
	cache.Sync(blocks)

	require.Nil(t, blocks.SyncAll())

	readBack := make([]byte, 512)
	require.Nil(t, dev.ReadSector(1, readBack))
	decoded := dirent.DecodeShortEntry(readBack[0:32])
	assert.Equal(t, uint32(99), decoded.FileSize)
}

func TestCache_RemoveUnpinsDirentBlock(t *testing.T) {
	dev := blockdev.NewMemoryDevice(512, 8, true)
	blocks := blockcache.New(dev, 4)
	blk, err := blocks.Get(2)
	require.Nil(t, err)

	cache := inode.New()
	n := cache.New(inode.ID(4), dirent.ShortEntry{}, blk, 0, nil, false)
	cache.Remove(n, blocks)

	assert.Nil(t, cache.Lookup(inode.ID(4)))
	assert.False(t, blk.Pinned())
}

func TestChangeModeAndChangeOwner_AreInMemoryOnly(t *testing.T) {
	cache := inode.New()
	n := cache.New(inode.ID(5), dirent.ShortEntry{}, nil, 0, nil, false)

	assert.Equal(t, os.FileMode(0), n.Mode())
	uid, gid := n.Owner()
	assert.Equal(t, uint32(0), uid)
	assert.Equal(t, uint32(0), gid)

	n.ChangeMode(0o755)
	n.ChangeOwner(42, 7)

	assert.Equal(t, os.FileMode(0o755), n.Mode())
	uid, gid = n.Owner()
	assert.Equal(t, uint32(42), uid)
	assert.Equal(t, uint32(7), gid)
	assert.False(t, n.Dirty())
}

func TestUTimens_UpdatesShortEntryAndMarksDirty(t *testing.T) {
	cache := inode.New()
	n := cache.New(inode.ID(6), dirent.ShortEntry{}, nil, 0, nil, false)
	assert.False(t, n.Dirty())

	mtime := time.Date(2024, time.March, 5, 10, 30, 0, 0, time.UTC)
	atime := time.Date(2024, time.March, 6, 0, 0, 0, 0, time.UTC)
	n.UTimens(cache, atime, mtime)

	assert.True(t, n.Dirty())
	year, month, day := dirent.DecodeDate(n.Short.ModifiedDate)
	assert.Equal(t, 2024, year)
	assert.Equal(t, time.March, month)
	assert.Equal(t, 5, day)
	year, month, day = dirent.DecodeDate(n.Short.AccessedDate)
	assert.Equal(t, 6, day)
	_ = month
	_ = year
}
