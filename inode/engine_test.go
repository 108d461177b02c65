package inode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-fatfs/fatfs/blockcache"
	"github.com/go-fatfs/fatfs/blockdev"
	"github.com/go-fatfs/fatfs/dirent"
	"github.com/go-fatfs/fatfs/fat"
	"github.com/go-fatfs/fatfs/inode"
)

func newEngineFixture(t *testing.T) (*inode.Engine, *fat.Table, *fat.Allocator) {
	t.Helper()
	dev := blockdev.NewMemoryDevice(512, 64, true)
	cache := blockcache.New(dev, 32)
	bpb := &fat.BPB{
		BytesPerSector:    512,
		SectorsPerCluster: 1,
		FATVersion:        16,
		NumFATs:           1,
		SectorsPerFAT:     4,
		FirstFATSector:    1,
		FirstDataSector:   5,
		BytesPerCluster:   512,
		TotalClusters:     16,
	}
	table := fat.NewTable(bpb, cache)
	alloc, err := fat.NewAllocator(bpb, cache, table)
	require.Nil(t, err)
	engine := inode.NewEngine(bpb, table, alloc, cache, inode.New())
	return engine, table, alloc
}

func newEmptyInode() *inode.Inode {
	return &inode.Inode{ID: inode.ID(0), Short: dirent.ShortEntry{}}
}

func TestWriteAt_ExtendsChainAndPersistsData(t *testing.T) {
	engine, _, _ := newEngineFixture(t)
	n := newEmptyInode()

	payload := []byte("hello, fat filesystem")
	written, err := engine.WriteAt(n, payload, 0)
	require.Nil(t, err)
	assert.Equal(t, len(payload), written)
	assert.Equal(t, int64(len(payload)), n.Size())

	readBack := make([]byte, len(payload))
	read, rerr := engine.ReadAt(n, readBack, 0)
	require.Nil(t, rerr)
	assert.Equal(t, len(payload), read)
	assert.Equal(t, payload, readBack)
}

func TestWriteAt_SpansMultipleClusters(t *testing.T) {
	engine, _, _ := newEngineFixture(t)
	n := newEmptyInode()

	payload := make([]byte, 512*3+10)
	for i := range payload {
		payload[i] = byte(i)
	}

	written, err := engine.WriteAt(n, payload, 0)
	require.Nil(t, err)
	assert.Equal(t, len(payload), written)

	readBack := make([]byte, len(payload))
	_, rerr := engine.ReadAt(n, readBack, 0)
	require.Nil(t, rerr)
	assert.Equal(t, payload, readBack)
}

func TestReadAt_ClampsAgainstSize(t *testing.T) {
	engine, _, _ := newEngineFixture(t)
	n := newEmptyInode()

	_, err := engine.WriteAt(n, []byte("12345"), 0)
	require.Nil(t, err)

	buf := make([]byte, 100)
	read, rerr := engine.ReadAt(n, buf, 0)
	require.Nil(t, rerr)
	assert.Equal(t, 5, read)
}

func TestTruncate_ShrinkFreesTailClusters(t *testing.T) {
	engine, table, alloc := newEngineFixture(t)
	n := newEmptyInode()

	payload := make([]byte, 512*3)
	_, err := engine.WriteAt(n, payload, 0)
	require.Nil(t, err)

	require.Nil(t, engine.Truncate(n, 512))
	assert.Equal(t, int64(512), n.Size())

	first := n.FirstCluster()
	next, gerr := table.Get(first)
	require.Nil(t, gerr)
	assert.True(t, table.IsEndOfChain(next))

	alloc.CalculateFreeCount()
	free, known := alloc.FreeCount()
	assert.True(t, known)
	assert.Equal(t, uint64(15), free)
}

func TestTruncate_ToZeroClearsFirstCluster(t *testing.T) {
	engine, _, _ := newEngineFixture(t)
	n := newEmptyInode()

	_, err := engine.WriteAt(n, []byte("data"), 0)
	require.Nil(t, err)

	require.Nil(t, engine.Truncate(n, 0))
	assert.Equal(t, fat.ClusterID(0), n.FirstCluster())
	assert.Equal(t, int64(0), n.Size())
}

func TestWriteAt_MarksInodeDirtyAndUpdatesShortEntry(t *testing.T) {
	engine, _, _ := newEngineFixture(t)
	n := newEmptyInode()
	assert.False(t, n.Dirty())

	payload := []byte("hello")
	_, err := engine.WriteAt(n, payload, 0)
	require.Nil(t, err)

	assert.True(t, n.Dirty())
	assert.Equal(t, uint32(len(payload)), n.Short.FileSize)
	assert.Equal(t, uint32(n.FirstCluster()), n.Short.FirstCluster())
}

func TestTruncate_ToZeroUpdatesShortEntryAndMarksDirty(t *testing.T) {
	engine, _, _ := newEngineFixture(t)
	n := newEmptyInode()

	_, err := engine.WriteAt(n, []byte("data"), 0)
	require.Nil(t, err)

	require.Nil(t, engine.Truncate(n, 0))
	assert.True(t, n.Dirty())
	assert.Equal(t, uint32(0), n.Short.FileSize)
	assert.Equal(t, uint32(0), n.Short.FirstCluster())
}

func TestSeekCluster_UsesCacheForForwardAccess(t *testing.T) {
	engine, _, _ := newEngineFixture(t)
	n := newEmptyInode()

	payload := make([]byte, 512*4)
	_, err := engine.WriteAt(n, payload, 0)
	require.Nil(t, err)

	c2, err := engine.SeekCluster(n, 2)
	require.Nil(t, err)
	c3, err := engine.SeekCluster(n, 3)
	require.Nil(t, err)
	assert.NotEqual(t, c2, c3)
}
