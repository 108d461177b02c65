package fat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-fatfs/fatfs/blockcache"
	"github.com/go-fatfs/fatfs/blockdev"
	"github.com/go-fatfs/fatfs/fat"
)

func newAllocatorFixture(t *testing.T, totalClusters uint) (*fat.Allocator, *fat.Table) {
	t.Helper()
	dev := blockdev.NewMemoryDevice(512, 32, true)
	cache := blockcache.New(dev, 16)
	bpb := &fat.BPB{
		BytesPerSector: 512,
		FATVersion:     12,
		NumFATs:        1,
		SectorsPerFAT:  4,
		FirstFATSector: 1,
		TotalClusters:  totalClusters,
	}
	table := fat.NewTable(bpb, cache)
	alloc, err := fat.NewAllocator(bpb, cache, table)
	require.Nil(t, err)
	return alloc, table
}

func TestAllocateCluster_ReturnsFirstFreeAndAdvancesCursor(t *testing.T) {
	alloc, _ := newAllocatorFixture(t, 8)

	c1, err := alloc.AllocateCluster()
	require.Nil(t, err)
	assert.Equal(t, fat.ClusterID(2), c1)

	c2, err := alloc.AllocateCluster()
	require.Nil(t, err)
	assert.Equal(t, fat.ClusterID(3), c2)
}

func TestAllocateCluster_ExhaustionReturnsENOSPC(t *testing.T) {
	alloc, _ := newAllocatorFixture(t, 2)

	_, err := alloc.AllocateCluster()
	require.Nil(t, err)
	_, err = alloc.AllocateCluster()
	require.Nil(t, err)

	_, err = alloc.AllocateCluster()
	require.NotNil(t, err)
}

func TestFreeCluster_PullsCursorBackForTightReuse(t *testing.T) {
	alloc, _ := newAllocatorFixture(t, 8)

	_, err := alloc.AllocateCluster() // cluster 2
	require.Nil(t, err)
	_, err = alloc.AllocateCluster() // cluster 3
	require.Nil(t, err)
	c3, err := alloc.AllocateCluster() // cluster 4
	require.Nil(t, err)

	require.Nil(t, alloc.FreeCluster(c3))

	reused, err := alloc.AllocateCluster()
	require.Nil(t, err)
	assert.Equal(t, c3, reused)
}

func TestCalculateFreeCount_CountsUnallocatedClusters(t *testing.T) {
	alloc, _ := newAllocatorFixture(t, 10)

	_, err := alloc.AllocateCluster()
	require.Nil(t, err)
	_, err = alloc.AllocateCluster()
	require.Nil(t, err)

	alloc.CalculateFreeCount()
	free, known := alloc.FreeCount()
	assert.True(t, known)
	assert.Equal(t, uint64(8), free)
}

func TestWriteInfo_NoopOnFAT12(t *testing.T) {
	alloc, _ := newAllocatorFixture(t, 8)
	require.Nil(t, alloc.WriteInfo())
}
