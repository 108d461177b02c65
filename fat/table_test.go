package fat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-fatfs/fatfs/blockcache"
	"github.com/go-fatfs/fatfs/blockdev"
	"github.com/go-fatfs/fatfs/fat"
)

func newFAT12Fixture(t *testing.T) (*fat.Table, *blockcache.Cache) {
	t.Helper()
	dev := blockdev.NewMemoryDevice(512, 16, true)
	cache := blockcache.New(dev, 8)
	bpb := &fat.BPB{
		BytesPerSector: 512,
		FATVersion:     12,
		NumFATs:        2,
		SectorsPerFAT:  1,
		FirstFATSector: 1,
	}
	return fat.NewTable(bpb, cache), cache
}

func TestTable12_EvenOddSharedByteDoesNotClobberNeighbour(t *testing.T) {
	table, cache := newFAT12Fixture(t)

	require.Nil(t, table.Set(2, 0x0ABC))
	require.Nil(t, table.Set(3, 0x0DEF))

	got2, err := table.Get(2)
	require.Nil(t, err)
	assert.Equal(t, fat.ClusterID(0x0ABC), got2)

	got3, err := table.Get(3)
	require.Nil(t, err)
	assert.Equal(t, fat.ClusterID(0x0DEF), got3)

	require.Nil(t, table.Set(3, 0x0111))
	got2Again, err := table.Get(2)
	require.Nil(t, err)
	assert.Equal(t, fat.ClusterID(0x0ABC), got2Again, "overwriting cluster 3 must not disturb cluster 2's nibble")

	_ = cache
}

func TestTable12_WritesPropagateToAllCopies(t *testing.T) {
	dev := blockdev.NewMemoryDevice(512, 16, true)
	cache := blockcache.New(dev, 8)
	bpb := &fat.BPB{
		BytesPerSector: 512,
		FATVersion:     12,
		NumFATs:        2,
		SectorsPerFAT:  1,
		FirstFATSector: 1,
	}
	table := fat.NewTable(bpb, cache)

	require.Nil(t, table.Set(10, 0x0FFF))
	require.Nil(t, cache.SyncAll())

	buf1 := make([]byte, 512)
	buf2 := make([]byte, 512)
	require.Nil(t, dev.ReadSector(1, buf1))
	require.Nil(t, dev.ReadSector(2, buf2))
	assert.Equal(t, buf1, buf2)
	assert.Equal(t, byte(0xFF), buf1[15])
}

func TestTable16_RoundTrip(t *testing.T) {
	dev := blockdev.NewMemoryDevice(512, 16, true)
	cache := blockcache.New(dev, 8)
	bpb := &fat.BPB{
		BytesPerSector: 512,
		FATVersion:     16,
		NumFATs:        1,
		SectorsPerFAT:  2,
		FirstFATSector: 1,
	}
	table := fat.NewTable(bpb, cache)

	require.Nil(t, table.Set(100, 0xFFF8))
	got, err := table.Get(100)
	require.Nil(t, err)
	assert.True(t, table.IsEndOfChain(got))
}

func TestTable32_PreservesReservedNibble(t *testing.T) {
	dev := blockdev.NewMemoryDevice(512, 16, true)
	cache := blockcache.New(dev, 8)
	bpb := &fat.BPB{
		BytesPerSector: 512,
		FATVersion:     32,
		NumFATs:        1,
		SectorsPerFAT:  4,
		FirstFATSector: 1,
	}
	table := fat.NewTable(bpb, cache)

	blk, err := cache.Get(1)
	require.Nil(t, err)
	cache.BeginWrite(blk)
	blk.Data[0] = 0x00
	blk.Data[1] = 0x00
	blk.Data[2] = 0x00
	blk.Data[3] = 0xF0
	cache.FinishWrite(blk)
	cache.Unref(blk)

	require.Nil(t, table.Set(0, 0x12345678))
	got, gerr := table.Get(0)
	require.Nil(t, gerr)
	assert.Equal(t, fat.ClusterID(0x02345678), got)

	blk, err = cache.Get(1)
	require.Nil(t, err)
	assert.Equal(t, byte(0xF2), blk.Data[3])
	cache.Unref(blk)
}
