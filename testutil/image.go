// Package testutil builds in-memory disk images and cache fixtures for the
// rest of the module's tests: a blockdev.Device/blockcache.Cache pair
// pre-filled with random sector data.
package testutil

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-fatfs/fatfs/blockcache"
	"github.com/go-fatfs/fatfs/blockdev"
)

// CreateRandomImage returns totalSectors*bytesPerSector random bytes,
// failing t if the system RNG errors.
func CreateRandomImage(t *testing.T, bytesPerSector, totalSectors uint) []byte {
	t.Helper()
	backing := make([]byte, bytesPerSector*totalSectors)
	_, err := rand.Read(backing)
	require.NoError(t, err, "failed to fill %d sectors of %d bytes with random data", totalSectors, bytesPerSector)
	return backing
}

// NewRandomDevice builds a MemoryDevice pre-filled with random bytes,
// except for sector 0 which is left zeroed so a test can write its own
// boot sector into it.
func NewRandomDevice(t *testing.T, bytesPerSector uint, totalSectors uint64, writable bool) *blockdev.MemoryDevice {
	t.Helper()
	dev := blockdev.NewMemoryDevice(bytesPerSector, totalSectors, true)
	backing := CreateRandomImage(t, bytesPerSector, uint(totalSectors))
	for i := uint64(1); i < totalSectors; i++ {
		require.Nil(t, dev.WriteSector(blockdev.SectorID(i), backing[i*uint64(bytesPerSector):(i+1)*uint64(bytesPerSector)]))
	}
	dev.SetWriteEnabled(writable)
	return dev
}

// NewCache wraps device in a block cache of the given capacity, the
// fixture shape nearly every package's tests build by hand; kept here so a
// future package can reuse it instead of repeating the boilerplate.
func NewCache(device blockdev.Device, capacitySectors uint) *blockcache.Cache {
	return blockcache.New(device, capacitySectors)
}
