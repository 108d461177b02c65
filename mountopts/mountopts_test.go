package mountopts_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/go-fatfs/fatfs"
	"github.com/go-fatfs/fatfs/mountopts"
)

func TestParse_DefaultsToReadWrite(t *testing.T) {
	opts, warnings := mountopts.Parse("")
	assert.Empty(t, warnings)
	assert.True(t, opts.Flags.CanWrite())
	assert.Equal(t, uint(mountopts.DefaultCacheSectors), opts.CacheSectors)
}

func TestParse_RoDisablesWrite(t *testing.T) {
	opts, warnings := mountopts.Parse("ro")
	assert.Empty(t, warnings)
	assert.False(t, opts.Flags.CanWrite())
}

func TestParse_RwOverridesEarlierRo(t *testing.T) {
	opts, warnings := mountopts.Parse("ro,rw")
	assert.Empty(t, warnings)
	assert.True(t, opts.Flags.CanWrite())
}

func TestParse_NocheckSetsFlag(t *testing.T) {
	opts, warnings := mountopts.Parse("nocheck")
	assert.Empty(t, warnings)
	assert.NotZero(t, opts.Flags&fatfs.MountNoCheck)
}

func TestParse_CacheInSectors(t *testing.T) {
	opts, warnings := mountopts.Parse("cache=512")
	assert.Empty(t, warnings)
	assert.Equal(t, uint(512), opts.CacheSectors)
}

func TestParse_CacheInKilobytes(t *testing.T) {
	opts, warnings := mountopts.Parse("cache=512K")
	assert.Empty(t, warnings)
	assert.Equal(t, uint(512*1024/512), opts.CacheSectors)
}

func TestParse_UnknownOptionWarnsButDoesNotFail(t *testing.T) {
	opts, warnings := mountopts.Parse("frobnicate")
	assert.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "frobnicate")
	assert.True(t, opts.Flags.CanWrite())
}

func TestParse_InvalidCacheValueWarns(t *testing.T) {
	_, warnings := mountopts.Parse("cache=notanumber")
	assert.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "invalid cache= value")
}
