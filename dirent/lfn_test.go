package dirent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-fatfs/fatfs/dirent"
)

func TestBuildAndDecodeLongNameChain_RoundTrip(t *testing.T) {
	units, err := dirent.UTF8ToUCS2("a very long file name that needs lfn.txt")
	require.Nil(t, err)

	short := dirent.EncodeShort83("a very long file name that needs lfn.txt")
	chain := dirent.BuildLongNameChain(units, short)

	require.True(t, len(chain) > 1)
	assert.True(t, chain[0].IsLast())
	assert.Equal(t, len(chain), chain[0].Sequence())
	assert.Equal(t, 1, chain[len(chain)-1].Sequence())

	assert.True(t, dirent.ChainIsConsistent(chain, short))

	decoded := dirent.DecodeLongNameChain(chain)
	assert.Equal(t, units, decoded)
}

func TestChainIsConsistent_DetectsChecksumMismatch(t *testing.T) {
	units, _ := dirent.UTF8ToUCS2("mismatch.txt")
	short := dirent.EncodeShort83("mismatch.txt")
	chain := dirent.BuildLongNameChain(units, short)

	otherShort := dirent.EncodeShort83("different.txt")
	assert.False(t, dirent.ChainIsConsistent(chain, otherShort))
}

func TestLongNameEntry_EncodeDecodeRoundTrip(t *testing.T) {
	units, _ := dirent.UTF8ToUCS2("short.txt")
	short := dirent.EncodeShort83("short.txt")
	chain := dirent.BuildLongNameChain(units, short)
	require.Len(t, chain, 1)

	raw := chain[0].Encode()
	require.Len(t, raw, dirent.EntrySize)

	decoded := dirent.DecodeLongNameEntry(raw)
	assert.Equal(t, chain[0].Ordinal, decoded.Ordinal)
	assert.Equal(t, chain[0].Checksum, decoded.Checksum)
}
