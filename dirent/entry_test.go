package dirent_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/go-fatfs/fatfs/dirent"
)

func TestShortEntry_EncodeDecodeRoundTrip(t *testing.T) {
	var e dirent.ShortEntry
	copy(e.Name[:], "README  ")
	copy(e.Ext[:], "TXT")
	e.Attributes = dirent.AttrArchive
	e.SetFirstCluster(0x00ABCDEF)
	e.FileSize = 12345

	raw := e.Encode()
	decoded := dirent.DecodeShortEntry(raw)

	assert.Equal(t, e.Name, decoded.Name)
	assert.Equal(t, e.Ext, decoded.Ext)
	assert.Equal(t, e.Attributes, decoded.Attributes)
	assert.Equal(t, uint32(0x00ABCDEF), decoded.FirstCluster())
	assert.Equal(t, e.FileSize, decoded.FileSize)
}

func TestEncodeDecodeDate_RoundTrip(t *testing.T) {
	ts := time.Date(2022, time.March, 15, 0, 0, 0, 0, time.UTC)
	packed := dirent.EncodeDate(ts)
	year, month, day := dirent.DecodeDate(packed)
	assert.Equal(t, 2022, year)
	assert.Equal(t, time.March, month)
	assert.Equal(t, 15, day)
}

func TestEncodeDecodeTimestamp_RoundTrip(t *testing.T) {
	ts := time.Date(2022, time.March, 15, 13, 45, 37, 0, time.UTC)
	datePart := dirent.EncodeDate(ts)
	timePart, centi := dirent.EncodeTime(ts)

	decoded := dirent.DecodeTimestamp(datePart, timePart, centi)
	assert.Equal(t, ts.Year(), decoded.Year())
	assert.Equal(t, ts.Month(), decoded.Month())
	assert.Equal(t, ts.Day(), decoded.Day())
	assert.Equal(t, ts.Hour(), decoded.Hour())
	assert.Equal(t, ts.Minute(), decoded.Minute())
	assert.Equal(t, ts.Second(), decoded.Second())
}

func TestDecodeTimestamp_ZeroDateIsUnixEpoch(t *testing.T) {
	decoded := dirent.DecodeTimestamp(0, 0, 0)
	assert.Equal(t, time.Unix(0, 0).UTC(), decoded)
}

func TestShortEntry_IsDeletedAndFree(t *testing.T) {
	var deleted dirent.ShortEntry
	deleted.Name[0] = dirent.DeletedMarker
	assert.True(t, deleted.IsDeleted())

	var free dirent.ShortEntry
	assert.True(t, free.IsFree())
}
