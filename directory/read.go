package directory

import (
	"github.com/go-fatfs/fatfs/dirent"
	"github.com/go-fatfs/fatfs/errors"
	"github.com/go-fatfs/fatfs/inode"
)

// LogicalEntry is one user-visible directory entry: a short record plus
// whatever long-filename chain preceded it.
type LogicalEntry struct {
	Name        string
	InodeID     inode.ID
	IsDir       bool
	Short       dirent.ShortEntry
	StartIndex  uint // record index of the first LFN record, or the short entry if there is none
	RecordCount uint // LFN records plus the one short record
}

// ReadDirectory performs a full stateful traversal of d, consuming LFN
// runs and yielding one LogicalEntry per live (non-deleted) short record.
// Orphaned LFN records -- ones whose checksum doesn't match the short
// entry that follows, or that precede a deleted short entry -- are skipped
// rather than surfaced. They stay on disk as live records: FindFreeRun does
// not reuse them.
func ReadDirectory(d *Directory) ([]LogicalEntry, errors.DriverError) {
	var entries []LogicalEntry
	var pending []dirent.LongNameEntry
	pendingStart := uint(0)

	for index := uint(0); ; index++ {
		raw, ok, err := d.Iterate(index)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		short := dirent.DecodeShortEntry(raw)

		if short.IsLongNamePart() {
			lfn := dirent.DecodeLongNameEntry(raw)
			if len(pending) == 0 {
				pendingStart = index
			}
			if lfn.IsDeleted() {
				pending = nil
				continue
			}
			pending = append(pending, lfn)
			continue
		}

		if short.IsDeleted() {
			pending = nil
			continue
		}

		name11 := short.ShortName11()
		name := shortNameToString(name11)
		start := index
		recordCount := uint(1)

		if len(pending) > 0 {
			if dirent.ChainIsConsistent(pending, name11) {
				units := dirent.DecodeLongNameChain(pending)
				name = dirent.UCS2ToUTF8(units)
				start = pendingStart
				recordCount = uint(len(pending)) + 1
			}
			pending = nil
		}

		if short.Attributes&dirent.AttrVolumeID != 0 {
			continue
		}

		entries = append(entries, LogicalEntry{
			Name:        name,
			InodeID:     inode.ID(short.FirstCluster()),
			IsDir:       short.Attributes&dirent.AttrDirectory != 0,
			Short:       short,
			StartIndex:  start,
			RecordCount: recordCount,
		})
	}

	return entries, nil
}

// shortNameToString renders an 11-byte short name as "BASE.EXT", or
// "BASE" with no dot if the extension is all spaces.
func shortNameToString(name11 [11]byte) string {
	base := trimSpaces(name11[0:8])
	ext := trimSpaces(name11[8:11])
	if ext == "" {
		return base
	}
	return base + "." + ext
}

func trimSpaces(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == ' ' {
		end--
	}
	return string(b[:end])
}
