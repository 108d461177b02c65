// Package fat implements FAT table arithmetic across the three on-disk
// widths (12/16/32-bit), cluster-chain allocation, and BPB parsing,
// including validation of the boot signature, jump byte, FAT32 version
// field, and root cluster range, and re-deriving the FAT variant from
// cluster count rather than trusting a field on disk.
package fat

import (
	"bytes"
	"encoding/binary"

	"github.com/go-fatfs/fatfs/errors"
)

// ClusterID identifies a cluster. Valid data clusters begin at 2; 0 and 1
// are reserved (1 doubles as the FAT12/16 root directory's pseudo-inode ID).
type ClusterID uint32

// rawBPB is the byte-exact layout of the first 36 bytes of the BIOS
// Parameter Block, common to FAT12/16/32.
type rawBPB struct {
	JmpBoot         [3]byte
	OEMName         [8]byte
	BytesPerSector  uint16
	SecPerCluster   uint8
	ReservedSectors uint16
	NumFATs         uint8
	RootEntryCount  uint16
	TotalSectors16  uint16
	Media           uint8
	SectorsPerFAT16 uint16
	SectorsPerTrack uint16
	NumHeads        uint16
	HiddenSectors   uint32
	TotalSectors32  uint32
}

const rawBPBSize = 36

// rawFAT32Extension is the FAT32-only tail of the BPB, immediately
// following rawBPB.
type rawFAT32Extension struct {
	SectorsPerFAT32  uint32
	ExtFlags         uint16
	FSVersion        uint16
	RootCluster      uint32
	FSInfoSector     uint16
	BackupBootSector uint16
	_                [12]byte
}

const rawFAT32ExtensionSize = 28

// BPB is the fully parsed, cross-checked boot sector: the raw fields plus
// every value derived from them that the rest of the core needs.
type BPB struct {
	BytesPerSector    uint
	SectorsPerCluster uint
	ReservedSectors   uint
	NumFATs           uint
	RootEntryCount    uint
	SectorsPerFAT     uint
	TotalSectors      uint64

	// FATVersion is 12, 16, or 32, derived from TotalClusters per the FAT
	// spec, never trusted from a field on disk.
	FATVersion int

	RootDirSectors  uint
	BytesPerCluster uint
	TotalClusters   uint
	// FirstDataSector is the sector number of cluster 2.
	FirstDataSector uint64
	// FirstFATSector is the sector number of the first copy of the FAT.
	FirstFATSector uint64
	// FirstRootDirSector is where the FAT12/16 fixed-size root directory
	// begins. Zero (unused) on FAT32.
	FirstRootDirSector uint64
	DirentsPerCluster  int

	// FAT32-only fields; zero on FAT12/16.
	RootCluster  ClusterID
	FSInfoSector uint
}

const bootSignatureOffset = 510

// Parse validates and decodes a 512-byte (or larger; only the first 512
// bytes are read) boot sector buffer into a BPB.
func Parse(sector []byte) (*BPB, errors.DriverError) {
	if len(sector) < 512 {
		return nil, errors.NewWithMessage(errors.EUCLEAN, "boot sector shorter than 512 bytes")
	}

	if sector[bootSignatureOffset] != 0x55 || sector[bootSignatureOffset+1] != 0xAA {
		return nil, errors.NewWithMessage(errors.EUCLEAN, "missing 0x55AA boot signature")
	}

	if !(sector[0] == 0xEB && sector[2] == 0x90) && sector[0] != 0xE9 {
		return nil, errors.NewWithMessage(errors.EUCLEAN, "invalid jump instruction in boot sector")
	}

	var raw rawBPB
	if err := binary.Read(bytes.NewReader(sector[:rawBPBSize]), binary.LittleEndian, &raw); err != nil {
		return nil, errors.ErrIOFailed.WrapError(err)
	}

	if err := validateBytesPerSector(raw.BytesPerSector); err != nil {
		return nil, err
	}
	if err := validateSectorsPerCluster(raw.SecPerCluster); err != nil {
		return nil, err
	}
	if raw.ReservedSectors < 1 {
		return nil, errors.NewWithMessage(errors.EUCLEAN, "ReservedSectors must be >= 1")
	}
	if raw.NumFATs < 1 {
		return nil, errors.NewWithMessage(errors.EUCLEAN, "NumFATs must be >= 1")
	}

	var sectorsPerFAT uint
	var fat32 rawFAT32Extension
	haveFAT32Ext := raw.SectorsPerFAT16 == 0
	if haveFAT32Ext {
		if err := binary.Read(
			bytes.NewReader(sector[rawBPBSize:rawBPBSize+rawFAT32ExtensionSize]),
			binary.LittleEndian,
			&fat32,
		); err != nil {
			return nil, errors.ErrIOFailed.WrapError(err)
		}
		sectorsPerFAT = uint(fat32.SectorsPerFAT32)
		if fat32.FSVersion != 0 {
			return nil, errors.NewWithMessage(errors.EUCLEAN, "unsupported FAT32 filesystem version")
		}
	} else {
		sectorsPerFAT = uint(raw.SectorsPerFAT16)
	}

	totalSectors := uint64(raw.TotalSectors16)
	if totalSectors == 0 {
		totalSectors = uint64(raw.TotalSectors32)
	}
	if totalSectors == 0 {
		return nil, errors.NewWithMessage(errors.EUCLEAN, "total sector count is zero")
	}

	rootDirSectors := (uint(raw.RootEntryCount)*32 + uint(raw.BytesPerSector) - 1) / uint(raw.BytesPerSector)
	totalFATSectors := uint(raw.NumFATs) * sectorsPerFAT

	dataSectors := uint(totalSectors) - (uint(raw.ReservedSectors) + totalFATSectors + rootDirSectors)
	bytesPerCluster := uint(raw.BytesPerSector) * uint(raw.SecPerCluster)
	totalClusters := dataSectors / uint(raw.SecPerCluster)

	fatVersion := DetermineFATVersion(totalClusters)
	if fatVersion == 32 {
		if rootDirSectors != 0 {
			return nil, errors.NewWithMessage(errors.EUCLEAN, "FAT32 volume has nonzero root dir sectors")
		}
		if !haveFAT32Ext {
			return nil, errors.NewWithMessage(errors.EUCLEAN, "cluster count implies FAT32 but no FAT32 BPB extension present")
		}
		if fat32.RootCluster < 2 || ClusterID(fat32.RootCluster) >= ClusterID(totalClusters+2) {
			return nil, errors.NewWithMessage(errors.EUCLEAN, "FAT32 root cluster out of range")
		}
		if uint(fat32.FSInfoSector) >= uint(raw.ReservedSectors) {
			return nil, errors.NewWithMessage(errors.EUCLEAN, "fsinfo sector outside reserved area")
		}
	} else if raw.RootEntryCount == 0 {
		return nil, errors.NewWithMessage(errors.EUCLEAN, "FAT12/16 volume has zero root directory entries")
	} else if (uint(raw.RootEntryCount)*32)%uint(raw.BytesPerSector) != 0 {
		return nil, errors.NewWithMessage(errors.EUCLEAN, "root directory is not sector-aligned")
	}

	bpb := &BPB{
		BytesPerSector:    uint(raw.BytesPerSector),
		SectorsPerCluster: uint(raw.SecPerCluster),
		ReservedSectors:   uint(raw.ReservedSectors),
		NumFATs:           uint(raw.NumFATs),
		RootEntryCount:    uint(raw.RootEntryCount),
		SectorsPerFAT:     sectorsPerFAT,
		TotalSectors:      totalSectors,
		FATVersion:        fatVersion,
		RootDirSectors:    rootDirSectors,
		BytesPerCluster:   bytesPerCluster,
		TotalClusters:     totalClusters,
		FirstFATSector:    uint64(raw.ReservedSectors),
		DirentsPerCluster: int(bytesPerCluster) / 32,
	}

	bpb.FirstRootDirSector = bpb.FirstFATSector + uint64(totalFATSectors)
	bpb.FirstDataSector = bpb.FirstRootDirSector + uint64(rootDirSectors)

	if fatVersion == 32 {
		bpb.RootCluster = ClusterID(fat32.RootCluster)
		bpb.FSInfoSector = uint(fat32.FSInfoSector)
	}

	return bpb, nil
}

// DetermineFATVersion derives the FAT table width from the number of data
// clusters on the volume, per Microsoft's FAT spec v1.03 p.14. This is the
// only correct way to determine FAT variant; it must never be read from a
// field on disk.
func DetermineFATVersion(totalClusters uint) int {
	if totalClusters < 4085 {
		return 12
	}
	if totalClusters < 65525 {
		return 16
	}
	return 32
}

// IsValidCluster reports whether c addresses a real data cluster.
func (b *BPB) IsValidCluster(c ClusterID) bool {
	return c >= 2 && uint(c) < 2+b.TotalClusters
}

// FirstSectorOfCluster returns the device sector at which cluster c begins.
func (b *BPB) FirstSectorOfCluster(c ClusterID) uint64 {
	return b.FirstDataSector + uint64(c-2)*uint64(b.SectorsPerCluster)
}

func validateBytesPerSector(v uint16) errors.DriverError {
	switch v {
	case 512, 1024, 2048, 4096:
		return nil
	}
	return errors.NewWithMessage(errors.EUCLEAN, "BytesPerSector must be 512, 1024, 2048, or 4096")
}

func validateSectorsPerCluster(v uint8) errors.DriverError {
	for s := uint8(1); s != 0; s <<= 1 {
		if v == s {
			return nil
		}
		if s == 128 {
			break
		}
	}
	return errors.NewWithMessage(errors.EUCLEAN, "SectorsPerCluster must be a power of 2 in [1, 128]")
}
