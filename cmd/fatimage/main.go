// Command fatimage creates blank FAT12/16/32 disk images.
package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:      "fatimage",
		Usage:     "Create a blank FAT12/16/32 disk image",
		ArgsUsage: "OUTPUT_FILE",
		Flags: []cli.Flag{
			&cli.UintFlag{Name: "bytes-per-sector", Value: 512},
			&cli.UintFlag{Name: "sectors-per-cluster", Value: 4},
			&cli.Uint64Flag{Name: "total-sectors", Value: 20076, Usage: "volume size in sectors"},
			&cli.UintFlag{Name: "reserved-sectors", Value: 4},
			&cli.UintFlag{Name: "fat-copies", Value: 2},
			&cli.UintFlag{Name: "root-entries", Value: 512, Usage: "0 for FAT32 (no fixed root region)"},
		},
		Action: formatImage,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatimage:", err)
		os.Exit(1)
	}
}

func formatImage(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one OUTPUT_FILE argument", 2)
	}

	bytesPerSector := uint16(c.Uint("bytes-per-sector"))
	sectorsPerCluster := uint8(c.Uint("sectors-per-cluster"))
	totalSectors := c.Uint64("total-sectors")
	reservedSectors := uint16(c.Uint("reserved-sectors"))
	numFATs := uint8(c.Uint("fat-copies"))
	rootEntries := uint16(c.Uint("root-entries"))

	sector := make([]byte, bytesPerSector)
	sector[0], sector[1], sector[2] = 0xEB, 0x3C, 0x90
	copy(sector[3:11], []byte("FATFS1.0"))
	binary.LittleEndian.PutUint16(sector[11:13], bytesPerSector)
	sector[13] = sectorsPerCluster
	binary.LittleEndian.PutUint16(sector[14:16], reservedSectors)
	sector[16] = numFATs
	binary.LittleEndian.PutUint16(sector[17:19], rootEntries)
	if totalSectors <= 0xFFFF {
		binary.LittleEndian.PutUint16(sector[19:21], uint16(totalSectors))
	} else {
		binary.LittleEndian.PutUint32(sector[32:36], uint32(totalSectors))
	}
	sector[21] = 0xF8

	rootDirSectors := (uint32(rootEntries)*32 + uint32(bytesPerSector) - 1) / uint32(bytesPerSector)
	dataSectors := totalSectors - uint64(reservedSectors) - uint64(rootDirSectors)
	isFAT32 := rootEntries == 0
	var sectorsPerFAT uint32
	if isFAT32 {
		clusters := dataSectors / uint64(sectorsPerCluster)
		sectorsPerFAT = uint32((clusters*4 + uint64(bytesPerSector) - 1) / uint64(bytesPerSector))
		binary.LittleEndian.PutUint32(sector[36:40], sectorsPerFAT)
		sector[44] = 2                                  // root cluster low byte: cluster 2
		binary.LittleEndian.PutUint16(sector[48:50], 1) // fsinfo sector
	} else {
		clusters := dataSectors / uint64(sectorsPerCluster)
		sectorsPerFAT16 := uint16((clusters*2 + uint64(bytesPerSector) - 1) / uint64(bytesPerSector))
		binary.LittleEndian.PutUint16(sector[22:24], sectorsPerFAT16)
		sectorsPerFAT = uint32(sectorsPerFAT16)
	}

	sector[510], sector[511] = 0x55, 0xAA

	file, err := os.Create(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer file.Close()

	if _, err := file.Write(sector); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := file.Truncate(int64(totalSectors) * int64(bytesPerSector)); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	fmt.Printf(
		"formatted %s image: %s across %d sectors\n",
		formatKindLabel(isFAT32),
		humanize.Bytes(totalSectors*uint64(bytesPerSector)),
		totalSectors,
	)
	return nil
}

func formatKindLabel(isFAT32 bool) string {
	if isFAT32 {
		return "FAT32"
	}
	return "FAT12/16"
}
