// Command fatfsck mounts a FAT12/16/32 disk image read-only and reports on
// its consistency: whether it was unmounted cleanly, free space, and any
// directory entries whose cluster pointers are out of range.
package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/gocarina/gocsv"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"

	"github.com/go-fatfs/fatfs/blockdev"
	"github.com/go-fatfs/fatfs/directory"
	"github.com/go-fatfs/fatfs/fat"
	"github.com/go-fatfs/fatfs/fs"
	"github.com/go-fatfs/fatfs/mountopts"
)

type reportRow struct {
	Location string `csv:"location"`
	Issue    string `csv:"issue"`
}

func main() {
	app := &cli.App{
		Name:      "fatfsck",
		Usage:     "Check and report on the consistency of a FAT12/16/32 disk image",
		ArgsUsage: "IMAGE_FILE",
		Flags: []cli.Flag{
			&cli.UintFlag{Name: "bytes-per-sector", Value: 512},
			&cli.StringFlag{Name: "options", Aliases: []string{"o"}, Value: "ro,nocheck", Usage: `comma-separated mount options, e.g. "ro,cache=512"`},
			&cli.StringFlag{Name: "report", Value: "text", Usage: `finding output format: "text" or "csv"`},
		},
		Action: runCheck,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatfsck:", err)
		os.Exit(1)
	}
}

func runCheck(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one IMAGE_FILE argument", 2)
	}

	file, err := os.OpenFile(c.Args().First(), os.O_RDONLY, 0)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer file.Close()

	opts, warnings := mountopts.Parse(c.String("options"))
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "fatfsck: warning:", w)
	}

	device, derr := blockdev.NewFileDevice(file, c.Uint("bytes-per-sector"), opts.Flags.CanWrite())
	if derr != nil {
		return cli.Exit(derr.Error(), 1)
	}

	filesystem, merr := fs.Mount(device, opts.CacheSectors)
	if merr != nil {
		return cli.Exit(merr.Error(), 1)
	}
	defer filesystem.Unmount()

	var issues *multierror.Error

	if clean, werr := filesystem.WasUnmountedCleanly(); werr != nil {
		issues = multierror.Append(issues, werr)
	} else if !clean {
		issues = multierror.Append(issues, fmt.Errorf("volume was not unmounted cleanly; a check is recommended"))
	}

	walkDirectory(filesystem, filesystem.Root, "/", &issues)

	if free, known := filesystem.Alloc.FreeCount(); known {
		fmt.Printf("free space: %s\n", humanize.Bytes(free*uint64(filesystem.BPB().BytesPerCluster)))
	}

	rows := issuesToRows(issues)
	if c.String("report") == "csv" {
		if werr := gocsv.Marshal(&rows, os.Stdout); werr != nil {
			return cli.Exit(werr.Error(), 1)
		}
	} else {
		for _, row := range rows {
			fmt.Printf("%s: %s\n", row.Location, row.Issue)
		}
	}

	if issues != nil {
		return cli.Exit("filesystem has consistency issues", 1)
	}
	return nil
}

// walkDirectory recursively validates every entry's cluster pointer and
// recurses into subdirectories, accumulating problems into issues rather
// than stopping at the first one.
func walkDirectory(filesystem *fs.Filesystem, dir *directory.Directory, path string, issues **multierror.Error) {
	entries, err := directory.ReadDirectory(dir)
	if err != nil {
		*issues = multierror.Append(*issues, fmt.Errorf("%s: %w", path, err))
		return
	}

	for _, entry := range entries {
		location := path + entry.Name

		if entry.Short.FirstCluster() != 0 && !filesystem.BPB().IsValidCluster(fat.ClusterID(entry.Short.FirstCluster())) {
			*issues = multierror.Append(*issues, fmt.Errorf("%s: cluster %d out of range", location, entry.Short.FirstCluster()))
			continue
		}

		if entry.IsDir && entry.Name != "." && entry.Name != ".." {
			child := filesystem.GetInode(entry.InodeID)
			if child == nil {
				child = filesystem.CreateInode(entry.InodeID, nil, 0, entry.Short, dir.Inode)
			}
			sub := directory.New(filesystem.BPB(), filesystem.Table, filesystem.Alloc, filesystem.Blocks, filesystem.Engine, filesystem.Inodes, child)
			walkDirectory(filesystem, sub, location+"/", issues)
		}
	}
}

func issuesToRows(issues *multierror.Error) []reportRow {
	if issues == nil {
		return nil
	}
	rows := make([]reportRow, 0, len(issues.Errors))
	for _, e := range issues.Errors {
		rows = append(rows, reportRow{Location: "-", Issue: e.Error()})
	}
	return rows
}
