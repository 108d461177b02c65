package directory

import (
	"github.com/go-fatfs/fatfs/blockcache"
	"github.com/go-fatfs/fatfs/blockdev"
	"github.com/go-fatfs/fatfs/dirent"
	"github.com/go-fatfs/fatfs/errors"
	"github.com/go-fatfs/fatfs/fat"
	"github.com/go-fatfs/fatfs/inode"
)

// Open performs a byte-exact linear search for name, special-casing "."
// and ".." against d.Inode itself and its parent rather than looking for
// on-disk records that (outside a subdirectory's own first cluster) don't
// exist. When the parent is not an inode (the fixed FAT12/16 root), ".."
// is looked up among the directory's own on-disk records instead.
func Open(d *Directory, name string) (entry *LogicalEntry, found bool, err errors.DriverError) {
	if d.Inode != nil && (name == "." || name == "..") {
		target := d.Inode
		if name == ".." {
			target = d.Inode.Parent
		}
		if target != nil {
			return &LogicalEntry{
				Name:    name,
				InodeID: target.ID,
				IsDir:   true,
				Short:   target.Short,
			}, true, nil
		}
	}

	entries, rerr := ReadDirectory(d)
	if rerr != nil {
		return nil, false, rerr
	}
	for i := range entries {
		if entries[i].Name == name {
			return &entries[i], true, nil
		}
	}
	return nil, false, nil
}

// shortNameExists reports whether candidate is already in use as a short
// name anywhere in d.
func (d *Directory) shortNameExists(candidate [11]byte) bool {
	entries, err := ReadDirectory(d)
	if err != nil {
		return true // fail closed: force the caller to pick another candidate
	}
	for _, e := range entries {
		if e.Short.ShortName11() == candidate {
			return true
		}
	}
	return false
}

// planName decides the on-disk representation of a logical name: its own
// bytes verbatim if it's already legal 8.3, or a generated collision-free
// short name plus the long-filename chain that carries the real name.
func (d *Directory) planName(name string) (name11 [11]byte, lfnChain []dirent.LongNameEntry, err errors.DriverError) {
	if dirent.Is83Form(name) {
		return dirent.EncodeShort83(name), nil, nil
	}

	units, uerr := dirent.UTF8ToUCS2(name)
	if uerr != nil {
		return name11, nil, errors.NewWithMessage(errors.EINVAL, uerr.Error())
	}
	if len(units) > dirent.MaxNameUnits {
		return name11, nil, errors.ErrNameTooLong
	}

	name11, gerr := dirent.GenerateShortName(name, d.shortNameExists)
	if gerr != nil {
		return name11, nil, errors.NewWithMessage(errors.EEXIST, gerr.Error())
	}
	return name11, dirent.BuildLongNameChain(units, name11), nil
}

// extend grows an ordinary (non-fixed-root) directory by one zero-filled
// cluster, giving FindFreeRun fresh records to hand out. The fixed root
// can't be extended; callers must not call this when d.fixedRoot.
func (d *Directory) extend() errors.DriverError {
	current := d.Inode.Size()
	return d.engine.Truncate(d.Inode, current+int64(d.bpb.BytesPerCluster))
}

// FindFreeRun returns the record index of the first run of needed
// consecutive free-or-deleted records, extending an ordinary directory
// with fresh zero-filled clusters as needed. The fixed root cannot be
// extended and reports ENOSPC once its fixed capacity is exhausted.
func (d *Directory) FindFreeRun(needed uint) (uint, errors.DriverError) {
	run := uint(0)
	runStart := uint(0)
	index := uint(0)

	for {
		if d.fixedRoot && index >= d.fixedRootCount {
			return 0, errors.NewWithMessage(errors.ENOSPC, "root directory has no free records")
		}

		buf := make([]byte, dirent.EntrySize)
		rerr := d.readRecord(index, buf)
		if rerr != nil {
			if rerr.IsSameError(inode.ErrNoSuchCluster) {
				if d.fixedRoot {
					return 0, errors.NewWithMessage(errors.ENOSPC, "root directory has no free records")
				}
				if err := d.extend(); err != nil {
					return 0, err
				}
				continue
			}
			return 0, rerr
		}

		if buf[0] == dirent.FreeMarker || buf[0] == dirent.DeletedMarker {
			if run == 0 {
				runStart = index
			}
			run++
			if run >= needed {
				return runStart, nil
			}
		} else {
			run = 0
		}
		index++
	}
}

// place finds room for name's records, fills in short's Name/Ext from the
// chosen short name, and writes the long-filename chain (if any) followed
// by the short entry. It returns the short entry's block, pinned for the
// caller (normally an inode that will hold the reference for its
// lifetime), and the entry's in-block byte offset.
func (d *Directory) place(name string, short *dirent.ShortEntry) (*blockcache.Block, uint, errors.DriverError) {
	name11, lfnChain, err := d.planName(name)
	if err != nil {
		return nil, 0, err
	}
	copy(short.Name[:], name11[0:8])
	copy(short.Ext[:], name11[8:11])

	start, err := d.FindFreeRun(uint(len(lfnChain)) + 1)
	if err != nil {
		return nil, 0, err
	}

	for i, lfn := range lfnChain {
		if err := d.writeRecord(start+uint(i), lfn.Encode()); err != nil {
			return nil, 0, err
		}
	}

	shortIndex := start + uint(len(lfnChain))
	if err := d.writeRecord(shortIndex, short.Encode()); err != nil {
		return nil, 0, err
	}

	sector, offset, err := d.recordSector(shortIndex)
	if err != nil {
		return nil, 0, err
	}
	blk, gerr := d.blocks.Get(sector)
	if gerr != nil {
		return nil, 0, gerr
	}
	return blk, offset, nil
}

// Link adds name to d, pointing at node's already-populated first
// cluster/size/attributes, and pins node's directory-entry block for the
// inode's lifetime.
func Link(d *Directory, name string, node *inode.Inode) errors.DriverError {
	if _, found, err := Open(d, name); err != nil {
		return err
	} else if found {
		return errors.ErrExists
	}

	blk, offset, err := d.place(name, &node.Short)
	if err != nil {
		return err
	}
	node.DirentBlock = blk
	node.DirentOffset = offset
	return nil
}

// writeDotEntries populates records 0 and 1 of a freshly allocated
// directory cluster with "." (pointing at itself) and ".." (pointing at
// the parent directory, or cluster 0 if the parent is the FAT12/16 fixed
// root, which has no cluster of its own).
func writeDotEntries(d *Directory, cluster, parentCluster fat.ClusterID) errors.DriverError {
	sector := d.bpb.FirstSectorOfCluster(cluster)
	blk, err := d.blocks.Get(blockdev.SectorID(sector))
	if err != nil {
		return err
	}
	defer d.blocks.Unref(blk)

	dot := dirent.ShortEntry{Attributes: dirent.AttrDirectory}
	dot.Name = [8]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	dot.Ext = [3]byte{' ', ' ', ' '}
	dot.SetFirstCluster(uint32(cluster))

	dotdot := dirent.ShortEntry{Attributes: dirent.AttrDirectory}
	dotdot.Name = [8]byte{'.', '.', ' ', ' ', ' ', ' ', ' ', ' '}
	dotdot.Ext = [3]byte{' ', ' ', ' '}
	dotdot.SetFirstCluster(uint32(parentCluster))

	d.blocks.BeginWrite(blk)
	copy(blk.Data[0:dirent.EntrySize], dot.Encode())
	copy(blk.Data[dirent.EntrySize:2*dirent.EntrySize], dotdot.Encode())
	d.blocks.FinishWrite(blk)
	return nil
}

// CreateDirectory allocates a new subdirectory, seeds its "." and ".."
// entries, and links it into d under name.
func CreateDirectory(d *Directory, name string) (*inode.Inode, errors.DriverError) {
	if _, found, err := Open(d, name); err != nil {
		return nil, err
	} else if found {
		return nil, errors.ErrExists
	}

	cluster, err := d.alloc.AllocateCluster()
	if err != nil {
		return nil, err
	}
	if err := d.table.Set(cluster, d.table.EOFValue()); err != nil {
		return nil, err
	}
	if err := d.engine.ZeroCluster(cluster); err != nil {
		return nil, err
	}

	var parentCluster fat.ClusterID
	if d.Inode != nil {
		parentCluster = d.Inode.FirstCluster()
	}
	if err := writeDotEntries(d, cluster, parentCluster); err != nil {
		return nil, err
	}

	short := dirent.ShortEntry{Attributes: dirent.AttrDirectory}
	short.SetFirstCluster(uint32(cluster))

	node := d.inodes.New(inode.ID(cluster), short, nil, 0, d.Inode, true)
	if err := Link(d, name, node); err != nil {
		d.inodes.Remove(node, d.blocks)
		return nil, err
	}
	return node, nil
}

// RemoveDirectory removes the subdirectory named name from d, refusing
// with ErrDirectoryNotEmpty unless its only records are its own "." and
// ".." entries.
func RemoveDirectory(d *Directory, name string) errors.DriverError {
	entry, found, err := Open(d, name)
	if err != nil {
		return err
	}
	if !found {
		return errors.ErrNotFound
	}
	if name == "." || name == ".." {
		return errors.NewWithMessage(errors.EINVAL, "cannot remove . or ..")
	}
	if !entry.IsDir {
		return errors.ErrNotADirectory
	}

	child := d.inodes.Lookup(entry.InodeID)
	if child == nil {
		child = d.inodes.New(entry.InodeID, entry.Short, nil, 0, d.Inode, true)
	}
	defer child.Unref()

	children, rerr := ReadDirectory(New(d.bpb, d.table, d.alloc, d.blocks, d.engine, d.inodes, child))
	if rerr != nil {
		return rerr
	}
	for _, c := range children {
		if c.Name != "." && c.Name != ".." {
			return errors.ErrDirectoryNotEmpty
		}
	}

	return Unlink(d, name)
}

// Symlink links name to an existing node that already carries its target
// path encoded into its data stream (the FAT core has no native symlink
// record; callers are expected to have written the target path through the
// inode engine before calling Symlink, and to set an implementation-defined
// attribute or reparse convention on node.Short to mark it as one).
func Symlink(d *Directory, name string, node *inode.Inode) errors.DriverError {
	return Link(d, name, node)
}

// Unlink marks name's long-filename chain and short entry deleted. It does
// not free the inode's cluster chain or evict it from the inode cache --
// that happens once the inode's reference count reaches zero, which is the
// filesystem root's responsibility, not the directory's.
func Unlink(d *Directory, name string) errors.DriverError {
	entry, found, err := Open(d, name)
	if err != nil {
		return err
	}
	if !found {
		return errors.ErrNotFound
	}
	if name == "." || name == ".." {
		return errors.NewWithMessage(errors.EINVAL, "cannot unlink . or ..")
	}

	buf := make([]byte, dirent.EntrySize)
	for i := uint(0); i < entry.RecordCount; i++ {
		index := entry.StartIndex + i
		if err := d.readRecord(index, buf); err != nil {
			return err
		}
		buf[0] = dirent.DeletedMarker
		if err := d.writeRecord(index, buf); err != nil {
			return err
		}
	}
	return nil
}

// Rename moves the entry named oldName in src to newName in dst (which may
// be src itself), rewriting the moved entry's ".." record if it is a
// directory changing parents. It refuses to overwrite an existing newName.
func Rename(src *Directory, oldName string, dst *Directory, newName string, newParent *inode.Inode) errors.DriverError {
	entry, found, err := Open(src, oldName)
	if err != nil {
		return err
	}
	if !found {
		return errors.ErrNotFound
	}
	if src == dst && oldName == newName {
		return nil
	}
	if _, exists, eerr := Open(dst, newName); eerr != nil {
		return eerr
	} else if exists {
		return errors.ErrExists
	}

	short := entry.Short
	if err := Unlink(src, oldName); err != nil {
		return err
	}

	blk, offset, err := dst.place(newName, &short)
	if err != nil {
		return err
	}
	defer dst.blocks.Unref(blk)
	_ = offset

	if short.Attributes&dirent.AttrDirectory != 0 && src != dst {
		var parentCluster fat.ClusterID
		if newParent != nil {
			parentCluster = newParent.FirstCluster()
		}
		if err := rewriteDotDot(dst, fat.ClusterID(short.FirstCluster()), parentCluster); err != nil {
			return err
		}
	}
	return nil
}

// rewriteDotDot patches the ".." record in the first cluster of the moved
// directory childCluster to point at its new parent.
func rewriteDotDot(d *Directory, childCluster, newParentCluster fat.ClusterID) errors.DriverError {
	sector := d.bpb.FirstSectorOfCluster(childCluster)
	blk, err := d.blocks.Get(blockdev.SectorID(sector))
	if err != nil {
		return err
	}
	defer d.blocks.Unref(blk)

	dotdot := dirent.DecodeShortEntry(blk.Data[dirent.EntrySize : 2*dirent.EntrySize])
	dotdot.SetFirstCluster(uint32(newParentCluster))

	d.blocks.BeginWrite(blk)
	copy(blk.Data[dirent.EntrySize:2*dirent.EntrySize], dotdot.Encode())
	d.blocks.FinishWrite(blk)
	return nil
}
