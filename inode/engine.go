package inode

import (
	"github.com/go-fatfs/fatfs/blockcache"
	"github.com/go-fatfs/fatfs/blockdev"
	"github.com/go-fatfs/fatfs/errors"
	"github.com/go-fatfs/fatfs/fat"
)

// Engine performs chain traversal and byte-level I/O against inodes,
// sharing one block cache, FAT table, allocator, and BPB across every open
// inode.
type Engine struct {
	bpb    *fat.BPB
	table  *fat.Table
	alloc  *fat.Allocator
	blocks *blockcache.Cache
	inodes *Cache
}

// NewEngine builds an Engine over an already-mounted volume's core state.
// inodes receives MarkDirty calls whenever WriteAt or Truncate changes an
// inode's recorded size or first cluster, so Cache.Sync has something real
// to write back.
func NewEngine(bpb *fat.BPB, table *fat.Table, alloc *fat.Allocator, blocks *blockcache.Cache, inodes *Cache) *Engine {
	return &Engine{bpb: bpb, table: table, alloc: alloc, blocks: blocks, inodes: inodes}
}

// markSizeDirty updates n's short entry to reflect its current size and
// first cluster, and marks it dirty so Cache.Sync writes the change back
// to its directory entry.
func (e *Engine) markSizeDirty(n *Inode) {
	n.Short.FileSize = uint32(n.size)
	n.Short.SetFirstCluster(uint32(n.firstCluster))
	e.inodes.MarkDirty(n)
}

// ErrNoSuchCluster is returned by SeekCluster when the chain ends (an EOF
// sentinel) before reaching the requested index.
var ErrNoSuchCluster = errors.NewWithMessage(errors.EINVAL, "chain index past end of file")

// SeekCluster returns the cluster id at position chainIndex in n's cluster
// chain. It starts from n's cached (chain_index, cluster_id) pair when
// chainIndex is at or after the cached index, avoiding an O(n^2) walk on
// sequential access; otherwise it restarts from the first cluster.
func (e *Engine) SeekCluster(n *Inode, chainIndex uint) (fat.ClusterID, errors.DriverError) {
	if n.firstCluster == 0 {
		return 0, ErrNoSuchCluster
	}

	start := uint(0)
	cluster := n.firstCluster
	if n.seekCache.valid && n.seekCache.chainIndex <= chainIndex {
		start = n.seekCache.chainIndex
		cluster = n.seekCache.cluster
	}

	for i := start; i < chainIndex; i++ {
		next, err := e.table.Get(cluster)
		if err != nil {
			return 0, err
		}
		if e.table.IsEndOfChain(next) {
			return 0, ErrNoSuchCluster
		}
		if e.table.IsBadCluster(next) {
			return 0, errors.ErrIOFailed.WithMessage("chain references a bad cluster")
		}
		cluster = next
	}

	n.seekCache = seekCacheEntry{valid: true, chainIndex: chainIndex, cluster: cluster}
	return cluster, nil
}

// ReadAt reads up to len(buf) bytes from n starting at offset, clamped
// against the inode's recorded size. It returns the number of bytes
// actually read.
func (e *Engine) ReadAt(n *Inode, buf []byte, offset int64) (int, errors.DriverError) {
	if offset >= n.size {
		return 0, nil
	}
	remaining := n.size - offset
	if int64(len(buf)) > remaining {
		buf = buf[:remaining]
	}

	clusterSize := int64(e.bpb.BytesPerCluster)
	read := 0
	for read < len(buf) {
		pos := offset + int64(read)
		chainIndex := uint(pos / clusterSize)
		inClusterOffset := uint(pos % clusterSize)

		cluster, err := e.SeekCluster(n, chainIndex)
		if err != nil {
			if err == ErrNoSuchCluster {
				break
			}
			return read, err
		}

		sector, sectorOffset, err := e.clusterByteLocation(cluster, inClusterOffset)
		if err != nil {
			return read, err
		}

		blk, gerr := e.blocks.Get(sector)
		if gerr != nil {
			return read, gerr
		}

		n2 := copy(buf[read:], blk.Data[sectorOffset:])
		e.blocks.Unref(blk)
		read += n2
	}

	return read, nil
}

// WriteAt writes buf to n starting at offset, extending the cluster chain
// (allocating and linking new clusters, zero-filling any cluster
// introduced purely by a sparse extension) as needed. It updates n's
// recorded size and short entry itself and marks the inode dirty whenever
// the write grows the file, so a later Cache.Sync writes the new size
// back to the directory entry.
func (e *Engine) WriteAt(n *Inode, buf []byte, offset int64) (int, errors.DriverError) {
	if len(buf) == 0 {
		return 0, nil
	}

	endOffset := offset + int64(len(buf))
	if err := e.ensureSize(n, endOffset); err != nil {
		return 0, err
	}

	clusterSize := int64(e.bpb.BytesPerCluster)
	written := 0
	for written < len(buf) {
		pos := offset + int64(written)
		chainIndex := uint(pos / clusterSize)
		inClusterOffset := uint(pos % clusterSize)

		cluster, err := e.SeekCluster(n, chainIndex)
		if err != nil {
			return written, err
		}

		sector, sectorOffset, err := e.clusterByteLocation(cluster, inClusterOffset)
		if err != nil {
			return written, err
		}

		blk, gerr := e.blocks.Get(sector)
		if gerr != nil {
			return written, gerr
		}

		n2 := copy(blk.Data[sectorOffset:], buf[written:])
		e.blocks.BeginWrite(blk)
		e.blocks.FinishWrite(blk)
		e.blocks.Unref(blk)
		written += n2
	}

	if endOffset > n.size {
		n.size = endOffset
		e.markSizeDirty(n)
	}
	return written, nil
}

// ensureSize grows n's cluster chain so it has room for byte offset
// newSize-1, allocating and linking clusters as needed and zeroing each
// newly linked cluster. It does not change n.size; the caller does that
// once the write that required the growth has completed.
func (e *Engine) ensureSize(n *Inode, newSize int64) errors.DriverError {
	clusterSize := int64(e.bpb.BytesPerCluster)
	neededClusters := uint(0)
	if newSize > 0 {
		neededClusters = uint((newSize + clusterSize - 1) / clusterSize)
	}
	if neededClusters == 0 {
		return nil
	}

	if n.firstCluster == 0 {
		c, err := e.alloc.AllocateCluster()
		if err != nil {
			return err
		}
		if err := e.ZeroCluster(c); err != nil {
			return err
		}
		if err := e.table.Set(c, e.table.EOFValue()); err != nil {
			return err
		}
		n.firstCluster = c
		n.invalidateSeekCache()
	}

	existing := uint(1)
	last, err := e.SeekCluster(n, 0)
	if err != nil {
		return err
	}
	for {
		next, err := e.table.Get(last)
		if err != nil {
			return err
		}
		if e.table.IsEndOfChain(next) {
			break
		}
		last = next
		existing++
	}

	for existing < neededClusters {
		c, err := e.alloc.AllocateCluster()
		if err != nil {
			return err
		}
		if err := e.ZeroCluster(c); err != nil {
			return err
		}
		if err := e.table.Set(c, e.table.EOFValue()); err != nil {
			return err
		}
		if err := e.table.Set(last, c); err != nil {
			return err
		}
		last = c
		existing++
	}
	n.invalidateSeekCache()
	return nil
}

// Truncate resizes n to newSize bytes. Growing zero-fills newly linked
// clusters (via ensureSize); shrinking terminates the chain at the last
// retained cluster and frees the tail. Truncating to zero additionally
// clears n's first cluster.
func (e *Engine) Truncate(n *Inode, newSize int64) errors.DriverError {
	if newSize > n.size {
		if err := e.ensureSize(n, newSize); err != nil {
			return err
		}
		n.size = newSize
		e.markSizeDirty(n)
		return nil
	}
	if newSize == n.size {
		return nil
	}

	clusterSize := int64(e.bpb.BytesPerCluster)
	if newSize == 0 {
		if n.firstCluster != 0 {
			if err := e.freeChain(n.firstCluster); err != nil {
				return err
			}
		}
		n.firstCluster = 0
		n.size = 0
		n.invalidateSeekCache()
		e.markSizeDirty(n)
		return nil
	}

	lastIndex := uint((newSize - 1) / clusterSize)
	lastCluster, err := e.SeekCluster(n, lastIndex)
	if err != nil {
		return err
	}
	next, err := e.table.Get(lastCluster)
	if err != nil {
		return err
	}
	if err := e.table.Set(lastCluster, e.table.EOFValue()); err != nil {
		return err
	}
	if !e.table.IsEndOfChain(next) {
		if err := e.freeChain(next); err != nil {
			return err
		}
	}

	n.size = newSize
	n.invalidateSeekCache()
	e.markSizeDirty(n)
	return nil
}

// freeChain walks from c to the end of the chain, writing 0 to every entry
// and returning each cluster to the allocator.
func (e *Engine) freeChain(c fat.ClusterID) errors.DriverError {
	for {
		next, err := e.table.Get(c)
		if err != nil {
			return err
		}
		if err := e.table.Set(c, 0); err != nil {
			return err
		}
		if err := e.alloc.FreeCluster(c); err != nil {
			return err
		}
		if e.table.IsEndOfChain(next) {
			return nil
		}
		c = next
	}
}

// ZeroCluster writes zeros to every sector of cluster c.
func (e *Engine) ZeroCluster(c fat.ClusterID) errors.DriverError {
	firstSector := e.bpb.FirstSectorOfCluster(c)
	for i := uint(0); i < e.bpb.SectorsPerCluster; i++ {
		blk, err := e.blocks.Get(blockdev.SectorID(firstSector) + blockdev.SectorID(i))
		if err != nil {
			return err
		}
		e.blocks.BeginWrite(blk)
		for j := range blk.Data {
			blk.Data[j] = 0
		}
		e.blocks.FinishWrite(blk)
		e.blocks.Unref(blk)
	}
	return nil
}

func (e *Engine) clusterByteLocation(c fat.ClusterID, inClusterOffset uint) (blockdev.SectorID, uint, errors.DriverError) {
	if !e.bpb.IsValidCluster(c) {
		return 0, 0, errors.NewWithMessage(errors.EINVAL, "cluster out of range")
	}
	bps := e.bpb.BytesPerSector
	sectorInCluster := inClusterOffset / bps
	offsetInSector := inClusterOffset % bps
	sector := e.bpb.FirstSectorOfCluster(c) + uint64(sectorInCluster)
	return blockdev.SectorID(sector), offsetInSector, nil
}
