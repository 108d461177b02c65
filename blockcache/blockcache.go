// Package blockcache provides a bounded LRU cache of sector-sized buffers
// with pinning and dirty tracking, sitting directly on top of a
// blockdev.Device. A block stays resident for as long as something is
// using it (an open inode's directory-entry sector, the pinned BPB) and is
// otherwise reclaimed under the capacity bound, shared across every inode.
package blockcache

import (
	"container/list"
	"runtime"

	"github.com/go-fatfs/fatfs/blockdev"
	"github.com/go-fatfs/fatfs/errors"
)

// Block is the in-cache representation of one device sector.
type Block struct {
	ID    blockdev.SectorID
	Data  []byte
	pin   int
	dirty bool

	lruElem   *list.Element
	dirtyElem *list.Element
}

// Pinned reports whether this block currently has at least one outstanding
// reference from Get.
func (b *Block) Pinned() bool { return b.pin > 0 }

// Dirty reports whether this block has been modified since it was last
// written to the device.
func (b *Block) Dirty() bool { return b.dirty }

// Cache is a bounded LRU cache of Blocks, shared process-wide by every
// inode and the BPB of one mounted file system.
type Cache struct {
	device   blockdev.Device
	capacity uint

	blocks map[blockdev.SectorID]*Block
	// lru is ordered MRU-to-LRU; Front() is most recently used.
	lru *list.List
	// dirtyList preserves insertion order so SyncAll writes blocks out in
	// the order they were dirtied.
	dirtyList *list.List
}

// DefaultCapacity estimates a cache capacity of 10% of the memory the Go
// runtime has obtained from the OS (runtime.MemStats.Sys), divided by
// sector size, with a floor so tiny images still get a workable cache. It
// does not query the system's free memory.
func DefaultCapacity(bytesPerSector uint) uint {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	budget := stats.Sys / 10
	capacity := uint(budget) / bytesPerSector
	if capacity < 64 {
		capacity = 64
	}
	return capacity
}

// New creates a Cache over device with room for capacity blocks. Pass 0 to
// use DefaultCapacity.
func New(device blockdev.Device, capacity uint) *Cache {
	if capacity == 0 {
		capacity = DefaultCapacity(device.BytesPerSector())
	}

	return &Cache{
		device:    device,
		capacity:  capacity,
		blocks:    make(map[blockdev.SectorID]*Block, capacity),
		lru:       list.New(),
		dirtyList: list.New(),
	}
}

// Capacity returns the maximum number of blocks the cache tries to hold
// without eviction. The cache may temporarily exceed this if every resident
// block is pinned.
func (c *Cache) Capacity() uint { return c.capacity }

// Len returns the number of blocks currently resident.
func (c *Cache) Len() int { return len(c.blocks) }

// Get returns a pinned Block for sector id, reading it from the device on a
// cache miss. The caller must call Unref when done with it.
func (c *Cache) Get(id blockdev.SectorID) (*Block, errors.DriverError) {
	if blk, ok := c.blocks[id]; ok {
		blk.pin++
		c.lru.MoveToFront(blk.lruElem)
		return blk, nil
	}

	if uint(len(c.blocks)) >= c.capacity {
		if err := c.evictOne(); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, c.device.BytesPerSector())
	if err := c.device.ReadSector(id, buf); err != nil {
		return nil, err
	}

	blk := &Block{ID: id, Data: buf, pin: 1}
	blk.lruElem = c.lru.PushFront(blk)
	c.blocks[id] = blk
	return blk, nil
}

// evictOne reclaims the least-recently-used unpinned block. If every
// resident block is pinned, the cache is simply allowed to exceed its
// capacity -- pinned blocks are never evicted.
func (c *Cache) evictOne() errors.DriverError {
	for e := c.lru.Back(); e != nil; e = e.Prev() {
		blk := e.Value.(*Block)
		if blk.Pinned() {
			continue
		}

		if blk.dirty {
			if err := c.syncBlock(blk); err != nil {
				return err
			}
		}

		c.lru.Remove(blk.lruElem)
		delete(c.blocks, blk.ID)
		return nil
	}
	// Every block is pinned; caller will just grow past capacity.
	return nil
}

// Unref releases one reference on blk. Once the pin count drops to zero and
// the block is clean, it becomes eligible for eviction.
func (c *Cache) Unref(blk *Block) {
	if blk.pin > 0 {
		blk.pin--
	}
}

// BeginWrite brackets the start of a mutation of blk.Data, mirroring the
// write-then-FinishWrite discipline the rest of the core follows even
// though, with Go slices, there's no separate "checkout" step -- the
// caller already has the slice from Get. Calling it is a no-op; it exists
// so call sites read clearly as bracketed writes.
func (c *Cache) BeginWrite(blk *Block) {}

// FinishWrite marks blk dirty and queues it for writeback. It must be
// called after every mutation of blk.Data.
func (c *Cache) FinishWrite(blk *Block) {
	if !blk.dirty {
		blk.dirty = true
		blk.dirtyElem = c.dirtyList.PushBack(blk)
	}
}

// syncBlock writes blk to the device if dirty and clears the dirty flag.
func (c *Cache) syncBlock(blk *Block) errors.DriverError {
	if !blk.dirty {
		return nil
	}
	if err := c.device.WriteSector(blk.ID, blk.Data); err != nil {
		return err
	}
	blk.dirty = false
	if blk.dirtyElem != nil {
		c.dirtyList.Remove(blk.dirtyElem)
		blk.dirtyElem = nil
	}
	return nil
}

// Sync writes blk to the device if dirty, then clears the dirty flag.
func (c *Cache) Sync(blk *Block) errors.DriverError {
	return c.syncBlock(blk)
}

// SyncAll writes every dirty block to the device, in the order they were
// first dirtied, then calls the device's own Sync.
func (c *Cache) SyncAll() errors.DriverError {
	for e := c.dirtyList.Front(); e != nil; {
		blk := e.Value.(*Block)
		next := e.Next()
		if err := c.syncBlock(blk); err != nil {
			return err
		}
		e = next
	}
	return c.device.Sync()
}
