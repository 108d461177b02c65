package inode

import (
	"container/list"

	"github.com/go-fatfs/fatfs/blockcache"
	"github.com/go-fatfs/fatfs/dirent"
	"github.com/go-fatfs/fatfs/fat"
)

// numBuckets is the fixed hash-table size for the inode cache.
const numBuckets = 65536

// Cache is the process-wide, fixed-bucket-count hash table of live inodes,
// threaded through an MRU/LRU list and a dirty list, using the same
// intrusive-list idiom the block cache uses, generalized to also support
// hashed lookup by inode ID.
type Cache struct {
	buckets [numBuckets][]*Inode
	mru     *list.List
	dirty   *list.List
}

// New creates an empty inode cache.
func New() *Cache {
	return &Cache{
		mru:   list.New(),
		dirty: list.New(),
	}
}

func bucketIndex(id ID) int {
	return int(uint32(id) % numBuckets)
}

// Lookup returns the live inode for id, bumping its strong reference count
// and moving it to MRU, or nil if it isn't cached.
func (c *Cache) Lookup(id ID) *Inode {
	idx := bucketIndex(id)
	for _, n := range c.buckets[idx] {
		if n.ID == id {
			n.Ref()
			c.mru.MoveToFront(n.lruElem)
			return n
		}
	}
	return nil
}

// Insert adds a freshly constructed inode (ref count already at 1) to the
// cache's hash table and MRU list.
func (c *Cache) Insert(n *Inode) {
	idx := bucketIndex(n.ID)
	c.buckets[idx] = append(c.buckets[idx], n)
	n.lruElem = c.mru.PushFront(n)
}

// Remove evicts an inode whose reference count has reached zero and whose
// directory entry is gone, releasing its pinned directory-entry block.
func (c *Cache) Remove(n *Inode, cache *blockcache.Cache) {
	idx := bucketIndex(n.ID)
	bucket := c.buckets[idx]
	for i, candidate := range bucket {
		if candidate == n {
			c.buckets[idx] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if n.lruElem != nil {
		c.mru.Remove(n.lruElem)
		n.lruElem = nil
	}
	if n.dirtyElem != nil {
		c.dirty.Remove(n.dirtyElem)
		n.dirtyElem = nil
	}
	if n.DirentBlock != nil && cache != nil {
		cache.Unref(n.DirentBlock)
	}
}

// MarkDirty records that n's short entry needs to be written back, adding
// it to the dirty list if it isn't there already.
func (c *Cache) MarkDirty(n *Inode) {
	if n.dirty {
		return
	}
	n.dirty = true
	n.dirtyElem = c.dirty.PushBack(n)
}

// clearDirty removes n from the dirty list after its short entry has been
// written back.
func (c *Cache) clearDirty(n *Inode) {
	n.dirty = false
	if n.dirtyElem != nil {
		c.dirty.Remove(n.dirtyElem)
		n.dirtyElem = nil
	}
}

// Sync writes every dirty inode's short entry back through the block
// cache, in the order they were dirtied, then clears their dirty flags. It
// does not sync the block cache itself; the caller (the filesystem root)
// does that afterward.
func (c *Cache) Sync(blocks *blockcache.Cache) {
	for e := c.dirty.Front(); e != nil; {
		n := e.Value.(*Inode)
		next := e.Next()

		if n.DirentBlock != nil {
			raw := n.Short.Encode()
			blocks.BeginWrite(n.DirentBlock)
			copy(n.DirentBlock.Data[n.DirentOffset:n.DirentOffset+dirent.EntrySize], raw)
			blocks.FinishWrite(n.DirentBlock)
		}
		c.clearDirty(n)
		e = next
	}
}

// New builds and inserts a fresh inode for a directory entry just read (or
// created) at dirBlock[dirOffset:dirOffset+32], pinning dirBlock for the
// inode's lifetime. The caller must already hold a reference on dirBlock
// which New takes ownership of.
func (c *Cache) New(id ID, short dirent.ShortEntry, dirBlock *blockcache.Block, dirOffset uint, parent *Inode, isDir bool) *Inode {
	n := &Inode{
		ID:           id,
		Parent:       parent,
		IsDir:        isDir,
		DirentBlock:  dirBlock,
		DirentOffset: dirOffset,
		Short:        short,
		firstCluster: fat.ClusterID(id),
		size:         int64(short.FileSize),
		strongRefs:   1,
	}
	c.Insert(n)
	return n
}
