package checker

import (
	"sort"

	"github.com/ocfs2-tools/ocfs2check/util/bitmap"
)

// sparseBitmapChunkBits is the number of bits covered by one allocated
// chunk. A volume with ~2^32 blocks and this chunk size needs at most
// 2^32/sparseBitmapChunkBits chunk map entries, and entirely unreferenced
// regions of the device never allocate a chunk at all.
const sparseBitmapChunkBits = 1 << 16 // 64Ki bits = 8KiB per chunk

// SparseBitmap is a chunked, paged bitmap sized for device-scale (multi-
// terabyte) bit spaces: used/bad/dir/regular/rebuild-dirs inode bitmaps,
// found-blocks/duplicate-blocks block bitmaps, and the allocated-clusters
// cluster bitmap (§3, §9 of SPEC_FULL.md). All-zero regions never
// materialize a chunk.
type SparseBitmap struct {
	label  string
	chunks map[uint64]*bitmap.Bitmap
}

func NewSparseBitmap(label string) *SparseBitmap {
	return &SparseBitmap{label: label, chunks: make(map[uint64]*bitmap.Bitmap)}
}

func (s *SparseBitmap) chunkFor(index uint64, create bool) *bitmap.Bitmap {
	chunkIdx := index / sparseBitmapChunkBits
	c, ok := s.chunks[chunkIdx]
	if !ok {
		if !create {
			return nil
		}
		c = bitmap.NewBits(sparseBitmapChunkBits)
		s.chunks[chunkIdx] = c
	}
	return c
}

func (s *SparseBitmap) Set(index uint64) {
	c := s.chunkFor(index, true)
	_ = c.Set(int(index % sparseBitmapChunkBits))
}

func (s *SparseBitmap) Clear(index uint64) {
	c := s.chunkFor(index, false)
	if c == nil {
		return
	}
	_ = c.Clear(int(index % sparseBitmapChunkBits))
}

// Test reports whether index is set; unallocated chunks are treated as
// entirely clear without materializing.
func (s *SparseBitmap) Test(index uint64) bool {
	c := s.chunkFor(index, false)
	if c == nil {
		return false
	}
	set, _ := c.IsSet(int(index % sparseBitmapChunkBits))
	return set
}

// TestAndSet sets index and reports whether it was already set, the
// operation Pass 1's extent walk uses to detect a block claimed by more
// than one inode.
func (s *SparseBitmap) TestAndSet(index uint64) bool {
	wasSet := s.Test(index)
	s.Set(index)
	return wasSet
}

// Count returns the number of set bits. It is O(chunks), used only for
// reporting, never on a hot path.
func (s *SparseBitmap) Count() uint64 {
	var n uint64
	for _, c := range s.chunks {
		for _, run := range invertFreeList(c) {
			n += uint64(run.Count)
		}
	}
	return n
}

// Empty reports whether no bit is set anywhere, used to decide whether
// Pass 1b–1d needs to run at all.
func (s *SparseBitmap) Empty() bool {
	for _, c := range s.chunks {
		if c.FirstSet() != -1 {
			return false
		}
	}
	return true
}

// Each visits every set bit in ascending order. Chunk iteration order is
// sorted so results are deterministic across runs.
func (s *SparseBitmap) Each(fn func(index uint64)) {
	idxs := make([]uint64, 0, len(s.chunks))
	for idx := range s.chunks {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })

	for _, idx := range idxs {
		c := s.chunks[idx]
		base := idx * sparseBitmapChunkBits
		// Walk bit-by-bit; chunks are small (8KiB) so this is cheap
		// relative to the I/O that populated them.
		for i := 0; i < sparseBitmapChunkBits; i++ {
			if set, _ := c.IsSet(i); set {
				fn(base + uint64(i))
			}
		}
	}
}

func invertFreeList(c *bitmap.Bitmap) []bitmap.Contiguous {
	free := c.FreeList()
	total := sparseBitmapChunkBits
	var used []bitmap.Contiguous
	pos := 0
	for _, f := range free {
		if f.Position > pos {
			used = append(used, bitmap.Contiguous{Position: pos, Count: f.Position - pos})
		}
		pos = f.Position + f.Count
	}
	if pos < total {
		used = append(used, bitmap.Contiguous{Position: pos, Count: total - pos})
	}
	return used
}
