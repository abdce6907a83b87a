// Package pool provides a size-tiered byte-buffer pool used by the
// reference transport to avoid an allocation per frame read on the hot
// path: buffers are bucketed by size class and returned to a sync.Pool
// once a frame has been forwarded and is no longer needed.
package pool

import "sync"

const (
	// bucketsPerTier is how many size buckets exist within one tier.
	bucketsPerTier = int32(8)
	// maxPooledSize is the largest buffer size class this pool tracks;
	// anything bigger falls into a single overflow pool.
	maxPooledSize = int32(1 << 17)
)

var (
	// tierStep is the size increment between consecutive buckets
	// within each tier.
	tierStep = []int32{
		1 << 2, 1 << 3, 1 << 4, 1 << 5, 1 << 6, 1 << 7, 1 << 8, 1 << 9, 1 << 10, 1 << 11, 1 << 12, 1 << 13,
	}
	// tierStart is the size of the smallest bucket in each tier.
	tierStart = []int32{
		1 << 5, 1 << 6, 1 << 7, 1 << 8, 1 << 9, 1 << 10, 1 << 11, 1 << 12, 1 << 13, 1 << 14, 1 << 15, 1 << 16,
	}
)

// FramePool hands out byte slices sized to the nearest bucket at or
// above the requested length, so repeated frame reads of similar size
// reuse the same underlying arrays instead of allocating fresh ones.
type FramePool struct {
	bucketSize [][bucketsPerTier]int32
	pools      [][bucketsPerTier]*sync.Pool
	overflow   *sync.Pool
}

// NewFramePool builds a FramePool with the standard tier layout.
func NewFramePool() *FramePool {
	fp := &FramePool{
		bucketSize: make([][bucketsPerTier]int32, len(tierStart)),
		pools:      make([][bucketsPerTier]*sync.Pool, len(tierStart)),
		overflow: &sync.Pool{
			New: func() any {
				b := make([]byte, maxPooledSize)
				return &b
			},
		},
	}
	for i := int32(0); i < int32(len(tierStart)); i++ {
		for j := int32(0); j < bucketsPerTier; j++ {
			size := tierStart[i] + j*tierStep[i]
			fp.bucketSize[i][j] = size
			fp.pools[i][j] = &sync.Pool{
				New: func() any {
					b := make([]byte, size)
					return &b
				},
			}
		}
	}
	return fp
}

// Alloc returns a buffer of exactly size bytes, backed by a pooled
// array from the nearest bucket at or above size when one exists.
func (fp *FramePool) Alloc(size int32) *[]byte {
	pool := fp.findPool(size)
	if pool == nil {
		b := make([]byte, size)
		return &b
	}
	bufp := pool.Get().(*[]byte)
	buf := (*bufp)[:size]
	return &buf
}

// Free returns buffer to the pool matching its capacity. Callers must
// not use buffer again after calling Free.
func (fp *FramePool) Free(buffer *[]byte) {
	pool := fp.findPool(int32(cap(*buffer)))
	if pool == nil {
		return
	}
	pool.Put(buffer)
}

func (fp *FramePool) findPool(size int32) *sync.Pool {
	if size > maxPooledSize {
		return nil
	}
	if size <= tierStart[0] {
		return fp.pools[0][0]
	}
	if size > fp.bucketSize[len(tierStart)-1][bucketsPerTier-1] {
		return fp.overflow
	}

	left, right := int32(0), int32(len(tierStart)-1)
	if size > tierStart[right] {
		left = right
	} else {
		var mid int32
		for left < right {
			mid = (left + right) / 2
			if mid == left || mid == right {
				break
			}
			switch {
			case size < tierStart[mid]:
				right = mid
			case size > tierStart[mid]:
				left = mid
			default:
				return fp.pools[mid][0]
			}
		}
	}
	offset := size - tierStart[left]
	bucket := (offset + tierStep[left] - 1) / tierStep[left]
	if bucket >= bucketsPerTier {
		return fp.pools[left+1][0]
	}
	return fp.pools[left][bucket]
}

var defaultPool = NewFramePool()

// Default returns the package-level FramePool shared by the reference
// transport.
func Default() *FramePool { return defaultPool }
