package svm

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const bytesPerMB = 1 << 20

// cacheRows converts a cache budget in megabytes into a number of Q rows of
// length l. At least two rows are always kept, since one SMO step needs
// the rows of both working set indices.
func cacheRows(l int, sizeMB float64) int {
	if l <= 0 {
		return 2
	}
	rows := int(sizeMB * bytesPerMB / float64(8*l))
	if rows > l {
		rows = l
	}
	if rows < 2 {
		rows = 2
	}
	return rows
}

func newRowCache(l int, sizeMB float64) *lru.Cache[int, []float64] {
	cache, err := lru.New[int, []float64](cacheRows(l, sizeMB))
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return cache
}
