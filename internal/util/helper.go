// Package util holds small generic helpers shared by the protocol packages.
package util

// CloneSlice clones slice with cloneSize.
// This function will use src length as the clone size if cloneSize is 0.
func CloneSlice[T any](src []T, cloneSize int) []T {
	if cloneSize == 0 {
		cloneSize = len(src)
	}
	clone := make([]T, cloneSize)
	copy(clone, src)

	return clone
}

// PadTo returns n rounded up to a multiple of align.
func PadTo(n, align int) int {
	if align <= 0 {
		return n
	}

	return (n + align - 1) / align * align
}
