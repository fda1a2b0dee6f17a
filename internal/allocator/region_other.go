//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package allocator

// mapRegion falls back to a heap buffer where anonymous mappings are not
// available. The buffer is pointer-free, like the mapped region.
func mapRegion(size uintptr) ([]byte, func() error, error) {
	return make([]byte, size), func() error { return nil }, nil
}
