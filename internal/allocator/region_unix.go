//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package allocator

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// mapRegion maps size bytes of anonymous private memory.
func mapRegion(size uintptr) ([]byte, func() error, error) {
	if size > uintptr(int(^uint(0)>>1)) {
		return nil, nil, fmt.Errorf("arena region too large (%d bytes)", size)
	}

	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}

	var once sync.Once
	unmap := func() error {
		var err error
		once.Do(func() {
			err = unix.Munmap(data)
			if errors.Is(err, unix.EINVAL) {
				err = nil
			}
		})
		return err
	}
	return data, unmap, nil
}
