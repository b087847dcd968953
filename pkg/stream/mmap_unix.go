//go:build unix

package stream

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// openMapped maps f read-only including the Pad tail. The kernel zero-fills
// the mapped bytes past EOF within the last page, so the map satisfies the
// padding contract only when size+Pad does not spill into the next page.
// Otherwise the caller falls back to buffered reads.
func openMapped(f *os.File) (Source, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if size == 0 {
		return nil, fmt.Errorf("stream: empty file")
	}
	if size > int64(int(^uint(0)>>1))-Pad {
		return nil, fmt.Errorf("stream: file too large to map")
	}

	page := int64(os.Getpagesize())
	mapped := (size + page - 1) / page * page
	if size+Pad > mapped {
		return nil, fmt.Errorf("stream: no room for tail padding in map")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size)+Pad, unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return newMemSource(data, int(size), func() error { return unix.Munmap(data) }), nil
}
