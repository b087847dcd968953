//go:build !unix

package stream

import (
	"fmt"
	"os"
)

func openMapped(f *os.File) (Source, error) {
	return nil, fmt.Errorf("stream: memory mapping not supported on this platform")
}
