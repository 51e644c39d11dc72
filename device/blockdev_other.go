//go:build !linux

package device

import (
	"errors"
	"fmt"
	"os"
)

func sizeOf(f *os.File) (uint64, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if st.Mode()&os.ModeDevice != 0 {
		return 0, fmt.Errorf("%s: block device size: %w", f.Name(), errors.ErrUnsupported)
	}
	return uint64(st.Size()), nil
}

func rescan(string) error {
	return nil
}
