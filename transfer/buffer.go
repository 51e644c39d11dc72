package transfer

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultBufferSize is the chunk size used when an Engine does not set one.
const DefaultBufferSize = 1 * 1024 * 1024

// alignedBuffer returns a size-byte slice whose first byte sits on a page
// boundary. Block devices opened for direct I/O reject misaligned buffers.
func alignedBuffer(size int) []byte {
	return alignedBufferTo(size, unix.Getpagesize())
}

func alignedBufferTo(size, align int) []byte {
	if align <= 1 {
		return make([]byte, size)
	}
	raw := make([]byte, size+align)
	off := 0
	if rem := int(uintptr(unsafe.Pointer(unsafe.SliceData(raw))) & uintptr(align-1)); rem != 0 {
		off = align - rem
	}
	return raw[off : off+size : off+size]
}

func isAligned(b []byte, align int) bool {
	if len(b) == 0 || align <= 1 {
		return true
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))&uintptr(align-1) == 0
}
