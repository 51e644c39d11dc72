package transfer

import "io"

// Source is an opened disk image.
type Source interface {
	io.ReadCloser
	Size() (uint64, error)
}

// Target is an opened block device (or anything standing in for one).
// FormatEmpty and Rescan are called after Close and must reopen whatever
// they need.
type Target interface {
	io.WriteCloser
	Size() (uint64, error)
	FormatEmpty() error
	Rescan() error
}

type SourceProvider interface {
	OpenSource(locator string) (Source, error)
}

type TargetProvider interface {
	OpenTarget(locator string) (Target, error)
}
