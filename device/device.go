// Package device opens image files and block devices for the copy engine.
package device

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/moyoez/imagerestore/tool"
	"github.com/moyoez/imagerestore/transfer"
)

// WipeTimeout bounds how long the wipe command may run.
var WipeTimeout = 2 * time.Minute

// Provider implements transfer.SourceProvider and transfer.TargetProvider on
// top of the local filesystem.
type Provider struct {
	// WipeCommand is run with the target path appended when a restore fails.
	WipeCommand string
	Runner      Runner
	// Exclusive opens block device targets with O_EXCL, which the kernel
	// refuses while a partition is mounted.
	Exclusive bool
}

var (
	_ transfer.SourceProvider = (*Provider)(nil)
	_ transfer.TargetProvider = (*Provider)(nil)
)

func (p *Provider) runner() Runner {
	if p.Runner == nil {
		return CommandRunner{}
	}
	return p.Runner
}

// File is an image or device opened for one direction of the copy.
type File struct {
	*os.File
	path     string
	provider *Provider
}

// Size returns the byte length of a regular file or the capacity of a block device.
func (f *File) Size() (uint64, error) {
	return sizeOf(f.File)
}

func (f *File) Path() string {
	return f.path
}

// FormatEmpty wipes every signature from the target so a half written image
// is not mistaken for a valid filesystem.
func (f *File) FormatEmpty() error {
	ctx, cancel := context.WithTimeout(context.Background(), WipeTimeout)
	defer cancel()
	p := f.provider
	if p == nil {
		p = &Provider{}
	}
	tool.DefaultLogger.Infof("[Device] wiping %s", f.path)
	return p.runner().Run(ctx, wipeArgv(p.WipeCommand, f.path))
}

// Rescan asks the kernel to re-read the partition table of the target.
// Regular files have nothing to rescan.
func (f *File) Rescan() error {
	return rescan(f.path)
}

// OpenSource opens an image for reading.
func (p *Provider) OpenSource(locator string) (transfer.Source, error) {
	file, err := os.Open(locator)
	if err != nil {
		return nil, err
	}
	st, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if st.IsDir() {
		file.Close()
		return nil, fmt.Errorf("%s is a directory", locator)
	}
	return &File{File: file, path: locator, provider: p}, nil
}

// OpenTarget opens a block device (or a regular file standing in for one) for writing.
func (p *Provider) OpenTarget(locator string) (transfer.Target, error) {
	path := EnsureDevPrefix(locator)
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	flags := os.O_WRONLY
	if p.Exclusive && st.Mode()&os.ModeDevice != 0 {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, err
	}
	return &File{File: file, path: path, provider: p}, nil
}
