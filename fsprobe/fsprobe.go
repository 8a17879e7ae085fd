// Package fsprobe reports free capacity of the filesystem holding the
// engine's data directory.
package fsprobe

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/jathurchan/bgerr/errhandler"
)

// ErrEmptyDir is returned when a DiskSpaceMonitor has no directory to probe.
var ErrEmptyDir = errors.New("fsprobe: directory must not be empty")

// Usage is a snapshot of filesystem capacity, in bytes.
type Usage struct {
	Total     uint64
	Available uint64
}

// DiskSpaceMonitor implements errhandler.SpaceMonitor for a directory.
// There is enough space when at least MinFreeBytes are available to
// unprivileged writers.
type DiskSpaceMonitor struct {
	Dir          string
	MinFreeBytes uint64

	statfs func(path string, buf *unix.Statfs_t) error
}

var _ errhandler.SpaceMonitor = (*DiskSpaceMonitor)(nil)

// NewDiskSpaceMonitor returns a monitor for dir.
func NewDiskSpaceMonitor(dir string, minFreeBytes uint64) (*DiskSpaceMonitor, error) {
	if dir == "" {
		return nil, ErrEmptyDir
	}
	return &DiskSpaceMonitor{Dir: dir, MinFreeBytes: minFreeBytes, statfs: unix.Statfs}, nil
}

// Usage returns the current capacity of the filesystem holding Dir.
func (m *DiskSpaceMonitor) Usage(ctx context.Context) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	statfs := m.statfs
	if statfs == nil {
		statfs = unix.Statfs
	}

	var st unix.Statfs_t
	if err := statfs(m.Dir, &st); err != nil {
		return Usage{}, fmt.Errorf("statfs %s: %w", m.Dir, err)
	}
	bsize := uint64(st.Bsize)
	return Usage{
		Total:     uint64(st.Blocks) * bsize,
		Available: uint64(st.Bavail) * bsize,
	}, nil
}

// EnoughSpaceAvailable reports whether at least MinFreeBytes are available.
func (m *DiskSpaceMonitor) EnoughSpaceAvailable(ctx context.Context) (bool, error) {
	u, err := m.Usage(ctx)
	if err != nil {
		return false, err
	}
	return u.Available >= m.MinFreeBytes, nil
}
