// Package shm wraps POSIX shared-memory segment creation, mapping, and
// teardown for the ring: Open/Ftruncate/Mmap/Msync/Munmap via
// `golang.org/x/sys/unix`. Every segment here is a single flat mapping;
// the ring's own layout (header+metadata+data) is implemented in package
// ring.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package shm

import (
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Segment is a POSIX shared-memory mapping: create-or-open plus the mmap'd
// view. Exactly one process creates a given segment (the receiving node);
// every other process opens the existing file.
type Segment struct {
	name string
	fd int
	View []byte
}

// dir is where named segments live, as plain files under a tmpfs mount
// (the same tradeoff our grounding example makes rather than using
// shm_open(3), which x/sys/unix does not expose directly on Linux).
var dir = "/dev/shm"

// SetDir overrides the segment directory; used by tests so they don't
// collide with or require an actual /dev/shm.
func SetDir(d string) { dir = d }

func path(name string) string { return filepath.Join(dir, name) }

// Create creates a new segment of the given size, failing if one already
// exists under that name. Only the receiving node's ShmRecv calls this
func Create(name string, size int) (*Segment, error) {
	p := path(name)
	fd, err := unix.Open(p, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR, 0o666)
	if err != nil {
		return nil, fmt.Errorf("shm: create %s: %w", name, err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		unix.Unlink(p)
		return nil, fmt.Errorf("shm: ftruncate %s: %w", name, err)
	}
	return mapSegment(name, fd, size)
}

// Open opens an existing segment. Callers (ShmSend) retry at a fixed
// interval while the owning receiver has not created it yet.
func Open(name string, size int) (*Segment, error) {
	p := path(name)
	fd, err := unix.Open(p, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", name, err)
	}
	return mapSegment(name, fd, size)
}

// CreateOrOpen implements the ShmRecv "create-or-open" lifecycle: try to
// create; if one already exists, open and re-map it instead.
func CreateOrOpen(name string, size int) (seg *Segment, created bool, err error) {
	seg, err = Create(name, size)
	if err == nil {
		return seg, true, nil
	}
	if !isExistErr(err) {
		return nil, false, err
	}
	seg, err = Open(name, size)
	return seg, false, err
}

func isExistErr(err error) bool {
	return errors.Is(err, unix.EEXIST)
}

func mapSegment(name string, fd int, size int) (*Segment, error) {
	view, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: mmap %s: %w", name, err)
	}
	return &Segment{name: name, fd: fd, View: view}, nil
}

// Sync flushes the mapping to its backing store; used after writing the
// segment header during creation so a concurrently-opening peer observes a
// fully initialized header (belt-and-suspenders alongside the atomic state
// field in ring.Header).
func (s *Segment) Sync() error {
	if err := unix.Msync(s.View, unix.MS_SYNC); err != nil {
		return fmt.Errorf("shm: msync %s: %w", s.name, err)
	}
	return nil
}

// Close unmaps and closes the segment's file descriptor. It does not
// unlink the backing file — the segment is destroyed with the owning
// process only if that process also calls Unlink.
func (s *Segment) Close() error {
	if s.View != nil {
		if err := unix.Munmap(s.View); err != nil {
			return fmt.Errorf("shm: munmap %s: %w", s.name, err)
		}
		s.View = nil
	}
	return unix.Close(s.fd)
}

// Unlink removes the backing file. Call once, from the owning process.
func Unlink(name string) error {
	return unix.Unlink(path(name))
}

// Name is the template used by ShmRecv to derive a segment's file name from
// the owning node id.
func Name(nodeID int32) string {
	return fmt.Sprintf("netcomm-sub000.node.%d", nodeID)
}
