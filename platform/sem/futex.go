// Package sem implements a named counting semaphore for cross-process
// wakeup on the shared-memory ring. There is no portable
// POSIX sem_open exposed by golang.org/x/sys/unix, so the semaphore's
// "name" is really the shared-memory address it lives at: a 32-bit counter
// word inside the ring segment, woken via the futex(2) syscall the same
// way a network stack's shared-memory receive queue toggles a plain
// atomic word to signal a peer process rather than using an fd-based
// primitive that can't cross unrelated processes without descriptor
// passing.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package sem

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux futex(2) does not surface FUTEX_WAIT/FUTEX_WAKE as unix package
// constants; they are stable ABI values from <linux/futex.h>.
const (
	futexWait = 0
	futexWake = 1
)

// Sem is a counting semaphore backed by a single uint32 living at a fixed
// offset inside a shared-memory segment. Word must remain valid (i.e. the
// segment must stay mapped) for the lifetime of the Sem.
type Sem struct {
	word *uint32
}

// Size is the number of bytes New's word occupies; callers reserve this
// much space in the segment layout.
const Size = 4

// New wraps the uint32 at the start of buf as a semaphore word. buf must be
// at least Size bytes and 4-byte aligned (mmap'd pages always are).
func New(buf []byte) *Sem {
	return &Sem{word: (*uint32)(unsafe.Pointer(&buf[0]))}
}

// Init zeroes the word; called once by the segment's creator.
func (s *Sem) Init() { atomic.StoreUint32(s.word, 0) }

// NewLocal backs a semaphore with a freshly allocated word instead of a
// shared-memory segment; used by in-process callers (the send workers,
// the public API's optional per-handle completion semaphore) that have no
// cross-process wakeup requirement but still want the same futex-based
// Post/Wait pair the ring uses.
func NewLocal() *Sem {
	s := New(make([]byte, Size))
	s.Init()
	return s
}

// Post increments the count and wakes exactly one waiter, matching the
// ring writer's "one signal per published record" contract.
func (s *Sem) Post() {
	atomic.AddUint32(s.word, 1)
	futex(s.word, futexWake, 1)
}

// Wait blocks until the count is non-zero, then atomically decrements it.
// It loops on spurious futex wakeups the same way pthread condition waits
// do: re-check the predicate, don't trust the wakeup alone.
func (s *Sem) Wait() {
	for {
		for {
			v := atomic.LoadUint32(s.word)
			if v == 0 {
				break
			}
			if atomic.CompareAndSwapUint32(s.word, v, v-1) {
				return
			}
		}
		futex(s.word, futexWait, 0)
	}
}

// futex issues the raw syscall; errors (EAGAIN from a changed word,
// EINTR) are not distinguishable from a legitimate wakeup at this layer,
// so Wait's predicate re-check is what actually matters.
func futex(word *uint32, op, val int) {
	unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(word)), uintptr(op), uintptr(val), 0, 0, 0)
}
