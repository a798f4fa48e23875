/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package ring

import "errors"

// Writer errors. Transient errors are
// expected under backpressure and are counted, not logged as failures;
// fatal errors indicate the ring itself cannot be trusted.
var (
	ErrBlockNotInitialized = errors.New("ring: block not initialized")
	ErrSizeTooLarge = errors.New("ring: payload too large for block")
	ErrNotEnoughSpace = errors.New("ring: not enough space (reader too slow)") // transient
	ErrBlockReinitialized = errors.New("ring: block reinitialized during write") // transient
	ErrCouldNotAllocate = errors.New("ring: could not allocate after retry budget") // transient
	ErrAllocatorCorrupted = errors.New("ring: allocator corrupted") // fatal
)

// IsTransientWriteErr reports whether err should be counted as a per-job
// transient failure rather than torn down as fatal.
func IsTransientWriteErr(err error) bool {
	return errors.Is(err, ErrNotEnoughSpace) ||
		errors.Is(err, ErrBlockReinitialized) ||
		errors.Is(err, ErrCouldNotAllocate)
}

// Reader errors.
var (
	ErrNoRecords = errors.New("ring: no records")
	ErrNotYetPublished = errors.New("ring: record not yet published")
	ErrBlockCorrupted = errors.New("ring: block corrupted (bad magic)")
	ErrTailCorruption = errors.New("ring: tail past head")
	ErrLabelTooLarge = errors.New("ring: payload larger than caller buffer")
)

// NeedsReinit reports whether a reader error requires calling Ring.Reinit
// before continuing.
func NeedsReinit(err error) bool {
	return errors.Is(err, ErrBlockCorrupted) || errors.Is(err, ErrTailCorruption)
}

const maxWriterRetries = 100
