// Package mono provides process-local monotonic time for elapsed-time
// measurements (dial rounds, flush pacing, startup timing). Readings are
// nanoseconds since process start and never jump with wall-clock
// adjustments; they are meaningless across processes or restarts.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

// base carries the runtime's monotonic clock reading captured at package
// init; time.Since subtracts on the monotonic track, which is the whole
// point.
var base = time.Now()

// NanoTime returns nanoseconds elapsed since process start.
func NanoTime() int64 { return int64(time.Since(base)) }

// Since converts a prior NanoTime reading into the elapsed duration.
func Since(started int64) time.Duration { return time.Duration(NanoTime() - started) }

// SinceNano is Since without the time.Duration conversion.
func SinceNano(started int64) int64 { return NanoTime() - started }
