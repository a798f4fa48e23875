// Package sys provides methods to read system information
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package sys

import (
	"os"
	"runtime"

	"github.com/houseofmoo/netcomm-sub000/cmn/nlog"
)

const maxProcsEnvVar = "GOMAXPROCS"

// NumCPU reports runtime.NumCPU(); the connection manager uses it to bound
// the concurrency of its initial dial fan-out.
func NumCPU() int { return runtime.NumCPU() }

// SetMaxProcs lowers GOMAXPROCS to NumCPU when it is higher, unless
// GOMAXPROCS is set via the Go environment.
func SetMaxProcs() {
	if val, exists := os.LookupEnv(maxProcsEnvVar); exists {
		nlog.Warningf("GOMAXPROCS is set via Go environment %q: %q", maxProcsEnvVar, val)
		return
	}
	maxprocs := runtime.GOMAXPROCS(0)
	ncpu := NumCPU()
	if maxprocs > ncpu {
		nlog.Warningf("reducing GOMAXPROCS (%d) to %d (num CPUs)", maxprocs, ncpu)
		runtime.GOMAXPROCS(ncpu)
	}
}
