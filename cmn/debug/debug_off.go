//go:build !debug

/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package debug

import "sync"

func ON() bool { return false }

func Assert(bool, ...any) {}
func Assertf(bool, string, ...any) {}
func AssertNoErr(error) {}
func AssertMutexLocked(*sync.Mutex) {}
func AssertRWMutexLocked(*sync.RWMutex) {}
