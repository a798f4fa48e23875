// Package cos provides common low-level types and utilities shared across the fabric.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	ratomic "sync/atomic"
	"syscall"

	"github.com/houseofmoo/netcomm-sub000/cmn/debug"
)

type (
	ErrNotFound struct {
		what string
	}
	// Errs accumulates up to maxErrs distinct errors (e.g. per-destination
	// send-job failures) and joins them into a single error on demand.
	Errs struct {
		errs []error
		cnt int64
		mu sync.Mutex
	}
)

func NewErrNotFound(format string, a ...any) *ErrNotFound {
	return &ErrNotFound{fmt.Sprintf(format, a...)}
}

func (e *ErrNotFound) Error() string { return e.what + " does not exist" }

func IsErrNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}

const maxErrs = 4

func (e *Errs) Add(err error) {
	debug.Assert(err != nil)
	e.mu.Lock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			e.mu.Unlock()
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
		ratomic.StoreInt64(&e.cnt, int64(len(e.errs)))
	}
	e.mu.Unlock()
}

func (e *Errs) Cnt() int { return int(ratomic.LoadInt64(&e.cnt)) }

func (e *Errs) JoinErr() (cnt int, err error) {
	if cnt = e.Cnt(); cnt > 0 {
		e.mu.Lock()
		err = errors.Join(e.errs...)
		e.mu.Unlock()
	}
	return
}

func (e *Errs) Error() (s string) {
	var (
		err error
		cnt = e.Cnt()
	)
	if cnt == 0 {
		return
	}
	e.mu.Lock()
	if cnt = len(e.errs); cnt > 0 {
		err = e.errs[0]
	}
	e.mu.Unlock()
	if err == nil {
		return
	}
	if cnt > 1 {
		err = fmt.Errorf("%v (and %d more error%s)", err, cnt-1, Plural(cnt-1))
	}
	s = err.Error()
	return
}

//
// syscall / net classification — used by connmgr & sendworker to sort
// failures into the transient/fatal/validation taxonomy
//

func IsEOF(err error) bool { return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) }

func UnwrapSyscallErr(err error) error {
	if syscallErr, ok := err.(*os.SyscallError); ok {
		return syscallErr.Unwrap()
	}
	return nil
}

// retriable/fatal conn errs — fatal errors mark the session disconnected
func IsErrConnectionRefused(err error) (yes bool) { return errors.Is(err, syscall.ECONNREFUSED) }
func IsErrConnectionReset(err error) (yes bool) { return errors.Is(err, syscall.ECONNRESET) }
func IsErrBrokenPipe(err error) (yes bool) { return errors.Is(err, syscall.EPIPE) }
func IsErrAborted(err error) (yes bool) { return errors.Is(err, syscall.ECONNABORTED) }
func IsErrHostUnreachable(err error) (yes bool) { return errors.Is(err, syscall.EHOSTUNREACH) }
func IsErrNetUnreachable(err error) (yes bool) { return errors.Is(err, syscall.ENETUNREACH) }
func IsErrNetDown(err error) (yes bool) { return errors.Is(err, syscall.ENETDOWN) }

// IsFatalSockErr reports whether err should tear down the TCP session
// as opposed to merely counting a transient send failure on the job.
func IsFatalSockErr(err error) bool {
	if err == nil {
		return false
	}
	return IsEOF(err) ||
		IsErrConnectionReset(err) ||
		IsErrBrokenPipe(err) ||
		IsErrAborted(err) ||
		IsErrHostUnreachable(err) ||
		IsErrNetUnreachable(err) ||
		IsErrNetDown(err)
}

func IsRetriableConnErr(err error) (yes bool) {
	return IsErrConnectionRefused(err) || IsErrConnectionReset(err) || IsErrBrokenPipe(err)
}

func isErrDNSLookup(err error) bool {
	_, ok := err.(*net.DNSError)
	return ok
}

func IsUnreachable(err error) bool {
	return IsErrConnectionRefused(err) || isErrDNSLookup(err) || IsEOF(err)
}

func Plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
