/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package cos_test

import (
	"errors"
	"syscall"

	"github.com/houseofmoo/netcomm-sub000/cmn/cos"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("ErrNotFound", func() {
	It("formats and is recognized by IsErrNotFound", func() {
		err := cos.NewErrNotFound("peer %d", 7)
		Expect(err.Error()).To(Equal("peer 7 does not exist"))
		Expect(cos.IsErrNotFound(err)).To(BeTrue())
		Expect(cos.IsErrNotFound(errors.New("peer 7 does not exist"))).To(BeFalse())
	})
})

var _ = Describe("Errs", func() {
	var e *cos.Errs

	BeforeEach(func() { e = &cos.Errs{} })

	It("starts empty", func() {
		Expect(e.Cnt()).To(Equal(0))
		Expect(e.Error()).To(BeEmpty())
	})

	It("deduplicates errors with identical messages", func() {
		e.Add(errors.New("boom"))
		e.Add(errors.New("boom"))
		Expect(e.Cnt()).To(Equal(1))
	})

	It("caps accumulation at its internal limit", func() {
		for i := 0; i < 10; i++ {
			e.Add(errors.New(string(rune('a' + i))))
		}
		Expect(e.Cnt()).To(Equal(4))
	})

	It("summarizes multiple errors with an '(and N more)' suffix", func() {
		e.Add(errors.New("first"))
		e.Add(errors.New("second"))
		Expect(e.Error()).To(Equal("first (and 1 more error)"))
	})

	It("joins every accumulated error via JoinErr", func() {
		e.Add(errors.New("first"))
		e.Add(errors.New("second"))
		cnt, joined := e.JoinErr()
		Expect(cnt).To(Equal(2))
		Expect(joined.Error()).To(ContainSubstring("first"))
		Expect(joined.Error()).To(ContainSubstring("second"))
	})
})

var _ = Describe("syscall/net error classification", func() {
	It("does not classify a nil error as EOF", func() {
		Expect(cos.IsEOF(nil)).To(BeFalse())
	})

	It("treats connection reset as retriable and fatal", func() {
		err := syscall.ECONNRESET
		Expect(cos.IsErrConnectionReset(err)).To(BeTrue())
		Expect(cos.IsRetriableConnErr(err)).To(BeTrue())
		Expect(cos.IsFatalSockErr(err)).To(BeTrue())
	})

	It("treats connection refused as retriable but not a fatal socket err", func() {
		err := syscall.ECONNREFUSED
		Expect(cos.IsErrConnectionRefused(err)).To(BeTrue())
		Expect(cos.IsRetriableConnErr(err)).To(BeTrue())
		Expect(cos.IsFatalSockErr(err)).To(BeFalse())
	})

	It("a nil error is never fatal", func() {
		Expect(cos.IsFatalSockErr(nil)).To(BeFalse())
	})
})

var _ = Describe("Plural", func() {
	It("returns no suffix for exactly one", func() {
		Expect(cos.Plural(1)).To(Equal(""))
	})
	It("returns 's' otherwise", func() {
		Expect(cos.Plural(0)).To(Equal("s"))
		Expect(cos.Plural(2)).To(Equal("s"))
	})
})
