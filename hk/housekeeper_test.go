/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package hk_test

import (
	"time"

	"github.com/houseofmoo/netcomm-sub000/hk"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Housekeeper", func() {
	It("invokes a registered callback after its interval and reschedules using its return value", func() {
		calls := make(chan struct{}, 8)
		hk.DefaultHK.Reg("periodic", func() time.Duration {
			calls <- struct{}{}
			return 10 * time.Millisecond
		}, 10*time.Millisecond)
		defer hk.DefaultHK.Unreg("periodic")

		Eventually(calls).Should(Receive())
		Eventually(calls).Should(Receive())
	})

	It("stops rescheduling once the callback returns UnregInterval", func() {
		calls := make(chan struct{}, 8)
		fired := false
		hk.DefaultHK.Reg("one-shot", func() time.Duration {
			calls <- struct{}{}
			if fired {
				return hk.UnregInterval
			}
			fired = true
			return hk.UnregInterval
		}, 5*time.Millisecond)

		Eventually(calls).Should(Receive())
		Consistently(calls, 50*time.Millisecond, 10*time.Millisecond).ShouldNot(Receive())
	})

	It("re-registering the same name replaces the prior schedule rather than duplicating it", func() {
		first := make(chan struct{}, 8)
		second := make(chan struct{}, 8)
		hk.DefaultHK.Reg("dup", func() time.Duration {
			first <- struct{}{}
			return hk.UnregInterval
		}, time.Hour)
		hk.DefaultHK.Reg("dup", func() time.Duration {
			second <- struct{}{}
			return hk.UnregInterval
		}, 5*time.Millisecond)
		defer hk.DefaultHK.Unreg("dup")

		Eventually(second).Should(Receive())
		Consistently(first, 20*time.Millisecond, 5*time.Millisecond).ShouldNot(Receive())
	})
})
