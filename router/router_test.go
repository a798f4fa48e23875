/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package router

import (
	"github.com/houseofmoo/netcomm-sub000/transport"
	"github.com/houseofmoo/netcomm-sub000/types"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func newTestRouter() *Router {
	return New(0, transport.New())
}

var _ = Describe("Router handle lifecycle", func() {
	It("open_send then close_send leaves the route table at its pre-state", func() {
		r := newTestRouter()
		before := r.SendTable().SnapshotSendLabels()

		h := &SendHandle{Buf: make([]byte, 16)}
		uid, err := r.RegisterSendPublisher(100, 16, h)
		Expect(err).NotTo(HaveOccurred())
		Expect(uid).NotTo(BeZero())

		Expect(r.UnregisterSendPublisher(uid)).To(Succeed())
		after := r.SendTable().SnapshotSendLabels()
		Expect(after.Labels).To(Equal(before.Labels))
	})

	It("rejects unregistering an unknown handle", func() {
		r := newTestRouter()
		err := r.UnregisterSendPublisher(999)
		Expect(err).To(MatchError(ErrUnknownHandle))
	})
})

var _ = Describe("BuildSendJob", func() {
	It("fails RouteNotFound for a label with no route", func() {
		r := newTestRouter()
		_, err := r.BuildSendJob(100, 1, make([]byte, 16), 0, 0)
		Expect(err).To(MatchError(ErrRouteNotFound))
	})

	It("fails IncorrectPublisher when uid is not registered on the route", func() {
		r := newTestRouter()
		h := &SendHandle{Buf: make([]byte, 16)}
		_, err := r.RegisterSendPublisher(100, 16, h)
		Expect(err).NotTo(HaveOccurred())

		_, err = r.BuildSendJob(100, 999, make([]byte, 16), 0, 0)
		Expect(err).To(MatchError(ErrIncorrectPublisher))
	})

	It("fails SizeMismatch when the payload size disagrees with the route", func() {
		r := newTestRouter()
		h := &SendHandle{Buf: make([]byte, 16)}
		uid, err := r.RegisterSendPublisher(100, 16, h)
		Expect(err).NotTo(HaveOccurred())

		_, err = r.BuildSendJob(100, uid, make([]byte, 8), 0, 0)
		Expect(err).To(MatchError(ErrSizeMismatch))
	})

	It("builds a job with no pending completions when the label has no subscribers", func() {
		r := newTestRouter()
		h := &SendHandle{Buf: make([]byte, 16)}
		uid, err := r.RegisterSendPublisher(100, 16, h)
		Expect(err).NotTo(HaveOccurred())

		job, err := r.BuildSendJob(100, uid, make([]byte, 16), 42, 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(job.Seq).To(Equal(uint32(42)))
		Expect(job.RecvOffset).To(Equal(uint32(7)))
		Expect(job.LocalRecvrs).To(BeEmpty())
		Expect(job.RemoteRecvrs).To(BeEmpty())
	})
})

var _ = Describe("DistributeRecvdLabel", func() {
	It("delivers an identical payload to every subscriber of a local label", func() {
		r := newTestRouter()
		h1 := &RecvHandle{Buf: make([]byte, 4*16), SlotSize: 16, NumSlots: 4, SignalMode: types.SignalEveryMessage}
		h2 := &RecvHandle{Buf: make([]byte, 4*16), SlotSize: 16, NumSlots: 4, SignalMode: types.SignalEveryMessage}
		_, err := r.RegisterRecvSubscriber(400, 4, h1)
		Expect(err).NotTo(HaveOccurred())
		_, err = r.RegisterRecvSubscriber(400, 4, h2)
		Expect(err).NotTo(HaveOccurred())

		r.DistributeRecvdLabel(0, 400, []byte{1, 2, 3, 4}, 0)

		Expect(h1.RecvCount()).To(Equal(uint32(1)))
		Expect(h2.RecvCount()).To(Equal(uint32(1)))
		Expect(h1.Buf[:4]).To(Equal([]byte{1, 2, 3, 4}))
		Expect(h2.Buf[:4]).To(Equal([]byte{1, 2, 3, 4}))
	})

	It("skips idle handles", func() {
		r := newTestRouter()
		h := &RecvHandle{Buf: make([]byte, 16), SlotSize: 16, NumSlots: 1, SignalMode: types.SignalEveryMessage, Idle: true}
		_, err := r.RegisterRecvSubscriber(500, 4, h)
		Expect(err).NotTo(HaveOccurred())

		r.DistributeRecvdLabel(0, 500, []byte{9, 9, 9, 9}, 0)
		Expect(h.RecvCount()).To(Equal(uint32(0)))
	})

	It("is a no-op for a label with no recv route", func() {
		r := newTestRouter()
		Expect(func() { r.DistributeRecvdLabel(0, 9999, []byte{1}, 0) }).NotTo(Panic())
	})
})

var _ = Describe("RecvHandle round trip laws", func() {
	It("recv_reset followed by recv_count returns 0", func() {
		h := &RecvHandle{Buf: make([]byte, 16), SlotSize: 16, NumSlots: 1, SignalMode: types.SignalEveryMessage}
		h.Deliver(0, 1, []byte{1, 2, 3, 4}, 0)
		Expect(h.RecvCount()).To(Equal(uint32(1)))
		h.Reset()
		Expect(h.RecvCount()).To(Equal(uint32(0)))
	})

	It("recv_redirect applied twice returns the handle to its original buffers", func() {
		primary := make([]byte, 16)
		aux := make([]byte, 16)
		h := &RecvHandle{Buf: primary, AuxBuf: aux, SlotSize: 16, NumSlots: 1}
		h.Redirect()
		Expect(h.Buf).To(Equal(aux))
		Expect(h.AuxBuf).To(Equal(primary))
		h.Redirect()
		Expect(h.Buf).To(Equal(primary))
		Expect(h.AuxBuf).To(Equal(aux))
	})

	It("dismiss floors the undismissed count at zero", func() {
		h := &RecvHandle{Buf: make([]byte, 16), SlotSize: 16, NumSlots: 1, SignalMode: types.SignalEveryMessage}
		h.Deliver(0, 1, []byte{1, 2, 3, 4}, 0)
		h.Dismiss(100)
		Expect(h.RecvCount()).To(Equal(uint32(0)))
	})
})
