/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package route

import (
	"github.com/houseofmoo/netcomm-sub000/types"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Table", func() {
	var t *Table

	BeforeEach(func() {
		t = New()
	})

	Context("send publishers", func() {
		It("creates a route and bumps the send generation on first publisher", func() {
			genBefore := t.Generation()
			Expect(t.AddSendPublisher(100, 4096, 1)).To(Succeed())
			Expect(t.Generation()).To(BeNumerically(">", genBefore))

			rt, ok := t.LookupSend(100)
			Expect(ok).To(BeTrue())
			Expect(rt.LabelSize).To(Equal(uint32(4096)))
			Expect(rt.Publishers).To(HaveKey(types.HandleUID(1)))
		})

		It("rejects a second publisher with a different label size", func() {
			Expect(t.AddSendPublisher(100, 4096, 1)).To(Succeed())
			err := t.AddSendPublisher(100, 2048, 2)
			Expect(err).To(MatchError(ErrSizeMismatch))
		})

		It("does not bump generation when adding a second publisher to an existing route", func() {
			Expect(t.AddSendPublisher(100, 4096, 1)).To(Succeed())
			gen := t.Generation()
			Expect(t.AddSendPublisher(100, 4096, 2)).To(Succeed())
			Expect(t.Generation()).To(Equal(gen))
		})

		It("removes the route once its last publisher is removed", func() {
			Expect(t.AddSendPublisher(100, 4096, 1)).To(Succeed())
			t.RemoveSendPublisher(100, 1)
			_, ok := t.LookupSend(100)
			Expect(ok).To(BeFalse())
		})

		It("open_send then close_send round-trips to the table's pre-state", func() {
			before := t.SnapshotSendLabels()
			Expect(t.AddSendPublisher(100, 4096, 1)).To(Succeed())
			t.RemoveSendPublisher(100, 1)
			after := t.SnapshotSendLabels()
			Expect(after.Labels).To(Equal(before.Labels))
		})
	})

	Context("send subscribers", func() {
		It("keeps a NodeId local-xor-remote: re-adding as remote clears the local entry", func() {
			Expect(t.AddLocalSendSubscriber(100, 4096, 5)).To(Succeed())
			Expect(t.AddRemoteSendSubscriber(100, 4096, 5)).To(Succeed())
			rt, _ := t.LookupSend(100)
			Expect(rt.LocalSubscribers).NotTo(HaveKey(types.NodeId(5)))
			Expect(rt.RemoteSubscribers).To(HaveKey(types.NodeId(5)))
		})

		It("rejects a subscriber whose label size disagrees with the route", func() {
			Expect(t.AddLocalSendSubscriber(100, 4096, 5)).To(Succeed())
			err := t.AddRemoteSendSubscriber(100, 999, 6)
			Expect(err).To(MatchError(ErrSizeMismatch))
		})
	})

	Context("recv subscribers", func() {
		It("registers and removes a subscriber, deleting the route when empty", func() {
			Expect(t.AddRecvSubscriber(200, 64, 1)).To(Succeed())
			rt, ok := t.LookupRecv(200)
			Expect(ok).To(BeTrue())
			Expect(rt.Subscribers).To(HaveKey(types.HandleUID(1)))

			t.RemoveRecvSubscriber(200, 1)
			_, ok = t.LookupRecv(200)
			Expect(ok).To(BeFalse())
		})

		It("requires every subscriber to agree on label_size", func() {
			Expect(t.AddRecvSubscriber(200, 64, 1)).To(Succeed())
			err := t.AddRecvSubscriber(200, 32, 2)
			Expect(err).To(MatchError(ErrSizeMismatch))
		})
	})

	Context("snapshots", func() {
		It("is idempotent across no-op calls", func() {
			Expect(t.AddSendPublisher(300, 16, 1)).To(Succeed())
			Expect(t.AddSendPublisher(200, 16, 2)).To(Succeed())
			s1 := t.SnapshotSendLabels()
			s2 := t.SnapshotSendLabels()
			Expect(s1).To(Equal(s2))
		})

		It("sorts labels ascending and marks unused slots invalid", func() {
			Expect(t.AddSendPublisher(300, 16, 1)).To(Succeed())
			Expect(t.AddSendPublisher(100, 16, 2)).To(Succeed())
			Expect(t.AddSendPublisher(200, 16, 3)).To(Succeed())
			snap := t.SnapshotSendLabels()
			Expect(snap.Labels[0].Label).To(Equal(types.Label(100)))
			Expect(snap.Labels[1].Label).To(Equal(types.Label(200)))
			Expect(snap.Labels[2].Label).To(Equal(types.Label(300)))
			Expect(snap.Labels[3].Label).To(Equal(types.InvalidLabel))
		})
	})
})
