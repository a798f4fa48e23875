/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package ring

import (
	"github.com/houseofmoo/netcomm-sub000/types"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func newTestRing() *Ring {
	buf := make([]byte, Size())
	return Init(buf, 7)
}

var _ = Describe("Ring", func() {
	var r *Ring

	BeforeEach(func() {
		r = newTestRing()
	})

	It("round-trips a single record with fields unchanged", func() {
		payload := []byte{0x0A, 0x0B, 0x0C, 0x0D}
		Expect(r.Write(0, 100, 1, payload)).To(Succeed())

		out := make([]byte, 4096)
		rec, err := r.Read(out)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.SourceID).To(Equal(types.NodeId(0)))
		Expect(rec.Label).To(Equal(types.Label(100)))
		Expect(rec.UserSeq).To(Equal(uint32(1)))
		Expect(rec.Payload).To(Equal(payload))
	})

	It("delivers writes from a single publisher in order", func() {
		for i := uint32(0); i < 10; i++ {
			Expect(r.Write(0, 1, i, []byte{byte(i)})).To(Succeed())
		}
		out := make([]byte, 64)
		for i := uint32(0); i < 10; i++ {
			rec, err := r.Read(out)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.UserSeq).To(Equal(i))
			Expect(rec.Payload).To(Equal([]byte{byte(i)}))
		}
		_, err := r.Read(out)
		Expect(err).To(MatchError(ErrNoRecords))
	})

	It("maintains head >= tail and head-tail <= DataBlockSize at rest", func() {
		for i := 0; i < 50; i++ {
			_ = r.Write(0, 1, uint32(i), make([]byte, 128))
		}
		Expect(r.meta.Head()).To(BeNumerically(">=", r.meta.Tail()))
		Expect(r.meta.Head() - r.meta.Tail()).To(BeNumerically("<=", dataBlockSize))
	})

	It("returns NoRecords on an empty ring", func() {
		_, err := r.Read(make([]byte, 16))
		Expect(err).To(MatchError(ErrNoRecords))
	})

	It("rejects a payload too large for the ring", func() {
		err := r.Write(0, 1, 0, make([]byte, dataBlockSize))
		Expect(err).To(MatchError(ErrSizeTooLarge))
	})

	It("rejects a too-small caller buffer with LabelTooLarge", func() {
		Expect(r.Write(0, 1, 0, make([]byte, 100))).To(Succeed())
		_, err := r.Read(make([]byte, 10))
		Expect(err).To(MatchError(ErrLabelTooLarge))
	})

	It("accepts a write of exactly DataBlockSize-headerSize bytes when empty", func() {
		full := make([]byte, dataUsableLimit)
		Expect(r.Write(0, 1, 0, full)).To(Succeed())
	})

	It("fails NotEnoughSpace when the reader hasn't drained enough room", func() {
		full := make([]byte, dataUsableLimit)
		Expect(r.Write(0, 1, 0, full)).To(Succeed())
		err := r.Write(0, 1, 1, []byte{1})
		Expect(err).To(MatchError(ErrNotEnoughSpace))
	})

	It("wraps when the next record would straddle the region end", func() {
		// First record's reserved size leaves exactly one header's worth
		// of room before the physical end of the data region, too little
		// for the second record's 56-byte reservation — forcing a wrap
		// record there and the data record at offset 0.
		reserved1 := dataBlockSize - recordHeaderSize
		payload1 := make([]byte, reserved1-recordHeaderSize)
		Expect(r.Write(0, 1, 0, payload1)).To(Succeed())

		_, err := r.Read(make([]byte, len(payload1)+8))
		Expect(err).NotTo(HaveOccurred())
		Expect(r.meta.Head()).To(Equal(r.meta.Tail())) // drained, head unchanged

		Expect(r.Write(0, 2, 0, []byte{9, 9})).To(Succeed())
		// the wrap landed the new record at offset 0 of the data region
		Expect(r.meta.Head() % dataBlockSize).To(Equal(uint64(alignUp(2+recordHeaderSize, 8))))

		rec, err := r.Read(make([]byte, 16))
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Payload).To(Equal([]byte{9, 9}))
	})

	It("absorbs a sub-header sliver at the region end into the record as padding", func() {
		// Reserved size would leave 32 bytes past the record, too small
		// for any subsequent header; the allocator grows the record to
		// end exactly at the region end instead.
		payload := make([]byte, dataBlockSize-32-recordHeaderSize)
		Expect(r.Write(0, 1, 0, payload)).To(Succeed())
		Expect(r.meta.Head()).To(Equal(dataBlockSize))

		rec, err := r.Read(make([]byte, len(payload)))
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Payload).To(HaveLen(len(payload)))
		Expect(r.meta.Tail()).To(Equal(dataBlockSize))
	})

	It("abandons the unread backlog on reinit by bumping the generation", func() {
		Expect(r.Write(0, 1, 0, []byte{1, 2, 3})).To(Succeed())
		// A committed-but-unread record is left in the backlog; Reinit
		// simulates the owning reader reopening a crashed writer's ring —
		// every record written under the old generation is abandoned.
		genBefore := r.meta.Generation()
		Expect(genBefore).To(Equal(uint64(1)))

		r.Reinit()
		Expect(r.meta.Generation()).To(Equal(genBefore + 1))
		Expect(r.meta.Head()).To(Equal(uint64(0)))
		Expect(r.meta.Tail()).To(Equal(uint64(0)))

		_, err := r.Read(make([]byte, 16))
		Expect(err).To(MatchError(ErrNoRecords))
	})

	It("discards the backlog on FlushBacklog", func() {
		Expect(r.Write(0, 1, 0, []byte{1})).To(Succeed())
		Expect(r.Write(0, 1, 1, []byte{2})).To(Succeed())
		r.FlushBacklog()
		Expect(r.meta.Head()).To(Equal(r.meta.Tail()))
		_, err := r.Read(make([]byte, 16))
		Expect(err).To(MatchError(ErrNoRecords))
	})

	It("rejects writes to a not-yet-ready segment", func() {
		buf := make([]byte, Size())
		fresh := Open(buf) // never Init'd: state stays 0 (StateIniting)
		err := fresh.Write(0, 1, 0, []byte{1})
		Expect(err).To(MatchError(ErrBlockNotInitialized))
	})
})
