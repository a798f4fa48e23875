/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package connmgr

import (
	"net"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/houseofmoo/netcomm-sub000/platform/tcp"
	"github.com/houseofmoo/netcomm-sub000/router"
	"github.com/houseofmoo/netcomm-sub000/sendworker"
	"github.com/houseofmoo/netcomm-sub000/transport"
	"github.com/houseofmoo/netcomm-sub000/types"
	"github.com/houseofmoo/netcomm-sub000/wire"
)

var _ = Describe("RouteKind", func() {
	self := Peer{ID: 1, IP: "10.0.0.1", Port: 9000}

	It("classifies our own id as Self", func() {
		Expect(RouteKind(self, Peer{ID: 1, IP: "10.0.0.1", Port: 9000})).To(Equal(types.RouteSelf))
	})

	It("classifies a different id on the same IP as Shm", func() {
		Expect(RouteKind(self, Peer{ID: 2, IP: "10.0.0.1", Port: 9001})).To(Equal(types.RouteShm))
	})

	It("classifies a different IP as Socket", func() {
		Expect(RouteKind(self, Peer{ID: 3, IP: "10.0.0.2", Port: 9000})).To(Equal(types.RouteSocket))
	})
})

var _ = Describe("session establishment", func() {
	It("dials, identifies itself, and delivers inbound frames to recv handles", func() {
		// The "remote" side: a bare listener standing in for the peer.
		srv := tcp.NewServer()
		Expect(srv.Listen("127.0.0.1", 0)).To(Succeed())
		defer srv.RequestStop()
		port := uint16(srv.Addr().(*net.TCPAddr).Port)

		reg := transport.New()
		rt := router.New(1, reg)
		send := sendworker.NewPair(rt.CompleteJob)
		m := New(Peer{ID: 1, IP: "10.0.0.1", Port: 9000}, nil, 0, reg, rt, send)

		recvBuf := make([]byte, 4*8)
		h := &router.RecvHandle{Buf: recvBuf, SlotSize: 8, NumSlots: 4, SignalMode: types.SignalEveryMessage}
		_, err := rt.RegisterRecvSubscriber(400, 8, h)
		Expect(err).NotTo(HaveOccurred())

		accepted := make(chan *tcp.Client, 1)
		go func() {
			defer GinkgoRecover()
			c, err := srv.Accept()
			Expect(err).NotTo(HaveOccurred())
			accepted <- c
		}()

		Expect(m.dialOnce(Peer{ID: 9, IP: "127.0.0.1", Port: port})).To(BeTrue())
		_, ok := reg.Socket(9)
		Expect(ok).To(BeTrue())

		peer := <-accepted
		defer peer.Disconnect()

		// The dialer leads with its identification header.
		ident := make([]byte, types.LabelHeaderSize)
		Expect(peer.RecvAll(ident)).To(Succeed())
		hdr, err := wire.DecodeHeader(ident)
		Expect(err).NotTo(HaveOccurred())
		Expect(hdr.Magic).To(Equal(types.MagicNum))
		Expect(hdr.SourceID).To(Equal(types.NodeId(1)))
		Expect(types.HasFlag(hdr.Flags, types.FlagConnect)).To(BeTrue())

		// A data frame from the peer lands in the registered handle via
		// the receive worker adopt() spawned.
		payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
		frame := types.LabelHeader{
			Magic: types.MagicNum,
			Version: types.Version,
			SourceID: 9,
			Label: 400,
			DataSize: 8,
		}
		types.SetFlag(&frame.Flags, types.FlagData)
		Expect(peer.SendAll(wire.EncodeHeader(&frame))).To(Succeed())
		Expect(peer.SendAll(payload)).To(Succeed())

		Eventually(h.RecvCount).Should(Equal(uint32(1)))
		Expect(recvBuf[:8]).To(Equal(payload))

		// Graceful shutdown announces itself before tearing the session
		// down.
		m.Stop()
		bye := make([]byte, types.LabelHeaderSize)
		Expect(peer.RecvAll(bye)).To(Succeed())
		hdr, err = wire.DecodeHeader(bye)
		Expect(err).NotTo(HaveOccurred())
		Expect(types.HasFlag(hdr.Flags, types.FlagDisconnect)).To(BeTrue())
	})
})
