// Package recvworker implements the two receive-worker kinds: one goroutine
// per peer TCP session draining framed records, and the single goroutine
// draining the self-hosted shared-memory ring. Both deliver through
// router.DistributeRecvdLabel.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package recvworker

import (
	"sync"

	"github.com/houseofmoo/netcomm-sub000/cmn/nlog"
	"github.com/houseofmoo/netcomm-sub000/platform/tcp"
	"github.com/houseofmoo/netcomm-sub000/router"
	"github.com/houseofmoo/netcomm-sub000/stats"
	"github.com/houseofmoo/netcomm-sub000/types"
	"github.com/houseofmoo/netcomm-sub000/wire"
)

// Socket is one peer TCP session's dedicated receive worker. It exits on
// any recv error; the connection manager's heartbeat notices the dead
// socket and restarts it.
type Socket struct {
	peerID types.NodeId
	conn *tcp.Client
	rt *router.Router

	stopOnce sync.Once
	done chan struct{}
	stats *stats.Stats // optional
}

func NewSocket(peerID types.NodeId, conn *tcp.Client, rt *router.Router) *Socket {
	return &Socket{peerID: peerID, conn: conn, rt: rt, done: make(chan struct{})}
}

// SetStats attaches a metrics sink; nil-safe if never called.
func (s *Socket) SetStats(st *stats.Stats) { s.stats = st }

// Run drains the socket until a fatal recv error or Stop. It must run in
// its own goroutine.
func (s *Socket) Run() {
	defer close(s.done)
	buf := make([]byte, types.SocketDataMaxSize)
	hdrBuf := make([]byte, types.LabelHeaderSize)
	for {
		if err := s.conn.RecvAll(hdrBuf); err != nil {
			nlog.Infof("recvworker(socket %d): recv header failed, exiting: %v", s.peerID, err)
			return
		}
		hdr, err := wire.DecodeHeader(hdrBuf)
		if err != nil {
			nlog.Warningf("recvworker(socket %d): short header: %v", s.peerID, err)
			return
		}
		if err := wire.ValidateHeader(hdr); err != nil {
			// Framing is now uncertain, so the session is torn down
			// rather than resynchronized.
			nlog.Warningf("recvworker(socket %d): invalid header, tearing down session: %v", s.peerID, err)
			if s.stats != nil {
				s.stats.RecvDrops.Inc()
			}
			return
		}

		if types.HasFlag(hdr.Flags, types.FlagDisconnect) {
			// Peer announced a graceful teardown; exit now rather than
			// waiting for the socket to die under us.
			nlog.Infof("recvworker(socket %d): peer disconnecting, exiting", s.peerID)
			return
		}
		if types.HasFlag(hdr.Flags, types.FlagPing) || types.HasFlag(hdr.Flags, types.FlagConnect) {
			continue
		}

		// FlagData
		dataBuf := buf[:hdr.DataSize]
		if err := s.conn.RecvAll(dataBuf); err != nil {
			nlog.Infof("recvworker(socket %d): recv payload failed, exiting: %v", s.peerID, err)
			return
		}
		s.rt.DistributeRecvdLabel(hdr.SourceID, hdr.Label, dataBuf, hdr.RecvOffset)
	}
}

// Stop shuts down both directions of the connection so a blocked RecvAll
// returns promptly,
// then waits for Run to exit.
func (s *Socket) Stop() {
	s.stopOnce.Do(func() { s.conn.Shutdown() })
	<-s.done
}
